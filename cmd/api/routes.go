package main

import (
	"estate-platform/internal/httpapi"
	"estate-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireCluster())
	{
		// WALLET routes
		wallet := v1.Group("/wallet")
		{
			wallet.GET("", h.GetMyWallet)
			wallet.GET("/transactions", h.ListMyTransactions)
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/withdraw", h.Withdraw)
		}

		// BILL routes
		bills := v1.Group("/bills")
		{
			bills.GET("", h.ListBills)
			bills.GET("/:bill_id", h.GetBill)
			bills.GET("/:bill_id/summary", h.BillSummary)
			bills.POST("/:bill_id/acknowledge", h.AcknowledgeBill)
			bills.POST("/:bill_id/pay", h.PayBill)
			bills.POST("/:bill_id/disputes", h.OpenDispute)

			bills.POST("", append(
				httpapi.RequireClusterAndAnyRole(rbac.RoleEstateManager, rbac.RoleFinance, rbac.RoleSuperAdmin),
				h.CreateBill)...)
		}

		// DISPUTE routes
		disputes := v1.Group("/disputes")
		{
			disputes.GET("/:dispute_id/comments", h.DisputeThread)
			disputes.POST("/:dispute_id/comments", h.AddDisputeComment)
			disputes.POST("/:dispute_id/withdraw", h.WithdrawDispute)

			adminOnly := httpapi.RequireClusterAndAnyRole(rbac.RoleEstateManager, rbac.RoleSuperAdmin)
			disputes.POST("/:dispute_id/review", append(adminOnly, h.StartDisputeReview)...)
			disputes.POST("/:dispute_id/resolve", append(adminOnly, h.ResolveDispute)...)
			disputes.POST("/:dispute_id/reject", append(adminOnly, h.RejectDispute)...)
		}

		// UTILITY routes
		utilities := v1.Group("/utilities")
		{
			utilities.GET("/providers", h.ListUtilityProviders)
			utilities.POST("/pay", h.PayUtility)
		}

		// RECURRING routes
		rec := v1.Group("/recurring")
		{
			rec.GET("", h.ListMyRecurring)
			rec.POST("", h.CreateRecurring)
			rec.POST("/:recurring_id/pause", h.PauseRecurring)
			rec.POST("/:recurring_id/resume", h.ResumeRecurring)
			rec.POST("/:recurring_id/cancel", h.CancelRecurring)
		}

		// ADMIN routes
		// Only estate managers, finance, and super_admin. Hidden ops_operator
		// is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleEstateManager, rbac.RoleFinance, rbac.RoleSuperAdmin))
		{
			admin.POST("/transfers", h.AdminTransferToCluster)
			admin.POST("/recurring/sweep", h.ProcessDueRecurring)
			admin.GET("/payment-errors", h.ListUnresolvedErrors)
			admin.POST("/payment-errors/:error_id/retry", h.RetryFailedPayment)
		}
	}
}
