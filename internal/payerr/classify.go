package payerr

import "strings"

// Classify buckets a raw provider error message by keyword. Utility-specific
// patterns are checked before the generic card/network ones because their
// messages often contain overlapping words ("invalid customer id").
func Classify(message string) Type {
	m := strings.ToLower(message)

	switch {
	case containsAny(m, "meter"):
		return TypeMeterNotFound
	case containsAny(m, "customer id", "customer_id", "invalid customer"):
		return TypeInvalidCustomerID
	case containsAny(m, "customer validation", "could not validate customer"):
		return TypeCustomerValidationFailed
	case containsAny(m, "service unavailable", "utility unavailable"):
		return TypeUtilityUnavailable
	case containsAny(m, "insufficient", "balance", "funds"):
		return TypeInsufficientFunds
	case containsAny(m, "invalid", "card"):
		return TypeInvalidCard
	case containsAny(m, "expired", "expiry"):
		return TypeExpiredCard
	case containsAny(m, "declined", "rejected"):
		return TypeDeclinedCard
	case containsAny(m, "timed out", "deadline exceeded"):
		return TypeTimeoutError
	case containsAny(m, "network", "connection", "timeout"):
		return TypeNetworkError
	case containsAny(m, "authentication", "unauthorized"):
		return TypeAuthenticationError
	case containsAny(m, "limit", "exceeded"):
		return TypeLimitExceeded
	case containsAny(m, "suspended", "blocked"):
		return TypeAccountSuspended
	default:
		return TypeUnknownError
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// SeverityFor maps an error type to its operational severity.
func SeverityFor(t Type) Severity {
	switch t {
	case TypeNetworkError, TypeTimeoutError:
		return SeverityLow
	case TypeInvalidCard, TypeProviderError, TypeAuthenticationError,
		TypeUtilityProviderError, TypeUtilityUnavailable:
		return SeverityHigh
	case TypeAccountSuspended:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// UserMessage is the user-facing text for an error type; raw provider
// messages are never shown to residents.
func UserMessage(t Type) string {
	switch t {
	case TypeInsufficientFunds:
		return "You don't have enough funds in your account to complete this transaction."
	case TypeInvalidCard:
		return "The card information provided is invalid. Please check your card details and try again."
	case TypeExpiredCard:
		return "Your card has expired. Please use a different card or update your card information."
	case TypeDeclinedCard:
		return "Your card was declined by your bank. Please contact your bank or try a different card."
	case TypeNetworkError:
		return "There was a network error while processing your payment. Please try again."
	case TypeProviderError:
		return "There was an error with the payment service. Please try again later."
	case TypeValidationError:
		return "The payment information provided is invalid. Please check and try again."
	case TypeTimeoutError:
		return "The payment request timed out. Please try again."
	case TypeAuthenticationError:
		return "There was an authentication error. Please verify your account and try again."
	case TypeLimitExceeded:
		return "You have exceeded your transaction limit. Please try a smaller amount or contact support."
	case TypeAccountSuspended:
		return "Your account has been suspended. Please contact support for assistance."
	case TypeUtilityProviderError:
		return "The utility provider could not process this purchase. Please try again later."
	case TypeInvalidCustomerID:
		return "The customer or meter number provided was not recognized. Please check it and try again."
	case TypeUtilityUnavailable:
		return "The utility service is temporarily unavailable. Please try again later."
	case TypeMeterNotFound:
		return "No meter was found for the number provided. Please check the meter number."
	case TypeCustomerValidationFailed:
		return "We could not validate the customer details with the utility provider."
	default:
		return "An unexpected error occurred while processing your payment. Please try again or contact support."
	}
}

// RetryPolicy is the per-type retry behavior.
type RetryPolicy struct {
	CanRetry   bool
	MaxRetries int
}

// PolicyFor returns the retry policy for an error type. Errors the user must
// fix out-of-band (funding, card replacement, account standing) are never
// retried automatically.
func PolicyFor(t Type) RetryPolicy {
	switch t {
	case TypeInsufficientFunds, TypeExpiredCard, TypeAccountSuspended:
		return RetryPolicy{CanRetry: false}
	case TypeDeclinedCard:
		return RetryPolicy{CanRetry: true, MaxRetries: 1}
	case TypeNetworkError, TypeTimeoutError:
		return RetryPolicy{CanRetry: true, MaxRetries: 5}
	default:
		return RetryPolicy{CanRetry: true, MaxRetries: 3}
	}
}
