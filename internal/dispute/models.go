package dispute

import "time"

type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

// Active statuses block payments on the disputed bill.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusUnderReview
}

// Dispute is a member's challenge against a bill. At most one active dispute
// exists per (bill, user); resolved/rejected/withdrawn ones don't count.
type Dispute struct {
	ID              string     `json:"id"`
	ClusterID       string     `json:"cluster_id"`
	BillID          string     `json:"bill_id"`
	DisputedBy      string     `json:"disputed_by"`
	Reason          string     `json:"reason"`
	Status          Status     `json:"status"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Comment is one node of a dispute's discussion thread. Replies reference
// their parent by id; the thread is a flat arena of nodes, not a linked
// object graph.
type Comment struct {
	ID        string    `json:"id"`
	DisputeID string    `json:"dispute_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
