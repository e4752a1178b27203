// Package models - communication.go defines the Communication message row and the
// derived Thread view the aggregator produces.
package models

import "time"

// Communication statuses. Status is a thread-level property denormalized onto
// every row sharing a thread_id; the write path must fan the value out to all
// of them (see threads.Service.UpdateThreadStatus).
const (
	CommunicationStatusOpen       = "OPEN"
	CommunicationStatusInProgress = "IN_PROGRESS"
	CommunicationStatusResolved   = "RESOLVED"
	CommunicationStatusClosed     = "CLOSED"
)

// ValidCommunicationStatus reports whether s is a recognised thread status.
func ValidCommunicationStatus(s string) bool {
	switch s {
	case CommunicationStatusOpen, CommunicationStatusInProgress,
		CommunicationStatusResolved, CommunicationStatusClosed:
		return true
	}
	return false
}

// Communication is one atomic message in a conversation thread.
type Communication struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`

	// Seq is the monotone insertion order within the table. It is the stable
	// tie-break for root selection when two messages share a created_at.
	Seq int64 `json:"seq"`

	SenderID   string `json:"sender_id"` // tenant/owner record id of the author
	SenderName string `json:"sender_name"`
	SenderRole string `json:"sender_role"` // role string of the author at send time
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Category   string `json:"category"`
	Status     string `json:"status"`

	// Attachments holds storage keys of uploaded files, if any.
	Attachments []string `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Thread is the derived aggregation of all messages sharing a ThreadID. It is
// never persisted; subject, category, and status come from the root (earliest)
// message.
type Thread struct {
	ThreadID string          `json:"thread_id"`
	Subject  string          `json:"subject"`
	Category string          `json:"category"`
	Status   string          `json:"status"`
	Messages []Communication `json:"messages"`
}

// Root returns the thread's first message. Aggregation guarantees Messages is
// non-empty, so Root is total for any Thread produced by the aggregator.
func (t *Thread) Root() *Communication {
	return &t.Messages[0]
}

// LastActivity returns the created_at of the thread's most recent message.
func (t *Thread) LastActivity() time.Time {
	return t.Messages[len(t.Messages)-1].CreatedAt
}
