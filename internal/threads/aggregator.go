// Package threads turns flat communication message rows into conversation
// threads and owns the fan-out status update that keeps the denormalized
// per-row status column consistent.
package threads

import (
	"sort"

	"github.com/estatedesk/estatedesk/internal/db/models"
)

// Aggregate groups messages by thread id, orders each thread's messages by
// created_at ascending (insertion sequence breaks timestamp ties, so root
// selection is deterministic across repeated calls on the same input), and
// orders the threads themselves by most recent activity, newest first.
//
// Aggregate performs no authorization: callers must have filtered the input
// through the scope engine already. It never loses a message and never emits
// an empty thread.
func Aggregate(msgs []models.Communication) []models.Thread {
	groups := make(map[string][]models.Communication)
	order := make([]string, 0)
	for _, msg := range msgs {
		if _, seen := groups[msg.ThreadID]; !seen {
			order = append(order, msg.ThreadID)
		}
		groups[msg.ThreadID] = append(groups[msg.ThreadID], msg)
	}

	threads := make([]models.Thread, 0, len(order))
	for _, threadID := range order {
		group := groups[threadID]

		// Re-sort rather than trusting arrival order: concurrent inserts can
		// interleave rows from storage.
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].Seq < group[j].Seq
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		root := group[0]
		threads = append(threads, models.Thread{
			ThreadID: threadID,
			Subject:  root.Subject,
			Category: root.Category,
			Status:   root.Status,
			Messages: group,
		})
	}

	// Most recently active conversation first.
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastActivity().After(threads[j].LastActivity())
	})

	return threads
}
