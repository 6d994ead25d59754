// Package reminders turns due follow-ups and dangling references into
// background jobs for the daemon.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/profilecrm/profilecrm/internal/core"
	"github.com/profilecrm/profilecrm/internal/logging"
	"github.com/profilecrm/profilecrm/internal/scheduler"
	"github.com/profilecrm/profilecrm/internal/storage"
)

// Task IDs registered with the scheduler
const (
	TaskFollowUps = "followups"
	TaskIntegrity = "integrity"
)

// NotifyFunc publishes an event to connected clients
type NotifyFunc func(eventType string, data interface{})

// FollowUpEvent is the payload sent when a contact's follow-up comes due
type FollowUpEvent struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName,omitempty"`
	NextFollowUp time.Time `json:"nextFollowUp"`
}

// Notifier announces each due follow-up once. A contact is announced again
// only after its follow-up date changes.
type Notifier struct {
	store     *storage.Store
	notify    NotifyFunc
	eventType string
	now       func() time.Time

	announced map[string]time.Time
	mu        sync.Mutex
	log       *logging.Logger
}

// NewNotifier creates a notifier that publishes through notify
func NewNotifier(store *storage.Store, eventType string, notify NotifyFunc) *Notifier {
	return &Notifier{
		store:     store,
		notify:    notify,
		eventType: eventType,
		now:       time.Now,
		announced: make(map[string]time.Time),
		log:       logging.WithField("component", "reminders"),
	}
}

// CheckFollowUps publishes every follow-up due now that has not been
// announced yet and returns how many were published.
func (n *Notifier) CheckFollowUps(ctx context.Context) (int, error) {
	due, err := n.store.Contacts.DueFollowUps(ctx, n.now())
	if err != nil {
		return 0, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	seen := make(map[string]bool, len(due))
	sent := 0
	for _, c := range due {
		seen[c.Username] = true
		if prev, ok := n.announced[c.Username]; ok && prev.Equal(*c.NextFollowUp) {
			continue
		}

		n.notify(n.eventType, FollowUpEvent{
			Username:     c.Username,
			DisplayName:  c.DisplayName,
			NextFollowUp: *c.NextFollowUp,
		})
		n.announced[c.Username] = *c.NextFollowUp
		sent++
	}

	// Contacts no longer due were rescheduled, cleared or deleted
	for username := range n.announced {
		if !seen[username] {
			delete(n.announced, username)
		}
	}

	if sent > 0 {
		n.log.WithFields(map[string]interface{}{
			"sent": sent,
			"due":  len(due),
		}).Info("follow-ups due")
	}
	return sent, nil
}

// CheckIntegrity logs dangling references found in the store
func (n *Notifier) CheckIntegrity(ctx context.Context) (*core.IntegrityReport, error) {
	report, err := n.store.CheckReferences(ctx)
	if err != nil {
		return nil, err
	}

	if !report.Clean() {
		n.log.WithFields(map[string]interface{}{
			"missing_lists":         len(report.MissingLists),
			"missing_tags":          len(report.MissingTags),
			"orphaned_interactions": len(report.OrphanedInteractions),
		}).Warn("dangling references found")
	}
	return report, nil
}

// Register adds the reminder jobs to s. A zero integrity interval skips
// the integrity job.
func (n *Notifier) Register(s *scheduler.Scheduler, interval, integrity time.Duration) error {
	if err := s.Register(&scheduler.Task{
		ID:         TaskFollowUps,
		Name:       "Announce due follow-ups",
		Interval:   interval,
		RunAtStart: true,
		Handler: func(ctx context.Context) error {
			_, err := n.CheckFollowUps(ctx)
			return err
		},
	}); err != nil {
		return err
	}

	if integrity <= 0 {
		return nil
	}
	return s.Register(&scheduler.Task{
		ID:       TaskIntegrity,
		Name:     "Check for dangling references",
		Interval: integrity,
		Handler: func(ctx context.Context) error {
			_, err := n.CheckIntegrity(ctx)
			return err
		},
	})
}
