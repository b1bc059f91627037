// Package notify fans engine events out to observers.
package notify

import (
	"context"
	"sync"

	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/logger"
)

// Notifier receives events. Implementations must not block for long and must not fail the
// caller; delivery problems are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event)
}

// Multi delivers to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev models.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// Log writes every event at debug level.
type Log struct{}

func (Log) Notify(_ context.Context, ev models.Event) {
	logger.Default.Debugw("[notify] - event", "kind", ev.Kind, "round", ev.RoundID, "bet", ev.BetID)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *Recorder) Notify(_ context.Context, ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(kind models.EventKind) []models.Event {
	var out []models.Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
