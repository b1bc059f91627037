// Package whitelist keeps the set of counterparties whose tokens may be staked.
package whitelist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/internal/notify"
)

// Backend is a membership set with O(1) lookups.
type Backend interface {
	AddMember(ctx context.Context, counterparty string) (added bool, err error)
	RemoveMember(ctx context.Context, counterparty string) (removed bool, err error)
	IsMember(ctx context.Context, counterparty string) (bool, error)
}

type Registry struct {
	backend  Backend
	notifier notify.Notifier
	now      func() time.Time
}

func NewRegistry(backend Backend, notifier notify.Notifier) *Registry {
	return &Registry{backend: backend, notifier: notifier, now: time.Now}
}

func normalize(counterparty string) (string, error) {
	cp := strings.TrimSpace(counterparty)
	if cp == "" {
		return "", fmt.Errorf("counterparty is empty")
	}
	return cp, nil
}

// Add whitelists a counterparty. Adding an existing member is a no-op without a notification.
func (r *Registry) Add(ctx context.Context, counterparty string) error {
	cp, err := normalize(counterparty)
	if err != nil {
		return err
	}
	added, err := r.backend.AddMember(ctx, cp)
	if err != nil {
		return fmt.Errorf("[whitelist] - add %s: %w", cp, err)
	}
	if added && r.notifier != nil {
		r.notifier.Notify(ctx, models.Event{Kind: models.EventCounterpartyWhitelisted, Counterparty: cp, At: r.now()})
	}
	return nil
}

// Remove drops a counterparty. Bets already placed with its tokens are unaffected.
func (r *Registry) Remove(ctx context.Context, counterparty string) error {
	cp, err := normalize(counterparty)
	if err != nil {
		return err
	}
	removed, err := r.backend.RemoveMember(ctx, cp)
	if err != nil {
		return fmt.Errorf("[whitelist] - remove %s: %w", cp, err)
	}
	if removed && r.notifier != nil {
		r.notifier.Notify(ctx, models.Event{Kind: models.EventCounterpartyRemoved, Counterparty: cp, At: r.now()})
	}
	return nil
}

func (r *Registry) IsWhitelisted(ctx context.Context, counterparty string) (bool, error) {
	cp, err := normalize(counterparty)
	if err != nil {
		return false, nil
	}
	return r.backend.IsMember(ctx, cp)
}

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewMemory(members ...string) *Memory {
	m := &Memory{members: make(map[string]struct{}, len(members))}
	for _, cp := range members {
		m.members[cp] = struct{}{}
	}
	return m
}

func (m *Memory) AddMember(_ context.Context, cp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[cp]; ok {
		return false, nil
	}
	m.members[cp] = struct{}{}
	return true, nil
}

func (m *Memory) RemoveMember(_ context.Context, cp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[cp]; !ok {
		return false, nil
	}
	delete(m.members, cp)
	return true, nil
}

func (m *Memory) IsMember(_ context.Context, cp string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[cp]
	return ok, nil
}
