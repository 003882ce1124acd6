// Package notify delivers table-change notifications to in-process subscribers.
//
// The store calls Notify once per committed write transaction with the set of
// tables it touched. Subscribers register interest in table names and are
// invoked synchronously, after commit, on the writer's goroutine.
package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Change describes one committed write.
type Change struct {
	Tables    []string
	Timestamp time.Time
}

// Has reports whether the change touched table.
func (c Change) Has(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}

type subscription struct {
	id     uint64
	tables map[string]struct{}
	fn     func(Change)
}

// Notifier is a table-filtered fan-out of change notifications.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
	logger *slog.Logger
}

func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   make(map[uint64]*subscription),
		logger: logger,
	}
}

// Subscribe registers fn for changes touching any of tables. An empty table
// list subscribes to everything. The returned func removes the subscription.
func (n *Notifier) Subscribe(tables []string, fn func(Change)) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	if len(tables) > 0 {
		sub.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			sub.tables[t] = struct{}{}
		}
	}

	n.mu.Lock()
	n.nextID++
	sub.id = n.nextID
	n.subs[sub.id] = sub
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, sub.id)
			n.mu.Unlock()
		})
	}
}

// Notify delivers a change for tables to every matching subscriber.
func (n *Notifier) Notify(ctx context.Context, tables ...string) {
	if n == nil || len(tables) == 0 {
		return
	}
	change := Change{Tables: dedupe(tables), Timestamp: time.Now()}

	n.mu.RLock()
	matched := make([]*subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		if sub.matches(change.Tables) {
			matched = append(matched, sub)
		}
	}
	n.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, sub := range matched {
		n.deliver(ctx, sub, change)
	}
}

func (n *Notifier) deliver(ctx context.Context, sub *subscription, change Change) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.ErrorContext(ctx, "Change subscriber panicked",
				"subscription", sub.id,
				"tables", change.Tables,
				"panic", r)
		}
	}()
	sub.fn(change)
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (s *subscription) matches(tables []string) bool {
	if s.tables == nil {
		return true
	}
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}

func dedupe(tables []string) []string {
	seen := make(map[string]struct{}, len(tables))
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
