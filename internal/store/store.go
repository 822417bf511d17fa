// Package store holds the in-memory record collections shared by the
// ingestion and optimization components.
//
// Expenses, recurring costs and optimization tasks are three independently
// locked collections: a write to one never waits on another. Data is lost
// on restart.
package store

import (
	"errors"
	"sync"
)

var (
	// ErrDuplicateID is returned when a write would reuse an existing identifier.
	// The write is rejected rather than overwriting the stored record.
	ErrDuplicateID = errors.New("duplicate record identifier")

	// ErrNotFound is returned when no record has the requested identifier.
	ErrNotFound = errors.New("record not found")

	// ErrMissingID is returned for records without an identifier.
	ErrMissingID = errors.New("record identifier is required")
)

// Store is the single source of truth for expenses, recurring costs and
// optimization tasks. It is safe for concurrent use.
type Store struct {
	expenses  expenseCollection
	recurring recurringCollection
	tasks     taskCollection

	subMu       sync.Mutex
	subscribers map[int]chan struct{}
	nextSubID   int
}

// New creates a store with empty collections.
func New() *Store {
	return &Store{
		expenses:    newExpenseCollection(),
		recurring:   newRecurringCollection(),
		tasks:       newTaskCollection(),
		subscribers: make(map[int]chan struct{}),
	}
}

// Reset clears every collection. Subscribers are notified that the
// expense set changed.
func (s *Store) Reset() {
	s.expenses.reset()
	s.recurring.reset()
	s.tasks.reset()
	s.notifyExpensesChanged()
}

// SubscribeExpenses returns a channel that receives a signal whenever the
// expense set changes. Signals are coalesced: a slow reader sees at most one
// pending signal. The returned func unsubscribes and closes the channel.
func (s *Store) SubscribeExpenses() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

func (s *Store) notifyExpensesChanged() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
