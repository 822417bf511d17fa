package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/costpilot/internal/domain"
)

type expenseEntry struct {
	seq     uint64
	expense domain.Expense
}

type expenseCollection struct {
	mu      sync.RWMutex
	byID    map[string]*expenseEntry
	nextSeq uint64
	version uint64
}

func newExpenseCollection() expenseCollection {
	return expenseCollection{byID: make(map[string]*expenseEntry)}
}

func (c *expenseCollection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]*expenseEntry)
	c.version++
}

// AddExpense appends an expense. CreatedAt is set to the insertion time
// when the caller left it empty.
func (s *Store) AddExpense(e domain.Expense) (domain.Expense, error) {
	if e.ID == "" {
		return domain.Expense{}, ErrMissingID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	c := &s.expenses
	c.mu.Lock()
	if _, exists := c.byID[e.ID]; exists {
		c.mu.Unlock()
		return domain.Expense{}, fmt.Errorf("expense %s: %w", e.ID, ErrDuplicateID)
	}
	c.nextSeq++
	c.byID[e.ID] = &expenseEntry{seq: c.nextSeq, expense: e}
	c.version++
	c.mu.Unlock()

	s.notifyExpensesChanged()
	return e, nil
}

// GetExpense retrieves an expense by ID.
func (s *Store) GetExpense(id string) (domain.Expense, error) {
	c := &s.expenses
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.byID[id]
	if !ok {
		return domain.Expense{}, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return entry.expense, nil
}

// ListExpenses returns all expenses, most recent insertion first.
func (s *Store) ListExpenses() []domain.Expense {
	list, _ := s.SnapshotExpenses()
	return list
}

// SnapshotExpenses returns the expense list together with the version it
// was read at.
func (s *Store) SnapshotExpenses() ([]domain.Expense, uint64) {
	c := &s.expenses
	c.mu.RLock()
	version := c.version
	entries := make([]*expenseEntry, 0, len(c.byID))
	for _, entry := range c.byID {
		entries = append(entries, entry)
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.expense.CreatedAt.Equal(b.expense.CreatedAt) {
			return a.expense.CreatedAt.After(b.expense.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]domain.Expense, len(entries))
	for i, entry := range entries {
		result[i] = entry.expense
	}
	return result, version
}

// ExpenseCount returns the number of stored expenses.
func (s *Store) ExpenseCount() int {
	c := &s.expenses
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// ExpenseVersion changes whenever the expense set changes.
func (s *Store) ExpenseVersion() uint64 {
	c := &s.expenses
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// ApproveExpenses marks the given expenses approved and returns how many
// changed. Unknown IDs are skipped.
func (s *Store) ApproveExpenses(ids ...string) int {
	c := &s.expenses
	c.mu.Lock()
	changed := 0
	for _, id := range ids {
		entry, ok := c.byID[id]
		if !ok || entry.expense.Approved() {
			continue
		}
		updated := entry.expense
		updated.Status = domain.ExpenseStatusApproved
		c.byID[id] = &expenseEntry{seq: entry.seq, expense: updated}
		changed++
	}
	if changed > 0 {
		c.version++
	}
	c.mu.Unlock()

	if changed > 0 {
		s.notifyExpensesChanged()
	}
	return changed
}

// RemoveExpenses deletes the given expenses and returns how many were removed.
func (s *Store) RemoveExpenses(ids ...string) int {
	c := &s.expenses
	c.mu.Lock()
	removed := 0
	for _, id := range ids {
		if _, ok := c.byID[id]; ok {
			delete(c.byID, id)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	c.mu.Unlock()

	if removed > 0 {
		s.notifyExpensesChanged()
	}
	return removed
}
