package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dvloznov/costpilot/internal/domain"
)

type recurringCollection struct {
	mu      sync.RWMutex
	records []domain.RecurringCost
}

func newRecurringCollection() recurringCollection {
	return recurringCollection{}
}

func (c *recurringCollection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

func (c *recurringCollection) indexOf(id string) int {
	for i, r := range c.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// AppendRecurring appends records to the recurring-cost set. The append is
// all-or-nothing: a duplicate or missing identifier rejects the whole write.
func (s *Store) AppendRecurring(records ...domain.RecurringCost) error {
	c := &s.recurring
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID == "" {
			return ErrMissingID
		}
		if seen[r.ID] || c.indexOf(r.ID) >= 0 {
			return fmt.Errorf("recurring cost %s: %w", r.ID, ErrDuplicateID)
		}
		seen[r.ID] = true
	}

	next := make([]domain.RecurringCost, 0, len(c.records)+len(records))
	next = append(next, c.records...)
	next = append(next, records...)
	c.records = next
	return nil
}

// ReplaceRecurring runs fn over a copy of the recurring-cost set and stores
// its result as a whole. fn runs under the collection lock, so the
// read-modify-write is atomic with respect to other writers. If fn returns
// an error the set is left untouched.
func (s *Store) ReplaceRecurring(fn func(current []domain.RecurringCost) ([]domain.RecurringCost, error)) error {
	c := &s.recurring
	c.mu.Lock()
	defer c.mu.Unlock()

	current := make([]domain.RecurringCost, len(c.records))
	copy(current, c.records)

	next, err := fn(current)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(next))
	for _, r := range next {
		if r.ID == "" {
			return ErrMissingID
		}
		if seen[r.ID] {
			return fmt.Errorf("recurring cost %s: %w", r.ID, ErrDuplicateID)
		}
		seen[r.ID] = true
	}

	c.records = next
	return nil
}

// ListRecurring returns the recurring-cost set in insertion order.
func (s *Store) ListRecurring() []domain.RecurringCost {
	c := &s.recurring
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.RecurringCost, len(c.records))
	copy(result, c.records)
	return result
}

// GetRecurring returns a recurring cost by ID.
func (s *Store) GetRecurring(id string) (domain.RecurringCost, error) {
	c := &s.recurring
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return c.records[i], nil
	}
	return domain.RecurringCost{}, ErrNotFound
}

// PutRecurring inserts or replaces a recurring cost by ID (direct user edit).
func (s *Store) PutRecurring(r domain.RecurringCost) error {
	if r.ID == "" {
		return ErrMissingID
	}

	c := &s.recurring
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]domain.RecurringCost, len(c.records), len(c.records)+1)
	copy(next, c.records)
	if i := c.indexOf(r.ID); i >= 0 {
		next[i] = r
	} else {
		next = append(next, r)
	}
	c.records = next
	return nil
}

// RemoveRecurring deletes recurring costs by ID and returns how many were removed.
func (s *Store) RemoveRecurring(ids ...string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	c := &s.recurring
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]domain.RecurringCost, 0, len(c.records))
	for _, r := range c.records {
		if !drop[r.ID] {
			next = append(next, r)
		}
	}
	removed := len(c.records) - len(next)
	c.records = next
	return removed
}

// SetRecurringStatusByVendor moves every record of the vendor (case-insensitive)
// whose status is one of from to the status to. It returns how many changed.
func (s *Store) SetRecurringStatusByVendor(vendor string, to domain.RecurringStatus, from ...domain.RecurringStatus) int {
	key := strings.ToLower(strings.TrimSpace(vendor))
	if key == "" {
		return 0
	}
	allowed := make(map[domain.RecurringStatus]bool, len(from))
	for _, st := range from {
		allowed[st] = true
	}

	c := &s.recurring
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	next := make([]domain.RecurringCost, len(c.records))
	for i, r := range c.records {
		if strings.ToLower(strings.TrimSpace(r.VendorName)) == key && allowed[r.Status] {
			r.Status = to
			changed++
		}
		next[i] = r
	}
	if changed > 0 {
		c.records = next
	}
	return changed
}
