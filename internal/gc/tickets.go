package gc

import "github.com/google/uuid"

// Tickets records keep-alive pins against keys. Each pin has its own
// token so independent owners can release only their own.
type Tickets[K comparable] struct {
	pins   map[K]map[uuid.UUID]string
	owners map[uuid.UUID]K
}

func NewTickets[K comparable]() *Tickets[K] {
	return &Tickets[K]{
		pins:   make(map[K]map[uuid.UUID]string),
		owners: make(map[uuid.UUID]K),
	}
}

// Add pins key on behalf of owner and returns the ticket.
func (t *Tickets[K]) Add(key K, owner string) uuid.UUID {
	id := uuid.New()
	set := t.pins[key]
	if set == nil {
		set = make(map[uuid.UUID]string)
		t.pins[key] = set
	}
	set[id] = owner
	t.owners[id] = key
	return id
}

// Remove releases one ticket. It reports whether the ticket existed.
func (t *Tickets[K]) Remove(id uuid.UUID) bool {
	key, ok := t.owners[id]
	if !ok {
		return false
	}
	delete(t.owners, id)
	set := t.pins[key]
	delete(set, id)
	if len(set) == 0 {
		delete(t.pins, key)
	}
	return true
}

// RemoveOwner releases every ticket held by owner and returns how many
// were released.
func (t *Tickets[K]) RemoveOwner(owner string) int {
	var ids []uuid.UUID
	for _, set := range t.pins {
		for id, o := range set {
			if o == owner {
				ids = append(ids, id)
			}
		}
	}
	for _, id := range ids {
		t.Remove(id)
	}
	return len(ids)
}

func (t *Tickets[K]) Pinned(key K) bool {
	return len(t.pins[key]) > 0
}

// Count returns the number of tickets on key.
func (t *Tickets[K]) Count(key K) int { return len(t.pins[key]) }

// Len returns the number of pinned keys.
func (t *Tickets[K]) Len() int { return len(t.pins) }
