// Package pubsub is the in-process change-notification hub. Write paths
// publish an event after the authoritative store write succeeds; HTTP
// subscribers stream the events to clients so they can refresh.
package pubsub

import "sync"

// Op is what happened to the entity.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Entity is the kind of record an event refers to.
type Entity string

const (
	EntityAccount     Entity = "account"
	EntityTransaction Entity = "transaction"
	EntityCategory    Entity = "category"
)

// Event describes one committed change, scoped to its owner.
type Event struct {
	Entity  Entity `json:"entity"`
	Op      Op     `json:"op"`
	OwnerID string `json:"-"`
	ID      string `json:"id"`
}

// Hub fans events out to per-owner subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event, which only delays a
// client refresh.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event // ownerID -> subscriber id -> channel
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a buffered channel for the owner's events. The
// returned function removes the subscription and closes the channel.
func (h *Hub) Subscribe(ownerID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan Event)
	}
	h.subs[ownerID][id] = ch
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if owned, ok := h.subs[ownerID]; ok {
			if c, ok := owned[id]; ok {
				delete(owned, id)
				close(c)
			}
			if len(owned) == 0 {
				delete(h.subs, ownerID)
			}
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to the owner's subscribers without blocking.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[e.OwnerID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers the owner currently has.
func (h *Hub) SubscriberCount(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}
