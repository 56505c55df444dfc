package notifications

import (
	"sync"

	"go.uber.org/zap"
)

// Hub fans out "store tree changed" signals to the live sessions of that
// store in this process. Each subscriber sees at most one pending version;
// a newer version replaces an unread older one.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	logger *zap.Logger
}

type subscription struct {
	ch chan int
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{subs: make(map[string]map[*subscription]struct{}), logger: logger}
}

// Subscribe registers interest in storeID. The returned func unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(storeID string) (<-chan int, func()) {
	sub := &subscription{ch: make(chan int, 1)}

	h.mu.Lock()
	if h.subs[storeID] == nil {
		h.subs[storeID] = make(map[*subscription]struct{})
	}
	h.subs[storeID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[storeID], sub)
			if len(h.subs[storeID]) == 0 {
				delete(h.subs, storeID)
			}
			close(sub.ch)
		})
	}
}

// NotifyPolicyChanged never blocks.
func (h *Hub) NotifyPolicyChanged(storeID string, version int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[storeID] {
		select {
		case sub.ch <- version:
			continue
		default:
		}
		// Replace the unread version with the newer one.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- version:
		default:
		}
	}
	if n := len(h.subs[storeID]); n > 0 {
		h.logger.Debug("policy change fanned out", zap.String("store_id", storeID), zap.Int("version", version), zap.Int("sessions", n))
	}
}

// Sessions returns the number of live subscribers for storeID.
func (h *Hub) Sessions(storeID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[storeID])
}
