package zncontrol

import "sync"

// Event names available for subscription via channelJoin.
const (
	EventSiteChanged     = "siteChanged"
	EventServerChanged   = "serverChanged"
	EventAnnouncerChanged = "announcerChanged"
)

// Hub fans server events out to every Session subscribed to a channel
// ("channel subscriptions (channelJoin) enable server
// events ... each subscriber receives relevant events until the channel
// closes"). One Hub is shared across every control-channel Session a
// gateway process owns.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Session]bool
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*Session]bool)}
}

// Join subscribes s to channel.
func (h *Hub) Join(channel string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[channel]
	if !ok {
		set = make(map[*Session]bool)
		h.subscribers[channel] = set
	}
	set[s] = true
}

// Leave removes every subscription s holds, called when its channel
// closes (connection drop).
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, set := range h.subscribers {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subscribers, channel)
		}
	}
}

// Broadcast sends an event to every subscriber of channel. Send failures
// (a dead connection) are swallowed here; the read loop on that session
// will observe the closed connection and call Leave.
func (h *Hub) Broadcast(channel, cmd string, params map[string]any) {
	h.mu.RLock()
	subs := make([]*Session, 0, len(h.subscribers[channel]))
	for s := range h.subscribers[channel] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		_ = s.sendEvent(cmd, params)
	}
}
