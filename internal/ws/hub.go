package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"edu-chat-service/internal/models"
	"edu-chat-service/internal/observability"
)

// MembershipChecker answers whether a user may subscribe to a
// conversation topic.
type MembershipChecker interface {
	IsActiveParticipant(ctx context.Context, conversationID, userID int) (bool, error)
}

// MembershipCheckerFunc adapts a function to MembershipChecker.
type MembershipCheckerFunc func(ctx context.Context, conversationID, userID int) (bool, error)

func (f MembershipCheckerFunc) IsActiveParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	return f(ctx, conversationID, userID)
}

// Hub is the broadcast bus and session registry. It fans events out to
// conversation topics, per-user queues and ephemeral typing/presence
// frames. Publication never blocks on a slow subscriber; each session has
// its own bounded queue with drop-oldest overflow.
type Hub struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	topics         map[string]map[*Session]struct{}
	subs           map[*Session]map[string]struct{}
	userSessions   map[int]map[*Session]struct{}
	userTopics     map[int]map[string]struct{}
	presenceTimers map[int]*time.Timer

	checker   MembershipChecker
	grace     time.Duration
	queueSize int
}

// NewHub creates an empty hub.
func NewHub(checker MembershipChecker, presenceGrace time.Duration, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Hub{
		sessions:       make(map[string]*Session),
		topics:         make(map[string]map[*Session]struct{}),
		subs:           make(map[*Session]map[string]struct{}),
		userSessions:   make(map[int]map[*Session]struct{}),
		userTopics:     make(map[int]map[string]struct{}),
		presenceTimers: make(map[int]*time.Timer),
		checker:        checker,
		grace:          presenceGrace,
		queueSize:      queueSize,
	}
}

// Register adds a session to the registry, auto-subscribes its user queue
// and cancels any pending offline demotion for the user.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	if _, ok := h.userSessions[s.UserID()]; !ok {
		h.userSessions[s.UserID()] = make(map[*Session]struct{})
	}
	h.userSessions[s.UserID()][s] = struct{}{}
	h.addSubscription(s, UserQueue(s.UserID()))
	if timer, ok := h.presenceTimers[s.UserID()]; ok {
		timer.Stop()
		delete(h.presenceTimers, s.UserID())
	}
	h.mu.Unlock()

	observability.IncWSActive("session")
	observability.IncWSEvent("session", "ws_connect")
}

// Deregister removes a session. When the user's last session goes away an
// offline presence event is scheduled after the grace window; a reconnect
// inside the window cancels it, so flapping connections stay "online".
func (h *Hub) Deregister(s *Session, reason string) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID())
	close(s.done)
	for topic := range h.subs[s] {
		h.removeFromTopic(s, topic)
	}
	delete(h.subs, s)

	userID := s.UserID()
	if conns, ok := h.userSessions[userID]; ok {
		delete(conns, s)
		if len(conns) == 0 {
			delete(h.userSessions, userID)
			h.schedulePresenceOffline(userID)
		}
	}
	h.mu.Unlock()

	observability.DecWSActive("session")
	observability.IncWSEvent("session", "ws_disconnect")
	log.Printf("session closed id=%s user=%d reason=%q", s.ID(), userID, reason)
}

// Subscribe attaches the session to a conversation topic and announces
// the user's presence there.
func (h *Hub) Subscribe(s *Session, conversationID int) {
	topic := ConversationTopic(conversationID)
	h.mu.Lock()
	h.addSubscription(s, topic)
	h.mu.Unlock()

	h.PublishEphemeral(topic, models.Event{
		Type:           models.EventPresence,
		ConversationID: conversationID,
		UserID:         s.UserID(),
		Online:         true,
		SentAt:         time.Now().UnixMilli(),
	})
}

// Unsubscribe detaches the session from a conversation topic. When no
// other session of the user still holds the topic it is dropped from the
// user's topic set too, so later presence fan-out skips conversations the
// user explicitly left.
func (h *Hub) Unsubscribe(s *Session, conversationID int) {
	topic := ConversationTopic(conversationID)
	h.mu.Lock()
	h.removeFromTopic(s, topic)
	if set, ok := h.subs[s]; ok {
		delete(set, topic)
	}
	h.pruneUserTopic(s.UserID(), topic)
	h.mu.Unlock()
}

// pruneUserTopic must be called with h.mu held.
func (h *Hub) pruneUserTopic(userID int, topic string) {
	for sess := range h.userSessions[userID] {
		if _, ok := h.subs[sess][topic]; ok {
			return
		}
	}
	if set, ok := h.userTopics[userID]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(h.userTopics, userID)
		}
	}
}

// Publish fans an event out to every session subscribed to the topic.
// Delivery is at-least-once best-effort: a session that is gone or whose
// queue overflows simply misses the frame and recovers via history.
func (h *Hub) Publish(topic string, event models.Event) {
	h.fanOut(topic, event)
	observability.IncWSEvent("topic", event.Type)
}

// PublishToUser targets the user's private queue on every device.
func (h *Hub) PublishToUser(userID int, event models.Event) {
	h.fanOut(UserQueue(userID), event)
	observability.IncWSEvent("queue", event.Type)
}

// PublishEphemeral is Publish without any delivery expectation; typing
// and presence frames go through here.
func (h *Hub) PublishEphemeral(topic string, event models.Event) {
	h.fanOut(topic, event)
	observability.IncWSEvent("ephemeral", event.Type)
}

func (h *Hub) fanOut(topic string, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(payload)
	}
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// addSubscription must be called with h.mu held.
func (h *Hub) addSubscription(s *Session, topic string) {
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*Session]struct{})
	}
	h.topics[topic][s] = struct{}{}
	if _, ok := h.subs[s]; !ok {
		h.subs[s] = make(map[string]struct{})
	}
	h.subs[s][topic] = struct{}{}
	if _, ok := h.userTopics[s.UserID()]; !ok {
		h.userTopics[s.UserID()] = make(map[string]struct{})
	}
	h.userTopics[s.UserID()][topic] = struct{}{}
}

// removeFromTopic must be called with h.mu held.
func (h *Hub) removeFromTopic(s *Session, topic string) {
	if set, ok := h.topics[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// schedulePresenceOffline must be called with h.mu held.
func (h *Hub) schedulePresenceOffline(userID int) {
	if timer, ok := h.presenceTimers[userID]; ok {
		timer.Stop()
	}
	h.presenceTimers[userID] = time.AfterFunc(h.grace, func() {
		h.mu.Lock()
		delete(h.presenceTimers, userID)
		if _, back := h.userSessions[userID]; back {
			h.mu.Unlock()
			return
		}
		topics := make([]string, 0, len(h.userTopics[userID]))
		for topic := range h.userTopics[userID] {
			topics = append(topics, topic)
		}
		delete(h.userTopics, userID)
		h.mu.Unlock()

		stamp := time.Now().UnixMilli()
		for _, topic := range topics {
			h.PublishEphemeral(topic, models.Event{
				Type:   models.EventPresence,
				UserID: userID,
				Online: false,
				SentAt: stamp,
			})
		}
	})
}

func (h *Hub) handleFrame(s *Session, frame clientFrame) {
	switch frame.Action {
	case "subscribe":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ok, err := h.checker.IsActiveParticipant(ctx, frame.ConversationID, s.UserID())
		if err != nil || !ok {
			return
		}
		h.Subscribe(s, frame.ConversationID)
	case "unsubscribe":
		h.Unsubscribe(s, frame.ConversationID)
	case "typing":
		topic := ConversationTopic(frame.ConversationID)
		h.mu.RLock()
		_, subscribed := h.subs[s][topic]
		h.mu.RUnlock()
		if !subscribed {
			return
		}
		h.PublishEphemeral(topic, models.Event{
			Type:           models.EventTyping,
			ConversationID: frame.ConversationID,
			UserID:         s.UserID(),
			Typing:         frame.Typing,
			SentAt:         time.Now().UnixMilli(),
		})
	}
}
