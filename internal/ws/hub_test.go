package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edu-chat-service/internal/models"
)

func allowAll(context.Context, int, int) (bool, error) { return true, nil }

func newTestHub(grace time.Duration, queueSize int) *Hub {
	return NewHub(MembershipCheckerFunc(allowAll), grace, queueSize)
}

func newTestSession(t *testing.T, hub *Hub, userID int, queueSize int) *Session {
	t.Helper()
	info := ConnInfo{
		SessionID:   "sess-" + t.Name() + "-" + time.Now().Format("150405.000000000"),
		UserID:      userID,
		ConnectedAt: time.Now(),
	}
	return newSession(hub, nil, info, queueSize)
}

func recvEvent(t *testing.T, s *Session) models.Event {
	t.Helper()
	select {
	case payload := <-s.send:
		var ev models.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func assertNoEvent(t *testing.T, s *Session, wait time.Duration) {
	t.Helper()
	select {
	case payload := <-s.send:
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(wait):
	}
}

func TestRegisterAutoSubscribesUserQueue(t *testing.T) {
	hub := newTestHub(time.Second, 8)
	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	defer hub.Deregister(s, "test done")

	hub.PublishToUser(1, models.Event{Type: models.EventCallInitiated})

	ev := recvEvent(t, s)
	assert.Equal(t, models.EventCallInitiated, ev.Type)
	assert.Equal(t, 1, hub.SessionCount())
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	hub := newTestHub(time.Second, 8)
	a := newTestSession(t, hub, 1, 8)
	b := newTestSession(t, hub, 2, 8)
	hub.Register(a)
	hub.Register(b)
	defer hub.Deregister(a, "test done")
	defer hub.Deregister(b, "test done")

	hub.Subscribe(a, 7)
	hub.Subscribe(b, 7)
	// Drain the presence frames emitted on subscribe.
	recvEvent(t, a) // a online
	recvEvent(t, a) // b online
	recvEvent(t, b) // b online

	hub.Publish(ConversationTopic(7), models.Event{Type: models.EventMessage, ConversationID: 7, Seq: 1})

	for _, s := range []*Session{a, b} {
		ev := recvEvent(t, s)
		assert.Equal(t, models.EventMessage, ev.Type)
		assert.Equal(t, int64(1), ev.Seq)
	}
}

func TestPublishMissesUnsubscribedSessions(t *testing.T) {
	hub := newTestHub(time.Second, 8)
	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	defer hub.Deregister(s, "test done")

	hub.Publish(ConversationTopic(7), models.Event{Type: models.EventMessage, ConversationID: 7})
	assertNoEvent(t, s, 50*time.Millisecond)
}

func TestOverflowDropsOldestFrame(t *testing.T) {
	hub := newTestHub(time.Second, 2)
	s := newTestSession(t, hub, 1, 2)
	hub.Register(s)
	defer hub.Deregister(s, "test done")

	for seq := int64(1); seq <= 3; seq++ {
		hub.PublishToUser(1, models.Event{Type: models.EventMessage, Seq: seq})
	}

	// Queue holds two frames; seq 1 was evicted to make room for seq 3.
	assert.Equal(t, int64(2), recvEvent(t, s).Seq)
	assert.Equal(t, int64(3), recvEvent(t, s).Seq)
	assertNoEvent(t, s, 50*time.Millisecond)
}

func TestDeregisterIsIdempotent(t *testing.T) {
	hub := newTestHub(10*time.Millisecond, 8)
	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	hub.Deregister(s, "first")
	hub.Deregister(s, "second")
	assert.Equal(t, 0, hub.SessionCount())
}

func TestPresenceOfflineAfterGrace(t *testing.T) {
	hub := newTestHub(20*time.Millisecond, 8)
	observer := newTestSession(t, hub, 2, 8)
	hub.Register(observer)
	defer hub.Deregister(observer, "test done")
	hub.Subscribe(observer, 7)
	recvEvent(t, observer) // own online frame

	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	hub.Subscribe(s, 7)
	ev := recvEvent(t, observer)
	assert.Equal(t, models.EventPresence, ev.Type)
	assert.True(t, ev.Online)
	assert.Equal(t, 1, ev.UserID)

	hub.Deregister(s, "connection lost")

	ev = recvEvent(t, observer)
	assert.Equal(t, models.EventPresence, ev.Type)
	assert.False(t, ev.Online)
	assert.Equal(t, 1, ev.UserID)
}

func TestFastReconnectSuppressesOffline(t *testing.T) {
	hub := newTestHub(80*time.Millisecond, 8)
	observer := newTestSession(t, hub, 2, 8)
	hub.Register(observer)
	defer hub.Deregister(observer, "test done")
	hub.Subscribe(observer, 7)
	recvEvent(t, observer) // own online frame

	first := newTestSession(t, hub, 1, 8)
	hub.Register(first)
	hub.Subscribe(first, 7)
	recvEvent(t, observer) // user 1 online

	hub.Deregister(first, "network blip")

	// Reconnect inside the grace window cancels the offline demotion.
	second := newTestSession(t, hub, 1, 8)
	hub.Register(second)
	defer hub.Deregister(second, "test done")

	assertNoEvent(t, observer, 200*time.Millisecond)
}

func TestHandleFrameSubscribeChecksMembership(t *testing.T) {
	checker := MembershipCheckerFunc(func(_ context.Context, conversationID, _ int) (bool, error) {
		return conversationID == 7, nil
	})
	hub := NewHub(checker, time.Second, 8)
	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	defer hub.Deregister(s, "test done")

	hub.handleFrame(s, clientFrame{Action: "subscribe", ConversationID: 8})
	hub.Publish(ConversationTopic(8), models.Event{Type: models.EventMessage, ConversationID: 8})
	assertNoEvent(t, s, 50*time.Millisecond)

	hub.handleFrame(s, clientFrame{Action: "subscribe", ConversationID: 7})
	ev := recvEvent(t, s)
	assert.Equal(t, models.EventPresence, ev.Type)

	hub.Publish(ConversationTopic(7), models.Event{Type: models.EventMessage, ConversationID: 7})
	ev = recvEvent(t, s)
	assert.Equal(t, models.EventMessage, ev.Type)
}

func TestTypingRequiresSubscription(t *testing.T) {
	hub := newTestHub(time.Second, 8)
	a := newTestSession(t, hub, 1, 8)
	b := newTestSession(t, hub, 2, 8)
	hub.Register(a)
	hub.Register(b)
	defer hub.Deregister(a, "test done")
	defer hub.Deregister(b, "test done")

	hub.Subscribe(b, 7)
	recvEvent(t, b) // own online frame

	// a never subscribed, so its typing frame is dropped.
	hub.handleFrame(a, clientFrame{Action: "typing", ConversationID: 7, Typing: true})
	assertNoEvent(t, b, 50*time.Millisecond)

	hub.Subscribe(a, 7)
	recvEvent(t, b) // a online

	hub.handleFrame(a, clientFrame{Action: "typing", ConversationID: 7, Typing: true})
	ev := recvEvent(t, b)
	assert.Equal(t, models.EventTyping, ev.Type)
	assert.True(t, ev.Typing)
	assert.Equal(t, 1, ev.UserID)
	assert.NotZero(t, ev.SentAt)
}

func TestUnsubscribeSkipsLaterOfflinePresence(t *testing.T) {
	hub := newTestHub(20*time.Millisecond, 8)
	observer := newTestSession(t, hub, 2, 8)
	hub.Register(observer)
	defer hub.Deregister(observer, "test done")
	hub.Subscribe(observer, 7)
	recvEvent(t, observer) // own online frame

	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	hub.Subscribe(s, 7)
	recvEvent(t, observer) // user 1 online

	// Explicitly leaving the conversation must keep its topic out of the
	// user's offline fan-out after disconnect.
	hub.Unsubscribe(s, 7)
	hub.Deregister(s, "connection lost")

	assertNoEvent(t, observer, 100*time.Millisecond)
}

func TestUnsubscribeKeepsTopicWhileAnotherSessionHoldsIt(t *testing.T) {
	hub := newTestHub(20*time.Millisecond, 8)
	observer := newTestSession(t, hub, 2, 8)
	hub.Register(observer)
	defer hub.Deregister(observer, "test done")
	hub.Subscribe(observer, 7)
	recvEvent(t, observer) // own online frame

	phone := newTestSession(t, hub, 1, 8)
	laptop := newTestSession(t, hub, 1, 8)
	hub.Register(phone)
	hub.Register(laptop)
	hub.Subscribe(phone, 7)
	recvEvent(t, observer)
	hub.Subscribe(laptop, 7)
	recvEvent(t, observer)

	// One device leaves the conversation; the other still holds it, so the
	// user stays present there and goes offline on full disconnect.
	hub.Unsubscribe(phone, 7)
	hub.Deregister(phone, "closed tab")
	hub.Deregister(laptop, "connection lost")

	ev := recvEvent(t, observer)
	assert.Equal(t, models.EventPresence, ev.Type)
	assert.False(t, ev.Online)
	assert.Equal(t, 1, ev.UserID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := newTestHub(time.Second, 8)
	s := newTestSession(t, hub, 1, 8)
	hub.Register(s)
	defer hub.Deregister(s, "test done")

	hub.Subscribe(s, 7)
	recvEvent(t, s) // own online frame

	hub.Unsubscribe(s, 7)
	hub.Publish(ConversationTopic(7), models.Event{Type: models.EventMessage, ConversationID: 7})
	assertNoEvent(t, s, 50*time.Millisecond)
}
