package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(id string, topics ...string) *Client {
	return &Client{
		ID:     id,
		Topics: topics,
		Send:   make(chan []byte, 256),
	}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1", TopicQueue)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicQueue) != 1 {
		t.Fatalf("expected 1 subscriber on queue, got %d", hub.TopicCount(TopicQueue))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicQueue) != 0 {
		t.Fatalf("expected 0 subscribers on queue, got %d", hub.TopicCount(TopicQueue))
	}
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1", TopicQueue)

	hub.Register(client)
	hub.Unregister(client)
	hub.Unregister(client) // closed channel must not be closed again
}

func TestHub_BroadcastReachesTopicOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	queueClient := newTestClient("c1", TopicQueue)
	billingClient := newTestClient("c2", TopicBilling)
	hub.Register(queueClient)
	hub.Register(billingClient)

	hub.Broadcast(TopicQueue, Event{Type: "snapshot", Topic: TopicQueue,
		Data: json.RawMessage(`[{"token":1}]`)})

	ev := recvEvent(t, queueClient)
	if ev.Topic != TopicQueue {
		t.Errorf("expected topic queue, got %s", ev.Topic)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected broadcast to stamp timestamp")
	}

	select {
	case <-billingClient.Send:
		t.Fatal("billing subscriber should not receive queue events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RetainedEventReplaysToLateSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	hub.Broadcast(TopicQueue, Event{Type: "snapshot", Topic: TopicQueue,
		Data: json.RawMessage(`[{"token":1},{"token":2}]`)})

	late := newTestClient("late", TopicQueue)
	hub.Register(late)

	ev := recvEvent(t, late)
	if ev.Topic != TopicQueue {
		t.Fatalf("expected retained queue snapshot, got topic %s", ev.Topic)
	}
	var rows []map[string]any
	if err := json.Unmarshal(ev.Data, &rows); err != nil || len(rows) != 2 {
		t.Fatalf("expected retained snapshot with 2 rows, got %s", string(ev.Data))
	}
}

func TestHub_DynamicSubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{TopicHistory}})
	if hub.TopicCount(TopicHistory) != 1 {
		t.Fatalf("expected history subscription, got %d", hub.TopicCount(TopicHistory))
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{TopicHistory}})
	if hub.TopicCount(TopicHistory) != 0 {
		t.Fatalf("expected unsubscribed, got %d", hub.TopicCount(TopicHistory))
	}
	if len(client.Topics) != 0 {
		t.Fatalf("expected client topic list emptied, got %v", client.Topics)
	}
}

func TestHub_FullBufferDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{TopicQueue}, Send: make(chan []byte)}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(TopicQueue, Event{Type: "snapshot", Topic: TopicQueue})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on unready client")
	}
}

func TestSplitTopics(t *testing.T) {
	got := splitTopics("queue, billing,,history")
	want := []string{"queue", "billing", "history"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
