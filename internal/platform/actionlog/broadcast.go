package actionlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

// BroadcastLog decorates a Recorder so every recorded action is also
// pushed to live subscribers of the actions topic.
type BroadcastLog struct {
	next Recorder
	hub  *websocket.Hub
}

func NewBroadcastLog(next Recorder, hub *websocket.Hub) *BroadcastLog {
	return &BroadcastLog{next: next, hub: hub}
}

func (b *BroadcastLog) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.next.Record(ctx, e)

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	b.hub.Broadcast(websocket.TopicActions, websocket.Event{
		Type:  "action",
		Topic: websocket.TopicActions,
		Data:  data,
	})
}

func (b *BroadcastLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	return b.next.Recent(ctx, n)
}
