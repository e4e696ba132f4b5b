package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
	"github.com/redis/go-redis/v9"
)

// streamClient is the subset of the redis client the event stream uses
type streamClient interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	ReadStream(ctx context.Context, stream, lastID string, count int64) ([]redis.XMessage, error)
}

// Event is one committed intent as it appears on the stream
type Event struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	ProcessID string          `json:"process_id"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// EventStream publishes committed intents to a Redis stream and reads
// them back for the activity feed
type EventStream struct {
	client streamClient
	stream string
	log    *logger.Logger
}

// NewEventStream creates an event stream writing to stream
func NewEventStream(client streamClient, stream string, log *logger.Logger) *EventStream {
	return &EventStream{client: client, stream: stream, log: log}
}

// Publish appends one message per intent. Publishing happens after the
// commit, so failures are logged and never undo the write.
func (e *EventStream) Publish(ctx context.Context, actor string, intents []engine.Intent) {
	for _, intent := range intents {
		payload, err := json.Marshal(intentPayload(intent))
		if err != nil {
			e.log.Warn("failed to encode event", "kind", intent.Kind(), "error", err)
			continue
		}

		_, err = e.client.AddToStream(ctx, e.stream, map[string]interface{}{
			"kind":       intent.Kind(),
			"process_id": intent.ProcessID(),
			"actor":      actor,
			"payload":    string(payload),
		})
		if err != nil {
			e.log.Warn("failed to publish event",
				"kind", intent.Kind(),
				"process_id", intent.ProcessID(),
				"error", err)
		}
	}
}

// Read returns up to limit events after the given stream id
func (e *EventStream) Read(ctx context.Context, after string, limit int64) ([]Event, error) {
	msgs, err := e.client.ReadStream(ctx, e.stream, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		ev := Event{
			ID:        m.ID,
			Kind:      stringValue(m.Values, "kind"),
			ProcessID: stringValue(m.Values, "process_id"),
			Actor:     stringValue(m.Values, "actor"),
		}
		if raw := stringValue(m.Values, "payload"); raw != "" && json.Valid([]byte(raw)) {
			ev.Payload = json.RawMessage(raw)
		}
		events = append(events, ev)
	}
	return events, nil
}

func intentPayload(intent engine.Intent) interface{} {
	switch in := intent.(type) {
	case engine.SaveTemplate:
		// runs travel as their own events
		t := in.Template
		return map[string]interface{}{
			"id":          t.ID,
			"version":     t.EffectiveVersion(),
			"title":       t.Title,
			"is_archived": t.IsArchived,
			"step_count":  len(t.Steps),
			"run_count":   len(t.Runs),
		}
	case engine.DeleteTemplate:
		return map[string]interface{}{"id": in.ID}
	case engine.SaveTask:
		return in.Task
	case engine.SaveRun:
		return in.Run
	default:
		return map[string]interface{}{"kind": intent.Kind()}
	}
}

func stringValue(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
