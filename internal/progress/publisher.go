package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// RunEvent is one progress line ready for outbound publishing, so external
// UI/monitor collaborators can follow a run live without polling the
// checkpoint store.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher drains run events to NATS JetStream under
// closim.run.events.{level}.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan RunEvent
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan RunEvent) *Publisher {
	return &Publisher{js: js, inputChan: inputChan}
}

// Run starts the publisher loop. Publish failures are logged and dropped:
// the narration also reaches the structured log, so downstream consumers
// lose nothing durable.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, evt); err != nil {
				log.Printf("WARN: run event publish failed run=%s: %v", evt.RunID, err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt RunEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	subject := fmt.Sprintf("closim.run.events.%s", evt.Level)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureRunStream creates the outbound run events stream.
func EnsureRunStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CLOSIM_RUN_EVENTS",
		Subjects:  []string{"closim.run.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create run events stream: %w", err)
	}
	return nil
}

// ConnectNATS dials NATS with unlimited reconnects and returns a JetStream
// handle.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// EventReporter fans narration out to an inner Reporter and to the
// publisher channel. The channel send is non-blocking: a full publish
// queue never stalls the engine.
type EventReporter struct {
	inner  Reporter
	runID  string
	events chan<- RunEvent
	clock  func() time.Time
}

func NewEventReporter(inner Reporter, runID string, events chan<- RunEvent) *EventReporter {
	return &EventReporter{
		inner:  inner,
		runID:  runID,
		events: events,
		clock:  time.Now,
	}
}

func (r *EventReporter) Log(message string, level Level) {
	r.inner.Log(message, level)

	select {
	case r.events <- RunEvent{
		RunID:     r.runID,
		Message:   message,
		Level:     level.String(),
		Timestamp: r.clock(),
	}:
	default:
		// Dropped: live feed is best-effort
	}
}
