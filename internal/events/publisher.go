package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

const (
	streamName     = "CLUSTER"
	streamSubjects = "cluster.event.*"
	subjectPrefix  = "cluster.event."
	streamMaxAge   = 7 * 24 * time.Hour
)

// Publisher delivers lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// JetStreamPublisher publishes events to a JetStream stream
type JetStreamPublisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewJetStreamPublisher creates the event stream if needed and returns a
// publisher bound to it
func NewJetStreamPublisher(js nats.JetStreamContext, logger *zap.Logger) (*JetStreamPublisher, error) {
	p := &JetStreamPublisher{
		logger: logger.Named("events"),
		js:     js,
	}
	if err := p.setup(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *JetStreamPublisher) setup() error {
	info, err := p.js.StreamInfo(streamName)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if info == nil {
		_, err = p.js.AddStream(&nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{streamSubjects},
			Retention: nats.LimitsPolicy,
			MaxAge:    streamMaxAge,
			MaxMsgs:   -1,
			Discard:   nats.DiscardOld,
			Storage:   nats.FileStorage,
			Replicas:  1,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
		p.logger.Info("Created stream", zap.String("name", streamName))
		return nil
	}

	config := info.Config
	config.Subjects = []string{streamSubjects}
	config.MaxAge = streamMaxAge
	if _, err := p.js.UpdateStream(&config); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", streamName, err)
	}
	p.logger.Info("Updated stream", zap.String("name", streamName))
	return nil
}

// Subject returns the subject events of a phase are published on
func Subject(phase model.Phase) string {
	return subjectPrefix + string(phase)
}

// Publish implements Publisher
func (p *JetStreamPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(Subject(event.Phase), data, nats.Context(ctx), nats.MsgId(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("phase", string(event.Phase)),
		zap.String("event_id", event.ID))
	return nil
}

// Subscribe delivers every event, from the start of the stream, to handler
// until ctx is done
func (p *JetStreamPublisher) Subscribe(ctx context.Context, handler func(model.Event)) error {
	sub, err := p.js.Subscribe(streamSubjects, func(msg *nats.Msg) {
		var event model.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Error("Failed to unmarshal event", zap.Error(err))
			return
		}

		handler(event)
		msg.Ack()
	}, nats.DeliverAll())
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
