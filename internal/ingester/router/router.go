// Package router consumes the push feed and dispatches each logical message to a
// per-message-type handler. Failures are isolated per envelope: a malformed body or a
// failing handler is logged together with the raw payload and the loop moves on.
package router

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/gridstats/gridstats/internal/ingester/metrics"
)

// Envelope is one delivered unit from the subscription: a wire type tag and an
// undecoded body.
type Envelope struct {
	Type string
	Body []byte
}

// Subscription is the boundary to the wire client. Implementations manage their own
// connection lifecycle, heartbeats and reconnection; the router only consumes the
// delivered envelopes.
type Subscription interface {
	Subscribe(topic string) (<-chan *Envelope, error)
}

// Handler processes one logical message.
type Handler func(ctx context.Context, msg *Message) error

type Router struct {
	sub      Subscription
	topic    string
	metrics  *metrics.Metrics
	handlers map[string]Handler
}

func New(sub Subscription, topic string, m *metrics.Metrics) *Router {
	return &Router{
		sub:      sub,
		topic:    topic,
		metrics:  m,
		handlers: map[string]Handler{},
	}
}

// Register associates a handler with a wire message type. The last registration for
// a type wins, which also allows aliasing two wire names to one handler.
func (r *Router) Register(messageType string, handler Handler) {
	r.handlers[messageType] = handler
}

// Run subscribes to the feed and processes envelopes sequentially, in delivery
// order, until ctx is cancelled. The in-flight envelope is completed before
// returning.
func (r *Router) Run(ctx context.Context) error {
	envelopes, err := r.sub.Subscribe(r.topic)
	if err != nil {
		return err
	}
	log.Infof("Stream router subscribed to %s with %d handlers", r.topic, len(r.handlers))
	for {
		select {
		case <-ctx.Done():
			log.Info("Stream router stopping")
			return nil
		case envelope, ok := <-envelopes:
			if !ok {
				log.Info("Stream router: subscription closed")
				return nil
			}
			r.dispatch(ctx, envelope)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, envelope *Envelope) {
	handler, ok := r.handlers[envelope.Type]
	if !ok {
		// Unknown types are expected: we only ingest a subset of the feed
		r.metrics.RecordEnvelopeDropped()
		return
	}

	messages, err := parseEnvelope(envelope.Body)
	if err != nil {
		r.metrics.RecordEnvelopeError(metrics.EnvelopeErrorParse)
		log.WithError(err).Errorf("Failed to parse %s envelope, body was: %s", envelope.Type, envelope.Body)
		return
	}

	for _, message := range messages {
		if err := handler(ctx, message); err != nil {
			r.metrics.RecordEnvelopeError(metrics.EnvelopeErrorHandling)
			log.WithError(err).Errorf("Handler for %s failed, body was: %s", envelope.Type, envelope.Body)
			return
		}
	}
	r.metrics.RecordEnvelopeHandled(envelope.Type)
}
