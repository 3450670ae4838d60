// Package feed holds the wire client for the push feed. Connection lifecycle,
// heartbeating and reconnection live here, beneath the router's dispatch boundary: a
// transport level error is logged and counted, never surfaced to the router.
package feed

import (
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gridstats/gridstats/internal/ingester/configuration"
	"github.com/gridstats/gridstats/internal/ingester/metrics"
	"github.com/gridstats/gridstats/internal/ingester/router"
)

const subscriptionBuffer = 1024

type Conn struct {
	nc      *nats.Conn
	metrics *metrics.Metrics
}

// Connect establishes the feed connection. Reconnection is unlimited; only the
// initial connection failure is returned to the caller (and is process fatal).
func Connect(config configuration.FeedConfig, apiKey string, m *metrics.Metrics) (*Conn, error) {
	nc, err := nats.Connect(
		strings.Join(config.Servers, ","),
		nats.UserInfo(apiKey, apiKey),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("Feed disconnected")
				m.RecordTransportError()
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("Feed reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.WithError(err).Error("Feed transport error")
			m.RecordTransportError()
		}),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "connecting to feed")
	}
	return &Conn{nc: nc, metrics: m}, nil
}

// Subscribe returns an ordered channel of envelopes delivered on topic. The message
// type is carried in the "type" header.
func (c *Conn) Subscribe(topic string) (<-chan *router.Envelope, error) {
	msgs := make(chan *nats.Msg, subscriptionBuffer)
	if _, err := c.nc.ChanSubscribe(topic, msgs); err != nil {
		return nil, errors.WithMessagef(err, "subscribing to %s", topic)
	}
	envelopes := make(chan *router.Envelope)
	go func() {
		defer close(envelopes)
		for msg := range msgs {
			envelopes <- &router.Envelope{Type: msg.Header.Get("type"), Body: msg.Data}
		}
	}()
	return envelopes, nil
}

func (c *Conn) Close() {
	c.nc.Close()
}
