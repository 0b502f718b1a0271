// Package natsbus publishes signals and spread points to NATS for external
// consumers. Publishing is fire-and-forget; the bus is optional and the
// pipeline runs identically without it.
package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subject prefixes. Full subjects:
//
//	arb.signals.<symbol>
//	arb.spreads.<exchange1>.<exchange2>.<symbol>
const (
	subjectSignals = "arb.signals"
	subjectSpreads = "arb.spreads"
)

// SignalSubject builds the per-symbol signal subject.
func SignalSubject(symbol string) string {
	return fmt.Sprintf("%s.%s", subjectSignals, symbol)
}

// SpreadSubject builds the per-pair spread subject.
func SpreadSubject(ex1, ex2, symbol string) string {
	ex1, ex2 = types.CanonicalPair(ex1, ex2)
	return fmt.Sprintf("%s.%s.%s.%s", subjectSpreads, ex1, ex2, symbol)
}

// Bus wraps a reconnecting NATS connection.
type Bus struct {
	conn *nats.Conn
	log  *logrus.Entry
}

// Connect dials NATS with unlimited reconnects. Connection state changes are
// logged, never fatal after the initial dial.
func Connect(url, clientName string, log *logrus.Entry) (*Bus, error) {
	logger := log.WithField("component", "natsbus")

	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("nats async error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Bus{conn: conn, log: logger}, nil
}

// PublishSignal sends a signal to its symbol subject.
func (b *Bus) PublishSignal(sig types.Signal) {
	b.publish(SignalSubject(sig.Symbol), sig)
}

// PublishSpread sends a spread point to its pair subject.
func (b *Bus) PublishSpread(p types.SpreadPoint) {
	b.publish(SpreadSubject(p.Exchange1, p.Exchange2, p.Symbol), p)
}

func (b *Bus) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.WithError(err).WithField("subject", subject).Error("failed to marshal nats payload")
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.WithError(err).WithField("subject", subject).Debug("nats publish failed")
	}
}

// Close drains and closes the connection.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
