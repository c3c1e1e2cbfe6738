package agent

import (
	"fmt"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/nats-io/nats.go"

	"github.com/calehh/hac-vote/event"
	"github.com/calehh/hac-vote/types"
)

const DefaultNatsSubject = "hacvote.proposal"

type publisher interface {
	Publish(subject string, data []byte) error
	Close()
}

var _ event.Subscriber = &NatsRelay{}

// NatsRelay forwards bus events to NATS on <prefix>.<proposal>.<event type>.
type NatsRelay struct {
	logger cmtlog.Logger
	prefix string
	conn   publisher

	once sync.Once
}

func NewNatsRelay(url string, prefix string, logger cmtlog.Logger) (*NatsRelay, error) {
	nc, err := nats.Connect(url, nats.Name("hacvote-relay"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return newNatsRelay(nc, prefix, logger), nil
}

func newNatsRelay(conn publisher, prefix string, logger cmtlog.Logger) *NatsRelay {
	if prefix == "" {
		prefix = DefaultNatsSubject
	}
	return &NatsRelay{
		logger: logger.With("module", "relay"),
		prefix: prefix,
		conn:   conn,
	}
}

func (r *NatsRelay) subject(ev types.Event) string {
	return fmt.Sprintf("%s.%d.%s", r.prefix, ev.Proposal(), ev.EventType())
}

func (r *NatsRelay) Deliver(ev types.Event) error {
	payload, err := types.MarshalEvent(ev)
	if err != nil {
		return err
	}
	if err = r.conn.Publish(r.subject(ev), payload); err != nil {
		r.logger.Error("nats publish fail", "type", ev.EventType(), "proposal", ev.Proposal(), "err", err)
	}
	return err
}

func (r *NatsRelay) Close() {
	r.once.Do(r.conn.Close)
}
