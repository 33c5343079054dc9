package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
)

const defaultSubject = "tagwatch.releases"

// natsMessage is the published document.
type natsMessage struct {
	Entity     string    `json:"entity"`
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	Previous   string    `json:"previous,omitempty"`
	Identifier string    `json:"identifier"`
	Source     string    `json:"source"`
	URL        string    `json:"url,omitempty"`
	Message    string    `json:"message"`
	ObservedAt time.Time `json:"observed_at"`
}

// NATS publishes events to a JetStream subject. The message id is
// Event.DedupKey, so a retried publish inside the stream's duplicate window is
// acknowledged without being stored twice.
type NATS struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	log     logx.Logger
}

func NewNATS(ctx context.Context, cfg NATSConfig, log logx.Logger) (*NATS, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("nats url is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("sink", "nats"))

	opts := []nats.Option{
		nats.Name("tagwatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrlRedacted()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.Creds != "" {
		opts = append(opts, nats.UserCredentials(cfg.Creds))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = defaultSubject
	}
	if stream := strings.TrimSpace(cfg.Stream); stream != "" {
		window := cfg.DedupWindow
		if window <= 0 {
			window = 2 * time.Minute
		}
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:       stream,
			Subjects:   []string{subject},
			Duplicates: window,
		}); err != nil {
			nc.Close()
			return nil, err
		}
		log.Info("nats stream ready", logx.String("stream", stream), logx.String("subject", subject))
	}
	return &NATS{nc: nc, js: js, subject: subject, log: log}, nil
}

func (n *NATS) Notify(ctx context.Context, ev watch.Event) error {
	b, err := json.Marshal(natsMessage{
		Entity:     ev.Entity.Key(),
		Owner:      ev.Entity.Owner,
		Name:       ev.Entity.Name,
		Previous:   ev.Previous,
		Identifier: ev.Identifier,
		Source:     string(ev.Source),
		URL:        ev.URL,
		Message:    ev.Message,
		ObservedAt: ev.ObservedAt,
	})
	if err != nil {
		return err
	}
	ack, err := n.js.Publish(ctx, n.subject, b, jetstream.WithMsgID(ev.DedupKey()))
	if err != nil {
		return err
	}
	if ack.Duplicate {
		n.log.Debug("duplicate publish acknowledged", logx.String("msg_id", ev.DedupKey()))
	}
	return nil
}

func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
