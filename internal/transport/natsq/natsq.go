// Package natsq receives job envelopes over NATS request/reply.
package natsq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/worker"
)

type Config struct {
	URL           string `toml:"url"`
	Subject       string `toml:"subject"`
	Queue         string `toml:"queue"`
	CancelSubject string `toml:"cancel_subject"`
}

func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("modbox"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}

// Canceller stops in-flight jobs by id.
type Canceller interface {
	Cancel(id string) bool
}

type Source struct {
	msgs      chan *nats.Msg
	sub       *nats.Subscription
	cancelSub *nats.Subscription
}

// Subscribe joins the worker queue group on cfg.Subject and listens for
// cancellation requests on cfg.CancelSubject. A cancel message carries
// the job id and is answered with "true" or "false".
func Subscribe(nc *nats.Conn, cfg Config, c Canceller) (*Source, error) {
	s := &Source{msgs: make(chan *nats.Msg, 64)}
	var err error
	s.sub, err = nc.ChanQueueSubscribe(cfg.Subject, cfg.Queue, s.msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Subject, err)
	}
	if cfg.CancelSubject != "" {
		s.cancelSub, err = nc.Subscribe(cfg.CancelSubject, func(m *nats.Msg) {
			ok := c.Cancel(string(m.Data))
			if m.Reply != "" {
				_ = m.Respond([]byte(strconv.FormatBool(ok)))
			}
		})
		if err != nil {
			_ = s.sub.Unsubscribe()
			return nil, fmt.Errorf("subscribe to %s: %w", cfg.CancelSubject, err)
		}
	}
	return s, nil
}

func (s *Source) Receive(ctx context.Context) (worker.Delivery, error) {
	select {
	case m := <-s.msgs:
		return delivery{m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) Close() error {
	if s.cancelSub != nil {
		_ = s.cancelSub.Unsubscribe()
	}
	return s.sub.Unsubscribe()
}

type delivery struct {
	msg *nats.Msg
}

func (d delivery) Body() []byte { return d.msg.Data }

func (d delivery) Respond(ctx context.Context, reply []byte) error {
	if d.msg.Reply == "" {
		return nil
	}
	return d.msg.Respond(reply)
}

// Submit sends env to the workers and waits for the reply.
func Submit(ctx context.Context, nc *nats.Conn, subject string, env api.Envelope) (api.Reply, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return api.Reply{}, err
	}
	msg, err := nc.RequestWithContext(ctx, subject, body)
	if err != nil {
		return api.Reply{}, fmt.Errorf("request %s: %w", subject, err)
	}
	var reply api.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return api.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// CancelJob asks the workers to stop job id.
func CancelJob(ctx context.Context, nc *nats.Conn, subject, id string) (bool, error) {
	msg, err := nc.RequestWithContext(ctx, subject, []byte(id))
	if err != nil {
		return false, fmt.Errorf("request %s: %w", subject, err)
	}
	return strconv.ParseBool(string(msg.Data))
}
