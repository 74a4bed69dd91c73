// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-media/pkg/schema"
)

// Publisher emits artifact lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev schema.Event) error
}

type Client struct {
	nc      *nats.Conn
	subject string
}

func Connect(url, subject string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("simple-media"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, subject: subject}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// Publish sends ev on the configured subject.
func (c *Client) Publish(_ context.Context, ev schema.Event) error {
	if ev.HappenedAt == 0 {
		ev.HappenedAt = time.Now().UnixMilli()
	}
	return c.PublishJSON(c.subject, ev)
}

func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, msg.Data)
	})
}

// Nop discards events. Used when no NATS server is configured.
type Nop struct{}

func (Nop) Publish(context.Context, schema.Event) error { return nil }
