package transport

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/types"
)

// MQTTClient is the broker-backed implementation of Client.
type MQTTClient struct {
	cfg    Config
	client mqtt.Client
	logger *log.Logger
}

// NewMQTTClient creates an MQTT client for the configured broker.
// The session uses a clean start and resubscribes automatically after
// reconnects.
func NewMQTTClient(cfg Config, logger *log.Logger) *MQTTClient {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	c := &MQTTClient{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetResumeSubs(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("broker connection lost", map[string]any{
			"broker": cfg.BrokerURL,
			"error":  err.Error(),
		})
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.logger.Info("broker connected", map[string]any{
			"broker":    cfg.BrokerURL,
			"client_id": cfg.ClientID,
		})
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect establishes the broker session.
func (c *MQTTClient) Connect(ctx context.Context) error {
	return c.wait(ctx, "connect", c.client.Connect())
}

// Subscribe registers a handler for a topic filter at QoSAtLeastOnce.
// The handler runs on the paho dispatch goroutine; the message arrival
// time is stamped before the handler sees it.
func (c *MQTTClient) Subscribe(ctx context.Context, filter string, handler Handler) error {
	token := c.client.Subscribe(filter, QoSAtLeastOnce, func(_ mqtt.Client, m mqtt.Message) {
		handler(types.RawMessage{
			ReceivedAt: time.Now(),
			Topic:      m.Topic(),
			Payload:    m.Payload(),
		})
	})
	return c.wait(ctx, "subscribe", token)
}

// Unsubscribe removes topic filters.
func (c *MQTTClient) Unsubscribe(ctx context.Context, filters ...string) error {
	if len(filters) == 0 {
		return nil
	}
	return c.wait(ctx, "unsubscribe", c.client.Unsubscribe(filters...))
}

// Publish sends one message at QoSAtLeastOnce, unretained.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.wait(ctx, "publish", c.client.Publish(topic, QoSAtLeastOnce, false, payload))
}

// Disconnect closes the session, allowing in-flight work to settle.
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// wait blocks on a paho token, honoring context cancellation.
func (c *MQTTClient) wait(ctx context.Context, op string, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return NewError(op, c.cfg.BrokerURL, ctx.Err())
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return NewError(op, c.cfg.BrokerURL, err)
	}
	return nil
}
