package mqttsync

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

type ClientConfig struct {
	// Broker is tcp://host:port, mqtt://, ssl:// or mqtts://.
	Broker   string
	ClientID string

	DialTimeout time.Duration
	KeepAlive   uint16
}

// Client is a connected MQTT v5 session used for one sync pass.
type Client struct {
	c *paho.Client
}

func brokerConn(ctx context.Context, broker string, timeout time.Duration) (net.Conn, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, fmt.Errorf("mqttsync: broker url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("mqttsync: broker url %q has no host", broker)
	}
	d := &net.Dialer{Timeout: timeout}
	switch u.Scheme {
	case "tcp", "mqtt":
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), "1883")
		}
		return d.DialContext(ctx, "tcp", host)
	case "ssl", "tls", "mqtts":
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), "8883")
		}
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}}
		return td.DialContext(ctx, "tcp", host)
	default:
		return nil, fmt.Errorf("mqttsync: unsupported broker scheme %q", u.Scheme)
	}
}

// Dial connects and completes the MQTT CONNECT handshake.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	conn, err := brokerConn(ctx, cfg.Broker, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	c := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: cfg.ClientID,
	})
	ack, err := c.Connect(ctx, &paho.Connect{
		ClientID:   cfg.ClientID,
		KeepAlive:  cfg.KeepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqttsync: connect %s: %w", cfg.Broker, err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqttsync: connect %s: reason code %d", cfg.Broker, ack.ReasonCode)
	}
	return &Client{c: c}, nil
}

// Publish sends payload with QoS 1 and waits for the broker's ack.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := c.c.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("mqttsync: publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.c.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
