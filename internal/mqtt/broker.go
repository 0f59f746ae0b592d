package mqtt

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker is an in-process MQTT broker for deployments without one.
type Broker struct {
	server *mochi.Server
	tcp    *listeners.TCP
}

// NewBroker creates a broker listening on addr. Every client is allowed.
func NewBroker(addr string) (*Broker, error) {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})).With(slog.String("component", "mqtt-broker")),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Broker{server: server, tcp: tcp}, nil
}

// Serve starts accepting clients in the background.
func (b *Broker) Serve() error {
	return b.server.Serve()
}

// Publish sends a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// URL is the address local clients should dial.
func (b *Broker) URL() string {
	addr := b.tcp.Address()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "tcp://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "tcp://" + net.JoinHostPort(host, port)
}

// Close stops the broker and disconnects its clients.
func (b *Broker) Close() error {
	return b.server.Close()
}
