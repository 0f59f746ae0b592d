package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/pkg/roles"
	paho "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// Sink delivers one transmission.
type Sink interface {
	Send(ctx context.Context, tx telemetry.Transmission) error
}

// IngesterSink stores transmissions in-process under their DocumentID, so
// re-seeding an overlapping window reports duplicates.
type IngesterSink struct {
	Ingester roles.TelemetryIngester
}

func (s IngesterSink) Send(ctx context.Context, tx telemetry.Transmission) error {
	doc := tx.Document()
	doc.ID = DocumentID(tx)
	if _, err := s.Ingester.Ingest(ctx, roles.TransportSeed, doc); err != nil {
		if errors.Is(err, telemetry.ErrDuplicateDocument) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// HTTPSink posts transmissions to a running server's ingest endpoint.
type HTTPSink struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	Client  *http.Client
}

func (s HTTPSink) Send(ctx context.Context, tx telemetry.Transmission) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transmission: %w", err)
	}
	url := strings.TrimRight(s.BaseURL, "/") + "/api/v1/telemetry/ingest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicate
	case resp.StatusCode >= 300:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingest returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}

// MQTTSink publishes transmissions on <prefix>/telemetry/<site>/<device>.
type MQTTSink struct {
	Client  paho.Client
	Prefix  string
	QoS     byte
	Timeout time.Duration
}

// Topic returns the ingest topic of tx.
func (s MQTTSink) Topic(tx telemetry.Transmission) string {
	return fmt.Sprintf("%s/telemetry/%s/%s", s.Prefix, tx.SiteID, tx.DeviceID)
}

func (s MQTTSink) Send(ctx context.Context, tx telemetry.Transmission) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transmission: %w", err)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := s.Client.Publish(s.Topic(tx), s.QoS, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

// MessageWriter is the part of *kafka.Writer KafkaSink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// KafkaSink produces transmissions keyed by site and device so one
// device's readings stay ordered within a partition.
type KafkaSink struct {
	Writer MessageWriter
}

func (s KafkaSink) Send(ctx context.Context, tx telemetry.Transmission) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transmission: %w", err)
	}
	return s.Writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(tx.SiteID + "/" + tx.DeviceID),
		Value: body,
		Time:  tx.SentAt,
	})
}
