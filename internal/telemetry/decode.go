package telemetry

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
)

var (
	// ErrInvalidTransmission is returned for payloads that cannot become a
	// telemetry document.
	ErrInvalidTransmission = errors.New("invalid telemetry transmission")

	// ErrBadSignature is returned when a signed envelope fails verification
	// or an unsigned payload arrives while signatures are required.
	ErrBadSignature = errors.New("telemetry signature rejected")
)

// Transmission is the wire form a sensor gateway sends.
type Transmission struct {
	Version      string               `json:"version"`
	MsgType      string               `json:"msg_type"`
	DeviceID     string               `json:"device_id"`
	SiteID       string               `json:"site_id"`
	SentAt       time.Time            `json:"sent_at"`
	Seq          uint64               `json:"seq"`
	Measurements []models.Measurement `json:"measurements"`
}

// SignedEnvelope wraps a Transmission with a base64 ed25519 signature over
// the compact JSON encoding of the payload.
type SignedEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// Decoder turns raw or signed transmissions into documents.
type Decoder struct {
	key     ed25519.PublicKey
	require bool
}

// NewDecoder builds a Decoder. verifyKey is a base64 ed25519 public key and
// may be empty, in which case envelopes are accepted unverified.
func NewDecoder(verifyKey string, requireSignature bool) (*Decoder, error) {
	d := &Decoder{require: requireSignature}
	if verifyKey == "" {
		if requireSignature {
			return nil, errors.New("require_signature needs verify_key")
		}
		return d, nil
	}
	raw, err := base64.StdEncoding.DecodeString(verifyKey)
	if err != nil {
		return nil, fmt.Errorf("decode verify_key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verify_key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	d.key = ed25519.PublicKey(raw)
	return d, nil
}

// Decode parses data as a SignedEnvelope when it carries a payload field,
// otherwise as a bare Transmission.
func (d *Decoder) Decode(data []byte) (models.TelemetryDocument, error) {
	var env SignedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.TelemetryDocument{}, fmt.Errorf("%w: %v", ErrInvalidTransmission, err)
	}

	payload := data
	switch {
	case len(env.Payload) > 0:
		if err := d.verify(env); err != nil {
			return models.TelemetryDocument{}, err
		}
		payload = env.Payload
	case d.require:
		return models.TelemetryDocument{}, fmt.Errorf("%w: unsigned transmission", ErrBadSignature)
	}

	var tx Transmission
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&tx); err != nil {
		return models.TelemetryDocument{}, fmt.Errorf("%w: %v", ErrInvalidTransmission, err)
	}
	if err := tx.validate(); err != nil {
		return models.TelemetryDocument{}, err
	}
	return tx.Document(), nil
}

func (d *Decoder) verify(env SignedEnvelope) error {
	if d.key == nil {
		return nil
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	// The gateway signs compact JSON; whitespace added in transit is not
	// part of the signed bytes.
	var payload bytes.Buffer
	if err := json.Compact(&payload, env.Payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransmission, err)
	}
	if !ed25519.Verify(d.key, payload.Bytes(), sig) {
		return fmt.Errorf("%w: verification failed", ErrBadSignature)
	}
	return nil
}

func (t Transmission) validate() error {
	var missing []string
	if strings.TrimSpace(t.DeviceID) == "" {
		missing = append(missing, "device_id")
	}
	if strings.TrimSpace(t.SiteID) == "" {
		missing = append(missing, "site_id")
	}
	if t.SentAt.IsZero() {
		missing = append(missing, "sent_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidTransmission, strings.Join(missing, ", "))
	}
	if len(t.Measurements) == 0 {
		return fmt.Errorf("%w: no measurements", ErrInvalidTransmission)
	}
	for i, m := range t.Measurements {
		if strings.TrimSpace(m.Parameter) == "" {
			return fmt.Errorf("%w: measurement %d has no parameter", ErrInvalidTransmission, i)
		}
	}
	return nil
}

// Document converts the transmission into a stored document without an ID.
func (t Transmission) Document() models.TelemetryDocument {
	return models.TelemetryDocument{
		DeviceID:     t.DeviceID,
		SiteID:       t.SiteID,
		SentAt:       t.SentAt,
		Seq:          t.Seq,
		Measurements: append([]models.Measurement(nil), t.Measurements...),
	}
}
