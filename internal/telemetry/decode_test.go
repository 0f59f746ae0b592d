package telemetry

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const rawTransmission = `{
	"version": "1",
	"msg_type": "telemetry",
	"device_id": "esp32-01",
	"site_id": "tanque-1",
	"sent_at": "2025-03-01T12:00:00Z",
	"seq": 42,
	"measurements": [
		{"parameter": "ph", "value": 7.2, "unit": "pH"},
		{"parameter": "temperatura", "value": 24.5, "unit": "°C"}
	]
}`

// signed wraps payload in an envelope signed over its compact form, as the
// gateway does.
func signed(t *testing.T, priv ed25519.PrivateKey, payload string) []byte {
	t.Helper()
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(payload)); err != nil {
		t.Fatalf("compact payload: %v", err)
	}
	sig := ed25519.Sign(priv, compact.Bytes())
	data, err := json.Marshal(SignedEnvelope{
		Payload:   json.RawMessage(payload),
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func newKey(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pub), priv
}

func TestDecode_Raw(t *testing.T) {
	t.Parallel()
	d, err := NewDecoder("", false)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	doc, err := d.Decode([]byte(rawTransmission))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.DeviceID != "esp32-01" || doc.SiteID != "tanque-1" || doc.Seq != 42 {
		t.Errorf("doc = %+v", doc)
	}
	if !doc.SentAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("SentAt = %v", doc.SentAt)
	}
	if len(doc.Measurements) != 2 || doc.Measurements[1].Parameter != "temperatura" {
		t.Errorf("Measurements = %+v", doc.Measurements)
	}
	if doc.ID != "" {
		t.Errorf("ID = %q, want empty before ingest", doc.ID)
	}
}

func TestDecode_Signed(t *testing.T) {
	t.Parallel()
	pub, priv := newKey(t)
	d, err := NewDecoder(pub, true)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	doc, err := d.Decode(signed(t, priv, rawTransmission))
	if err != nil {
		t.Fatalf("Decode(valid envelope): %v", err)
	}
	if doc.DeviceID != "esp32-01" {
		t.Errorf("DeviceID = %q", doc.DeviceID)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, signed(t, priv, rawTransmission), "", "    "); err != nil {
		t.Fatalf("indent envelope: %v", err)
	}
	if _, err := d.Decode(indented.Bytes()); err != nil {
		t.Errorf("Decode(re-indented envelope): %v", err)
	}

	_, otherPriv := newKey(t)
	if _, err := d.Decode(signed(t, otherPriv, rawTransmission)); !errors.Is(err, ErrBadSignature) {
		t.Errorf("foreign key error = %v, want ErrBadSignature", err)
	}

	if _, err := d.Decode([]byte(rawTransmission)); !errors.Is(err, ErrBadSignature) {
		t.Errorf("unsigned error = %v, want ErrBadSignature", err)
	}

	bad := []byte(`{"payload": ` + rawTransmission + `, "signature": "not-base64!"}`)
	if _, err := d.Decode(bad); !errors.Is(err, ErrBadSignature) {
		t.Errorf("malformed signature error = %v, want ErrBadSignature", err)
	}
}

func TestDecode_EnvelopeWithoutKey(t *testing.T) {
	t.Parallel()
	_, priv := newKey(t)
	d, err := NewDecoder("", false)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if _, err := d.Decode(signed(t, priv, rawTransmission)); err != nil {
		t.Errorf("Decode without key: %v", err)
	}
}

func TestNewDecoder_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		key     string
		require bool
	}{
		{"require without key", "", true},
		{"not base64", "%%%", false},
		{"wrong size", base64.StdEncoding.EncodeToString([]byte("short")), false},
	}
	for _, tt := range tests {
		if _, err := NewDecoder(tt.key, tt.require); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()
	d, err := NewDecoder("", false)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"missing device", `{"site_id":"s","sent_at":"2025-03-01T12:00:00Z","measurements":[{"parameter":"ph","value":7}]}`},
		{"missing site", `{"device_id":"d","sent_at":"2025-03-01T12:00:00Z","measurements":[{"parameter":"ph","value":7}]}`},
		{"missing sent_at", `{"device_id":"d","site_id":"s","measurements":[{"parameter":"ph","value":7}]}`},
		{"no measurements", `{"device_id":"d","site_id":"s","sent_at":"2025-03-01T12:00:00Z","measurements":[]}`},
		{"blank parameter", `{"device_id":"d","site_id":"s","sent_at":"2025-03-01T12:00:00Z","measurements":[{"parameter":" ","value":7}]}`},
		{"bad timestamp", `{"device_id":"d","site_id":"s","sent_at":"yesterday","measurements":[{"parameter":"ph","value":7}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Decode([]byte(tt.data)); !errors.Is(err, ErrInvalidTransmission) {
				t.Errorf("Decode error = %v, want ErrInvalidTransmission", err)
			}
		})
	}
}
