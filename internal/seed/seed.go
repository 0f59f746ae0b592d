// Package seed generates synthetic water-quality telemetry for demos and
// local development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDuplicate is returned by a Sink when the transmission was already
// stored. Run counts it instead of failing.
var ErrDuplicate = errors.New("transmission already stored")

// namespace scopes the deterministic document IDs of seeded telemetry.
var namespace = uuid.MustParse("6f1c4c52-5b0e-4d8f-9a57-1f9d3c6e2a10")

// Options controls the generated history.
type Options struct {
	DeviceID string
	SiteID   string
	Days     int
	Interval time.Duration
	// Seed fixes the noise source; equal options give equal output.
	Seed uint64
	// Now is the end of the history. Zero means time.Now.
	Now time.Time
}

// DefaultOptions returns one week of readings every 15 minutes.
func DefaultOptions() Options {
	return Options{
		DeviceID: "esp32-01",
		SiteID:   "tanque-1",
		Days:     7,
		Interval: 15 * time.Minute,
		Seed:     1,
	}
}

func (o Options) validate() error {
	switch {
	case o.DeviceID == "" || o.SiteID == "":
		return errors.New("device and site are required")
	case o.Days <= 0:
		return fmt.Errorf("days must be positive, got %d", o.Days)
	case o.Interval < time.Minute:
		return fmt.Errorf("interval must be at least 1m, got %s", o.Interval)
	}
	return nil
}

// Generate returns the transmissions of opts in chronological order. Send
// times are aligned to the interval so overlapping runs produce the same
// instants.
func Generate(opts Options) ([]telemetry.Transmission, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	end := now.UTC().Truncate(opts.Interval)
	start := end.Add(-time.Duration(opts.Days) * 24 * time.Hour)

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	count := int(end.Sub(start)/opts.Interval) + 1
	out := make([]telemetry.Transmission, 0, count)

	tds := 320.0
	for i := 0; i < count; i++ {
		ts := start.Add(time.Duration(i) * opts.Interval)
		// Fraction of the day, peaking mid-afternoon.
		day := math.Sin(2 * math.Pi * (float64(ts.Hour()*60+ts.Minute())/1440 - 0.375))

		tds += rng.NormFloat64() * 1.5
		tds = clamp(tds, 150, 620)

		out = append(out, telemetry.Transmission{
			Version:  "1",
			MsgType:  "telemetry",
			DeviceID: opts.DeviceID,
			SiteID:   opts.SiteID,
			SentAt:   ts,
			Seq:      uint64(ts.Unix() / int64(opts.Interval/time.Second)),
			Measurements: []models.Measurement{
				{Parameter: "ph", Value: round(7.2+0.25*day+rng.NormFloat64()*0.05, 2), Unit: "pH"},
				{Parameter: "temperatura", Value: round(25+2.5*day+rng.NormFloat64()*0.2, 1), Unit: "°C"},
				{Parameter: "turbidez", Value: round(clamp(2.5+rng.NormFloat64()*0.8, 0, 40), 2), Unit: "NTU"},
				{Parameter: "tds", Value: round(tds, 0), Unit: "ppm"},
			},
		})
	}
	return out, nil
}

// DocumentID is the stable ID a seeded transmission is stored under.
func DocumentID(tx telemetry.Transmission) string {
	key := fmt.Sprintf("%s/%s/%d", tx.SiteID, tx.DeviceID, tx.SentAt.UnixNano())
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Result counts the outcome of a Run.
type Result struct {
	Sent       int `json:"sent"`
	Duplicates int `json:"duplicates"`
}

// Run delivers txs to sink in order and stops at the first failure.
func Run(ctx context.Context, sink Sink, txs []telemetry.Transmission, logger *zap.Logger) (Result, error) {
	var res Result
	for i := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := sink.Send(ctx, txs[i])
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrDuplicate):
			res.Duplicates++
		default:
			return res, fmt.Errorf("send transmission %d (%s): %w", i, txs[i].SentAt.Format(time.RFC3339), err)
		}
		if (i+1)%500 == 0 {
			logger.Debug("seed progress", zap.Int("done", i+1), zap.Int("total", len(txs)))
		}
	}
	logger.Info("seed finished",
		zap.Int("sent", res.Sent),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
