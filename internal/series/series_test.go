package series

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
)

var t0 = time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)

func point(offset time.Duration, v float64) models.MeasurementPoint {
	return models.MeasurementPoint{
		Timestamp: t0.Add(offset),
		Value:     v,
		Unit:      "°C",
		Parameter: models.ParameterTemperature,
	}
}

func randomSeries(r *rand.Rand, n int) models.Series {
	s := make(models.Series, n)
	for i := range s {
		s[i] = point(time.Duration(r.IntN(10_000))*time.Second, r.Float64()*40-5)
	}
	return s
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()
	if got, ok := Summarize(nil); ok || got != nil {
		t.Errorf("Summarize(nil) = %+v, %v; want nil, false", got, ok)
	}
}

func TestSummarize_BoundsProperty(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))
	for n := 1; n <= 50; n++ {
		s := randomSeries(r, n)
		sum, ok := Summarize(s)
		if !ok {
			t.Fatalf("Summarize(len %d) reported empty", n)
		}
		if sum.Count != n {
			t.Errorf("Count = %d, want %d", sum.Count, n)
		}
		for _, p := range s {
			if p.Value < sum.Min || p.Value > sum.Max {
				t.Errorf("value %v outside [%v, %v]", p.Value, sum.Min, sum.Max)
			}
			if p.Timestamp.Before(sum.Start) || p.Timestamp.After(sum.End) {
				t.Errorf("timestamp %v outside [%v, %v]", p.Timestamp, sum.Start, sum.End)
			}
		}
		if sum.Avg < sum.Min || sum.Avg > sum.Max {
			t.Errorf("Avg %v outside [%v, %v]", sum.Avg, sum.Min, sum.Max)
		}
	}
}

func TestSummarize_Values(t *testing.T) {
	t.Parallel()
	s := models.Series{point(2*time.Hour, 24), point(0, 20), point(time.Hour, 22)}
	sum, _ := Summarize(s)
	if sum.Min != 20 || sum.Max != 24 || sum.Avg != 22 {
		t.Errorf("got min=%v max=%v avg=%v", sum.Min, sum.Max, sum.Avg)
	}
	if !sum.Start.Equal(t0) || !sum.End.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("window = [%v, %v]", sum.Start, sum.End)
	}
	if sum.Unit != "°C" {
		t.Errorf("Unit = %q", sum.Unit)
	}
}

func TestExtreme(t *testing.T) {
	t.Parallel()
	s := models.Series{point(0, 7), point(time.Hour, 9), point(2*time.Hour, 9), point(3*time.Hour, 6)}

	maxP, ok := Extreme(s, Max)
	if !ok || maxP.Value != 9 || !maxP.Timestamp.Equal(t0.Add(time.Hour)) {
		t.Errorf("Extreme(Max) = %+v, want first 9 at t0+1h", maxP)
	}
	minP, ok := Extreme(s, Min)
	if !ok || minP.Value != 6 {
		t.Errorf("Extreme(Min) = %+v, want 6", minP)
	}
	if _, ok := Extreme(nil, Max); ok {
		t.Error("Extreme(nil) should report false")
	}
}

func TestExtreme_MaxNotBelowMinProperty(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 4))
	for n := 1; n <= 50; n++ {
		s := randomSeries(r, n)
		hi, _ := Extreme(s, Max)
		lo, _ := Extreme(s, Min)
		if hi.Value < lo.Value {
			t.Errorf("max %v < min %v", hi.Value, lo.Value)
		}
	}
}

func TestTrend(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		s     models.Series
		delta float64
		dir   models.Direction
	}{
		{"up", models.Series{point(0, 20), point(time.Hour, 25)}, 5, models.DirectionUp},
		{"down", models.Series{point(0, 25), point(time.Hour, 21.5), point(2*time.Hour, 20)}, -5, models.DirectionDown},
		{"stable", models.Series{point(0, 7), point(time.Hour, 9), point(2*time.Hour, 7)}, 0, models.DirectionStable},
		{"below threshold", models.Series{point(0, 7), point(time.Hour, 7+1e-10)}, 1e-10, models.DirectionStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Trend(tt.s)
			if !ok {
				t.Fatal("Trend reported too few points")
			}
			if got.Delta != tt.s[len(tt.s)-1].Value-tt.s[0].Value {
				t.Errorf("Delta = %v, want last-first", got.Delta)
			}
			if got.Direction != tt.dir {
				t.Errorf("Direction = %s, want %s", got.Direction, tt.dir)
			}
			if got.Count != len(tt.s) {
				t.Errorf("Count = %d, want %d", got.Count, len(tt.s))
			}
		})
	}
}

func TestTrend_ScenarioTemperatureUp(t *testing.T) {
	t.Parallel()
	got, ok := Trend(models.Series{point(0, 20.0), point(time.Hour, 25.0)})
	if !ok || got.Direction != models.DirectionUp || got.Delta != 5.0 {
		t.Errorf("Trend = %+v, want up with delta 5", got)
	}
}

func TestTrend_TooFew(t *testing.T) {
	t.Parallel()
	if _, ok := Trend(models.Series{point(0, 1)}); ok {
		t.Error("single point should not produce a trend")
	}
	if _, ok := Trend(nil); ok {
		t.Error("empty series should not produce a trend")
	}
}

func TestTrend_SortedProperty(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(5, 6))
	for n := 2; n <= 50; n++ {
		s := SortChronological(randomSeries(r, n))
		got, ok := Trend(s)
		if !ok {
			t.Fatalf("Trend(len %d) reported too few points", n)
		}
		want := s[len(s)-1].Value - s[0].Value
		if got.Delta != want {
			t.Errorf("Delta = %v, want %v", got.Delta, want)
		}
	}
}

func TestSortChronological_StableCopy(t *testing.T) {
	t.Parallel()
	s := models.Series{point(time.Hour, 1), point(0, 2), point(time.Hour, 3)}
	got := SortChronological(s)
	want := []float64{2, 1, 3}
	for i, v := range want {
		if got[i].Value != v {
			t.Errorf("got[%d] = %v, want %v", i, got[i].Value, v)
		}
	}
	if s[0].Value != 1 {
		t.Error("input was modified")
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()
	s := models.Series{point(time.Hour, 1), point(2*time.Hour, 2), point(0, 3)}
	got, ok := Latest(s)
	if !ok || got.Value != 2 {
		t.Errorf("Latest = %+v, want value 2", got)
	}
	if _, ok := Latest(nil); ok {
		t.Error("Latest(nil) should report false")
	}
}
