package water

import (
	"testing"

	"github.com/HerbHall/aquabot/pkg/models"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   models.WaterParameter
		wantOK bool
	}{
		{"PH", models.ParameterPH, true},
		{"ph", models.ParameterPH, true},
		{"  pH ", models.ParameterPH, true},
		{"Temperatura", models.ParameterTemperature, true},
		{"temperature", models.ParameterTemperature, true},
		{"TURBIDEZ", models.ParameterTurbidity, true},
		{"turbidity", models.ParameterTurbidity, true},
		{"tds", models.ParameterTDS, true},
		{"Condutividade", models.ParameterTDS, true},
		{"conductivity", models.ParameterTDS, true},
		{"xyz", "", false},
		{"", "", false},
		{"ph level", "", false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalize_CaseInsensitiveEquivalence(t *testing.T) {
	t.Parallel()
	a, okA := Normalize("PH")
	b, okB := Normalize("ph")
	if !okA || !okB || a != b || a != models.ParameterPH {
		t.Errorf("Normalize(PH)=%q,%v Normalize(ph)=%q,%v", a, okA, b, okB)
	}
}

func TestInferFromFreeText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   models.WaterParameter
		wantOK bool
	}{
		{"Qual foi o pH mais alto ontem?", models.ParameterPH, true},
		{"a água está a quantos °C?", models.ParameterTemperature, true},
		{"quantos graus faz na caixa?", models.ParameterTemperature, true},
		{"leitura em NTU agora", models.ParameterTurbidity, true},
		{"a turvação aumentou?", models.ParameterTurbidity, true},
		{"quantos ppm de sólidos dissolvidos?", models.ParameterTDS, true},
		{"como está a temperatura e o ph?", models.ParameterTemperature, true},
		{"phosphate levels", "", false},
		{"como está a água?", "", false},
	}
	for _, tt := range tests {
		got, ok := InferFromFreeText(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("InferFromFreeText(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCheckIdeal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		param  models.WaterParameter
		value  float64
		within bool
		unit   string
	}{
		{models.ParameterPH, 9.0, false, "pH"},
		{models.ParameterPH, 7.2, true, "pH"},
		{models.ParameterPH, 6.5, true, "pH"},
		{models.ParameterPH, 8.5, true, "pH"},
		{models.ParameterTemperature, 19.9, false, "°C"},
		{models.ParameterTemperature, 25, true, "°C"},
		{models.ParameterTurbidity, 10.5, false, "NTU"},
		{models.ParameterTDS, 0, true, "ppm"},
		{models.ParameterTDS, 501, false, "ppm"},
	}
	for _, tt := range tests {
		got, ok := CheckIdeal(tt.param, tt.value)
		if !ok {
			t.Fatalf("CheckIdeal(%s) reported no range", tt.param)
		}
		if got.Within != tt.within || got.Unit != tt.unit || got.Value != tt.value {
			t.Errorf("CheckIdeal(%s, %v) = %+v, want within=%v unit=%s", tt.param, tt.value, got, tt.within, tt.unit)
		}
	}
}

func TestCheckIdeal_Unconfigured(t *testing.T) {
	t.Parallel()
	if _, ok := CheckIdeal(models.WaterParameter("oxygen"), 5); ok {
		t.Error("expected no range for unknown parameter")
	}
}

func TestIdealRanges_Order(t *testing.T) {
	t.Parallel()
	got := IdealRanges()
	if len(got) != len(models.Parameters) {
		t.Fatalf("IdealRanges() len = %d, want %d", len(got), len(models.Parameters))
	}
	for i, p := range models.Parameters {
		if got[i].Parameter != p {
			t.Errorf("IdealRanges()[%d] = %s, want %s", i, got[i].Parameter, p)
		}
	}
}

func TestReadings(t *testing.T) {
	doc := models.TelemetryDocument{
		Measurements: []models.Measurement{
			{Parameter: "pH", Value: 7.0},
			{Parameter: "temperatura", Value: 25},
			{Parameter: "salinidade", Value: 35},
			{Parameter: "ph", Value: 7.2},
		},
	}

	got := Readings(doc)
	if len(got) != 2 {
		t.Fatalf("Readings() = %v, want 2 parameters", got)
	}
	if got[models.ParameterPH] != 7.2 {
		t.Errorf("ph = %v, want last value 7.2", got[models.ParameterPH])
	}
	if got[models.ParameterTemperature] != 25 {
		t.Errorf("temperature = %v, want 25", got[models.ParameterTemperature])
	}
}
