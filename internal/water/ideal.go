package water

import "github.com/HerbHall/aquabot/pkg/models"

var idealRanges = map[models.WaterParameter]models.IdealRange{
	models.ParameterPH:          {Parameter: models.ParameterPH, Min: 6.5, Max: 8.5, Unit: "pH"},
	models.ParameterTemperature: {Parameter: models.ParameterTemperature, Min: 20, Max: 30, Unit: "°C"},
	models.ParameterTurbidity:   {Parameter: models.ParameterTurbidity, Min: 0, Max: 10, Unit: "NTU"},
	models.ParameterTDS:         {Parameter: models.ParameterTDS, Min: 0, Max: 500, Unit: "ppm"},
}

// IdealRangeFor returns the configured range of p.
func IdealRangeFor(p models.WaterParameter) (models.IdealRange, bool) {
	r, ok := idealRanges[p]
	return r, ok
}

// IdealRanges returns every configured range in display order.
func IdealRanges() []models.IdealRange {
	out := make([]models.IdealRange, 0, len(idealRanges))
	for _, p := range models.Parameters {
		if r, ok := idealRanges[p]; ok {
			out = append(out, r)
		}
	}
	return out
}

// CheckIdeal reports whether value lies in the closed ideal range of p.
// It returns false when p has no range configured.
func CheckIdeal(p models.WaterParameter, value float64) (models.IdealCheck, bool) {
	r, ok := idealRanges[p]
	if !ok {
		return models.IdealCheck{}, false
	}
	return models.IdealCheck{
		Value:  value,
		Within: value >= r.Min && value <= r.Max,
		Min:    r.Min,
		Max:    r.Max,
		Unit:   r.Unit,
	}, true
}

// Readings maps a document's measurements to canonical parameters.
// Unknown parameters are skipped; for repeated parameters the last one wins.
func Readings(doc models.TelemetryDocument) map[models.WaterParameter]float64 {
	out := make(map[models.WaterParameter]float64, len(doc.Measurements))
	for _, m := range doc.Measurements {
		if p, ok := Normalize(m.Parameter); ok {
			out[p] = m.Value
		}
	}
	return out
}
