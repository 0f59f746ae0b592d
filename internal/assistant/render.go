package assistant

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/aquabot/internal/series"
	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
)

// Answers are rendered in pt-BR. They double as the generator's reference
// text and as the fallback when generation fails.

const timeLayout = "02/01/2006 15:04 MST"

const helpText = "Olá! Sou o AquaBot, assistente de qualidade da água. " +
	"Posso responder sobre pH, temperatura, turbidez e TDS: última leitura, " +
	"médias, máximos e mínimos, tendência e se os valores estão na faixa ideal. " +
	"Exemplo: \"Qual foi o pH médio nos últimos 3 dias?\""

func formatValue(v float64, unit string) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + unit
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func renderNeedsParameter(kind models.IntentKind) string {
	var what string
	switch kind {
	case models.IntentAvgValue:
		what = "a média"
	case models.IntentMaxValue:
		what = "o valor máximo"
	case models.IntentMinValue:
		what = "o valor mínimo"
	case models.IntentTrend:
		what = "a tendência"
	default:
		what = "a faixa ideal"
	}
	return fmt.Sprintf("De qual parâmetro você quer saber %s? Posso consultar pH, temperatura, turbidez ou TDS.", what)
}

func renderNoData() string {
	return "Ainda não há nenhuma leitura registrada para este dispositivo e local."
}

func renderNoDataInPeriod(start, end time.Time) string {
	return fmt.Sprintf("Não encontrei leituras entre %s e %s. Tente ampliar o período, por exemplo \"nos últimos 7 dias\".",
		formatTime(start), formatTime(end))
}

func renderLatestAll(doc *models.TelemetryDocument) string {
	parts := make([]string, 0, len(doc.Measurements))
	for _, m := range doc.Measurements {
		parts = append(parts, fmt.Sprintf("%s %s", displayName(m.Parameter), formatValue(m.Value, m.Unit)))
	}
	return fmt.Sprintf("Última leitura em %s: %s.", formatTime(doc.SentAt), strings.Join(parts, ", "))
}

func renderLatestOne(param models.WaterParameter, m models.Measurement, sentAt time.Time, ideal *models.IdealCheck) string {
	out := fmt.Sprintf("Última leitura de %s: %s em %s.", param.Label(), formatValue(m.Value, m.Unit), formatTime(sentAt))
	return out + idealSuffix(ideal)
}

func renderParameterNotPresent(param models.WaterParameter, sentAt time.Time) string {
	return fmt.Sprintf("A última leitura (%s) não trouxe medição de %s.", formatTime(sentAt), param.Label())
}

func renderPeriod(param models.WaterParameter, sum *models.SeriesSummary) string {
	return fmt.Sprintf("%s entre %s e %s: média %s, mínimo %s e máximo %s em %d leituras.",
		capitalize(param.Label()), formatTime(sum.Start), formatTime(sum.End),
		formatValue(sum.Avg, sum.Unit), formatValue(sum.Min, sum.Unit), formatValue(sum.Max, sum.Unit), sum.Count)
}

func renderPeriodAll(sums map[models.WaterParameter]*models.SeriesSummary, start, end time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resumo entre %s e %s:", formatTime(start), formatTime(end))
	for _, p := range models.Parameters {
		sum, ok := sums[p]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s: média %s (mín. %s, máx. %s, %d leituras)",
			capitalize(p.Label()), formatValue(sum.Avg, sum.Unit),
			formatValue(sum.Min, sum.Unit), formatValue(sum.Max, sum.Unit), sum.Count)
	}
	return b.String()
}

func renderAverage(param models.WaterParameter, sum *models.SeriesSummary, ideal *models.IdealCheck) string {
	out := fmt.Sprintf("A média de %s entre %s e %s foi %s (%d leituras).",
		param.Label(), formatTime(sum.Start), formatTime(sum.End), formatValue(sum.Avg, sum.Unit), sum.Count)
	return out + idealSuffix(ideal)
}

func renderExtreme(mode series.Mode, param models.WaterParameter, pt *models.MeasurementPoint, ideal *models.IdealCheck) string {
	word := "máximo"
	if mode == series.Min {
		word = "mínimo"
	}
	out := fmt.Sprintf("O valor %s de %s no período foi %s, em %s.",
		word, param.Label(), formatValue(pt.Value, pt.Unit), formatTime(pt.Timestamp))
	return out + idealSuffix(ideal)
}

func renderTrend(param models.WaterParameter, tr *models.TrendResult) string {
	var how string
	switch tr.Direction {
	case models.DirectionUp:
		how = "está subindo"
	case models.DirectionDown:
		how = "está caindo"
	default:
		how = "está estável"
	}
	return fmt.Sprintf("%s %s: foi de %s para %s entre %s e %s (variação de %s).",
		capitalize(param.Label()), how, formatValue(tr.First, tr.Unit), formatValue(tr.Last, tr.Unit),
		formatTime(tr.Start), formatTime(tr.End), signed(tr.Delta, tr.Unit))
}

func renderNotEnoughPoints(param models.WaterParameter, n int) string {
	return fmt.Sprintf("Encontrei só %d leitura de %s no período; preciso de pelo menos duas para calcular a tendência.",
		n, param.Label())
}

func renderIdeal(param models.WaterParameter, pt *models.MeasurementPoint, check models.IdealCheck, outside, total int) string {
	verdict := "está dentro"
	if !check.Within {
		verdict = "está fora"
	}
	return fmt.Sprintf("A leitura mais recente de %s (%s, em %s) %s da faixa ideal de %s a %s. %d de %d leituras do período ficaram fora da faixa.",
		param.Label(), formatValue(pt.Value, pt.Unit), formatTime(pt.Timestamp), verdict,
		formatValue(check.Min, check.Unit), formatValue(check.Max, check.Unit), outside, total)
}

func renderNoIdealRange(param models.WaterParameter, pt *models.MeasurementPoint) string {
	return fmt.Sprintf("A leitura mais recente de %s foi %s, mas não há faixa ideal configurada para esse parâmetro.",
		param.Label(), formatValue(pt.Value, pt.Unit))
}

func renderUnsupported() string {
	return "Comparar períodos ainda não é suportado. Pergunte sobre um período de cada vez, por exemplo \"como foi o pH ontem?\"."
}

func idealSuffix(ideal *models.IdealCheck) string {
	if ideal == nil {
		return ""
	}
	if ideal.Within {
		return fmt.Sprintf(" Está dentro da faixa ideal (%s a %s).", formatValue(ideal.Min, ideal.Unit), formatValue(ideal.Max, ideal.Unit))
	}
	return fmt.Sprintf(" Está fora da faixa ideal (%s a %s).", formatValue(ideal.Min, ideal.Unit), formatValue(ideal.Max, ideal.Unit))
}

func displayName(raw string) string {
	if p, ok := water.Normalize(raw); ok {
		return p.Label()
	}
	return raw
}

func signed(v float64, unit string) string {
	if v > 0 {
		return "+" + formatValue(v, unit)
	}
	return formatValue(v, unit)
}

func capitalize(s string) string {
	if s == "" || strings.ToLower(s) != s {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
