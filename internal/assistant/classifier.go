package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/models"
)

// Classifier turns a question into a structured intent.
type Classifier interface {
	Classify(ctx context.Context, question string) (models.QueryIntent, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, question string) (models.QueryIntent, error)

func (f ClassifierFunc) Classify(ctx context.Context, question string) (models.QueryIntent, error) {
	return f(ctx, question)
}

// LLMClassifier classifies questions with a chat model constrained to the
// intent JSON schema.
type LLMClassifier struct {
	provider llm.Provider
	model    string
	now      func() time.Time
}

// NewLLMClassifier creates a classifier on provider. model may be empty to
// use the provider's default.
func NewLLMClassifier(provider llm.Provider, model string) *LLMClassifier {
	return &LLMClassifier{provider: provider, model: model, now: time.Now}
}

// Classify implements Classifier. Any provider failure, malformed reply or
// unknown intent kind is reported as ErrClassifierUnavailable.
func (c *LLMClassifier) Classify(ctx context.Context, question string) (models.QueryIntent, error) {
	opts := []llm.CallOption{llm.WithTemperature(0), llm.WithFormat(intentSchema)}
	if c.model != "" {
		opts = append(opts, llm.WithModel(c.model))
	}
	resp, err := c.provider.Chat(ctx, []llm.Message{
		llm.SystemMessage(classifierPrompt(c.now())),
		llm.UserMessage(question),
	}, opts...)
	if err != nil {
		return models.QueryIntent{}, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
	}
	intent, err := decodeIntent(resp.Content, c.now().Location())
	if err != nil {
		return models.QueryIntent{}, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
	}
	return intent, nil
}

// wireIntent is the JSON the model is asked to produce.
type wireIntent struct {
	Intent       string  `json:"intent"`
	Parameter    *string `json:"parameter"`
	Start        *string `json:"start"`
	End          *string `json:"end"`
	Days         *int    `json:"days"`
	IncludeIdeal *bool   `json:"include_ideal"`
}

// decodeIntent parses a model reply. The intent kind must be known;
// parameter names go through the synonym table and unparseable dates are
// dropped, since the model is told never to invent them.
func decodeIntent(content string, loc *time.Location) (models.QueryIntent, error) {
	raw := extractObject(content)
	if raw == "" {
		return models.QueryIntent{}, llm.NewProviderError(llm.ErrCodeMalformedOutput, "no JSON object in classifier reply", nil)
	}
	var w wireIntent
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return models.QueryIntent{}, llm.NewProviderError(llm.ErrCodeMalformedOutput, "decode classifier reply", err)
	}
	kind, err := models.ParseIntentKind(strings.TrimSpace(w.Intent))
	if err != nil {
		return models.QueryIntent{}, llm.NewProviderError(llm.ErrCodeMalformedOutput, "classifier intent", err)
	}

	q := models.QueryIntent{Kind: kind, Days: w.Days, IncludeIdeal: w.IncludeIdeal}
	if w.Parameter != nil {
		if p, ok := water.Normalize(*w.Parameter); ok {
			q.Parameter = &p
		}
	}
	q.Start = parseWhen(w.Start, loc)
	q.End = parseWhen(w.End, loc)
	return q, nil
}

// extractObject returns the outermost {...} of s, tolerating code fences
// and prose around it.
func extractObject(s string) string {
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i < 0 || j < i {
		return ""
	}
	return s[i : j+1]
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseWhen(s *string, loc *time.Location) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return &t
		}
	}
	return nil
}

var intentSchema = mustSchema()

func mustSchema() json.RawMessage {
	kinds := make([]string, 0, len(models.IntentKinds))
	for _, k := range models.IntentKinds {
		kinds = append(kinds, string(k))
	}
	params := make([]any, 0, len(models.Parameters)+1)
	for _, p := range models.Parameters {
		params = append(params, string(p))
	}
	params = append(params, nil)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intent":        map[string]any{"type": "string", "enum": kinds},
			"parameter":     map[string]any{"type": []string{"string", "null"}, "enum": params},
			"start":         map[string]any{"type": []string{"string", "null"}, "description": "ISO 8601, only when the user gave an explicit period"},
			"end":           map[string]any{"type": []string{"string", "null"}, "description": "ISO 8601, only when the user gave an explicit period"},
			"days":          map[string]any{"type": []string{"integer", "null"}, "minimum": models.MinDays, "maximum": models.MaxDays},
			"include_ideal": map[string]any{"type": []string{"boolean", "null"}},
		},
		"required": []string{"intent"},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("intent schema: %v", err))
	}
	return data
}

const waterPreamble = `Você é o AquaBot, assistente de monitoramento da qualidade da água.
Os sensores medem pH, temperatura (°C), turbidez (NTU) e TDS (ppm).
Faixas ideais: pH 6.5 a 8.5; temperatura 20 a 30 °C; turbidez 0 a 10 NTU; TDS 0 a 500 ppm.`

const classifierInstructions = `Classifique a pergunta do usuário e retorne APENAS um objeto JSON com os campos
intent, parameter, start, end, days e include_ideal.

INTENTS (escolha UMA):
- general_help: cumprimentos, "quem é você", "como usar", "o que é turbidez". Sem parameter, start, end ou days.
- latest_status: "qual a última leitura?", "como está agora?". parameter se citar um; senão vazio.
- period_status: "como foi o pH ontem?", "resumo das últimas 24h". parameter opcional.
- avg_value: "qual foi o pH médio?". parameter obrigatório.
- max_value: "qual foi o pH mais alto?", "pico de temperatura". parameter obrigatório.
- min_value: "qual foi a menor temperatura?". parameter obrigatório.
- trend: "está subindo ou descendo?", "tendência nos últimos dias". parameter obrigatório.
- ideal_check: "está dentro do ideal?", "está ok?". parameter obrigatório.
- compare_periods: "compare hoje com ontem", "esta semana vs a passada".

REGRAS DE OURO:
1) NÃO invente datas. Só preencha start/end se o usuário der um período explícito
   ("entre 8h e 10h", "de 01/12 a 03/12"). Para "últimos X dias" use days=X e deixe start/end vazios.
2) Na dúvida, prefira general_help (pergunta conceitual) ou latest_status (pergunta sobre agora).
3) Normalize parâmetros: pH -> ph; temperatura -> temperature; turbidez -> turbidity; condutividade/tds -> tds.
4) include_ideal=true quando o usuário perguntar se o valor está bom ou dentro da faixa.

Retorne APENAS o JSON.`

func classifierPrompt(now time.Time) string {
	return waterPreamble + "\n\nData e hora atuais: " + now.Format("2006-01-02 15:04 (Monday) -07:00") +
		"\n\n" + classifierInstructions
}
