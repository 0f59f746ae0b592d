package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/models"
)

// AnswerContext is everything the generator may use to phrase an answer.
type AnswerContext struct {
	Question string
	Intent   models.QueryIntent
	Outcome  Outcome
	Data     *DataUsed

	// Fallback is the rendered answer. It is correct on its own and is
	// returned when generation fails.
	Fallback string

	History []llm.Message
}

// Generator phrases an answer in natural language.
type Generator interface {
	Generate(ctx context.Context, ac AnswerContext) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, ac AnswerContext) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, ac AnswerContext) (string, error) {
	return f(ctx, ac)
}

// LLMGenerator rewrites answers through a chat model.
type LLMGenerator struct {
	provider llm.Provider
	model    string
}

// NewLLMGenerator creates a generator on provider.
func NewLLMGenerator(provider llm.Provider, model string) *LLMGenerator {
	return &LLMGenerator{provider: provider, model: model}
}

const helpInstructions = `Você é um assistente técnico e simpático.
Responda sempre em português do Brasil, em no máximo 4 linhas.
Se a pessoa só cumprimentar, apresente-se e dê exemplos do que você responde
(pH, temperatura, turbidez, TDS, histórico, tendência, máximos e mínimos).
Não inclua JSON nem "resumo dos dados".`

const answerInstructions = `Responda sempre em português do Brasil, em no máximo 4 linhas, de forma clara e simpática.
Use SOMENTE os números dos dados fornecidos e cite valores com a unidade.
Não invente leituras, datas ou faixas. Não inclua JSON na resposta.`

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, ac AnswerContext) (string, error) {
	system := waterPreamble + "\n\n" + answerInstructions
	if ac.Outcome == OutcomeHelp {
		system = waterPreamble + "\n\n" + helpInstructions
	}

	messages := make([]llm.Message, 0, len(ac.History)+2)
	messages = append(messages, llm.SystemMessage(system))
	messages = append(messages, ac.History...)

	user := ac.Question
	if ac.Outcome != OutcomeHelp {
		data, err := json.Marshal(ac.Data)
		if err != nil {
			return "", fmt.Errorf("encode answer data: %w", err)
		}
		user = fmt.Sprintf("Pergunta: %s\nIntenção: %s\nDados: %s\nResposta de referência: %s",
			ac.Question, ac.Intent.Kind, data, ac.Fallback)
	}
	messages = append(messages, llm.UserMessage(user))

	opts := []llm.CallOption{llm.WithTemperature(0.2), llm.WithMaxTokens(512)}
	if g.model != "" {
		opts = append(opts, llm.WithModel(g.model))
	}
	resp, err := g.provider.Chat(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
