// Package llmtest provides a deterministic fake provider and the shared
// contract that every llm.Provider implementation must satisfy.
//
// The contract needs a live model. Provider tests gate it behind an
// environment variable (e.g. AQ_TEST_OLLAMA_URL).
package llmtest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/HerbHall/aquabot/pkg/llm"
)

// TestProviderContract runs the behavioral contract against a provider:
//
//	func TestContract(t *testing.T) {
//	    llmtest.TestProviderContract(t, func() llm.Provider { return ollama.New(cfg) })
//	}
func TestProviderContract(t *testing.T, factory func() llm.Provider) {
	t.Helper()

	t.Run("Generate_returns_non_empty_response", func(t *testing.T) {
		resp, err := factory().Generate(context.Background(), "Diga olá em três palavras.")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if resp == nil || resp.Content == "" {
			t.Fatal("Generate() returned empty content")
		}
		if resp.Model == "" {
			t.Error("Response.Model must not be empty")
		}
	})

	t.Run("Chat_with_json_format_returns_object", func(t *testing.T) {
		messages := []llm.Message{
			llm.SystemMessage(`Responda apenas com JSON no formato {"intent": "..."}.`),
			llm.UserMessage("Qual a última leitura de pH?"),
		}
		resp, err := factory().Chat(context.Background(), messages,
			llm.WithFormat(llm.JSONFormat), llm.WithTemperature(0))
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
			t.Fatalf("Chat() content is not a JSON object: %q (%v)", resp.Content, err)
		}
	})

	t.Run("Generate_cancelled_context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := factory().Generate(ctx, "Escreva um texto longo sobre qualidade da água."); err == nil {
			t.Error("Generate() with cancelled context should return error")
		}
	})

	t.Run("Chat_empty_messages_returns_error", func(t *testing.T) {
		if _, err := factory().Chat(context.Background(), nil); err == nil {
			t.Error("Chat() with nil messages should return error")
		}
	})

	t.Run("HealthReporter_if_implemented", func(t *testing.T) {
		hr, ok := factory().(llm.HealthReporter)
		if !ok {
			t.Skip("provider does not implement HealthReporter")
		}
		if err := hr.Heartbeat(context.Background()); err != nil {
			t.Errorf("Heartbeat() error = %v", err)
		}
		if _, err := hr.ListModels(context.Background()); err != nil {
			t.Errorf("ListModels() error = %v", err)
		}
	})
}
