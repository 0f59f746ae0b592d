package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/HerbHall/aquabot/pkg/llm"
)

// ReplyFunc computes the fake's answer for one call.
type ReplyFunc func(messages []llm.Message, cfg llm.CallConfig) (string, error)

// Call records one invocation of the fake.
type Call struct {
	Messages []llm.Message
	Config   llm.CallConfig
}

// Fake is a deterministic llm.Provider for tests.
type Fake struct {
	mu    sync.Mutex
	reply ReplyFunc
	calls []Call
}

var _ llm.Provider = (*Fake)(nil)

// NewFake returns a Fake answering every call with reply.
func NewFake(reply ReplyFunc) *Fake {
	return &Fake{reply: reply}
}

// Static returns a Fake that always answers content.
func Static(content string) *Fake {
	return NewFake(func([]llm.Message, llm.CallConfig) (string, error) {
		return content, nil
	})
}

// Failing returns a Fake whose every call fails with err.
func Failing(err error) *Fake {
	return NewFake(func([]llm.Message, llm.CallConfig) (string, error) {
		return "", err
	})
}

// Script returns a Fake answering with replies in order. Calls past the
// end of the script fail.
func Script(replies ...string) *Fake {
	var mu sync.Mutex
	next := 0
	return NewFake(func([]llm.Message, llm.CallConfig) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return "", errors.New("llmtest: script exhausted")
		}
		r := replies[next]
		next++
		return r, nil
	})
}

// Generate implements llm.Provider.
func (f *Fake) Generate(ctx context.Context, prompt string, opts ...llm.CallOption) (*llm.Response, error) {
	return f.Chat(ctx, []llm.Message{llm.UserMessage(prompt)}, opts...)
}

// Chat implements llm.Provider.
func (f *Fake) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeTimeout, "request cancelled", err)
	}
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "no messages", nil)
	}
	cfg := llm.ApplyOptions(opts...)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Messages: append([]llm.Message(nil), messages...), Config: cfg})
	f.mu.Unlock()

	content, err := f.reply(messages, cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "fake"
	}
	return &llm.Response{Content: content, Model: model, Done: true}, nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
