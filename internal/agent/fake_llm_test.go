package agent

import (
	"context"
	"sync"

	"github.com/jonathan/company-agent/internal/llm"
)

type llmCall struct {
	System string
	Prompt string
	JSON   bool
}

// fakeLLM returns scripted replies and records every call.
type fakeLLM struct {
	mu        sync.Mutex
	jsonReply string
	jsonErr   error
	textReply string
	textErr   error
	calls     []llmCall
}

func (f *fakeLLM) GenerateContent(_ context.Context, system, prompt string, _ llm.ModelTier) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, llmCall{System: system, Prompt: prompt})
	return f.textReply, f.textErr
}

func (f *fakeLLM) GenerateJSON(_ context.Context, system, prompt string, _ llm.ModelTier) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, llmCall{System: system, Prompt: prompt, JSON: true})
	return f.jsonReply, f.jsonErr
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake" }

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) textCalls() []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llmCall
	for _, c := range f.calls {
		if !c.JSON {
			out = append(out, c)
		}
	}
	return out
}
