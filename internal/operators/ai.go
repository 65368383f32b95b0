package operators

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterFunc("claude", opClaude)
	RegisterFunc("chatgpt", opChatGPT)
}

// opClaude implements @claude(prompt) through the configured AI client.
func opClaude(ctx context.Context, call Call, env *Env) (any, error) {
	return aiComplete(ctx, call, env, "claude")
}

// opChatGPT implements @chatgpt(prompt).
func opChatGPT(ctx context.Context, call Call, env *Env) (any, error) {
	return aiComplete(ctx, call, env, "chatgpt")
}

func aiComplete(ctx context.Context, call Call, env *Env, provider string) (any, error) {
	if env.AI == nil {
		return nil, NotConfigured("ai client")
	}
	prompt, err := env.EvalParamString(ctx, strings.TrimSpace(call.RawArgs))
	if err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, fmt.Errorf("expected @%s(prompt)", provider)
	}
	return env.AI.Complete(ctx, provider, prompt)
}
