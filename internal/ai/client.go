// Package ai implements the AI provider layer behind @claude/@chatgpt and
// the `tsk ai` commands.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Completer is a single provider's completion surface.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// UsageRecorder receives per-call accounting; the local state store
// implements it.
type UsageRecorder interface {
	Record(ctx context.Context, provider, model string, promptChars, responseChars int) error
}

// Service routes prompts to the configured providers and records usage.
type Service struct {
	providers map[string]Completer
	usage     UsageRecorder
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProvider registers a provider under its routing name
// ("claude", "chatgpt").
func WithProvider(name string, c Completer) Option {
	return func(s *Service) { s.providers[strings.ToLower(name)] = c }
}

// WithUsageRecorder attaches usage accounting.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(s *Service) { s.usage = u }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates an AI service.
func NewService(opts ...Option) *Service {
	s := &Service{providers: make(map[string]Completer)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers lists the configured routing names.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.providers))
	for name := range s.providers {
		out = append(out, name)
	}
	return out
}

// Complete routes a prompt to the named provider. Implements the operator
// environment's AI interface.
func (s *Service) Complete(ctx context.Context, provider, prompt string) (string, error) {
	c, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return "", fmt.Errorf("ai provider %q not configured", provider)
	}

	response, err := c.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", provider, err)
	}

	if s.usage != nil {
		if uerr := s.usage.Record(ctx, provider, c.Model(), len(prompt), len(response)); uerr != nil && s.logger != nil {
			s.logger.Warn("usage accounting failed", "provider", provider, "error", uerr)
		}
	}
	return response, nil
}

// Analyze asks the best available provider to review a TuskLang document
// for problems. Claude is preferred when configured.
func (s *Service) Analyze(ctx context.Context, source string) (string, error) {
	provider := "claude"
	if _, ok := s.providers[provider]; !ok {
		provider = "chatgpt"
	}
	prompt := "Review this TuskLang configuration for mistakes, unresolved references " +
		"and risky settings. Reply with a short list of findings.\n\n" + source
	return s.Complete(ctx, provider, prompt)
}
