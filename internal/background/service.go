// Package background is the privileged side of the assistant: it owns the
// API key and persona settings, talks to the completion provider and
// answers every request with exactly one Response.
package background

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/v0xg/ohmycomment/internal/ai"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/settings"
)

// ErrNoAPIKey is reported before any network traffic when no key is set.
var ErrNoAPIKey = errors.New("API key is not configured. Please set it with 'ohmycomment key set' or OHMYCOMMENT_API_KEY.")

// NoReply is returned when the provider answers with no usable text.
const NoReply = "No reply generated."

// Request asks for text to put into one editable field.
type Request struct {
	ID           string `json:"id,omitempty"`
	Host         string `json:"host,omitempty"`
	SystemPrompt string `json:"prompt,omitempty"`
	PersonaID    string `json:"personaId,omitempty"`
	PageMarkdown string `json:"domContent"`
	CurrentValue string `json:"currentValue"`
}

// Response carries either a reply or an error message, never both.
type Response struct {
	ID    string `json:"id,omitempty"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Text is what the user gets to see: the reply, or the error prefixed
// with "Error: ".
func (r Response) Text() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return r.Reply
}

// Settings is the part of the settings store the service reads and writes.
type Settings interface {
	APIKey(ctx context.Context) (string, error)
	Personas(ctx context.Context) ([]settings.Persona, error)
	HostPersonas(ctx context.Context) (map[string]string, error)
	AddUsage(ctx context.Context, inputTokens, outputTokens int) (settings.Usage, error)
}

// ProviderFactory builds a provider for the given API key.
type ProviderFactory func(apiKey string) (ai.Provider, error)

// Service handles completion requests.
type Service struct {
	settings    Settings
	newProvider ProviderFactory
	debug       *debuglog.Log
	log         zerolog.Logger

	// FallbackAPIKey is used when the store holds no key.
	FallbackAPIKey string
}

// NewService wires a service. debug may be nil.
func NewService(store Settings, newProvider ProviderFactory, debug *debuglog.Log, log zerolog.Logger) *Service {
	return &Service{
		settings:    store,
		newProvider: newProvider,
		debug:       debug,
		log:         log.With().Str("component", "background").Logger(),
	}
}

// Handle answers req. Failures are reported in Response.Error.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	if req.ID == "" {
		req.ID = xid.New().String()
	}
	log := s.log.With().Str("request_id", req.ID).Str("host", req.Host).Logger()
	log.Info().Int("markdown_bytes", len(req.PageMarkdown)).Msg("generate request received")
	s.record(debuglog.KindRequest, req)

	resp := Response{ID: req.ID}
	reply, err := s.generate(ctx, req, log)
	if err != nil {
		log.Error().Err(err).Msg("generate failed")
		resp.Error = err.Error()
	} else {
		resp.Reply = reply
	}

	s.record(debuglog.KindResponse, resp)
	return resp
}

func (s *Service) generate(ctx context.Context, req Request, log zerolog.Logger) (string, error) {
	key, err := s.settings.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = strings.TrimSpace(s.FallbackAPIKey)
	}
	if key == "" {
		return "", ErrNoAPIKey
	}

	persona, err := s.personaText(ctx, req)
	if err != nil {
		return "", err
	}

	provider, err := s.newProvider(key)
	if err != nil {
		return "", err
	}

	prompt := ai.BuildPrompt(ai.PromptParts{
		System:       req.SystemPrompt,
		Persona:      persona,
		PageMarkdown: req.PageMarkdown,
		CurrentValue: req.CurrentValue,
	})

	comp, err := provider.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(comp.Text)
	if text == "" {
		text = NoReply
	}

	in, out := comp.InputTokens, comp.OutputTokens
	if in == 0 {
		in = ai.EstimateTokens(provider.Model(), prompt)
	}
	if out == 0 && comp.Text != "" {
		out = ai.EstimateTokens(provider.Model(), comp.Text)
	}
	usage, err := s.settings.AddUsage(ctx, in, out)
	if err != nil {
		log.Warn().Err(err).Msg("usage not recorded")
	} else {
		log.Debug().
			Int("input_tokens", in).
			Int("output_tokens", out).
			Int("request_count", usage.RequestCount).
			Msg("usage updated")
	}

	return text, nil
}

// personaText resolves the persona for req: an explicit id, then the host
// override, then the default, then the first persona.
func (s *Service) personaText(ctx context.Context, req Request) (string, error) {
	personas, err := s.settings.Personas(ctx)
	if err != nil {
		return "", err
	}
	if len(personas) == 0 {
		return "", nil
	}

	selected := req.PersonaID
	if !hasPersona(personas, selected) && req.Host != "" {
		pins, err := s.settings.HostPersonas(ctx)
		if err != nil {
			return "", err
		}
		selected = pins[req.Host]
	}

	p, _ := settings.ResolvePersona(personas, selected)
	return p.Prompt, nil
}

func hasPersona(ps []settings.Persona, id string) bool {
	if id == "" {
		return false
	}
	for _, p := range ps {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) record(kind debuglog.Kind, content any) {
	if s.debug != nil {
		s.debug.Add(kind, content)
	}
}
