package settings

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// Usage accumulates completion accounting across sessions.
type Usage struct {
	RequestCount      int `json:"requestCount"`
	TotalInputTokens  int `json:"totalInputTokens"`
	TotalOutputTokens int `json:"totalOutputTokens"`
}

// Theme values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// APIKey returns the configured credential, "" when none is set.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	var key string
	if _, err := s.Get(ctx, KeyAPIKey, &key); err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// SetAPIKey stores the credential.
func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	return s.Set(ctx, KeyAPIKey, strings.TrimSpace(key))
}

// Personas returns the ordered persona list.
func (s *Store) Personas(ctx context.Context) ([]Persona, error) {
	var ps []Persona
	if _, err := s.Get(ctx, KeyPersonas, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// SetPersonas replaces the persona list.
func (s *Store) SetPersonas(ctx context.Context, ps []Persona) error {
	if ps == nil {
		ps = []Persona{}
	}
	return s.Set(ctx, KeyPersonas, ps)
}

// AddPersona appends a persona. The first persona added becomes the default.
func (s *Store) AddPersona(ctx context.Context, name, prompt string) (Persona, error) {
	ps, err := s.Personas(ctx)
	if err != nil {
		return Persona{}, err
	}
	p := Persona{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Prompt:    prompt,
		IsDefault: len(ps) == 0,
	}
	if err := s.SetPersonas(ctx, append(ps, p)); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// RemovePersona deletes a persona by id and drops host pins pointing to it.
func (s *Store) RemovePersona(ctx context.Context, id string) error {
	ps, err := s.Personas(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(ps, func(p Persona) bool { return p.ID == id })
	if idx < 0 {
		return fmt.Errorf("persona %s: %w", id, ErrNotFound)
	}
	ps = slices.Delete(ps, idx, idx+1)
	if err := s.SetPersonas(ctx, ps); err != nil {
		return err
	}

	pins, err := s.HostPersonas(ctx)
	if err != nil {
		return err
	}
	changed := false
	for host, pid := range pins {
		if pid == id {
			delete(pins, host)
			changed = true
		}
	}
	if changed {
		return s.Set(ctx, KeyHostPersonas, pins)
	}
	return nil
}

// SelectDefault flags id as the only default persona.
func (s *Store) SelectDefault(ctx context.Context, id string) error {
	ps, err := s.Personas(ctx)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(ps, func(p Persona) bool { return p.ID == id }) {
		return fmt.Errorf("persona %s: %w", id, ErrNotFound)
	}
	for i := range ps {
		ps[i].IsDefault = ps[i].ID == id
	}
	return s.SetPersonas(ctx, ps)
}

// HostPersonas returns the host -> persona id overrides.
func (s *Store) HostPersonas(ctx context.Context) (map[string]string, error) {
	pins := map[string]string{}
	if _, err := s.Get(ctx, KeyHostPersonas, &pins); err != nil {
		return nil, err
	}
	if pins == nil {
		pins = map[string]string{}
	}
	return pins, nil
}

// PinHostPersona makes host use persona id regardless of the default.
func (s *Store) PinHostPersona(ctx context.Context, host, id string) error {
	pins, err := s.HostPersonas(ctx)
	if err != nil {
		return err
	}
	pins[host] = id
	return s.Set(ctx, KeyHostPersonas, pins)
}

// UnpinHost removes host's persona override.
func (s *Store) UnpinHost(ctx context.Context, host string) error {
	pins, err := s.HostPersonas(ctx)
	if err != nil {
		return err
	}
	delete(pins, host)
	return s.Set(ctx, KeyHostPersonas, pins)
}

// DisabledHosts returns the host patterns the assistant stays off.
func (s *Store) DisabledHosts(ctx context.Context) ([]string, error) {
	var hosts []string
	if _, err := s.Get(ctx, KeyDisabledHosts, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// DisableHost adds a host or glob pattern (e.g. "*.example.com").
func (s *Store) DisableHost(ctx context.Context, pattern string) error {
	if _, err := glob.Compile(pattern, '.'); err != nil {
		return fmt.Errorf("invalid host pattern '%s': %w", pattern, err)
	}
	hosts, err := s.DisabledHosts(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(hosts, pattern) {
		return nil
	}
	return s.Set(ctx, KeyDisabledHosts, append(hosts, pattern))
}

// EnableHost removes a pattern added with DisableHost.
func (s *Store) EnableHost(ctx context.Context, pattern string) error {
	hosts, err := s.DisabledHosts(ctx)
	if err != nil {
		return err
	}
	hosts = slices.DeleteFunc(hosts, func(h string) bool { return h == pattern })
	if hosts == nil {
		hosts = []string{}
	}
	return s.Set(ctx, KeyDisabledHosts, hosts)
}

// IsHostDisabled reports whether host matches any disabled pattern.
func (s *Store) IsHostDisabled(ctx context.Context, host string) (bool, error) {
	hosts, err := s.DisabledHosts(ctx)
	if err != nil {
		return false, err
	}
	return MatchHost(hosts, host), nil
}

// MatchHost reports whether host equals or glob-matches one of patterns.
// Invalid patterns only match literally.
func MatchHost(patterns []string, host string) bool {
	for _, pattern := range patterns {
		if pattern == host {
			return true
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			continue
		}
		if g.Match(host) {
			return true
		}
	}
	return false
}

// Usage returns the accumulated counters.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	var u Usage
	if _, err := s.Get(ctx, KeyUsage, &u); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// AddUsage counts one successful request with its token totals.
func (s *Store) AddUsage(ctx context.Context, inputTokens, outputTokens int) (Usage, error) {
	u, err := s.Usage(ctx)
	if err != nil {
		return Usage{}, err
	}
	u.RequestCount++
	u.TotalInputTokens += inputTokens
	u.TotalOutputTokens += outputTokens
	if err := s.Set(ctx, KeyUsage, u); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// ResetUsage zeroes the counters.
func (s *Store) ResetUsage(ctx context.Context) error {
	return s.Set(ctx, KeyUsage, Usage{})
}

// Theme returns "light" unless "dark" has been stored.
func (s *Store) Theme(ctx context.Context) (string, error) {
	theme := ThemeLight
	if _, err := s.Get(ctx, KeyTheme, &theme); err != nil {
		return "", err
	}
	return theme, nil
}

// ToggleTheme flips between light and dark and returns the new value.
func (s *Store) ToggleTheme(ctx context.Context) (string, error) {
	theme, err := s.Theme(ctx)
	if err != nil {
		return "", err
	}
	next := ThemeDark
	if theme == ThemeDark {
		next = ThemeLight
	}
	return next, s.Set(ctx, KeyTheme, next)
}
