package settings

import "errors"

// ErrNotFound is returned when an id does not name a stored item.
var ErrNotFound = errors.New("not found")

// Persona is a named system-prompt profile.
type Persona struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	IsDefault bool   `json:"isDefault"`
}

// ResolvePersona picks the persona for a request: the one named by
// selectedID, else the flagged default, else the first. ok is false only
// when personas is empty.
func ResolvePersona(personas []Persona, selectedID string) (p Persona, ok bool) {
	if len(personas) == 0 {
		return Persona{}, false
	}
	if selectedID != "" {
		for _, p := range personas {
			if p.ID == selectedID {
				return p, true
			}
		}
	}
	for _, p := range personas {
		if p.IsDefault {
			return p, true
		}
	}
	return personas[0], true
}
