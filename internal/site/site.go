// Package site describes the chat pages the controller knows how to drive.
package site

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// History describes how to extract prior conversation turns from a page.
type History struct {
	UserSelectors      []string `yaml:"user" json:"user"`
	AssistantSelectors []string `yaml:"assistant" json:"assistant"`
}

// Adapter carries the per-site selectors used by the controller.
// Selectors are tried in order; the first match wins.
type Adapter struct {
	Name                string   `yaml:"name" json:"name"`
	URL                 string   `yaml:"url" json:"url"`
	Hosts               []string `yaml:"hosts" json:"hosts"`
	InputSelectors      []string `yaml:"input" json:"input"`
	SendButtonSelectors []string `yaml:"send_button" json:"send_button"`
	History             History  `yaml:"history" json:"history"`
}

// Validate checks that an adapter can locate at least an input.
func (a Adapter) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("adapter name is required")
	}
	if len(a.Hosts) == 0 {
		return fmt.Errorf("adapter %s: at least one host is required", a.Name)
	}
	if len(a.InputSelectors) == 0 {
		return fmt.Errorf("adapter %s: at least one input selector is required", a.Name)
	}
	return nil
}

// MatchesHost reports whether host belongs to the adapter.
func (a Adapter) MatchesHost(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, h := range a.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Registry holds adapters by name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry seeded with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range Builtin() {
		r.adapters[a.Name] = a
	}
	return r
}

// Register adds or replaces an adapter. Empty selector lists in an override
// of a built-in adapter keep the built-in values.
func (r *Registry) Register(a Adapter) error {
	a.Name = strings.ToLower(strings.TrimSpace(a.Name))
	if prev, ok := r.adapters[a.Name]; ok {
		a = merge(prev, a)
	}
	if err := a.Validate(); err != nil {
		return err
	}
	r.adapters[a.Name] = a
	return nil
}

// Get returns the adapter with the given name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

// Match selects the adapter for a page URL.
func (r *Registry) Match(rawURL string) (Adapter, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Adapter{}, false
	}
	for _, a := range r.List() {
		if a.MatchesHost(u.Hostname()) {
			return a, true
		}
	}
	return Adapter{}, false
}

// List returns adapters sorted by name.
func (r *Registry) List() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func merge(base, override Adapter) Adapter {
	if override.URL != "" {
		base.URL = override.URL
	}
	if len(override.Hosts) > 0 {
		base.Hosts = override.Hosts
	}
	if len(override.InputSelectors) > 0 {
		base.InputSelectors = override.InputSelectors
	}
	if len(override.SendButtonSelectors) > 0 {
		base.SendButtonSelectors = override.SendButtonSelectors
	}
	if len(override.History.UserSelectors) > 0 {
		base.History.UserSelectors = override.History.UserSelectors
	}
	if len(override.History.AssistantSelectors) > 0 {
		base.History.AssistantSelectors = override.History.AssistantSelectors
	}
	return base
}
