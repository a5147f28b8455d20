// Package teams holds the recipient reference data used by share steps.
// Sets are loaded from configuration once at startup and never mutated.
package teams

import (
	"sort"
	"strings"
)

// Member identifies one collaborator on the portals.
type Member struct {
	Name   string `yaml:"name" json:"name"`
	Email  string `yaml:"email" json:"email"`
	UserID string `yaml:"user_id" json:"userId,omitempty"`
}

// Set is a named group of members.
type Set struct {
	Name    string
	Members []Member
}

// Registry provides lookup over the configured sets.
type Registry struct {
	sets map[string]Set
}

// NewRegistry builds a registry from the configured team map. Member slices
// are copied so later mutation of the input cannot leak in.
func NewRegistry(cfg map[string][]Member) *Registry {
	sets := make(map[string]Set, len(cfg))
	for name, members := range cfg {
		copied := make([]Member, len(members))
		copy(copied, members)
		sets[name] = Set{Name: name, Members: copied}
	}
	return &Registry{sets: sets}
}

// Lookup returns the set for name, case-insensitively.
func (r *Registry) Lookup(name string) (Set, bool) {
	if set, ok := r.sets[name]; ok {
		return set, true
	}
	for key, set := range r.sets {
		if strings.EqualFold(key, name) {
			return set, true
		}
	}
	return Set{}, false
}

// Names lists configured team names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expand resolves team names and explicit members into a single recipient
// list, deduplicated by email. Unknown team names are returned in the second
// value rather than treated as an error; the caller decides severity.
func (r *Registry) Expand(teamNames []string, explicit []Member) ([]Member, []string) {
	var out []Member
	var unknown []string
	seen := make(map[string]bool)

	add := func(m Member) {
		key := strings.ToLower(m.Email)
		if key == "" {
			key = strings.ToLower(m.Name)
		}
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, m)
	}

	for _, name := range teamNames {
		set, ok := r.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		for _, m := range set.Members {
			add(m)
		}
	}
	for _, m := range explicit {
		add(m)
	}
	return out, unknown
}
