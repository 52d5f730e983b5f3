// Package observe maintains the set of observed authors and their
// affiliation allow/deny lists.
package observe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matsen/citesync/internal/publication"
)

// Configuration errors returned while building a Registry.
var (
	// ErrDuplicateAuthorID indicates one external author id is claimed by two observations.
	ErrDuplicateAuthorID = errors.New("author id claimed by more than one observation")

	// ErrMissingAuthorIDs indicates an observation without any external author id.
	ErrMissingAuthorIDs = errors.New("observation has no author ids")
)

// Observation describes one real author, who may have several duplicate
// external author records.
type Observation struct {
	ExternalAuthorIDs []string
	Name              publication.Author
	Tags              []string // Attached to every accepted publication; order is display order
	Allow             map[string]bool
	Deny              map[string]bool
}

// NewObservation builds an Observation from plain lists. Duplicate ids and
// tags are dropped, keeping the first occurrence.
func NewObservation(name publication.Author, ids, allow, deny, tags []string) *Observation {
	return &Observation{
		ExternalAuthorIDs: dedupe(ids),
		Name:              name,
		Tags:              dedupe(tags),
		Allow:             toSet(allow),
		Deny:              toSet(deny),
	}
}

// AllowsAny reports whether any of the affiliations is on the allow list.
func (o *Observation) AllowsAny(affiliations []string) bool {
	for _, a := range affiliations {
		if o.Allow[a] {
			return true
		}
	}
	return false
}

// DeniesAny reports whether any of the affiliations is on the deny list.
func (o *Observation) DeniesAny(affiliations []string) bool {
	for _, a := range affiliations {
		if o.Deny[a] {
			return true
		}
	}
	return false
}

// Label returns a short human-readable identifier for log lines.
func (o *Observation) Label() string {
	if name := strings.TrimSpace(o.Name.String()); name != "" {
		return name
	}
	return strings.Join(o.ExternalAuthorIDs, ",")
}

// Registry maps external author ids to observations. It is built once at
// startup and is read-only afterwards.
type Registry struct {
	observations []*Observation
	byAuthorID   map[string]*Observation
}

// NewRegistry indexes the observations by every external author id they
// claim. It fails if an id is claimed by two different observations.
func NewRegistry(observations []*Observation) (*Registry, error) {
	r := &Registry{
		observations: make([]*Observation, 0, len(observations)),
		byAuthorID:   make(map[string]*Observation),
	}

	for i, o := range observations {
		if len(o.ExternalAuthorIDs) == 0 {
			return nil, fmt.Errorf("%w: entry %d (%s)", ErrMissingAuthorIDs, i+1, o.Label())
		}
		for _, id := range o.ExternalAuthorIDs {
			if prev, ok := r.byAuthorID[id]; ok && prev != o {
				return nil, fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateAuthorID, id, prev.Label(), o.Label())
			}
			r.byAuthorID[id] = o
		}
		r.observations = append(r.observations, o)
	}

	return r, nil
}

// Lookup returns the observation claiming the given external author id.
func (r *Registry) Lookup(authorID string) (*Observation, bool) {
	o, ok := r.byAuthorID[authorID]
	return o, ok
}

// AllIDs returns every observed external author id, sorted.
func (r *Registry) AllIDs() []string {
	ids := make([]string, 0, len(r.byAuthorID))
	for id := range r.byAuthorID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllObservations returns one entry per observation (not per alias id), in
// configuration order.
func (r *Registry) AllObservations() []*Observation {
	out := make([]*Observation, len(r.observations))
	copy(out, r.observations)
	return out
}

// Len returns the number of observations.
func (r *Registry) Len() int {
	return len(r.observations)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}
