// Package classify partitions candidate publications by the affiliation
// allow/deny lists of their observed authors.
package classify

import (
	"github.com/matsen/citesync/internal/observe"
	"github.com/matsen/citesync/internal/publication"
)

// Decision is the outcome for a single publication.
type Decision int

const (
	Undecided Decision = iota
	Allow
	Deny
)

// String returns the lowercase name of the decision.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "undecided"
	}
}

// Lookup resolves an external author id to its observation.
// *observe.Registry satisfies it.
type Lookup interface {
	Lookup(authorID string) (*observe.Observation, bool)
}

// Result holds the three partitions. Each input appears in exactly one of
// them and relative input order is kept within each.
type Result struct {
	Allow     []*publication.Publication
	Deny      []*publication.Publication
	Undecided []*publication.Publication
}

// Classifier applies observation lists to publications.
type Classifier struct {
	observed Lookup
}

// New creates a Classifier backed by the given lookup.
func New(observed Lookup) *Classifier {
	return &Classifier{observed: observed}
}

// Decide classifies one publication.
//
// Each observed author's lists are checked against that author's own
// affiliations on this publication. The first allow hit accepts the
// publication immediately. A deny hit only counts once every author has been
// scanned without an allow hit.
func (c *Classifier) Decide(p *publication.Publication) Decision {
	if p == nil {
		return Undecided
	}
	denied := false
	for _, a := range p.Authors {
		o, ok := c.observed.Lookup(a.AuthorID)
		if !ok {
			continue
		}
		if o.AllowsAny(a.AffiliationIDs) {
			return Allow
		}
		if o.DeniesAny(a.AffiliationIDs) {
			denied = true
		}
	}
	if denied {
		return Deny
	}
	return Undecided
}

// Classify partitions the candidates. Every entry lands in exactly one
// list; a nil entry has no data to match and is undecided.
func (c *Classifier) Classify(candidates []*publication.Publication) Result {
	var r Result
	for _, p := range candidates {
		switch c.Decide(p) {
		case Allow:
			r.Allow = append(r.Allow, p)
		case Deny:
			r.Deny = append(r.Deny, p)
		default:
			r.Undecided = append(r.Undecided, p)
		}
	}
	return r
}

// KeywordsFor returns the tags of every distinct observation whose author
// appears on the publication, deduplicated in first-seen order.
func (c *Classifier) KeywordsFor(p *publication.Publication) []string {
	seenObs := make(map[*observe.Observation]bool)
	seenTag := make(map[string]bool)
	var tags []string
	for _, a := range p.Authors {
		o, ok := c.observed.Lookup(a.AuthorID)
		if !ok || seenObs[o] {
			continue
		}
		seenObs[o] = true
		for _, t := range o.Tags {
			if !seenTag[t] {
				seenTag[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}
