// Package publication defines the canonical publication record fetched from
// the citation database.
package publication

import (
	"fmt"
	"strings"
)

// Publication is a candidate publication as returned by the external source.
// It is constructed fresh on every fetch and treated as immutable afterwards.
type Publication struct {
	// Identity
	ExternalID string `json:"external_id"` // Scopus id (digits only)
	DOI        string `json:"doi,omitempty"`

	// Authorship, in byline order
	Authors []AuthorAffiliation `json:"authors"`

	// Works citing this one; may be incomplete at fetch time
	CitingExternalIDs []string `json:"citing_external_ids,omitempty"`

	// Bibliographic passthrough
	Title     string   `json:"title"`
	Abstract  string   `json:"abstract,omitempty"`
	Venue     string   `json:"venue,omitempty"`
	Volume    string   `json:"volume,omitempty"`
	Published Date     `json:"published"`
	Keywords  []string `json:"keywords,omitempty"`
}

// Date represents a publication date with optional month and day.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"` // 1-12, 0 if unknown
	Day   int `json:"day,omitempty"`   // 1-31, 0 if unknown
}

// String formats the date as YYYY, YYYY-MM or YYYY-MM-DD depending on
// which parts are known.
func (d Date) String() string {
	switch {
	case d.Year == 0:
		return ""
	case d.Month == 0:
		return fmt.Sprintf("%04d", d.Year)
	case d.Day == 0:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}

// AllAffiliations returns the union of every author's affiliation ids in
// first-seen order.
func (p *Publication) AllAffiliations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range p.Authors {
		for _, id := range a.AffiliationIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// AuthorNames returns the display names of all authors.
func (p *Publication) AuthorNames() []string {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if s := strings.TrimSpace(a.Name.String()); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// Clone returns a deep copy so cached records cannot be mutated by callers.
func (p *Publication) Clone() *Publication {
	c := *p
	c.Authors = make([]AuthorAffiliation, len(p.Authors))
	for i, a := range p.Authors {
		a.AffiliationIDs = append([]string(nil), a.AffiliationIDs...)
		c.Authors[i] = a
	}
	c.CitingExternalIDs = append([]string(nil), p.CitingExternalIDs...)
	c.Keywords = append([]string(nil), p.Keywords...)
	return &c
}
