package scopus

import (
	"strconv"
	"strings"

	"github.com/matsen/citesync/internal/publication"
)

// MapAbstract converts an abstract record to a Publication. Missing optional
// fields are left empty.
func MapAbstract(r AbstractRetrieval) (*publication.Publication, error) {
	id, err := ParseScopusID(r.Coredata.Identifier)
	if err != nil {
		return nil, err
	}

	pub := &publication.Publication{
		ExternalID: id,
		DOI:        r.Coredata.DOI,
		Title:      strings.TrimSpace(r.Coredata.Title),
		Abstract:   strings.TrimSpace(r.Coredata.Description),
		Venue:      r.Coredata.PublicationName,
		Volume:     r.Coredata.Volume,
		Published:  parseCoverDate(r.Coredata.CoverDate),
	}

	if r.Authors != nil {
		pub.Authors = mapAuthors(r.Authors.Author)
	}
	if r.AuthKeywords != nil {
		for _, kw := range r.AuthKeywords.Keyword {
			if v := strings.TrimSpace(kw.Value); v != "" {
				pub.Keywords = append(pub.Keywords, v)
			}
		}
	}

	return pub, nil
}

// mapAuthors converts Scopus authors to publication authors. The same author
// can be listed once per affiliation group; entries are merged by author id
// keeping byline order.
func mapAuthors(authors []ScopusAuthor) []publication.AuthorAffiliation {
	out := make([]publication.AuthorAffiliation, 0, len(authors))
	index := make(map[string]int)

	for _, a := range authors {
		var affs []string
		for _, ref := range a.Affiliation {
			if ref.ID != "" {
				affs = append(affs, ref.ID)
			}
		}

		if i, ok := index[a.AuID]; ok && a.AuID != "" {
			out[i].AffiliationIDs = appendUnique(out[i].AffiliationIDs, affs...)
			continue
		}

		index[a.AuID] = len(out)
		out = append(out, publication.AuthorAffiliation{
			AuthorID:       a.AuID,
			Name:           authorName(a),
			AffiliationIDs: appendUnique(nil, affs...),
		})
	}
	return out
}

func authorName(a ScopusAuthor) publication.Author {
	if p := a.PreferredName; p != nil && p.Surname != "" {
		return publication.Author{First: p.GivenName, Last: p.Surname}
	}
	if a.Surname != "" {
		return publication.Author{First: a.GivenName, Last: a.Surname}
	}
	return publication.Author{Last: a.IndexedName}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// parseCoverDate parses the YYYY-MM-DD cover date; partial dates keep
// whatever parts are valid.
func parseCoverDate(s string) publication.Date {
	var d publication.Date
	if s == "" {
		return d
	}

	parts := strings.Split(s, "-")
	if y, err := strconv.Atoi(parts[0]); err == nil {
		d.Year = y
	}
	if len(parts) >= 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 1 && m <= 12 {
			d.Month = m
		}
	}
	if len(parts) >= 3 {
		if day, err := strconv.Atoi(parts[2]); err == nil && day >= 1 && day <= 31 {
			d.Day = day
		}
	}
	return d
}
