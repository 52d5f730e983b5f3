// Package scopus provides a client for the Elsevier Scopus Abstract Retrieval
// and Search APIs.
package scopus

import (
	"bytes"
	"encoding/json"
)

// oneOrMany decodes a JSON value that the Elsevier APIs emit either as a
// single object or as an array of objects.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

// AbstractResponse is the envelope returned by the Abstract Retrieval API.
type AbstractResponse struct {
	Retrieval AbstractRetrieval `json:"abstracts-retrieval-response"`
}

// AbstractRetrieval holds the parts of an abstract record that we map.
type AbstractRetrieval struct {
	Coredata     Coredata     `json:"coredata"`
	Authors      *AuthorGroup `json:"authors,omitempty"`
	AuthKeywords *KeywordList `json:"authkeywords,omitempty"`
}

// Coredata is the bibliographic core of an abstract record.
type Coredata struct {
	Identifier      string `json:"dc:identifier"` // SCOPUS_ID:85...
	EID             string `json:"eid,omitempty"`
	Title           string `json:"dc:title"`
	Description     string `json:"dc:description,omitempty"`
	DOI             string `json:"prism:doi,omitempty"`
	PublicationName string `json:"prism:publicationName,omitempty"`
	Volume          string `json:"prism:volume,omitempty"`
	CoverDate       string `json:"prism:coverDate,omitempty"` // YYYY-MM-DD
	CitedByCount    string `json:"citedby-count,omitempty"`
}

// AuthorGroup wraps the author list.
type AuthorGroup struct {
	Author oneOrMany[ScopusAuthor] `json:"author"`
}

// ScopusAuthor is one author in byline order.
type ScopusAuthor struct {
	AuID          string                    `json:"@auid"`
	Seq           string                    `json:"@seq,omitempty"`
	GivenName     string                    `json:"ce:given-name,omitempty"`
	Surname       string                    `json:"ce:surname,omitempty"`
	IndexedName   string                    `json:"ce:indexed-name,omitempty"`
	PreferredName *PreferredName            `json:"preferred-name,omitempty"`
	Affiliation   oneOrMany[AffiliationRef] `json:"affiliation,omitempty"`
}

// PreferredName is the author's preferred name form.
type PreferredName struct {
	GivenName string `json:"ce:given-name,omitempty"`
	Surname   string `json:"ce:surname,omitempty"`
}

// AffiliationRef points at an affiliation record.
type AffiliationRef struct {
	ID string `json:"@id"`
}

// KeywordList holds author keywords.
type KeywordList struct {
	Keyword oneOrMany[Keyword] `json:"author-keyword"`
}

// Keyword is one author keyword; the text lives under "$".
type Keyword struct {
	Value string `json:"$"`
}

// SearchResponse is the envelope returned by the Search API.
type SearchResponse struct {
	Results SearchResults `json:"search-results"`
}

// SearchResults is one page of search results. Counts arrive as strings.
type SearchResults struct {
	TotalResults string        `json:"opensearch:totalResults"`
	StartIndex   string        `json:"opensearch:startIndex"`
	ItemsPerPage string        `json:"opensearch:itemsPerPage"`
	Entry        []SearchEntry `json:"entry"`
}

// SearchEntry is one search hit. An empty result set is reported as a single
// entry carrying only Error.
type SearchEntry struct {
	Identifier string `json:"dc:identifier,omitempty"`
	EID        string `json:"eid,omitempty"`
	Error      string `json:"error,omitempty"`
}

// serviceError is the error body returned on non-2xx responses.
type serviceError struct {
	ServiceError struct {
		Status struct {
			StatusCode string `json:"statusCode"`
			StatusText string `json:"statusText"`
		} `json:"status"`
	} `json:"service-error"`
}
