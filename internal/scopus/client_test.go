package scopus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/matsen/citesync/internal/publication"
)

const abstractJSON = `{
  "abstracts-retrieval-response": {
    "coredata": {
      "dc:identifier": "SCOPUS_ID:85000000001",
      "dc:title": "  Phylogenetic inference at scale ",
      "dc:description": "We infer trees.",
      "prism:doi": "10.1000/xyz",
      "prism:publicationName": "Systematic Biology",
      "prism:volume": "71",
      "prism:coverDate": "2022-03-15"
    },
    "authors": {
      "author": [
        {"@auid": "111", "ce:given-name": "Ada", "ce:surname": "Lovelace", "affiliation": {"@id": "60001"}},
        {"@auid": "222", "ce:indexed-name": "Babbage C.", "affiliation": [{"@id": "60002"}, {"@id": "60003"}]},
        {"@auid": "111", "ce:given-name": "Ada", "ce:surname": "Lovelace", "affiliation": {"@id": "60004"}}
      ]
    },
    "authkeywords": {"author-keyword": {"$": "phylogenetics"}}
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
		WithRateLimit(1000),
		WithRetries(2, func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}

func TestFetchPublication(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/abstract/scopus_id/85000000001" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-ELS-APIKey"); got != "test-key" {
			t.Errorf("X-ELS-APIKey = %q, want test-key", got)
		}
		if got := r.Header.Get("X-ELS-Insttoken"); got != "" {
			t.Errorf("X-ELS-Insttoken = %q, want empty", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, abstractJSON)
	})

	got, err := client.FetchPublication(context.Background(), "2-s2.0-85000000001")
	if err != nil {
		t.Fatalf("FetchPublication() error = %v", err)
	}

	want := &publication.Publication{
		ExternalID: "85000000001",
		DOI:        "10.1000/xyz",
		Title:      "Phylogenetic inference at scale",
		Abstract:   "We infer trees.",
		Venue:      "Systematic Biology",
		Volume:     "71",
		Published:  publication.Date{Year: 2022, Month: 3, Day: 15},
		Keywords:   []string{"phylogenetics"},
		Authors: []publication.AuthorAffiliation{
			{AuthorID: "111", Name: publication.Author{First: "Ada", Last: "Lovelace"}, AffiliationIDs: []string{"60001", "60004"}},
			{AuthorID: "222", Name: publication.Author{Last: "Babbage C."}, AffiliationIDs: []string{"60002", "60003"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchPublication() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchPublication_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		check     func(error) bool
		wantCalls int32
	}{
		{"not found", http.StatusNotFound, IsNotFound, 1},
		{"unauthorized", http.StatusUnauthorized, IsAuthError, 1},
		{"forbidden", http.StatusForbidden, IsAuthError, 1},
		{"rate limited retries", http.StatusTooManyRequests, IsRateLimited, 3},
		{"server error retries", http.StatusServiceUnavailable, IsTransient, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"service-error":{"status":{"statusCode":"X","statusText":"nope"}}}`)
			})

			_, err := client.FetchPublication(context.Background(), "85000000001")
			if err == nil {
				t.Fatal("FetchPublication() error = nil")
			}
			if !tt.check(err) {
				t.Errorf("FetchPublication() error = %v, wrong classification", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("server calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestFetchPublication_RecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, abstractJSON)
	})

	got, err := client.FetchPublication(context.Background(), "85000000001")
	if err != nil {
		t.Fatalf("FetchPublication() error = %v", err)
	}
	if got.ExternalID != "85000000001" {
		t.Errorf("ExternalID = %q", got.ExternalID)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestFetchPublication_InvalidID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an invalid id")
	})
	if _, err := client.FetchPublication(context.Background(), "not-an-id"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("FetchPublication() error = %v, want ErrInvalidID", err)
	}
}

// searchHandler serves total results split over pages of DefaultPageSize.
func searchHandler(t *testing.T, wantQuery string, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/search/scopus" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != wantQuery {
			t.Errorf("query = %q, want %q", got, wantQuery)
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))

		fmt.Fprintf(w, `{"search-results":{"opensearch:totalResults":"%d","entry":[`, total)
		if total == 0 {
			fmt.Fprint(w, `{"@_fa":"true","error":"Result set was empty"}`)
		}
		for i := start; i < total && i < start+DefaultPageSize; i++ {
			if i > start {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"dc:identifier":"SCOPUS_ID:%d"}`, 1000+i)
		}
		fmt.Fprint(w, `]}}`)
	}
}

func TestFetchAuthorPublicationIDs_Paginates(t *testing.T) {
	client := newTestClient(t, searchHandler(t, "AU-ID(7004212771)", 30))

	ids, err := client.FetchAuthorPublicationIDs(context.Background(), "7004212771")
	if err != nil {
		t.Fatalf("FetchAuthorPublicationIDs() error = %v", err)
	}
	if len(ids) != 30 {
		t.Fatalf("got %d ids, want 30", len(ids))
	}
	if ids[0] != "1000" || ids[29] != "1029" {
		t.Errorf("ids[0], ids[29] = %s, %s", ids[0], ids[29])
	}
}

func TestFetchCitingIDs_EmptyResultSet(t *testing.T) {
	client := newTestClient(t, searchHandler(t, "REFEID(2-s2.0-85000000001)", 0))

	ids, err := client.FetchCitingIDs(context.Background(), "SCOPUS_ID:85000000001")
	if err != nil {
		t.Fatalf("FetchCitingIDs() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("FetchCitingIDs() = %v, want empty", ids)
	}
}

func TestParseScopusID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"85000000001", "85000000001", false},
		{"SCOPUS_ID:85000000001", "85000000001", false},
		{"2-s2.0-85000000001", "85000000001", false},
		{"  85000000001\n", "85000000001", false},
		{"", "", true},
		{"SCOPUS_ID:", "", true},
		{"10.1000/xyz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScopusID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScopusID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseScopusID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCoverDate(t *testing.T) {
	tests := []struct {
		input string
		want  publication.Date
	}{
		{"2022-03-15", publication.Date{Year: 2022, Month: 3, Day: 15}},
		{"2022-03", publication.Date{Year: 2022, Month: 3}},
		{"2022", publication.Date{Year: 2022}},
		{"2022-13-40", publication.Date{Year: 2022}},
		{"", publication.Date{}},
	}
	for _, tt := range tests {
		if got := parseCoverDate(tt.input); got != tt.want {
			t.Errorf("parseCoverDate(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}
