package publication

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the payload of a cached Record.
type Kind string

const (
	KindPublication Kind = "publication"
	KindAuthorIDs   Kind = "author-ids"
)

// ErrUnknownKind is returned when decoding a record whose kind is not one of
// the known kinds.
var ErrUnknownKind = errors.New("unknown record kind")

// Record is a tagged envelope used when records are serialized to a cache.
type Record struct {
	Kind        Kind         `json:"kind"`
	Publication *Publication `json:"publication,omitempty"`
	IDs         []string     `json:"ids,omitempty"`
}

// EncodePublication wraps a publication in a Record and marshals it.
func EncodePublication(p *Publication) ([]byte, error) {
	return json.Marshal(Record{Kind: KindPublication, Publication: p})
}

// EncodeAuthorIDs wraps an author's publication ids in a Record and marshals it.
func EncodeAuthorIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(Record{Kind: KindAuthorIDs, IDs: ids})
}

// DecodeRecord unmarshals a Record and checks that its kind is known and its
// payload matches the kind.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}

	switch r.Kind {
	case KindPublication:
		if r.Publication == nil {
			return nil, fmt.Errorf("decoding record: %s record without payload", r.Kind)
		}
	case KindAuthorIDs:
		if r.IDs == nil {
			r.IDs = []string{}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}

	return &r, nil
}
