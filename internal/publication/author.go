package publication

// Author is a display name for an author.
type Author struct {
	First string `json:"first" yaml:"first"` // First/given name(s)
	Last  string `json:"last" yaml:"last"`   // Last/family name
}

// String formats the author as "First Last".
func (a Author) String() string {
	if a.First != "" {
		return a.First + " " + a.Last
	}
	return a.Last
}

// AuthorAffiliation is one author on one publication. An author may carry
// different affiliations on different papers, so the affiliation ids are
// recorded per publication rather than per author.
type AuthorAffiliation struct {
	AuthorID       string   `json:"author_id"`
	Name           Author   `json:"name"`
	AffiliationIDs []string `json:"affiliation_ids,omitempty"`
}
