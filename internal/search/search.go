package search

// Kind identifies the listing kind in a search result.
type Kind string

const (
	KindOpportunity Kind = "opportunity"
	KindResource    Kind = "resource"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	ShortLink string `json:"shortLink"`
	OfficeID  string `json:"officeId"`
}

// Query describes a search over one office's listings.
type Query struct {
	Text     string
	Kind     Kind // empty = both kinds
	OfficeID string
	Limit    int
}

// Record is the data pushed into the index for either listing kind.
type Record struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	ShortLink   string `json:"shortLink"`
	OfficeID    string `json:"officeId"`
}

// Searcher can execute a listing search.
type Searcher interface {
	Search(q Query) ([]Result, error)
	Healthy() bool
}
