package store

import "time"

type User struct {
	ID       string
	Name     string
	Email    string
	Image    string
	Role     string
	OfficeID string
}

type Opportunity struct {
	ID            string
	Title         string
	Description   string
	OriginalURL   string
	ShortLink     string
	CoverImageURL *string
	Deadline      time.Time
	OfficeID      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Resource struct {
	ID          string
	Title       string
	Description string
	OriginalURL string
	ShortLink   string
	Functions   []string
	Keywords    []string
	OfficeID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OpportunityPatch carries the mutable fields of an opportunity; nil fields
// are left unchanged. ID and office are immutable once assigned.
type OpportunityPatch struct {
	Title         *string
	Description   *string
	OriginalURL   *string
	ShortLink     *string
	CoverImageURL *string
	Deadline      *time.Time
}

type ResourcePatch struct {
	Title       *string
	Description *string
	OriginalURL *string
	ShortLink   *string
	Functions   *[]string
	Keywords    *[]string
}
