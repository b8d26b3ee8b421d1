package models

import (
	"strconv"
	"strings"
)

const (
	MinRating = 1
	MaxRating = 5

	// DefaultPageSize is the number of reviews per page when nothing is configured.
	DefaultPageSize = 10
)

// ReviewFilter narrows the reviews considered by a list query. Zero values mean
// "no constraint" for every field.
type ReviewFilter struct {
	Search string `json:"search,omitempty"`
	Author string `json:"author,omitempty"`
	Rating int    `json:"rating,omitempty"`
}

// NewReviewFilter builds a filter from raw query-string values. Blank values and a
// rating that is not an integer are treated as unset.
func NewReviewFilter(search, author, rating string) ReviewFilter {
	f := ReviewFilter{
		Search: strings.TrimSpace(search),
		Author: strings.TrimSpace(author),
	}
	if r, err := strconv.Atoi(strings.TrimSpace(rating)); err == nil && r > 0 {
		f.Rating = r
	}
	return f
}

// WithoutAuthor drops the author constraint; used for facet discovery.
func (f ReviewFilter) WithoutAuthor() ReviewFilter {
	f.Author = ""
	return f
}

// Matches applies the filter to a single review the same way the store does.
func (f ReviewFilter) Matches(r Review) bool {
	if f.Search != "" && !strings.Contains(r.Title, f.Search) {
		return false
	}
	if f.Author != "" && r.Author != f.Author {
		return false
	}
	if f.Rating != 0 && r.Rating != f.Rating {
		return false
	}
	return true
}

// Values encodes the filter and page as query-string parameters.
func (f ReviewFilter) Values(page int) map[string]string {
	v := map[string]string{"page": strconv.Itoa(page)}
	if f.Search != "" {
		v["search"] = f.Search
	}
	if f.Author != "" {
		v["author"] = f.Author
	}
	if f.Rating != 0 {
		v["rating"] = strconv.Itoa(f.Rating)
	}
	return v
}

// PageRequest is a 1-based page number with a fixed page size.
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest coerces any non-positive page to 1.
func NewPageRequest(page, pageSize int) PageRequest {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return PageRequest{Page: page, PageSize: pageSize}
}

// ParsePage converts a raw page parameter; anything that is not a positive
// integer becomes page 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (p PageRequest) Skip() int { return (p.Page - 1) * p.PageSize }
func (p PageRequest) Take() int { return p.PageSize }

// TotalPages is ceil(total / pageSize).
func (p PageRequest) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	size := int64(p.PageSize)
	return int((total + size - 1) / size)
}

// PageResult is the wire shape of GET /records.
type PageResult struct {
	Reviews       []Review `json:"data"`
	Pages         int      `json:"pages"`
	UniqueAuthors []string `json:"uniqueAuthors"`
}

// ReviewInput is the request body shared by create and update.
type ReviewInput struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
	Author  string `json:"author" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
}

// Apply copies the editable fields onto r, leaving ID and CreatedAt untouched.
func (in ReviewInput) Apply(r Review) Review {
	r.Title = in.Title
	r.Content = in.Content
	r.Author = in.Author
	r.Rating = in.Rating
	return r
}

type SingleResponse struct {
	Data Review `json:"data"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}
