// Package pagination parses page parameters from requests and wraps list
// results in a page envelope with next/previous links.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?page=&page_size= or ?limit=&offset=. Page numbers start
// at 1 and take precedence over offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("page_size"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 0 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Page is the 1-based page number Params points at.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Response wraps a paginated API response.
type Response[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// NewResponse builds the envelope. Links keep the request's other query
// parameters and replace page and page_size.
func NewResponse[T any](c echo.Context, results []T, total int, p Params) Response[T] {
	if results == nil {
		results = []T{}
	}
	r := Response[T]{Count: total, Results: results}
	if p.HasNext(total) {
		next := link(c, Params{Limit: p.Limit, Offset: p.NextOffset()})
		r.Next = &next
	}
	if p.HasPrevious() {
		prev := link(c, Params{Limit: p.Limit, Offset: p.PreviousOffset()})
		r.Previous = &prev
	}
	return r
}

func link(c echo.Context, p Params) string {
	u := *c.Request().URL
	q := u.Query()
	q.Del("offset")
	q.Del("limit")
	q.Set("page", strconv.Itoa(p.Page()))
	q.Set("page_size", strconv.Itoa(p.Limit))
	u.RawQuery = q.Encode()
	return (&url.URL{Path: u.Path, RawQuery: u.RawQuery}).String()
}
