// Package dto holds the request and response bodies of the HTTP API.
// Requests convert themselves into reconcile inputs; business validation
// stays in the domain.
package dto

import "time"

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// NewListResponse builds a ListResponse; nil becomes an empty list.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: len(items)}
}

// dateOr returns d, or now when d is zero.
func dateOr(d time.Time, now time.Time) time.Time {
	if d.IsZero() {
		return now
	}
	return d
}
