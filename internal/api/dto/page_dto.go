package dto

import "github.com/spec-kit/issue-service/internal/service"

// PageResponse is a paginated listing.
type PageResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// MapPage converts a service page item by item.
func MapPage[S, T any](page *service.Page[S], fn func(S) T) PageResponse[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, fn(item))
	}
	return PageResponse[T]{Items: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize}
}
