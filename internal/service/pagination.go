package service

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PageRequest is a 1-based page selector.
type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p PageRequest) limitOffset() (int, int) {
	n := p.normalize()
	return n.PageSize, (n.Page - 1) * n.PageSize
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

func newPage[T any](items []T, total int, req PageRequest) *Page[T] {
	n := req.normalize()
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Page: n.Page, PageSize: n.PageSize}
}
