package domain

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Pagination selects one page of a listing. Pages start at 1.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps page and page size into their valid ranges
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip
func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size after normalization
func (p Pagination) Limit() int {
	return p.Normalize().PageSize
}
