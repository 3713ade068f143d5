package database

import "gorm.io/gorm"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalized page request.
type Page struct {
	Page     int
	PageSize int
}

// NewPage clamps page to >= 1 and pageSize to [1, MaxPageSize], using
// DefaultPageSize when it is unset.
func NewPage(page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Page{Page: page, PageSize: pageSize}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate is a gorm scope applying the page's offset and limit.
func Paginate(p Page) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}
