package core

// PageMeta describes one page of an ordered collection.
type PageMeta struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate slices an ordered collection into one deterministic page.
// Invalid page or perPage values are normalized to 1; a page past the end
// yields an empty slice with HasNext=false. Pagination never fails.
func Paginate[T any](items []T, page, perPage int) ([]T, PageMeta) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	total := len(items)
	offset := (page - 1) * perPage

	var pageItems []T
	if offset < total {
		end := offset + perPage
		if end > total {
			end = total
		}
		pageItems = items[offset:end]
	}

	return pageItems, PageMeta{
		Page:        page,
		PerPage:     perPage,
		Total:       total,
		HasNext:     offset+perPage < total,
		HasPrevious: page > 1,
	}
}
