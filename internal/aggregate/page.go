package aggregate

// Page is one slice of a paginated listing. Page numbers start at 1.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Paginate slices items for the requested page. Out of range pages return
// no items; a page below 1 or a non-positive size are clamped.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size < 1 {
		size = 10
	}
	if page < 1 {
		page = 1
	}
	total := len(items)
	pages := (total + size - 1) / size
	p := Page[T]{Page: page, Size: size, Total: total, Pages: pages, Items: []T{}}
	start := (page - 1) * size
	if start >= total {
		return p
	}
	end := start + size
	if end > total {
		end = total
	}
	p.Items = append(p.Items, items[start:end]...)
	return p
}
