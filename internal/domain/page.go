package domain

// PageRequest selects a 1-based page of a listing.
type PageRequest struct {
	Number int
	Size   int
}

// Offset is the number of rows that precede the page.
func (p PageRequest) Offset() int {
	return (p.Number - 1) * p.Size
}

// Page is one slice of a longer listing. Total counts the whole listing.
type Page[T any] struct {
	Items  []T
	Number int
	Size   int
	Total  int
}

// HasNext reports whether rows remain after this page.
func (p Page[T]) HasNext() bool {
	return p.Number*p.Size < p.Total
}

// Paginate cuts the requested page out of a listing held in memory.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	page := Page[T]{Items: []T{}, Number: req.Number, Size: req.Size, Total: len(items)}
	from := min(req.Offset(), len(items))
	to := min(from+req.Size, len(items))
	page.Items = append(page.Items, items[from:to]...)
	return page
}
