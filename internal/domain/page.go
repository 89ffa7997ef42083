package domain

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a zero-based offset window over a listing
type Page struct {
	Number int
	Size   int
}

// NewPage clamps the requested window to sane bounds.
func NewPage(number, size int) Page {
	if number < 0 {
		number = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Limit() int {
	if p.Size <= 0 {
		return DefaultPageSize
	}
	return p.Size
}

func (p Page) Offset() int {
	if p.Number < 0 {
		return 0
	}
	return p.Number * p.Limit()
}
