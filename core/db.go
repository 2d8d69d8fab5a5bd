package core

import (
	"context"
	"strings"
)

// Transactor runs a unit of work atomically.
// The transaction travels in the context handed to fn; repositories pick it up from there.
// Calling WithinTx with a context that already carries a transaction joins it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops orderings on fields not present in allowed.
func FilterOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	res := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		for _, field := range allowed {
			if strings.EqualFold(ord.Field, field) {
				res = append(res, DBOrdering{Field: field, Ascending: ord.Ascending})
				break
			}
		}
	}
	return res
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPageNumber keeps Offset far from overflowing.
	MaxPageNumber = 1_000_000
)

// Page describes an offset based window over a result set.
type Page struct {
	Number int `query:"page" json:"page"`
	Size   int `query:"page_size" json:"page_size"`
}

// Clean fixes out-of-range values.
func (p *Page) Clean() {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Number > MaxPageNumber {
		p.Number = MaxPageNumber
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }
func (p Page) Limit() int  { return p.Size }

// Window applies the page to a slice length, returning the [start, end) bounds.
func (p Page) Window(n int) (int, int) {
	p.Clean()
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Size
	if end > n {
		end = n
	}
	return start, end
}

// Chunks splits ids into pages of at most MaxPageSize elements.
func Chunks(ids []string) [][]string {
	var res [][]string
	for len(ids) > MaxPageSize {
		res = append(res, ids[:MaxPageSize])
		ids = ids[MaxPageSize:]
	}
	if len(ids) > 0 {
		res = append(res, ids)
	}
	return res
}
