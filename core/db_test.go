package core_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edurpg/edurpg/core"
)

func TestPage_Clean(t *testing.T) {
	tests := []struct {
		name       string
		page       core.Page
		wantNumber int
		wantSize   int
	}{
		{name: "zero values", page: core.Page{}, wantNumber: 1, wantSize: core.DefaultPageSize},
		{name: "negative", page: core.Page{Number: -3, Size: -1}, wantNumber: 1, wantSize: core.DefaultPageSize},
		{name: "too large", page: core.Page{Number: math.MaxInt, Size: 1000}, wantNumber: core.MaxPageNumber, wantSize: core.MaxPageSize},
		{name: "in range", page: core.Page{Number: 3, Size: 10}, wantNumber: 3, wantSize: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.page
			p.Clean()
			assert.Equal(t, tt.wantNumber, p.Number)
			assert.Equal(t, tt.wantSize, p.Size)
			assert.GreaterOrEqual(t, p.Offset(), 0)
		})
	}
}

func TestPage_Window(t *testing.T) {
	tests := []struct {
		name      string
		page      core.Page
		n         int
		wantStart int
		wantEnd   int
	}{
		{name: "first page", page: core.Page{Number: 1, Size: 2}, n: 5, wantStart: 0, wantEnd: 2},
		{name: "last partial page", page: core.Page{Number: 3, Size: 2}, n: 5, wantStart: 4, wantEnd: 5},
		{name: "past the end", page: core.Page{Number: 9, Size: 2}, n: 5, wantStart: 5, wantEnd: 5},
		{name: "huge page number", page: core.Page{Number: math.MaxInt, Size: 100}, n: 5, wantStart: 5, wantEnd: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.page.Window(tt.n)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestChunks(t *testing.T) {
	ids := make([]string, core.MaxPageSize*2+1)
	chunks := core.Chunks(ids)
	if assert.Len(t, chunks, 3) {
		assert.Len(t, chunks[0], core.MaxPageSize)
		assert.Len(t, chunks[2], 1)
	}
	assert.Empty(t, core.Chunks(nil))
}
