package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		page        int
		perPage     int
		wantPage    int
		wantPerPage int
	}{
		{"valid values pass through", 3, 25, 3, 25},
		{"zero page normalizes to one", 0, 25, 1, 25},
		{"negative page normalizes to one", -5, 25, 1, 25},
		{"zero per page uses default", 1, 0, 1, DefaultPerPage},
		{"per page capped at max", 1, 10000, 1, MaxPerPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.page, tt.perPage)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPerPage, p.PerPage)
		})
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 0, 7)
	for i := 0; i < 7; i++ {
		items = append(items, i)
	}

	t.Run("first page", func(t *testing.T) {
		r := Paginate(items, New(1, 3))
		assert.Equal(t, []int{0, 1, 2}, r.Items)
		assert.Equal(t, 7, r.Total)
		assert.Equal(t, 3, r.TotalPages)
	})

	t.Run("last partial page", func(t *testing.T) {
		r := Paginate(items, New(3, 3))
		assert.Equal(t, []int{6}, r.Items)
	})

	t.Run("page beyond end is empty", func(t *testing.T) {
		r := Paginate(items, New(10, 3))
		assert.Empty(t, r.Items)
		assert.Equal(t, 7, r.Total)
	})

	t.Run("empty input", func(t *testing.T) {
		r := Paginate([]int(nil), New(1, 3))
		assert.Empty(t, r.Items)
		assert.Equal(t, 0, r.TotalPages)
	})
}
