package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaginationDefaults(t *testing.T) {
	p := ParsePagination(url.Values{})
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 0, p.Offset)
}

func TestParsePaginationClampsAndOffsets(t *testing.T) {
	p := ParsePagination(url.Values{"limit": {"500"}, "page": {"3"}})
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 200, p.Offset)

	p = ParsePagination(url.Values{"limit": {"-5"}, "page": {"0"}})
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, 1, p.Page)
}

func TestComputeMeta(t *testing.T) {
	p := ParsePagination(url.Values{"limit": {"10"}, "page": {"2"}})
	p.ComputeMeta(35)

	assert.Equal(t, 35, p.Total)
	assert.Equal(t, 4, p.TotalPages)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)

	last := ParsePagination(url.Values{"limit": {"10"}, "page": {"4"}})
	last.ComputeMeta(35)
	assert.False(t, last.HasNext)
	assert.True(t, last.HasPrev)
}
