package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	start := time.Date(2015, 2, 23, 11, 0, 0, 0, time.UTC)
	end := time.Date(2015, 2, 23, 17, 0, 0, 0, time.UTC)

	o := Occurrence{Start: end, End: start}
	assert.True(t, o.Normalize())
	assert.Equal(t, start, o.Start)
	assert.Equal(t, end, o.End)
	assert.Equal(t, 6*time.Hour, o.Duration())

	assert.False(t, o.Normalize())
	assert.Equal(t, start, o.Start)

	same := Occurrence{Start: start, End: start}
	assert.False(t, same.Normalize())
}
