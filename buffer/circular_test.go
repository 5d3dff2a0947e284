package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularFloat(t *testing.T) {
	assert := assert.New(t)

	cf := NewCircularFloat(4)
	assert.Equal(4, cf.BufSize)
	assert.Equal(0, cf.Count)
	_, ok := cf.Oldest()
	assert.False(ok)
	_, ok = cf.Newest()
	assert.False(ok)
	assert.Equal(0.0, cf.Rate(1))

	cf.Add(1)
	cf.Add(2)
	cf.Add(3)
	assert.Equal(3, cf.Count)
	assert.Equal([]float64{1, 2, 3}, cf.Values())

	cf.Add(4)
	cf.Add(5)
	cf.Add(6)
	assert.Equal(4, cf.Count)
	assert.Equal(int64(6), cf.TotalSeen)
	assert.Equal([]float64{3, 4, 5, 6}, cf.Values())

	old, ok := cf.Oldest()
	assert.True(ok)
	assert.Equal(3.0, old)
	nw, _ := cf.Newest()
	assert.Equal(6.0, nw)
}

func TestCircularFloatRate(t *testing.T) {
	assert := assert.New(t)

	// readings every half second, ten iterations apart
	cf := NewCircularFloat(1)
	assert.Equal(2, cf.BufSize)
	cf.Add(0.5)
	assert.Equal(0.0, cf.Rate(10))
	cf.Add(1.0)
	assert.InDelta(20.0, cf.Rate(10), 1e-12)

	cf = NewCircularFloat(8)
	for k := 0; k < 20; k++ {
		cf.Add(float64(k) * 0.25)
	}
	assert.InDelta(40.0, cf.Rate(10), 1e-9)

	cf = NewCircularFloat(3)
	cf.Add(2)
	cf.Add(2)
	assert.Equal(0.0, cf.Rate(1))
}
