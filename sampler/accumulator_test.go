package sampler

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

func TestAccumulator(t *testing.T) {
	assert := assert.New(t)

	m := testModel(8, 4)
	gen, err := rand.NewGenerator(3)
	require.NoError(t, err)
	st, err := model.NewInitialState(m, gen)
	require.NoError(t, err)

	acc := NewAccumulator(1, 2, false)
	assert.Error(acc.Append(1, 0, st))
	assert.NoError(acc.Append(0, 4, st))

	// draws are copies
	before := st.Beta.At(0, 0)
	st.Beta.Set(0, 0, before+1)
	st.Eta[0].Set(0, 0, 99)
	assert.NoError(acc.Append(1, 6, st))
	assert.Error(acc.Append(2, 8, st))

	s := acc.Finalize()
	assert.Equal(2, s.Len())
	assert.Equal([]int{4, 6}, s.Iteration)
	assert.Equal(before, s.Beta[0].At(0, 0))
	assert.Equal(before+1, s.Beta[1].At(0, 0))
	assert.NotEqual(99.0, s.Eta[0][0].At(0, 0))
	assert.Len(s.Lambda, 1)
	assert.Len(s.Lambda[0], 2)
	assert.Nil(s.Z)

	other, err := model.NewInitialState(testModel(8, 4, 2), gen)
	require.NoError(t, err)
	acc = NewAccumulator(1, 2, true)
	assert.True(errors.Is(acc.Append(0, 0, other), model.ErrShapeInconsistency))
	assert.NoError(acc.Append(0, 0, st))
	s = acc.Finalize()
	assert.Len(s.Z, 1)
	assert.Len(s.ID, 1)
}
