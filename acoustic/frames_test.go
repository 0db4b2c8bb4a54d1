package acoustic

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrames(t *testing.T) {
	frames, err := ReadFrames(strings.NewReader("# mfcc\n1 2.5\n\n-3 4e-1\n"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []float64{1, 2.5}, frames[0].Values)
	assert.Equal(t, []float64{-3, 0.4}, frames[1].Values)
	assert.Equal(t, 1, frames[1].Index)

	var buf bytes.Buffer
	require.NoError(t, WriteFrames(&buf, frames))
	assert.Equal(t, "1 2.5\n-3 0.4\n", buf.String())
}

func TestReadFramesErrors(t *testing.T) {
	_, err := ReadFrames(strings.NewReader("1 2\n3\n"))
	assert.ErrorContains(t, err, "line 2")
	_, err = ReadFrames(strings.NewReader("1 x\n"))
	assert.ErrorContains(t, err, "line 1")
	_, err = ReadFramesFile("/nonexistent/frames.txt")
	assert.Error(t, err)
}

func TestSampleFrames(t *testing.T) {
	m, err := NewRandomModel([]string{SilenceName, "a"}, SynthOptions{Dim: 2, NumMix: 1})
	require.NoError(t, err)
	a, _ := m.Units().Lookup("a")
	h, err := m.LookupNearestHMM(a, Single, true)
	require.NoError(t, err)

	frames, err := SampleFrames([]*HMM{h}, 2, 0, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, frames, 2*NumEmittingStates)
	for i, f := range frames {
		gm, ok := unwrapMixture(h.Senones()[i/2])
		require.True(t, ok)
		assert.Equal(t, gm.Components()[0].Mean(), f.Values, "zero noise gives the mean")
		assert.Equal(t, i, f.Index)
	}

	other, err := NewHMM(a, Undefined, testSenones(1), LeftToRight(1, 0.5, nil))
	require.NoError(t, err)
	_, err = SampleFrames([]*HMM{other}, 1, 0, nil)
	assert.Error(t, err)
}
