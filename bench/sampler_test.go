package bench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerShortPhase(t *testing.T) {
	s, err := NewSampler(time.Second)
	require.NoError(t, err)

	s.Start()
	time.Sleep(10 * time.Millisecond)
	snaps := s.Stop()
	assert.Empty(t, snaps, "a phase shorter than one interval yields no snapshots")
}

func TestSamplerCollects(t *testing.T) {
	s, err := NewSampler(5 * time.Millisecond)
	require.NoError(t, err)

	s.Start()
	time.Sleep(60 * time.Millisecond)
	snaps := s.Stop()

	require.NotEmpty(t, snaps)
	for _, snap := range snaps {
		assert.False(t, snap.At.IsZero())
		assert.True(t, snap.CPUPercent >= 0)
	}
}

func TestSamplerRestart(t *testing.T) {
	s, err := NewSampler(5 * time.Millisecond)
	require.NoError(t, err)

	s.Start()
	s.Start() // second Start is a no-op
	time.Sleep(30 * time.Millisecond)
	first := s.Stop()
	assert.Equal(t, first, s.Stop(), "Stop on a stopped sampler returns the last run")

	// a new phase starts from an empty snapshot set
	s.Start()
	s.Stop()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, s.Stop())
}
