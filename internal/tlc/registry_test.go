package tlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrySuppressesDuplicates(t *testing.T) {
	var reg TaskRegistry
	assert.False(t, reg.InFlight(StageFilter, 42))

	gen := reg.Dispatch(StageFilter, 42)
	assert.True(t, reg.InFlight(StageFilter, 42), "identical task suppressed while in flight")
	assert.False(t, reg.InFlight(StageFilter, 43), "different fingerprint is not suppressed")
	assert.False(t, reg.InFlight(StagePeak, 42), "registry is per stage")

	assert.True(t, reg.Complete(StageFilter, gen))
	assert.False(t, reg.InFlight(StageFilter, 42), "completion clears the entry")
}

func TestRegistryGenerationAdvances(t *testing.T) {
	var reg TaskRegistry
	g1 := reg.Dispatch(StageSolve, 1)
	reg.Invalidate(StageSolve)
	g2 := reg.Dispatch(StageSolve, 2)
	assert.Greater(t, g2, g1)

	// The straggler from generation g1 must not clear g2's entry.
	assert.False(t, reg.Complete(StageSolve, g1))
	assert.True(t, reg.InFlight(StageSolve, 2))
	assert.True(t, reg.Complete(StageSolve, g2))
}

func TestRegistryInvalidateClearsInFlight(t *testing.T) {
	var reg TaskRegistry
	gen := reg.Dispatch(StageGreen2, 7)
	reg.Invalidate(StageGreen2)
	assert.False(t, reg.InFlight(StageGreen2, 7), "invalidation lets a fresh task through")
	assert.NotEqual(t, gen, reg.Generation(StageGreen2), "worker observes the mismatch")
}
