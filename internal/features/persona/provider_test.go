package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeText, ModeFor(false, false))
	assert.Equal(t, ModeTextVibration, ModeFor(true, true))
	assert.Equal(t, ModeAll, ModeFor(true, false))

	assert.True(t, ModeAll.HasAudio())
	assert.False(t, ModeTextVibration.HasAudio())
	assert.True(t, ModeTextVibration.HasVibration())
}

func TestStreetProfilePicksLine(t *testing.T) {
	p := &Provider{pick: func(int) int { return 1 }}
	p.SetRinger(false)

	prof := p.build(Street, p.Mode())
	assert.Equal(t, Street, prof.Type)
	assert.Equal(t, "no_cap_street", prof.Audio)
	assert.Equal(t, []int64{100, 50, 200, 50, 150}, prof.Vibration)
	assert.Equal(t, ModeAll, prof.Mode)
}

func TestProfilesPerType(t *testing.T) {
	p := &Provider{pick: func(int) int { return 0 }}

	assert.Equal(t, []int64{200, 300, 200}, p.build(Calm, ModeText).Vibration)
	assert.Equal(t, []int64{150, 100, 150, 100, 150}, p.build(Diplomatic, ModeText).Vibration)
	assert.Empty(t, p.build(Comfortable, ModeText).Vibration)

	// неизвестная персона превращается в STREET
	assert.Equal(t, Street, p.build(Type("X"), ModeText).Type)
}

func TestParseType(t *testing.T) {
	got, err := ParseType("calm")
	require.NoError(t, err)
	assert.Equal(t, Calm, got)

	_, err = ParseType("angry")
	assert.Error(t, err)
}
