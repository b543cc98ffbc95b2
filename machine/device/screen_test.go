package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreen_DefaultsToTierLimit(t *testing.T) {
	s := NewScreen("s", 1)
	w, h := s.Resolution()
	assert.Equal(t, 50, w)
	assert.Equal(t, 16, h)

	s = NewScreen("s", 3)
	w, h = s.Resolution()
	assert.Equal(t, 80, w)
	assert.Equal(t, 25, h)
}

func TestScreen_SetClipsAtEdge(t *testing.T) {
	s := NewScreen("s", 1)
	w, _ := s.Resolution()

	// WHEN text runs past the right edge
	changed := s.Set(w-2, 0, "abcd", DefaultForeground, DefaultBackground, false)

	// THEN only the visible part is written
	assert.True(t, changed)
	c, ok := s.Get(w-1, 0)
	assert.True(t, ok)
	assert.Equal(t, 'b', c.Char)
	_, ok = s.Get(w, 0)
	assert.False(t, ok)
}

func TestScreen_SetUnchangedReportsFalse(t *testing.T) {
	s := NewScreen("s", 1)
	assert.True(t, s.Set(0, 0, "x", DefaultForeground, DefaultBackground, false))
	assert.False(t, s.Set(0, 0, "x", DefaultForeground, DefaultBackground, false))
}

func TestScreen_CopyOutsideReadsBlank(t *testing.T) {
	s := NewScreen("s", 1)
	s.Set(0, 0, "ab", DefaultForeground, DefaultBackground, false)

	// GIVEN a source rectangle partly left of the screen
	s.Copy(-1, 0, 3, 1, 0, 1)

	// THEN the out-of-range column copies as a space
	lines := s.Lines()
	assert.Equal(t, " ab", lines[1])
	assert.Equal(t, "ab", lines[0])
}

func TestScreen_SetResolution(t *testing.T) {
	s := NewScreen("s", 2)
	s.Set(0, 0, "keep", DefaultForeground, DefaultBackground, false)

	if s.SetResolution(81, 25) {
		t.Errorf("resolution beyond tier 2 accepted")
	}
	if s.SetResolution(0, 10) {
		t.Errorf("zero width accepted")
	}

	// WHEN resizing within the tier
	assert.True(t, s.SetResolution(40, 10))

	// THEN the buffer is cleared at the new size
	lines := s.Lines()
	assert.Len(t, lines, 10)
	assert.Equal(t, "", lines[0])
}

func TestScreen_NoSinkNoSignal(t *testing.T) {
	s := NewScreen("s", 1)
	assert.False(t, s.Touch(1, 1, "p"))
	assert.False(t, s.Scroll(1, 1, -1, "p"))
}
