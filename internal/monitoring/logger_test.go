package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestLogfDefault(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestPrefixed(t *testing.T) {
	var lines []string
	rec := func(format string, v ...interface{}) { lines = append(lines, fmt.Sprintf(format, v...)) }

	logf := Prefixed("TileHitAngle", rec)
	logf("frames to analyze: %d of %d", 10, 20)
	assert.Equal(t, []string{"[TileHitAngle] frames to analyze: 10 of 20"}, lines)
}

func TestProgress(t *testing.T) {
	var lines []string
	rec := func(format string, v ...interface{}) { lines = append(lines, fmt.Sprintf(format, v...)) }

	p := NewProgress(3000, 0, rec)
	assert.Equal(t, DefaultProgressInterval, p.Interval)

	emitted := 0
	for i := 0; i < 3000; i++ {
		if p.Step(i) {
			emitted++
		}
	}
	p.Done()

	assert.Equal(t, 2, emitted)
	assert.Equal(t, []string{"33.33 %", "66.67 %", "100%"}, lines)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(5, 0))
	assert.Equal(t, 50.0, Percent(1, 2))
	assert.Equal(t, 33.33, Percent(1, 3))
}
