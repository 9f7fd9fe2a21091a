package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewManual(start)

	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })
	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	m.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(2*time.Second), m.Now())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_CallbackSchedulesWithinWindow(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	fires := 0
	var rearm func()
	rearm = func() {
		fires++
		m.AfterFunc(time.Second, rearm)
	}
	m.AfterFunc(time.Second, rearm)

	m.Advance(5 * time.Second)
	assert.Equal(t, 5, fires)
	assert.Equal(t, 1, m.Pending())
}

func TestManual_Stop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	fired := false
	tm := m.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())

	m.Advance(time.Minute)
	assert.False(t, fired)
}
