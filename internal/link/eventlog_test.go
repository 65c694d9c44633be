package link

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogEvictsOldest(t *testing.T) {
	l := NewEventLog(3)
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.Add(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("event %d", i))
	}

	require.Equal(t, 3, l.Len())
	entries := l.Entries()
	assert.Equal(t, "event 2", entries[0].Message)
	assert.Equal(t, "event 4", entries[2].Message)
	assert.Equal(t, "[10:00:04] event 4", entries[2].String())
}

func TestEventLogLatestIsNewestFirst(t *testing.T) {
	l := NewEventLog(50)
	now := time.Now()
	l.Add(now, "a")
	l.Add(now, "b")
	l.Add(now, "c")

	latest := l.Latest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "c", latest[0].Message)
	assert.Equal(t, "b", latest[1].Message)
	assert.Len(t, l.Latest(10), 3)
}
