package tracking

import (
	"bytes"
	"strings"
	"testing"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: log writers are package globals.
func TestLogStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})
	defer SetLogWriters(LogWriters{})

	m, err := NewManager(DefaultConfig())
	require.NoError(t, err)
	_, err = m.StartTracking(det(5, 100, 100, 40, 80, 0.9), nil)
	require.NoError(t, err)
	m.Update([]detect.Detection{det(8, 104, 100, 40, 80, 0.9)}, nil)
	m.Clear()

	assert.True(t, strings.HasPrefix(ops.String(), "[tracking] "))
	assert.Contains(t, ops.String(), "started: stable=1 class=0 id=5")
	assert.Contains(t, ops.String(), "cleared")
	assert.Contains(t, diag.String(), "id switch stable=1 5 -> 8")
	assert.Contains(t, trace.String(), "source=spatial")

	SetLogWriters(LogWriters{Ops: &ops})
	trace.Reset()
	Tracef("dropped %d", 1)
	assert.Zero(t, trace.Len())
}
