package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceSource(t *testing.T) {
	t.Parallel()
	src := NewSliceSource([]detect.FrameDetections{frame(3)})
	fd, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), fd.Frame.Index)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestPaced_WaitsForTick(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(t0)
	src, stop := Paced(NewSliceSource([]detect.FrameDetections{frame(0), frame(1)}), clock, 30)
	defer stop()

	got := make(chan int64, 2)
	go func() {
		for {
			fd, err := src.Next(context.Background())
			if err != nil {
				close(got)
				return
			}
			got <- fd.Frame.Index
		}
	}()

	select {
	case <-got:
		t.Fatal("frame released before the first tick")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(timeutil.FramePeriod(30))
	assert.Equal(t, int64(0), <-got)
	clock.Advance(timeutil.FramePeriod(30))
	assert.Equal(t, int64(1), <-got)
}

func TestPaced_Cancelled(t *testing.T) {
	t.Parallel()
	src, stop := Paced(NewSliceSource(nil), timeutil.NewMockClock(t0), 30)
	defer stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
