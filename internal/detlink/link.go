// Package detlink carries detector output into the engine: a multiplexed
// UART link to the detection co-processor, plus file sources for replaying
// recorded JSON-line logs and UDP packet captures.
package detlink

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/skyfollow/internal/detect"
)

// ErrClosed is returned when using a link after Close.
var ErrClosed = errors.New("detector link closed")

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls further behind misses frames.
const subscriberBuffer = 8

// maxLineBytes bounds one frame line on the wire.
const maxLineBytes = 1 << 20

// Link multiplexes newline-delimited detection frames read from a single
// port to any number of subscribers.
type Link[T Porter] struct {
	port T

	subscriberMu sync.Mutex
	subscribers  map[string]chan detect.FrameDetections

	closingMu sync.Mutex
	closing   bool

	frames      atomic.Int64
	parseErrors atomic.Int64
	dropped     atomic.Int64
}

// NewLink creates a Link reading from port.
func NewLink[T Porter](port T) *Link[T] {
	return &Link[T]{
		port:        port,
		subscribers: make(map[string]chan detect.FrameDetections),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new receiver of parsed frames. The ID identifies the
// channel when unsubscribing. On a closed link the channel is already closed.
func (l *Link[T]) Subscribe() (string, <-chan detect.FrameDetections) {
	id := randomID()
	ch := make(chan detect.FrameDetections, subscriberBuffer)
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if l.isClosing() {
		close(ch)
		return id, ch
	}
	l.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (l *Link[T]) Unsubscribe(id string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

// Stats returns counts of parsed frames, unparseable lines and frames
// dropped because a subscriber was full.
func (l *Link[T]) Stats() (frames, parseErrors, dropped int64) {
	return l.frames.Load(), l.parseErrors.Load(), l.dropped.Load()
}

// Monitor reads frames from the port and fans them out until ctx ends, the
// port reaches EOF, or the link is closed.
func (l *Link[T]) Monitor(ctx context.Context) error {
	if l.isClosing() {
		return ErrClosed
	}
	scan := bufio.NewScanner(l.port)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// Scan blocks on the port, so it runs apart from the loop watching ctx.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if l.isClosing() {
				return nil
			}
			return fmt.Errorf("detector link read failed: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !l.isClosing() {
						return fmt.Errorf("detector link read failed: %w", err)
					}
				default:
				}
				return nil
			}
			if l.isClosing() {
				return nil
			}
			if line == "" {
				continue
			}
			fd, err := detect.ParseFrameLine(line)
			if err != nil {
				if n := l.parseErrors.Add(1); n == 1 || n%100 == 0 {
					log.Printf("[detlink] dropping unparseable line (%d so far): %v", n, err)
				}
				continue
			}
			l.frames.Add(1)
			l.broadcast(fd)
		}
	}
}

func (l *Link[T]) broadcast(fd detect.FrameDetections) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- fd:
		default:
			l.dropped.Add(1)
		}
	}
}

func (l *Link[T]) isClosing() bool {
	l.closingMu.Lock()
	defer l.closingMu.Unlock()
	return l.closing
}

// Close closes every subscriber channel and the port.
func (l *Link[T]) Close() error {
	l.closingMu.Lock()
	if l.closing {
		l.closingMu.Unlock()
		return ErrClosed
	}
	l.closing = true
	l.closingMu.Unlock()

	l.subscriberMu.Lock()
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
	l.subscriberMu.Unlock()
	return l.port.Close()
}

// Subscription adapts a link subscriber to the pull-style frame source the
// pipeline consumes.
type Subscription struct {
	id    string
	ch    <-chan detect.FrameDetections
	unsub func(string)
}

// Frames subscribes to the link and returns a pull-style source.
func (l *Link[T]) Frames() *Subscription {
	id, ch := l.Subscribe()
	return &Subscription{id: id, ch: ch, unsub: l.Unsubscribe}
}

// Next blocks for the next frame. A closed link reads as io.EOF.
func (s *Subscription) Next(ctx context.Context) (detect.FrameDetections, error) {
	select {
	case <-ctx.Done():
		return detect.FrameDetections{}, ctx.Err()
	case fd, ok := <-s.ch:
		if !ok {
			return detect.FrameDetections{}, io.EOF
		}
		return fd, nil
	}
}

// Close unsubscribes from the link.
func (s *Subscription) Close() error {
	s.unsub(s.id)
	return nil
}
