package detlink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// LineSource reads JSON-line frames from r, such as a recorded link log.
// Malformed lines are logged and skipped.
type LineSource struct {
	scan    *bufio.Scanner
	line    int
	skipped int
	closer  io.Closer
}

// NewLineSource wraps r. If r is an io.Closer, Close closes it.
func NewLineSource(r io.Reader) *LineSource {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	ls := &LineSource{scan: scan}
	if c, ok := r.(io.Closer); ok {
		ls.closer = c
	}
	return ls
}

// OpenLineSource opens a JSONL log file.
func OpenLineSource(path string) (*LineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}
	return NewLineSource(f), nil
}

// Next returns the next frame, or io.EOF at the end of input.
func (s *LineSource) Next(ctx context.Context) (detect.FrameDetections, error) {
	for {
		if err := ctx.Err(); err != nil {
			return detect.FrameDetections{}, err
		}
		if !s.scan.Scan() {
			if err := s.scan.Err(); err != nil {
				return detect.FrameDetections{}, fmt.Errorf("failed to read detection log: %w", err)
			}
			return detect.FrameDetections{}, io.EOF
		}
		s.line++
		line := bytes.TrimSpace(s.scan.Bytes())
		if len(line) == 0 {
			continue
		}
		fd, err := detect.ParseFrameLine(string(line))
		if err != nil {
			s.skipped++
			log.Printf("[detlink] skipping line %d: %v", s.line, err)
			continue
		}
		return fd, nil
	}
}

// Skipped returns the number of malformed lines skipped so far.
func (s *LineSource) Skipped() int { return s.skipped }

// Close closes the underlying reader when it is closable.
func (s *LineSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// PCAPSource replays detection frames carried as UDP payloads in a packet
// capture, for bench setups where the co-processor streams over Ethernet.
// Each payload holds one or more newline-separated frame lines.
type PCAPSource struct {
	r       *pcapgo.Reader
	f       io.Closer
	port    uint16
	pending []detect.FrameDetections
	packets int
	skipped int
}

// OpenPCAP opens a capture file and filters UDP packets destined to port.
func OpenPCAP(path string, port uint16) (*PCAPSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	src, err := NewPCAPSource(f, port)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.f = f
	return src, nil
}

// NewPCAPSource reads a capture from r.
func NewPCAPSource(r io.Reader, port uint16) (*PCAPSource, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCAP header: %w", err)
	}
	return &PCAPSource{r: pr, port: port}, nil
}

// Next returns the next frame, or io.EOF when the capture is exhausted.
func (s *PCAPSource) Next(ctx context.Context) (detect.FrameDetections, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return detect.FrameDetections{}, err
		}
		data, ci, err := s.r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return detect.FrameDetections{}, io.EOF
		}
		if err != nil {
			return detect.FrameDetections{}, fmt.Errorf("failed to read packet %d: %w", s.packets+1, err)
		}
		s.packets++

		packet := gopacket.NewPacket(data, s.r.LinkType(), gopacket.NoCopy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || uint16(udp.DstPort) != s.port || len(udp.Payload) == 0 {
			continue
		}

		for _, line := range bytes.Split(udp.Payload, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			fd, err := detect.ParseFrameLine(string(line))
			if err != nil {
				s.skipped++
				log.Printf("[detlink] skipping payload in packet %d: %v", s.packets, err)
				continue
			}
			// Capture time stands in for a missing device stamp.
			if fd.Frame.Timestamp.IsZero() {
				fd.Frame.Timestamp = ci.Timestamp
				for i := range fd.Detections {
					fd.Detections[i].Timestamp = ci.Timestamp
				}
			}
			s.pending = append(s.pending, fd)
		}
	}
	fd := s.pending[0]
	s.pending = s.pending[1:]
	return fd, nil
}

// Packets returns the number of packets read so far.
func (s *PCAPSource) Packets() int { return s.packets }

// Skipped returns the number of malformed payload lines.
func (s *PCAPSource) Skipped() int { return s.skipped }

// Close closes the capture file when opened with OpenPCAP.
func (s *PCAPSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
