package detlink

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, next func(context.Context) (detect.FrameDetections, error)) []detect.FrameDetections {
	t.Helper()
	var out []detect.FrameDetections
	for {
		fd, err := next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, fd)
	}
}

func TestLineSource(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		frameLine(0, 5),
		"",
		"{broken",
		"   ",
		frameLine(1),
		frameLine(2, 5, 9),
	}, "\n")

	src := NewLineSource(strings.NewReader(input))
	frames := drain(t, src.Next)
	require.Len(t, frames, 3)
	assert.Equal(t, []int64{0, 1, 2}, []int64{frames[0].Frame.Index, frames[1].Frame.Index, frames[2].Frame.Index})
	assert.Empty(t, frames[1].Detections)
	assert.Equal(t, 1, src.Skipped())
	assert.NoError(t, src.Close())
}

func TestOpenLineSource(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flight.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(frameLine(7, 1)+"\n"), 0o644))

	src, err := OpenLineSource(path)
	require.NoError(t, err)
	defer src.Close()
	frames := drain(t, src.Next)
	require.Len(t, frames, 1)
	assert.Equal(t, int64(7), frames[0].Frame.Index)

	_, err = OpenLineSource(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestLineSource_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLineSource(strings.NewReader(frameLine(0))).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func udpPacket(t *testing.T, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 168, 1, 10},
		DstIP:    net.IP{192, 168, 1, 20},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestPCAPSource(t *testing.T) {
	t.Parallel()
	const port = 7070
	captured := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	var capture bytes.Buffer
	w := pcapgo.NewWriter(&capture)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	write := func(at time.Time, data []byte) {
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     at,
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}

	write(captured, udpPacket(t, port, []byte(frameLine(0, 5)+"\n"+frameLine(1, 5)+"\n")))
	write(captured, udpPacket(t, 9999, []byte(frameLine(50, 5))))
	write(captured, udpPacket(t, port, []byte("garbage")))
	write(captured.Add(time.Second), udpPacket(t, port, []byte(`{"frame":2,"detections":[{"id":5,"class":0,"bbox":[1,2,3,4],"conf":0.5}]}`)))

	src, err := NewPCAPSource(&capture, port)
	require.NoError(t, err)
	frames := drain(t, src.Next)
	require.Len(t, frames, 3)
	assert.Equal(t, int64(0), frames[0].Frame.Index)
	assert.Equal(t, int64(1), frames[1].Frame.Index)
	assert.Equal(t, int64(2), frames[2].Frame.Index)
	assert.True(t, frames[2].Frame.Timestamp.Equal(captured.Add(time.Second)), "capture time fills a missing stamp")
	assert.True(t, frames[2].Detections[0].Timestamp.Equal(captured.Add(time.Second)))
	assert.Equal(t, 4, src.Packets())
	assert.Equal(t, 1, src.Skipped())
	assert.NoError(t, src.Close())
}

func TestNewPCAPSource_BadHeader(t *testing.T) {
	t.Parallel()
	_, err := NewPCAPSource(strings.NewReader("not a capture"), 7070)
	assert.Error(t, err)
}
