package detect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FrameDetections is one frame of detector output as delivered over the
// co-processor link or stored in a replay log.
type FrameDetections struct {
	Frame      Frame
	Detections []Detection
}

type wireDetection struct {
	ID    *int64     `json:"id,omitempty"`
	Class int        `json:"class"`
	BBox  [4]float64 `json:"bbox"`
	Conf  float64    `json:"conf"`
}

type wireFrame struct {
	Frame      int64           `json:"frame"`
	TSNanos    int64           `json:"ts_ns"`
	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	Detections []wireDetection `json:"detections"`
}

// ParseFrameLine decodes a single JSON line of the form
//
//	{"frame":12,"ts_ns":1700000000000000000,"width":640,"height":480,
//	 "detections":[{"id":5,"class":0,"bbox":[x,y,w,h],"conf":0.91}]}
//
// Every detection inherits the frame timestamp.
func ParseFrameLine(line string) (FrameDetections, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return FrameDetections{}, fmt.Errorf("empty frame line")
	}
	var wf wireFrame
	if err := json.Unmarshal([]byte(line), &wf); err != nil {
		return FrameDetections{}, fmt.Errorf("failed to parse frame line: %w", err)
	}

	var ts time.Time
	if wf.TSNanos != 0 {
		ts = time.Unix(0, wf.TSNanos)
	}
	fd := FrameDetections{
		Frame: Frame{
			Index:     wf.Frame,
			Timestamp: ts,
			Width:     wf.Width,
			Height:    wf.Height,
		},
		Detections: make([]Detection, 0, len(wf.Detections)),
	}
	for _, wd := range wf.Detections {
		fd.Detections = append(fd.Detections, Detection{
			EphemeralID: wd.ID,
			ClassID:     wd.Class,
			BBox:        BBox{X: wd.BBox[0], Y: wd.BBox[1], W: wd.BBox[2], H: wd.BBox[3]},
			Confidence:  wd.Conf,
			Timestamp:   ts,
		})
	}
	return fd, nil
}

// MarshalFrameLine is the inverse of ParseFrameLine. Used by the replay tool
// and tests to produce link traffic.
func MarshalFrameLine(fd FrameDetections) ([]byte, error) {
	wf := wireFrame{
		Frame:      fd.Frame.Index,
		Width:      fd.Frame.Width,
		Height:     fd.Frame.Height,
		Detections: make([]wireDetection, 0, len(fd.Detections)),
	}
	if !fd.Frame.Timestamp.IsZero() {
		wf.TSNanos = fd.Frame.Timestamp.UnixNano()
	}
	for _, d := range fd.Detections {
		wf.Detections = append(wf.Detections, wireDetection{
			ID:    d.EphemeralID,
			Class: d.ClassID,
			BBox:  [4]float64{d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H},
			Conf:  d.Confidence,
		})
	}
	return json.Marshal(wf)
}
