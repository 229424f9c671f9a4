//go:build gocv
// +build gocv

package cvframe

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/banshee-data/skyfollow/internal/detect"
	"gocv.io/x/gocv"
)

// Decode decodes an encoded image (JPEG, PNG) into an image.Image.
func Decode(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to decode image: empty result")
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	return img, nil
}

// VideoImages reads a video stream forward in step with detector frame
// indices. Frame i of the detector output is assumed to be frame i of the
// video.
type VideoImages struct {
	mu   sync.Mutex
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	pos  int64 // index of the frame held in mat, -1 before the first read
	last image.Image
}

// OpenVideo opens a video file, stream URL, or numeric capture device.
func OpenVideo(source string) (*VideoImages, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(source); convErr == nil {
		vc, err = gocv.VideoCaptureDevice(id)
	} else {
		vc, err = gocv.VideoCaptureFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open video %s", source)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	return &VideoImages{vc: vc, mat: gocv.NewMat(), pos: -1}, nil
}

// ImageFor implements pipeline.ImageProvider. Frames are read forward only;
// asking for an earlier frame than the one last read is an error.
func (v *VideoImages) ImageFor(frame detect.Frame) (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if frame.Index == v.pos && v.last != nil {
		return v.last, nil
	}
	if frame.Index < v.pos {
		return nil, fmt.Errorf("video already past frame %d (at %d)", frame.Index, v.pos)
	}
	for v.pos < frame.Index {
		if ok := v.vc.Read(&v.mat); !ok || v.mat.Empty() {
			return nil, fmt.Errorf("video ended before frame %d", frame.Index)
		}
		v.pos++
	}
	img, err := v.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame %d: %w", frame.Index, err)
	}
	v.last = img
	return img, nil
}

// Close releases the capture.
func (v *VideoImages) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mat.Close()
	return v.vc.Close()
}

// DirImages loads per-frame image files named with FrameFileName.
type DirImages struct {
	dir string
}

// OpenDir returns a provider over dir.
func OpenDir(dir string) (*DirImages, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open image dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirImages{dir: dir}, nil
}

// ImageFor implements pipeline.ImageProvider.
func (d *DirImages) ImageFor(frame detect.Frame) (image.Image, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, fmt.Sprintf(FrameFileName, frame.Index)))
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Close is a no-op.
func (d *DirImages) Close() error { return nil }
