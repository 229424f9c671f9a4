// Package cvframe supplies camera images to the tracking pipeline using
// OpenCV through gocv: decoding JPEG payloads, reading a video file or
// capture device in step with detector frame indices, and loading
// per-frame image dumps.
//
// OpenCV is a cgo dependency, so the real implementation is only built
// with -tags=gocv. Without the tag every constructor returns
// ErrUnavailable and the pipeline runs with appearance features disabled
// for lack of images.
package cvframe

import "errors"

// ErrUnavailable is returned when the binary was built without gocv.
var ErrUnavailable = errors.New("image support not enabled: rebuild with -tags=gocv")

// FrameFileName is the naming scheme for per-frame image dumps.
const FrameFileName = "frame_%06d.jpg"
