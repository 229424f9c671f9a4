//go:build !gocv
// +build !gocv

package cvframe

import (
	"image"

	"github.com/banshee-data/skyfollow/internal/detect"
)

// Decode is a stub when gocv support is disabled.
func Decode([]byte) (image.Image, error) { return nil, ErrUnavailable }

// VideoImages is a stub when gocv support is disabled.
type VideoImages struct{}

// OpenVideo is a stub when gocv support is disabled.
func OpenVideo(string) (*VideoImages, error) { return nil, ErrUnavailable }

// ImageFor always fails.
func (*VideoImages) ImageFor(detect.Frame) (image.Image, error) { return nil, ErrUnavailable }

// Close is a no-op.
func (*VideoImages) Close() error { return nil }

// DirImages is a stub when gocv support is disabled.
type DirImages struct{}

// OpenDir is a stub when gocv support is disabled.
func OpenDir(string) (*DirImages, error) { return nil, ErrUnavailable }

// ImageFor always fails.
func (*DirImages) ImageFor(detect.Frame) (image.Image, error) { return nil, ErrUnavailable }

// Close is a no-op.
func (*DirImages) Close() error { return nil }
