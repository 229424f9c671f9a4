// Package detect holds the per-frame detection model consumed by the
// tracking engine: detections, bounding boxes, frames and the JSON line
// format used by the detector co-processor link.
//
// Detections are produced by the external detector/associator and are
// immutable once delivered for a frame. Nothing in this package depends on
// the tracking engine.
package detect
