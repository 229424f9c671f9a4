// Package appearance extracts compact visual signatures from detection
// regions and keeps a short-lived memory of lost targets so the tracking
// engine can re-identify them.
//
// Three feature modes are supported:
//
//   - histogram: HSV colour histogram (hue × saturation). Cheapest and
//     largely illumination invariant.
//   - hog: histogram of oriented gradients over a fixed detection window.
//   - hybrid: both, each half unit-normalised and concatenated.
//
// Similarity is always "higher means more alike" in [0, 1].
package appearance
