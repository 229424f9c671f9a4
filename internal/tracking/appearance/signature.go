package appearance

import (
	"gonum.org/v1/gonum/floats"
)

// Signature is an appearance feature vector. Vectors produced by the
// extractor are unit length (L2), so cosine similarity reduces to a dot
// product, but Similarity does not rely on that.
type Signature struct {
	Mode FeatureMode
	Vec  []float64
}

// Empty reports whether the signature carries no features.
func (s Signature) Empty() bool { return len(s.Vec) == 0 }

// Clone returns a deep copy.
func (s Signature) Clone() Signature {
	return Signature{Mode: s.Mode, Vec: append([]float64(nil), s.Vec...)}
}

// Similarity returns the cosine similarity of two signatures clamped to
// [0, 1]. Signatures of different modes or lengths are never similar.
func Similarity(a, b Signature) float64 {
	if a.Mode != b.Mode || len(a.Vec) != len(b.Vec) || len(a.Vec) == 0 {
		return 0
	}
	na := floats.Norm(a.Vec, 2)
	nb := floats.Norm(b.Vec, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(a.Vec, b.Vec) / (na * nb)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Blend returns (1-lr)·old + lr·observed, re-normalised to unit length.
// Mismatched signatures return old unchanged.
func Blend(old, observed Signature, lr float64) Signature {
	if old.Mode != observed.Mode || len(old.Vec) != len(observed.Vec) || len(old.Vec) == 0 {
		return old
	}
	out := make([]float64, len(old.Vec))
	floats.ScaleTo(out, 1-lr, old.Vec)
	floats.AddScaled(out, lr, observed.Vec)
	normalizeL2(out)
	return Signature{Mode: old.Mode, Vec: out}
}

// normalizeL2 scales v to unit length in place. Zero vectors are left alone.
func normalizeL2(v []float64) {
	n := floats.Norm(v, 2)
	if n == 0 {
		return
	}
	floats.Scale(1/n, v)
}
