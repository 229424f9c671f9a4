package appearance

import (
	"image"
	"sort"
	"sync"

	"github.com/banshee-data/skyfollow/internal/detect"
)

// Entry is the model's memory of one stable track.
type Entry struct {
	StableTrackID    int64
	ClassID          int
	Signature        Signature
	RegisteredFrame  int64
	LastUpdatedFrame int64
	Updates          int
	Lost             bool
	FramesSinceLost  int
}

// Match is the outcome of a successful re-identification search.
type Match struct {
	StableTrackID  int64
	DetectionIndex int
	Similarity     float64
	Signature      Signature // observed on the matched detection
}

// Model keeps one signature per stable track and re-identifies lost
// tracks among new detections.
type Model struct {
	mu      sync.Mutex
	cfg     Config
	ext     *Extractor
	entries map[int64]*Entry
}

// NewModel creates an appearance model.
func NewModel(cfg Config) (*Model, error) {
	ext, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, ext: ext, entries: make(map[int64]*Entry)}, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// ExtractFeatures computes a signature of the configured mode.
func (m *Model) ExtractFeatures(img image.Image, box detect.BBox) (Signature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ext.Extract(img, box)
}

// ComputeSimilarity returns the similarity of two signatures in [0, 1].
func (m *Model) ComputeSimilarity(a, b Signature) float64 {
	return Similarity(a, b)
}

// RegisterObject stores sig as the active signature for id, replacing any
// previous entry.
func (m *Model) RegisterObject(id int64, classID int, sig Signature, frame int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &Entry{
		StableTrackID:    id,
		ClassID:          classID,
		Signature:        sig.Clone(),
		RegisteredFrame:  frame,
		LastUpdatedFrame: frame,
		Updates:          1,
	}
}

// UpdateObject folds a fresh observation into the active signature for id
// when adaptive learning is on. It returns false when id is unknown, lost,
// or learning is disabled.
func (m *Model) UpdateObject(id int64, sig Signature, frame int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Lost || !m.cfg.AdaptiveLearning || sig.Empty() {
		return false
	}
	e.Signature = Blend(e.Signature, sig, m.cfg.LearningRate)
	e.LastUpdatedFrame = frame
	e.Updates++
	return true
}

// MarkAsLost starts the re-identification window for id.
func (m *Model) MarkAsLost(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.Lost = true
	e.FramesSinceLost = 0
	return true
}

// Age advances every lost entry by one frame and removes entries that
// reach MaxReidentificationFrames. It returns the removed ids in
// ascending order.
func (m *Model) Age() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []int64
	for id, e := range m.entries {
		if !e.Lost {
			continue
		}
		e.FramesSinceLost++
		if e.FramesSinceLost >= m.cfg.MaxReidentificationFrames {
			delete(m.entries, id)
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// FindBestMatch searches detections of classID for the lost entry most
// similar to one of them. Only a match at or above MatchThreshold is
// returned. Detections whose region is degenerate are skipped.
func (m *Model) FindBestMatch(img image.Image, dets []detect.Detection, classID int) (Match, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lost []*Entry
	for _, e := range m.entries {
		if e.Lost && e.ClassID == classID && e.FramesSinceLost < m.cfg.MaxReidentificationFrames {
			lost = append(lost, e)
		}
	}
	if len(lost) == 0 || img == nil {
		return Match{}, false
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].StableTrackID < lost[j].StableTrackID })

	best := Match{DetectionIndex: -1}
	for i, d := range dets {
		if d.ClassID != classID {
			continue
		}
		sig, ok := m.ext.Extract(img, d.BBox)
		if !ok {
			continue
		}
		for _, e := range lost {
			s := Similarity(e.Signature, sig)
			if s > best.Similarity {
				best = Match{StableTrackID: e.StableTrackID, DetectionIndex: i, Similarity: s, Signature: sig}
			}
		}
	}
	if best.DetectionIndex < 0 || best.Similarity < m.cfg.MatchThreshold {
		return Match{}, false
	}
	return best, true
}

// Entry returns a copy of the entry for id.
func (m *Model) Entry(id int64) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Signature = e.Signature.Clone()
	return out, true
}

// Remove forgets id.
func (m *Model) Remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// Clear forgets everything.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}

// Len returns the number of remembered tracks.
func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// LostCount returns the number of entries awaiting re-identification.
func (m *Model) LostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Lost {
			n++
		}
	}
	return n
}
