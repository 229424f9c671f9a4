package tracking

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/banshee-data/skyfollow/internal/tracking/appearance"
	"github.com/banshee-data/skyfollow/internal/tracking/motion"
	"github.com/google/uuid"
)

// syntheticEpoch anchors timestamps synthesised from frame indices when the
// source provides none.
var syntheticEpoch = time.Unix(0, 0).UTC()

// session is the exclusively owned record of one following session.
type session struct {
	id        uuid.UUID
	stableID  int64
	classID   int
	startedAt time.Time

	state       TrackState
	ephemeralID *int64

	bbox              detect.BBox // last committed (measured or predicted)
	lastMeasured      detect.BBox
	lastMeasuredIndex int64
	confidence        float64 // last emitted
	measuredConf      float64 // smoothed confidence at the last measurement

	framesSinceLastIDMatch int
	framesSinceLost        int

	hasSignature         bool
	measuredSinceLearned int

	idSwitches        int
	reidentifications int
}

// Manager is the tracking state manager. All mutation must come from a
// single goroutine; the mutex lets diagnostics be read from others.
type Manager struct {
	mu sync.RWMutex

	cfg        Config
	predictor  *motion.Predictor
	appearance *appearance.Model // nil when disabled
	clock      timeutil.Clock
	sink       EventSink

	sess       *session
	nextStable int64
	frameIndex int64
}

// NewManager validates cfg and creates an idle manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracking config: %w", err)
	}
	pred, err := motion.NewPredictor(cfg.Motion)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:        cfg,
		predictor:  pred,
		clock:      timeutil.RealClock{},
		nextStable: 1,
		frameIndex: -1,
	}
	if cfg.EnableAppearance {
		m.appearance, err = appearance.NewModel(cfg.Appearance)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Config returns the manager configuration.
func (m *Manager) Config() Config { return m.cfg }

// SetEventSink installs the lifecycle event sink. Pass nil to disable.
func (m *Manager) SetEventSink(s EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
}

// SetClock replaces the clock used for events when frames carry no
// timestamp.
func (m *Manager) SetClock(c timeutil.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = c
}

// StartTracking begins a new session on det. Any previous session and its
// appearance memory are discarded. frame may be nil; when it carries an
// image and appearance is enabled the initial signature is captured.
func (m *Manager) StartTracking(det detect.Detection, frame *detect.Frame) (Session, error) {
	if err := det.Validate(); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fi := m.advanceFrame(frame)
	m.predictor.Reset()
	if m.appearance != nil {
		m.appearance.Clear()
	}

	s := &session{
		id:                uuid.New(),
		stableID:          m.nextStable,
		classID:           det.ClassID,
		startedAt:         m.eventTime(frame),
		state:             StateIDMatch,
		ephemeralID:       copyID(det.EphemeralID),
		bbox:              det.BBox,
		lastMeasured:      det.BBox,
		lastMeasuredIndex: fi,
		confidence:        det.Confidence,
		measuredConf:      det.Confidence,
	}
	m.nextStable++
	m.sess = s

	m.predictor.Update(det.BBox, m.sampleTime(frame, det))
	m.captureSignature(s, det, frame, fi)

	Opsf("session %s started: stable=%d class=%d id=%s", s.id, s.stableID, s.classID, fmtID(s.ephemeralID))
	m.emit(Event{Kind: EventSessionStarted, EphemeralID: copyID(s.ephemeralID)}, frame)

	return Session{
		ID:            s.id,
		StableTrackID: s.stableID,
		ClassID:       s.classID,
		EphemeralID:   copyID(s.ephemeralID),
		StartedAt:     s.startedAt,
		FrameIndex:    fi,
	}, nil
}

// Update runs the per-frame decision and returns the committed target, or
// nil when nothing is committed this frame. Frames must arrive in capture
// order.
func (m *Manager) Update(dets []detect.Detection, frame *detect.Frame) *TrackedTarget {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.advanceFrame(frame)
	s := m.sess
	if s == nil {
		return nil
	}
	dets = usable(dets)

	var out *TrackedTarget
	switch s.state {
	case StateIDMatch, StateSpatialMatch, StatePredicted:
		out = m.stepActive(s, dets, frame)
	case StateLost:
		out = m.stepLost(s, dets, frame)
	default:
		Opsf("session %s in unexpected state %q, clearing", s.id, s.state)
		m.endSession()
	}

	if out != nil {
		Tracef("frame=%d state=%s source=%s stable=%d id=%s conf=%.3f bbox=%+v",
			m.frameIndex, out.State, out.Source, out.StableTrackID, fmtID(out.EphemeralID), out.Confidence, out.BBox)
	}
	return out
}

// Clear drops the session, predictor history and appearance memory. It is
// idempotent.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		Opsf("session %s cleared", m.sess.id)
		m.emit(Event{Kind: EventCleared, Ended: true}, nil)
	}
	m.endSession()
}

// IsTrackingActive reports whether a session exists (including a lost
// session still awaiting re-identification).
func (m *Manager) IsTrackingActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess != nil
}

// GetTrackingInfo returns a diagnostic snapshot.
func (m *Manager) GetTrackingInfo() TrackingInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := TrackingInfo{
		State:      StateIdle,
		Strategy:   m.cfg.Strategy,
		FrameIndex: m.frameIndex,
	}
	if m.appearance != nil {
		info.MemoryEntries = m.appearance.Len()
		info.LostEntries = m.appearance.LostCount()
	}
	s := m.sess
	if s == nil {
		return info
	}
	info.Active = true
	info.State = s.state
	info.SessionID = s.id.String()
	info.StableTrackID = s.stableID
	info.EphemeralID = copyID(s.ephemeralID)
	info.ClassID = s.classID
	info.BBox = s.bbox
	info.Confidence = s.confidence
	info.FramesSinceLastIDMatch = s.framesSinceLastIDMatch
	info.FramesSinceLost = s.framesSinceLost
	info.IDSwitches = s.idSwitches
	info.Reidentifications = s.reidentifications
	info.Speed = m.predictor.Speed()
	return info
}

// stepActive handles a frame while a target is committed.
func (m *Manager) stepActive(s *session, dets []detect.Detection, frame *detect.Frame) *TrackedTarget {
	if m.cfg.Strategy != StrategySpatialOnly {
		if i := findByID(dets, s.classID, s.ephemeralID); i >= 0 {
			return m.commitMeasurement(s, dets[i], StateIDMatch, SourceIdentifier, frame)
		}
		if m.cfg.Strategy == StrategyIDOnly {
			s.framesSinceLastIDMatch = m.framesSinceMeasured(s)
			return nil
		}
	}

	if i := m.spatialMatch(s, dets, frame); i >= 0 {
		det := dets[i]
		if !sameID(s.ephemeralID, det.EphemeralID) {
			s.idSwitches++
			Diagf("id switch stable=%d %s -> %s", s.stableID, fmtID(s.ephemeralID), fmtID(det.EphemeralID))
			m.emit(Event{Kind: EventIDSwitch, PrevID: copyID(s.ephemeralID), EphemeralID: copyID(det.EphemeralID)}, frame)
		}
		s.ephemeralID = copyID(det.EphemeralID)
		return m.commitMeasurement(s, det, StateSpatialMatch, SourceSpatial, frame)
	}

	s.framesSinceLastIDMatch = m.framesSinceMeasured(s)
	if s.framesSinceLastIDMatch < m.cfg.IDLossToleranceFrames {
		return m.commitPrediction(s, frame)
	}
	m.enterLost(s, frame)
	return nil
}

// stepLost handles a frame while the session awaits re-identification.
// Memory ages before matching, so an entry is never matched on the frame
// it expires.
func (m *Manager) stepLost(s *session, dets []detect.Detection, frame *detect.Frame) *TrackedTarget {
	s.framesSinceLost++
	for _, id := range m.appearance.Age() {
		if id == s.stableID {
			Opsf("session %s expired after %d lost frames", s.id, s.framesSinceLost)
			m.emit(Event{Kind: EventExpired, Ended: true}, frame)
			m.endSession()
			return nil
		}
	}

	match, ok := m.appearance.FindBestMatch(frameImage(frame), dets, s.classID)
	if !ok || match.StableTrackID != s.stableID {
		return nil
	}

	det := dets[match.DetectionIndex]
	sig := match.Signature
	if sig.Empty() {
		entry, _ := m.appearance.Entry(s.stableID)
		sig = entry.Signature
	}
	m.appearance.Remove(s.stableID)
	m.appearance.RegisterObject(s.stableID, s.classID, sig, m.frameIndex)
	s.measuredSinceLearned = 0

	s.state = StateAppearanceMatch
	s.reidentifications++
	s.ephemeralID = copyID(det.EphemeralID)
	s.framesSinceLost = 0
	m.predictor.Reset()

	Opsf("session %s re-identified stable=%d as id=%s similarity=%.3f", s.id, s.stableID, fmtID(det.EphemeralID), match.Similarity)
	m.emit(Event{Kind: EventReidentified, EphemeralID: copyID(det.EphemeralID), Similarity: match.Similarity}, frame)

	return m.commitMeasurement(s, det, StateIDMatch, SourceAppearance, frame)
}

// enterLost drops the commitment. Without a signature there is nothing to
// recover with and the session ends.
func (m *Manager) enterLost(s *session, frame *detect.Frame) {
	recoverable := m.appearance != nil && s.hasSignature && m.appearance.MarkAsLost(s.stableID)
	prev := s.ephemeralID
	s.ephemeralID = nil

	if !recoverable {
		Opsf("session %s lost after %d missed frames with no appearance signature, returning to idle", s.id, s.framesSinceLastIDMatch)
		m.emit(Event{Kind: EventLost, PrevID: prev, Detail: "no appearance signature", Ended: true}, frame)
		m.endSession()
		return
	}
	Opsf("session %s lost after %d missed frames", s.id, s.framesSinceLastIDMatch)
	m.emit(Event{Kind: EventLost, PrevID: prev, Detail: "awaiting re-identification"}, frame)
	s.state = StateLost
	s.framesSinceLost = 0
}

func (m *Manager) commitMeasurement(s *session, det detect.Detection, state TrackState, src Source, frame *detect.Frame) *TrackedTarget {
	a := m.cfg.ConfidenceSmoothingAlpha
	s.confidence = a*det.Confidence + (1-a)*s.confidence
	s.measuredConf = s.confidence
	s.bbox = det.BBox
	s.lastMeasured = det.BBox
	s.lastMeasuredIndex = m.frameIndex
	s.framesSinceLastIDMatch = 0
	s.state = state
	m.predictor.Update(det.BBox, m.sampleTime(frame, det))

	switch {
	case !s.hasSignature:
		m.captureSignature(s, det, frame, m.frameIndex)
	case src == SourceIdentifier || src == SourceSpatial:
		m.learnSignature(s, det, frame)
	}
	return m.target(s, src, frame)
}

func (m *Manager) commitPrediction(s *session, frame *detect.Frame) *TrackedTarget {
	s.bbox = m.predictedBox(s, frame)
	s.confidence = s.measuredConf * math.Pow(m.cfg.PredictionConfidenceDecay, float64(s.framesSinceLastIDMatch))
	s.state = StatePredicted
	return m.target(s, SourcePrediction, frame)
}

// spatialMatch returns the index of the same-class detection with the best
// IoU against the predicted box, or -1. Equal IoU prefers higher
// confidence.
func (m *Manager) spatialMatch(s *session, dets []detect.Detection, frame *detect.Frame) int {
	if len(dets) == 0 {
		return -1
	}
	pred := m.predictedBoxAhead(s, frame, m.framesSinceMeasured(s))
	best, bestIoU := -1, 0.0
	for i, d := range dets {
		if d.ClassID != s.classID {
			continue
		}
		iou := pred.IoU(d.BBox)
		if iou < m.cfg.SpatialIoUThreshold {
			continue
		}
		if best < 0 || iou > bestIoU || (iou == bestIoU && d.Confidence > dets[best].Confidence) {
			best, bestIoU = i, iou
		}
	}
	if best >= 0 {
		Diagf("spatial match stable=%d iou=%.3f id=%s", s.stableID, bestIoU, fmtID(dets[best].EphemeralID))
	}
	return best
}

// predictedBox is the coasting box for the current frame.
func (m *Manager) predictedBox(s *session, frame *detect.Frame) detect.BBox {
	return m.predictedBoxAhead(s, frame, m.framesSinceMeasured(s))
}

// framesSinceMeasured is the frame-index distance from the last
// measurement to the current frame. Frames dropped upstream still count.
func (m *Manager) framesSinceMeasured(s *session) int {
	gap := m.frameIndex - s.lastMeasuredIndex
	if gap < 1 {
		return 1
	}
	return int(gap)
}

func (m *Manager) predictedBoxAhead(s *session, frame *detect.Frame, framesAhead int) detect.BBox {
	if !m.cfg.EnablePredictionBuffer {
		return s.lastMeasured
	}
	if m.cfg.PredictionUseTimestamps && frame != nil && !frame.Timestamp.IsZero() {
		return m.predictor.PredictAt(frame.Timestamp)
	}
	return m.predictor.PredictBBox(framesAhead, m.cfg.Motion.NominalFPS)
}

func (m *Manager) captureSignature(s *session, det detect.Detection, frame *detect.Frame, fi int64) {
	if m.appearance == nil {
		return
	}
	sig, ok := m.appearance.ExtractFeatures(frameImage(frame), det.BBox)
	if !ok {
		return
	}
	m.appearance.RegisterObject(s.stableID, s.classID, sig, fi)
	s.hasSignature = true
	s.measuredSinceLearned = 0
	Diagf("signature captured stable=%d mode=%s dims=%d", s.stableID, sig.Mode, len(sig.Vec))
}

// learnSignature folds the observation into the live signature every
// AppearanceUpdateInterval measured frames while the target is held by
// identifier or overlap.
func (m *Manager) learnSignature(s *session, det detect.Detection, frame *detect.Frame) {
	if m.appearance == nil || !m.cfg.Appearance.AdaptiveLearning {
		return
	}
	s.measuredSinceLearned++
	if s.measuredSinceLearned < m.cfg.AppearanceUpdateInterval {
		return
	}
	sig, ok := m.appearance.ExtractFeatures(frameImage(frame), det.BBox)
	if !ok {
		return
	}
	if m.appearance.UpdateObject(s.stableID, sig, m.frameIndex) {
		s.measuredSinceLearned = 0
	}
}

func (m *Manager) target(s *session, src Source, frame *detect.Frame) *TrackedTarget {
	w, h := frame.Size()
	if w <= 0 || h <= 0 {
		w, h = m.cfg.FrameWidth, m.cfg.FrameHeight
	}
	nx, ny := s.bbox.NormalizedCenter(w, h)
	t := &TrackedTarget{
		StableTrackID:      s.stableID,
		ClassID:            s.classID,
		BBox:               s.bbox,
		NormalizedPosition: Vec2{X: nx, Y: ny},
		Confidence:         s.confidence,
		TrackingActive:     true,
		EphemeralID:        copyID(s.ephemeralID),
		State:              s.state,
		Source:             src,
		FrameIndex:         m.frameIndex,
	}
	if frame != nil {
		t.Timestamp = frame.Timestamp
	}
	return t
}

func (m *Manager) endSession() {
	m.sess = nil
	m.predictor.Reset()
	if m.appearance != nil {
		m.appearance.Clear()
	}
}

func (m *Manager) emit(ev Event, frame *detect.Frame) {
	if m.sink == nil || m.sess == nil {
		return
	}
	ev.SessionID = m.sess.id
	ev.StableTrackID = m.sess.stableID
	ev.FrameIndex = m.frameIndex
	ev.At = m.eventTime(frame)
	m.sink.RecordEvent(ev)
}

// advanceFrame records the frame index: the frame's own when given,
// otherwise one past the previous.
func (m *Manager) advanceFrame(frame *detect.Frame) int64 {
	if frame != nil {
		m.frameIndex = frame.Index
	} else {
		m.frameIndex++
	}
	return m.frameIndex
}

func (m *Manager) eventTime(frame *detect.Frame) time.Time {
	if frame != nil && !frame.Timestamp.IsZero() {
		return frame.Timestamp
	}
	return m.clock.Now()
}

// sampleTime picks the measurement timestamp for the predictor. Without
// any timestamp the frame index is converted at the nominal rate so that
// velocities stay correct across missed frames.
func (m *Manager) sampleTime(frame *detect.Frame, det detect.Detection) time.Time {
	if !det.Timestamp.IsZero() {
		return det.Timestamp
	}
	if frame != nil && !frame.Timestamp.IsZero() {
		return frame.Timestamp
	}
	return syntheticEpoch.Add(time.Duration(m.frameIndex) * timeutil.FramePeriod(m.cfg.Motion.NominalFPS))
}

// FindByEphemeralID returns the detection carrying id.
func FindByEphemeralID(dets []detect.Detection, id int64) (detect.Detection, error) {
	for _, d := range dets {
		if d.HasID(id) {
			return d, nil
		}
	}
	return detect.Detection{}, fmt.Errorf("%w: %d", ErrNoSuchDetection, id)
}

func findByID(dets []detect.Detection, classID int, id *int64) int {
	if id == nil {
		return -1
	}
	for i, d := range dets {
		if d.ClassID == classID && d.HasID(*id) {
			return i
		}
	}
	return -1
}

// usable drops detections that cannot be matched against (bad boxes or
// confidences). The input slice is returned when nothing is dropped.
func usable(dets []detect.Detection) []detect.Detection {
	for i, d := range dets {
		if d.Validate() != nil {
			out := append([]detect.Detection(nil), dets[:i]...)
			for _, d := range dets[i+1:] {
				if d.Validate() == nil {
					out = append(out, d)
				}
			}
			return out
		}
	}
	return dets
}

func frameImage(frame *detect.Frame) image.Image {
	if frame == nil {
		return nil
	}
	return frame.Image
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func fmtID(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *id)
}
