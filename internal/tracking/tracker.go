package tracking

import (
	"sort"
	"sync"

	"github.com/banshee-data/geotrack/internal/config"
	"github.com/banshee-data/geotrack/internal/detection"
	"github.com/banshee-data/geotrack/internal/geometry"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	IoUThreshold         float64 // A match requires IoU strictly above this
	MaxFramesSinceUpdate int     // Tracks unmatched for more frames than this are evicted
	HistoryCapacity      int     // Recent bounding boxes kept per track
	Association          string  // config.AssociationGreedy or config.AssociationOptimal
	MaxTracks            int     // Live track cap; 0 means unlimited
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found; intended for tests and binaries
// that have already validated config availability.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		IoUThreshold:         cfg.GetIoUThreshold(),
		MaxFramesSinceUpdate: cfg.GetMaxFramesSinceUpdate(),
		HistoryCapacity:      cfg.GetHistoryCapacity(),
		Association:          cfg.GetAssociation(),
		MaxTracks:            cfg.GetMaxTracks(),
	}
}

// Tracker owns every live Track. It is safe for concurrent use, but frames
// are expected to arrive from a single pipeline in order.
type Tracker struct {
	cfg       TrackerConfig
	classes   detection.Classes
	localizer geometry.Localizer

	tracks map[int64]*Track
	nextID int64

	// Lifetime counters.
	created int64
	evicted int64

	mu sync.Mutex
}

// NewTracker creates a new tracker. classes gates track creation and
// localizer supplies 3D estimates for created and matched tracks.
func NewTracker(cfg TrackerConfig, classes detection.Classes, localizer geometry.Localizer) *Tracker {
	return &Tracker{
		cfg:       cfg,
		classes:   classes,
		localizer: localizer,
		tracks:    make(map[int64]*Track),
		nextID:    1,
	}
}

// Update processes one frame of detections and returns a snapshot of every
// live track, ordered by id. frameWidth and frameHeight are the pixel
// dimensions the detections were scaled to.
//
// Per frame:
//  1. every track's FramesSinceUpdate is incremented;
//  2. detections are associated to unmatched same-class tracks by IoU;
//  3. matched tracks take the detection's box and confidence, reset their
//     counter, record history and are re-localised;
//  4. unmatched detections of tracked classes become new tracks;
//  5. tracks whose counter exceeds MaxFramesSinceUpdate are evicted.
func (t *Tracker) Update(dets []detection.Detection, frameWidth, frameHeight float64) []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.sortedIDs()

	// Step 1: age every track.
	for _, id := range ids {
		tr := t.tracks[id]
		tr.FramesSinceUpdate++
		tr.Updated = false
	}

	// Step 2: associate.
	var assign []int64
	if t.cfg.Association == config.AssociationOptimal {
		assign = t.associateOptimal(dets, ids)
	} else {
		assign = t.associateGreedy(dets, ids)
	}

	// Step 3: update matched tracks.
	for i, id := range assign {
		if id == 0 {
			continue
		}
		tr := t.tracks[id]
		d := dets[i]
		tr.Rect = d.Rect
		tr.Confidence = d.Confidence
		tr.FramesSinceUpdate = 0
		tr.Updated = true
		tr.pushHistory(d.Rect, t.cfg.HistoryCapacity)
		t.localize(tr, frameWidth, frameHeight)
	}

	// Step 4: create tracks from unmatched detections.
	for i, id := range assign {
		if id != 0 {
			continue
		}
		d := dets[i]
		if !t.classes.Tracked(d.Class) {
			continue
		}
		if t.cfg.MaxTracks > 0 && len(t.tracks) >= t.cfg.MaxTracks {
			continue
		}
		tr := &Track{
			ID:         t.nextID,
			Class:      d.Class,
			Rect:       d.Rect,
			Confidence: d.Confidence,
			Color:      ClassColor(d.Class),
			Updated:    true,
		}
		t.nextID++
		t.created++
		tr.pushHistory(d.Rect, t.cfg.HistoryCapacity)
		t.localize(tr, frameWidth, frameHeight)
		t.tracks[tr.ID] = tr
	}

	// Step 5: evict stale tracks. Ids are never reassigned.
	for id, tr := range t.tracks {
		if tr.FramesSinceUpdate > t.cfg.MaxFramesSinceUpdate {
			delete(t.tracks, id)
			t.evicted++
		}
	}

	return t.snapshotLocked()
}

// associateGreedy visits detections in input order; each takes the
// still-unmatched same-class track with the strictly highest IoU above the
// threshold. Ties keep the lower id. The result maps detection index to
// track id, 0 for unmatched.
func (t *Tracker) associateGreedy(dets []detection.Detection, ids []int64) []int64 {
	assign := make([]int64, len(dets))
	matched := make(map[int64]bool, len(ids))

	for i, d := range dets {
		var best int64
		bestIoU := t.cfg.IoUThreshold
		for _, id := range ids {
			if matched[id] {
				continue
			}
			tr := t.tracks[id]
			if tr.Class != d.Class {
				continue
			}
			if iou := IoU(d.Rect, tr.Rect); iou > bestIoU {
				best = id
				bestIoU = iou
			}
		}
		if best != 0 {
			assign[i] = best
			matched[best] = true
		}
	}
	return assign
}

// associateOptimal solves the same association as a minimum-cost assignment
// over cost = 1-IoU, with different-class pairs and pairs at or below the
// threshold forbidden.
func (t *Tracker) associateOptimal(dets []detection.Detection, ids []int64) []int64 {
	assign := make([]int64, len(dets))
	if len(dets) == 0 || len(ids) == 0 {
		return assign
	}

	cost := make([][]float64, len(dets))
	for i, d := range dets {
		cost[i] = make([]float64, len(ids))
		for j, id := range ids {
			tr := t.tracks[id]
			iou := 0.0
			if tr.Class == d.Class {
				iou = IoU(d.Rect, tr.Rect)
			}
			if iou > t.cfg.IoUThreshold {
				cost[i][j] = 1 - iou
			} else {
				cost[i][j] = forbiddenCost
			}
		}
	}

	for i, col := range hungarianAssign(cost) {
		if col >= 0 {
			assign[i] = ids[col]
		}
	}
	return assign
}

// localize refreshes the track's 3D estimate. A failed estimate keeps the
// previous one.
func (t *Tracker) localize(tr *Track, frameWidth, frameHeight float64) {
	cx, cy := tr.Rect.Center()
	est, ok := t.localizer.Localize(tr.Class, cx, cy, tr.Rect.Height(), frameWidth, frameHeight)
	if !ok {
		return
	}
	tr.Spatial = spatialFromEstimate(est)
}

// Tracks returns a snapshot of every live track, ordered by id.
func (t *Tracker) Tracks() []Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Stats reports lifetime counters: tracks created and tracks evicted.
func (t *Tracker) Stats() (created, evicted int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.created, t.evicted
}

// Reset drops every track. Ids continue from where they were so an id is
// never handed out twice by the same tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int64]*Track)
}

func (t *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) snapshotLocked() []Track {
	ids := t.sortedIDs()
	out := make([]Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.tracks[id].clone())
	}
	return out
}
