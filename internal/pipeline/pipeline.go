package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/geotrack/internal/config"
	"github.com/banshee-data/geotrack/internal/detection"
	"github.com/banshee-data/geotrack/internal/geometry"
	"github.com/banshee-data/geotrack/internal/geostore"
	"github.com/banshee-data/geotrack/internal/ratelimit"
	"github.com/banshee-data/geotrack/internal/timeutil"
	"github.com/banshee-data/geotrack/internal/tracking"
)

// Frame is one frame of detector output. Image optionally carries the
// encoded camera frame (JPEG or PNG) the detections were made on.
type Frame struct {
	Width      float64         `json:"width"`
	Height     float64         `json:"height"`
	Timestamp  time.Time       `json:"timestamp"`
	Detections []detection.Raw `json:"detections"`
	Image      []byte          `json:"image,omitempty"`
}

// FrameResult is the state published after a frame: every live track.
type FrameResult struct {
	Sequence  int64            `json:"sequence"`
	Timestamp time.Time        `json:"timestamp"`
	Width     float64          `json:"width"`
	Height    float64          `json:"height"`
	Tracks    []tracking.Track `json:"tracks"`

	// Persisting is true when this frame opened the persistence gate.
	Persisting bool `json:"persisting"`
}

// Annotation is optional extra data attached to a persisted observation.
type Annotation struct {
	Image []byte
	Text  *string
}

// Annotator supplies a crop image and recognised text for a track.
type Annotator interface {
	Annotate(ctx context.Context, frame Frame, track tracking.Track) (Annotation, error)
}

// Publisher receives every frame result, for example to drive an overlay.
// Publish must not block.
type Publisher interface {
	Publish(result FrameResult)
}

// Config holds the collaborators and tuning of a Pipeline.
type Config struct {
	Tuning     *config.TuningConfig
	Repository *geostore.Repository
	Location   LocationProvider

	Annotator Annotator      // optional
	Publisher Publisher      // optional
	Clock     timeutil.Clock // optional, defaults to the real clock

	// Session namespaces record keys so track ids restarting with the
	// process never merge into paths of unrelated objects. Defaults to a
	// random uuid.
	Session string
}

// Pipeline processes frames in order and persists track paths.
type Pipeline struct {
	tracker   *tracking.Tracker
	classes   detection.Classes
	limiter   *ratelimit.Limiter
	repo      *geostore.Repository
	location  LocationProvider
	annotator Annotator
	publisher Publisher
	clock     timeutil.Clock
	session   string

	frameMu  sync.Mutex
	sequence int64

	latestMu sync.RWMutex
	latest   FrameResult

	inflight sync.WaitGroup
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Repository == nil {
		return nil, errors.New("pipeline: repository is required")
	}
	if cfg.Location == nil {
		return nil, errors.New("pipeline: location provider is required")
	}
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	session := cfg.Session
	if session == "" {
		session = uuid.NewString()
	}

	heights := geometry.NewHeightTable(tuning.GetClassHeights())
	classes := detection.NewClasses(tuning.GetTrackedClasses(), heights)
	localizer := geometry.NewLocalizer(geometry.IntrinsicsFromTuning(tuning), heights)

	return &Pipeline{
		tracker:   tracking.NewTracker(tracking.TrackerConfigFromTuning(tuning), classes, localizer),
		classes:   classes,
		limiter:   ratelimit.New(tuning.GetPersistInterval(), clock),
		repo:      cfg.Repository,
		location:  cfg.Location,
		annotator: cfg.Annotator,
		publisher: cfg.Publisher,
		clock:     clock,
		session:   session,
	}, nil
}

// Session returns the key namespace of this pipeline.
func (p *Pipeline) Session() string {
	return p.session
}

// ProcessFrame runs one frame through the tracker, publishes the result and,
// when the persistence gate is open, starts persisting the tracks updated in
// this frame. Persistence outlives ctx cancellation; use Wait to drain it.
func (p *Pipeline) ProcessFrame(ctx context.Context, f Frame) FrameResult {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()

	if f.Timestamp.IsZero() {
		f.Timestamp = p.clock.Now()
	}

	dets := detection.Normalize(f.Detections, f.Width, f.Height, p.classes)
	tracks := p.tracker.Update(dets, f.Width, f.Height)
	p.sequence++

	result := FrameResult{
		Sequence:  p.sequence,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Tracks:    tracks,
	}

	batch := persistable(tracks)
	if len(batch) > 0 {
		result.Persisting = p.limiter.Run(func() {
			p.inflight.Add(1)
			go func() {
				defer p.inflight.Done()
				p.persist(context.WithoutCancel(ctx), f, batch)
			}()
		})
	}

	tracef("frame %d: %d raw, %d tracked detections, %d live tracks, persisting=%t",
		result.Sequence, len(f.Detections), len(dets), len(tracks), result.Persisting)

	p.latestMu.Lock()
	p.latest = result
	p.latestMu.Unlock()

	if p.publisher != nil {
		p.publisher.Publish(result)
	}
	return result
}

// Latest returns the result of the most recent frame.
func (p *Pipeline) Latest() FrameResult {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	return p.latest
}

// Wait blocks until every in-flight persistence batch has finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// persistable selects the tracks matched or created this frame that have a
// 3D estimate.
func persistable(tracks []tracking.Track) []tracking.Track {
	var out []tracking.Track
	for _, tr := range tracks {
		if tr.Updated && tr.Estimated() {
			out = append(out, tr)
		}
	}
	return out
}

// persist merges one batch. The location is read once for the whole batch;
// without it the batch is skipped.
func (p *Pipeline) persist(ctx context.Context, f Frame, batch []tracking.Track) {
	fix, err := p.location.CurrentFix(ctx)
	if err != nil {
		opsf("skipping %d track(s): location unavailable: %v", len(batch), err)
		return
	}
	if !fix.Valid() {
		opsf("skipping %d track(s): invalid location %+v", len(batch), fix)
		return
	}

	var stored int
	for _, tr := range batch {
		if err := p.persistTrack(ctx, f, fix, tr); err != nil {
			opsf("track %d (%s): %v", tr.ID, tr.Class, err)
			continue
		}
		stored++
	}
	diagf("persisted %d/%d track(s) at %.6f,%.6f heading %.1f", stored, len(batch), fix.Lat, fix.Lon, fix.Heading)
}

func (p *Pipeline) persistTrack(ctx context.Context, f Frame, fix geometry.Fix, tr tracking.Track) error {
	s := tr.Spatial
	coord := geometry.Project(fix, r3.Vec{X: s.X, Y: s.Y, Z: s.Z})

	obs := geostore.Observation{
		Key:        RecordKey(tr.Class, tr.ID, p.session),
		Name:       DisplayName(tr.Class, tr.ID),
		Icon:       tr.Class,
		Coordinate: coord,
		Time:       f.Timestamp,
	}

	if p.annotator != nil {
		ann, err := p.annotator.Annotate(ctx, f, tr)
		if err != nil {
			opsf("track %d (%s): annotation failed, recording without it: %v", tr.ID, tr.Class, err)
		} else {
			obs.Image = ann.Image
			obs.DetectedText = ann.Text
		}
	}

	if _, err := p.repo.UpsertAndAppend(ctx, obs); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// RecordKey returns the durable key for a track: "<class>-<id>-<session>".
func RecordKey(class string, id int64, session string) string {
	return fmt.Sprintf("%s-%d-%s", class, id, session)
}

// DisplayName returns "<Class> #<id>" with the class label capitalised.
func DisplayName(class string, id int64) string {
	r, size := utf8.DecodeRuneInString(class)
	if r == utf8.RuneError {
		return fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("%s%s #%d", string(unicode.ToUpper(r)), strings.ToLower(class[size:]), id)
}
