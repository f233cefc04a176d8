package traffic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/timeutil"
)

// recentCap bounds the published recent-violations history.
const recentCap = 10

// detectorDedupWindow is how many recent violations are consulted when
// deduplicating detector-reported events by type.
const detectorDedupWindow = 5

// PipelineConfig carries the orchestrator's own knobs. The domain
// components (estimator, classifier, recorder) are configured separately
// and injected.
type PipelineConfig struct {
	// Loop rewinds the source and resets processing state on EOF instead
	// of stopping, for file playback.
	Loop bool
	// RetryDelay is the pause after a per-frame failure before the worker
	// retries. Defaults to one second.
	RetryDelay time.Duration
}

// PipelineDeps are the collaborators a pipeline drives. Source and
// Detector are required; the rest are optional and skipped when nil.
type PipelineDeps struct {
	Source     FrameSource
	Detector   Detector
	Estimator  *SpeedEstimator
	Classifier *BehaviorClassifier
	Counter    *LineCounter
	Recorder   ClipRecorder
	Clock      timeutil.Clock
	// OnViolation is invoked once per newly emitted violation, outside
	// the pipeline's lock. It must not block for long; the worker waits
	// on it.
	OnViolation func(Violation)
}

// Status is a consistent snapshot of the pipeline's published state.
type Status struct {
	Running         bool        `json:"running"`
	FrameIndex      int         `json:"frame_index"`
	InCount         int         `json:"in_count"`
	OutCount        int         `json:"out_count"`
	TotalViolations int         `json:"total_violations"`
	Recent          []Violation `json:"recent_violations"`
	Active          []Violation `json:"active_violations"`
}

// Pipeline sequences the per-frame stages: detect, count line crossings,
// estimate speeds, classify behavior, record clips, publish counters,
// dispatch callbacks. One background worker owns the frame loop; all
// published state is guarded by a single mutex so status readers never
// observe a partially updated frame.
type Pipeline struct {
	cfg  PipelineConfig
	deps PipelineDeps

	mu           sync.Mutex
	running      bool
	resetPending bool
	frameIndex   int
	inCount      int
	outCount     int
	totalCount   int
	recent       *ring[Violation]
	active       []Violation
	latest       Frame

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPipeline builds a pipeline over deps. The counting line defaults to
// the auto-derived horizontal line when no counter is supplied.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) (*Pipeline, error) {
	if deps.Source == nil {
		return nil, errors.New("pipeline: frame source is required")
	}
	if deps.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Counter == nil {
		info := deps.Source.Info()
		start, end := AutoCountingLine(info.Width, info.Height)
		deps.Counter = NewLineCounter(start, end)
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		recent: newRing[Violation](recentCap),
	}, nil
}

// Start launches the background worker. Starting a running pipeline is an
// error.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("pipeline: already running")
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	monitoring.Logf("pipeline: worker started")
	return nil
}

// Stop signals the worker and waits for it to finish the current frame.
// Stopping an idle pipeline is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	monitoring.Logf("pipeline: worker stopped")
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(done)
	}()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.mu.Lock()
		if p.resetPending {
			p.resetPending = false
			p.resetDomainLocked()
			idx = 0
		}
		p.mu.Unlock()

		frame, err := p.deps.Source.Next()
		if errors.Is(err, io.EOF) {
			if !p.cfg.Loop {
				return
			}
			if err := p.deps.Source.Rewind(); err != nil {
				monitoring.Logf("pipeline: rewind: %v", err)
				p.deps.Clock.Sleep(p.cfg.RetryDelay)
				continue
			}
			p.Reset()
			monitoring.Logf("pipeline: source rewound for next loop cycle")
			continue
		}
		if err != nil {
			monitoring.Logf("pipeline: next frame: %v", err)
			p.deps.Clock.Sleep(p.cfg.RetryDelay)
			continue
		}

		if err := p.ProcessFrame(frame, idx); err != nil {
			monitoring.Logf("pipeline: frame %d: %v", idx, err)
			p.deps.Clock.Sleep(p.cfg.RetryDelay)
		}
		frame.Close()
		idx++
	}
}

// ProcessFrame runs every stage for one frame. It is exported for
// single-stepping in offline processing; the background worker calls it in
// sequence and callers must not mix the two.
func (p *Pipeline) ProcessFrame(frame Frame, frameIndex int) error {
	dets, err := p.deps.Detector.Detect(frame, frameIndex)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	in, out := p.deps.Counter.Update(dets)

	speeds := make(map[int64]float64)
	if p.deps.Estimator != nil {
		for _, d := range dets {
			if d.TrackID < 0 {
				continue
			}
			center := geom.Point{X: d.Box.CenterX(), Y: d.Box.CenterY()}
			if kmh, ok := p.deps.Estimator.Update(d.TrackID, center, frameIndex); ok {
				speeds[d.TrackID] = kmh
			}
		}
	}

	var violations []Violation
	var active []Violation
	if p.deps.Classifier != nil {
		violations = p.deps.Classifier.Analyze(dets, frameIndex, speeds)
		active = p.deps.Classifier.Active()
	}

	// Violations open their clips before the trigger frame is fed, so the
	// pre-event snapshot excludes it.
	if p.deps.Recorder != nil {
		for _, v := range violations {
			p.deps.Recorder.OnViolation(v)
		}
		p.deps.Recorder.OnFrame(frame)
	}

	p.mu.Lock()
	p.frameIndex = frameIndex
	p.inCount += in
	p.outCount += out
	p.totalCount += len(violations)
	for _, v := range violations {
		p.recent.Push(v)
	}
	p.active = active
	if p.latest != nil {
		p.latest.Close()
	}
	p.latest = frame.Clone()
	cb := p.deps.OnViolation
	p.mu.Unlock()

	if cb != nil {
		for _, v := range violations {
			cb(v)
		}
	}
	return nil
}

// ReportDetectorViolation accepts a violation reported directly by a
// specialist upstream detector (sentinel track id, no matched track).
// Unknown types are dropped. The event is deduplicated against the types
// of the most recent violations; survivors are counted, published and
// dispatched to the callback, but no clip is recorded. Reports whether
// the violation was accepted.
func (p *Pipeline) ReportDetectorViolation(v Violation) bool {
	if !KnownViolationType(v.Type) {
		monitoring.Logf("pipeline: dropping unknown violation type %q", v.Type)
		return false
	}

	p.mu.Lock()
	for _, t := range p.recentTypesLocked() {
		if t == v.Type {
			p.mu.Unlock()
			return false
		}
	}
	p.totalCount++
	p.recent.Push(v)
	cb := p.deps.OnViolation
	p.mu.Unlock()

	monitoring.Logf("pipeline: detector violation %s at frame %d", v.Type, v.FrameIndex)
	if cb != nil {
		cb(v)
	}
	return true
}

// recentTypesLocked returns the types of the last few published
// violations. Caller holds p.mu.
func (p *Pipeline) recentTypesLocked() []ViolationType {
	n := p.recent.Len()
	from := 0
	if n > detectorDedupWindow {
		from = n - detectorDedupWindow
	}
	types := make([]ViolationType, 0, n-from)
	for i := from; i < n; i++ {
		types = append(types, p.recent.At(i).Type)
	}
	return types
}

// Status returns a consistent snapshot of the published counters.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	recent := make([]Violation, p.recent.Len())
	for i := range recent {
		recent[i] = p.recent.At(i)
	}
	active := make([]Violation, len(p.active))
	copy(active, p.active)

	return Status{
		Running:         p.running,
		FrameIndex:      p.frameIndex,
		InCount:         p.inCount,
		OutCount:        p.outCount,
		TotalViolations: p.totalCount,
		Recent:          recent,
		Active:          active,
	}
}

// LatestFrame returns a clone of the most recently processed frame, or
// nil before the first frame. The caller owns the clone.
func (p *Pipeline) LatestFrame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return nil
	}
	return p.latest.Clone()
}

// Reset zeroes the published counters and clears all per-track state, the
// counting line and the active list, for stream restarts and loops. While
// the worker is running the domain-state reset is applied just before the
// next frame so it never races the frame stages.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inCount = 0
	p.outCount = 0
	p.totalCount = 0
	p.frameIndex = 0
	p.recent.Reset()
	p.active = nil
	if p.running {
		p.resetPending = true
		return
	}
	p.resetDomainLocked()
}

func (p *Pipeline) resetDomainLocked() {
	if p.deps.Estimator != nil {
		p.deps.Estimator.Reset()
	}
	if p.deps.Classifier != nil {
		p.deps.Classifier.Reset()
	}
	p.deps.Counter.Reset()
	monitoring.Logf("pipeline: processing state reset")
}

// Close stops the worker and releases held resources. The frame source
// and recorder are closed; collaborator errors are joined.
func (p *Pipeline) Close() error {
	p.Stop()

	p.mu.Lock()
	if p.latest != nil {
		p.latest.Close()
		p.latest = nil
	}
	p.mu.Unlock()

	var errs []error
	if p.deps.Recorder != nil {
		if err := p.deps.Recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
	}
	if err := p.deps.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	return errors.Join(errs...)
}
