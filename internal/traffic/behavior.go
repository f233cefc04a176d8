package traffic

import (
	"time"

	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/timeutil"
)

// timestampLayout formats the wall-clock trigger instant for clip ids.
const timestampLayout = "20060102_150405"

// BehaviorConfig holds the thresholds for behavior classification. Speeds
// are km/h, durations seconds, distances fractions of the frame.
type BehaviorConfig struct {
	FPS    float64
	Width  int
	Height int
	Mode   MonitoringMode

	SpeedLimitKMH         float64 // above this in a road lane: SPEEDING
	StationarySpeedKMH    float64 // below this a track is stationary
	LoiterSpeedCeilingKMH float64 // upper bound of the loitering speed band

	StationaryTime     float64 // seconds before SUDDEN_STOP / CROOKED_PARKING
	IllegalParkingTime float64 // seconds stationary in NO_PARKING
	LoiteringTime      float64 // seconds of sustained slow movement

	CrookedDistance float64 // normalized distance from spot centroid

	Cooldown         time.Duration // wall-clock dedup window per (track, type)
	ActiveTTL        float64       // virtual-time seconds an active entry lives
	HistorySeconds   float64       // path history retained per track
	WrongWayFraction float64       // frame-height fraction for wrong-way drift
}

// DefaultBehaviorConfig returns the standard thresholds.
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		Mode:                  ModeBoth,
		SpeedLimitKMH:         60.0,
		StationarySpeedKMH:    2.0,
		LoiterSpeedCeilingKMH: 10.0,
		StationaryTime:        5.0,
		IllegalParkingTime:    15.0,
		LoiteringTime:         15.0,
		CrookedDistance:       0.2,
		Cooldown:              10 * time.Second,
		ActiveTTL:             3.0,
		HistorySeconds:        10.0,
		WrongWayFraction:      0.1,
	}
}

// pathSample is one point of a track's trajectory history.
type pathSample struct {
	x, y  float64 // pixel center
	vtime float64 // frame_index / fps
	speed float64 // km/h at that instant
}

type cooldownKey struct {
	trackID int64
	vtype   ViolationType
}

// BehaviorClassifier turns raw track trajectories into typed violation
// events. It keeps per-track state (path history, stationary timers) that
// is re-evaluated on every frame the track appears in, and deduplicates
// emissions per (track, type) with a wall-clock cooldown.
type BehaviorClassifier struct {
	cfg   BehaviorConfig
	zones *ZoneIndex
	clock timeutil.Clock

	history         *ringArena[pathSample]
	stationaryStart map[int64]float64 // track id -> virtual time first seen stationary
	cooldown        map[cooldownKey]time.Time
	active          []Violation
}

// NewBehaviorClassifier creates a classifier. Zero thresholds in cfg are
// replaced with the defaults; FPS, Width and Height are required.
func NewBehaviorClassifier(cfg BehaviorConfig, zones *ZoneIndex, clock timeutil.Clock) *BehaviorClassifier {
	def := DefaultBehaviorConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.SpeedLimitKMH == 0 {
		cfg.SpeedLimitKMH = def.SpeedLimitKMH
	}
	if cfg.StationarySpeedKMH == 0 {
		cfg.StationarySpeedKMH = def.StationarySpeedKMH
	}
	if cfg.LoiterSpeedCeilingKMH == 0 {
		cfg.LoiterSpeedCeilingKMH = def.LoiterSpeedCeilingKMH
	}
	if cfg.StationaryTime == 0 {
		cfg.StationaryTime = def.StationaryTime
	}
	if cfg.IllegalParkingTime == 0 {
		cfg.IllegalParkingTime = def.IllegalParkingTime
	}
	if cfg.LoiteringTime == 0 {
		cfg.LoiteringTime = def.LoiteringTime
	}
	if cfg.CrookedDistance == 0 {
		cfg.CrookedDistance = def.CrookedDistance
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.ActiveTTL == 0 {
		cfg.ActiveTTL = def.ActiveTTL
	}
	if cfg.HistorySeconds == 0 {
		cfg.HistorySeconds = def.HistorySeconds
	}
	if cfg.WrongWayFraction == 0 {
		cfg.WrongWayFraction = def.WrongWayFraction
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &BehaviorClassifier{
		cfg:             cfg,
		zones:           zones,
		clock:           clock,
		history:         newRingArena[pathSample](int(cfg.FPS * cfg.HistorySeconds)),
		stationaryStart: make(map[int64]float64),
		cooldown:        make(map[cooldownKey]time.Time),
	}
}

// Analyze evaluates one frame of detections and returns the batch of newly
// emitted (non-duplicate) violations. speeds maps track id to the current
// km/h reading; tracks without a reading are treated as speed 0.
func (c *BehaviorClassifier) Analyze(dets []Detection, frameIndex int, speeds map[int64]float64) []Violation {
	now := float64(frameIndex) / c.cfg.FPS

	// Expire stale active-violation entries before processing the frame.
	kept := c.active[:0]
	for _, v := range c.active {
		if now-v.VTime < c.cfg.ActiveTTL {
			kept = append(kept, v)
		}
	}
	c.active = kept

	var batch []Violation
	for _, d := range dets {
		if d.TrackID < 0 {
			// Detections the tracker failed to identify are skipped.
			continue
		}
		c.analyzeTrack(d, frameIndex, now, speeds[d.TrackID], &batch)
	}
	return batch
}

func (c *BehaviorClassifier) analyzeTrack(d Detection, frameIndex int, now, speed float64, batch *[]Violation) {
	center := geom.Point{X: d.Box.CenterX(), Y: d.Box.CenterY()}

	hist := c.history.Get(d.TrackID)
	hist.Push(pathSample{x: center.X, y: center.Y, vtime: now, speed: speed})

	zone, inZone := c.zones.Classify(center)

	// Speeding applies only inside a road lane.
	if speed > c.cfg.SpeedLimitKMH && inZone && zone.Category == ZoneRoadLane {
		c.trigger(d.TrackID, ViolationSpeeding, frameIndex, now, speed, batch)
	}

	if speed < c.cfg.StationarySpeedKMH {
		start, ok := c.stationaryStart[d.TrackID]
		if !ok {
			start = now
			c.stationaryStart[d.TrackID] = now
		}
		stationaryFor := now - start

		switch {
		case inZone && zone.Category == ZoneNoParking:
			if stationaryFor > c.cfg.IllegalParkingTime {
				c.trigger(d.TrackID, ViolationIllegalParking, frameIndex, now, 0, batch)
			}
		case inZone && zone.Category == ZoneParkingSpot:
			if c.isCrooked(center, zone) && stationaryFor > c.cfg.StationaryTime {
				c.trigger(d.TrackID, ViolationCrookedParking, frameIndex, now, 0, batch)
			}
		case !inZone && c.cfg.Mode != ModeParking:
			// Stopped on screen outside any designated zone.
			if stationaryFor > c.cfg.StationaryTime {
				c.trigger(d.TrackID, ViolationSuddenStop, frameIndex, now, 0, batch)
			}
		}
	} else {
		delete(c.stationaryStart, d.TrackID)
	}

	// Loitering: moving, but slowly, for too long.
	if speed > c.cfg.StationarySpeedKMH && speed < c.cfg.LoiterSpeedCeilingKMH {
		if c.loiteringDuration(hist) > c.cfg.LoiteringTime {
			c.trigger(d.TrackID, ViolationLoitering, frameIndex, now, speed, batch)
		}
	}

	// Wrong way needs a road lane and at least a second of history.
	if inZone && zone.Category == ZoneRoadLane && float64(hist.Len()) > c.cfg.FPS {
		if c.isWrongWay(hist, zone) {
			c.trigger(d.TrackID, ViolationWrongWay, frameIndex, now, speed, batch)
		}
	}
}

// isCrooked reports whether the vehicle center strays too far from the
// parking spot's centroid, measured in normalized frame units.
func (c *BehaviorClassifier) isCrooked(center geom.Point, zone *Zone) bool {
	spot := zone.Polygon.Centroid() // normalized space
	norm := geom.Point{
		X: center.X / float64(c.cfg.Width),
		Y: center.Y / float64(c.cfg.Height),
	}
	return norm.Dist(spot) > c.cfg.CrookedDistance
}

// loiteringDuration returns the contiguous trailing time the track has
// spent inside the loitering speed band.
func (c *BehaviorClassifier) loiteringDuration(hist *ring[pathSample]) float64 {
	if hist.Len() == 0 {
		return 0
	}
	newest := hist.Newest()
	start := newest.vtime
	for i := hist.Len() - 1; i >= 0; i-- {
		s := hist.At(i)
		if s.speed > c.cfg.StationarySpeedKMH && s.speed < c.cfg.LoiterSpeedCeilingKMH {
			start = s.vtime
		} else {
			break
		}
	}
	return newest.vtime - start
}

// isWrongWay compares the track's vertical drift across the retained window
// against the zone's legal direction of travel.
func (c *BehaviorClassifier) isWrongWay(hist *ring[pathSample], zone *Zone) bool {
	startY := hist.Oldest().y
	endY := hist.Newest().y
	limit := float64(c.cfg.Height) * c.cfg.WrongWayFraction

	switch zone.Direction {
	case TravelUp:
		return endY-startY > limit
	default: // TravelDown
		return startY-endY > limit
	}
}

// trigger passes a candidate emission through the cooldown and, if it
// survives, appends it to the batch and refreshes the active list.
func (c *BehaviorClassifier) trigger(trackID int64, vt ViolationType, frameIndex int, vtime, speed float64, batch *[]Violation) {
	key := cooldownKey{trackID: trackID, vtype: vt}
	if last, ok := c.cooldown[key]; ok && c.clock.Since(last) < c.cfg.Cooldown {
		return
	}
	c.cooldown[key] = c.clock.Now()

	v := Violation{
		TrackID:    trackID,
		Type:       vt,
		FrameIndex: frameIndex,
		Timestamp:  c.clock.Now().Format(timestampLayout),
		VTime:      vtime,
		SpeedKMH:   speed,
	}
	*batch = append(*batch, v)

	// Refresh the live entry for this (track, type) or add one; the active
	// list never holds duplicates.
	for i := range c.active {
		if c.active[i].TrackID == trackID && c.active[i].Type == vt {
			c.active[i].VTime = v.VTime
			monitoring.Logf("violation refreshed: %s (track %d) at frame %d", vt, trackID, frameIndex)
			return
		}
	}
	c.active = append(c.active, v)
	monitoring.Logf("violation detected: %s (track %d) at frame %d", vt, trackID, frameIndex)
}

// Active returns a copy of the live violations used for overlay/liveness.
func (c *BehaviorClassifier) Active() []Violation {
	out := make([]Violation, len(c.active))
	copy(out, c.active)
	return out
}

// Forget drops per-track state for a track that left the scene. Cooldown
// stamps survive so a re-identified track cannot re-alert immediately.
func (c *BehaviorClassifier) Forget(trackID int64) {
	c.history.Forget(trackID)
	delete(c.stationaryStart, trackID)
}

// Reset clears all per-track timers, path history and active violations,
// e.g. when the stream loops. Wall-clock cooldowns are retained.
func (c *BehaviorClassifier) Reset() {
	c.history.Reset()
	c.stationaryStart = make(map[int64]float64)
	c.active = nil
}
