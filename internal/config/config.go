// Package config loads the site configuration file: monitoring mode,
// behavior thresholds, zones, calibration and recording options. Fields
// omitted from the JSON keep their defaults through the Get* accessors, so
// partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/traffic"
)

// ZoneConfig is one monitored region: a normalized polygon with a category
// and, for road lanes, the legal direction of travel.
type ZoneConfig struct {
	Name     string       `json:"name"`
	Category string       `json:"category"`
	Polygon  [][2]float64 `json:"polygon"`
	// Direction is "DOWN" or "UP"; road lanes default to DOWN.
	Direction *string `json:"direction,omitempty"`
}

// SiteConfig is the root configuration for one monitored feed.
type SiteConfig struct {
	// Mode selects which behavior rules run: ROAD, PARKING or BOTH.
	Mode *string `json:"monitoring_mode,omitempty"`

	// Video source. FPS nil means detect from the stream.
	VideoPath *string  `json:"video_path,omitempty"`
	VideoFPS  *float64 `json:"video_fps,omitempty"`
	Loop      *bool    `json:"loop,omitempty"`

	// Behavior thresholds.
	SpeedLimitKMH         *float64 `json:"speed_limit_kmh,omitempty"`
	StationarySpeedKMH    *float64 `json:"stationary_speed_kmh,omitempty"`
	StationaryTimeSec     *float64 `json:"stationary_time_seconds,omitempty"`
	IllegalParkingTimeSec *float64 `json:"illegal_parking_seconds,omitempty"`
	LoiteringTimeSec      *float64 `json:"loitering_seconds,omitempty"`
	CrookedDistance       *float64 `json:"crooked_parking_distance,omitempty"`
	ViolationCooldown     *string  `json:"violation_cooldown,omitempty"` // duration string like "10s"

	// Zones, normalized 0..1.
	Zones []ZoneConfig `json:"zones,omitempty"`

	// Counting line endpoints in pixels; nil derives a horizontal line at
	// 70% of the frame height.
	LineStart *[2]float64 `json:"line_start,omitempty"`
	LineEnd   *[2]float64 `json:"line_end,omitempty"`

	// Speed calibration: four image points (top-left, top-right,
	// bottom-left, bottom-right) mapped onto a flat rectangle of the given
	// real-world size in meters. Nil source points derive a road section
	// from the frame size.
	EnableSpeedEstimation *bool          `json:"enable_speed_estimation,omitempty"`
	SourcePoints          *[4][2]float64 `json:"source_points,omitempty"`
	TargetWidthMeters     *float64       `json:"target_width_meters,omitempty"`
	TargetHeightMeters    *float64       `json:"target_height_meters,omitempty"`

	// Violation clip recording.
	EnableRecording *bool    `json:"enable_violation_recording,omitempty"`
	OutputDir       *string  `json:"violation_output_dir,omitempty"`
	PreEventSec     *float64 `json:"pre_violation_seconds,omitempty"`
	PostEventSec    *float64 `json:"post_violation_seconds,omitempty"`
}

// Load reads and validates a SiteConfig from a JSON file.
func Load(path string) (*SiteConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SiteConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values that are set.
func (c *SiteConfig) Validate() error {
	if c.Mode != nil {
		switch traffic.MonitoringMode(*c.Mode) {
		case traffic.ModeRoad, traffic.ModeParking, traffic.ModeBoth:
		default:
			return fmt.Errorf("monitoring_mode must be ROAD, PARKING or BOTH, got %q", *c.Mode)
		}
	}
	if c.SpeedLimitKMH != nil && *c.SpeedLimitKMH <= 0 {
		return fmt.Errorf("speed_limit_kmh must be positive, got %f", *c.SpeedLimitKMH)
	}
	if c.ViolationCooldown != nil && *c.ViolationCooldown != "" {
		if _, err := time.ParseDuration(*c.ViolationCooldown); err != nil {
			return fmt.Errorf("invalid violation_cooldown '%s': %w", *c.ViolationCooldown, err)
		}
	}
	if c.PreEventSec != nil && *c.PreEventSec < 0 {
		return fmt.Errorf("pre_violation_seconds must be non-negative, got %f", *c.PreEventSec)
	}
	if c.PostEventSec != nil && *c.PostEventSec < 0 {
		return fmt.Errorf("post_violation_seconds must be non-negative, got %f", *c.PostEventSec)
	}
	if c.VideoFPS != nil && *c.VideoFPS <= 0 {
		return fmt.Errorf("video_fps must be positive, got %f", *c.VideoFPS)
	}
	for i, z := range c.Zones {
		switch traffic.ZoneCategory(z.Category) {
		case traffic.ZoneParkingSpot, traffic.ZoneNoParking, traffic.ZoneRoadLane:
		default:
			return fmt.Errorf("zone %d (%s): unknown category %q", i, z.Name, z.Category)
		}
		if z.Direction != nil {
			switch traffic.TravelDirection(*z.Direction) {
			case traffic.TravelDown, traffic.TravelUp:
			default:
				return fmt.Errorf("zone %d (%s): direction must be DOWN or UP, got %q", i, z.Name, *z.Direction)
			}
		}
	}
	return nil
}

// GetMode returns the monitoring mode or BOTH.
func (c *SiteConfig) GetMode() traffic.MonitoringMode {
	if c.Mode == nil {
		return traffic.ModeBoth
	}
	return traffic.MonitoringMode(*c.Mode)
}

// GetVideoPath returns the configured video path or the empty string.
func (c *SiteConfig) GetVideoPath() string {
	if c.VideoPath == nil {
		return ""
	}
	return *c.VideoPath
}

// GetVideoFPS returns the configured frame rate, or detected when nil is
// passed through; zero means detect from the stream.
func (c *SiteConfig) GetVideoFPS() float64 {
	if c.VideoFPS == nil {
		return 0
	}
	return *c.VideoFPS
}

// GetLoop reports whether playback loops on EOF. Defaults to true for
// file sources.
func (c *SiteConfig) GetLoop() bool {
	if c.Loop == nil {
		return true
	}
	return *c.Loop
}

// GetSpeedLimitKMH returns the speeding threshold or the default.
func (c *SiteConfig) GetSpeedLimitKMH() float64 {
	if c.SpeedLimitKMH == nil {
		return 60.0
	}
	return *c.SpeedLimitKMH
}

// GetStationarySpeedKMH returns the stopped-speed threshold or the default.
func (c *SiteConfig) GetStationarySpeedKMH() float64 {
	if c.StationarySpeedKMH == nil {
		return 2.0
	}
	return *c.StationarySpeedKMH
}

// GetStationaryTime returns the stopped-duration threshold in seconds.
func (c *SiteConfig) GetStationaryTime() float64 {
	if c.StationaryTimeSec == nil {
		return 5.0
	}
	return *c.StationaryTimeSec
}

// GetIllegalParkingTime returns the NO_PARKING dwell threshold in seconds.
func (c *SiteConfig) GetIllegalParkingTime() float64 {
	if c.IllegalParkingTimeSec == nil {
		return 15.0
	}
	return *c.IllegalParkingTimeSec
}

// GetLoiteringTime returns the slow-movement threshold in seconds.
func (c *SiteConfig) GetLoiteringTime() float64 {
	if c.LoiteringTimeSec == nil {
		return 15.0
	}
	return *c.LoiteringTimeSec
}

// GetCrookedDistance returns the max normalized distance from a parking
// spot's centroid.
func (c *SiteConfig) GetCrookedDistance() float64 {
	if c.CrookedDistance == nil {
		return 0.2
	}
	return *c.CrookedDistance
}

// GetViolationCooldown parses and returns the per-(track, type) dedup
// window.
func (c *SiteConfig) GetViolationCooldown() time.Duration {
	if c.ViolationCooldown == nil || *c.ViolationCooldown == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.ViolationCooldown)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetEnableSpeedEstimation reports whether the speed estimator runs.
func (c *SiteConfig) GetEnableSpeedEstimation() bool {
	if c.EnableSpeedEstimation == nil {
		return true
	}
	return *c.EnableSpeedEstimation
}

// GetEnableRecording reports whether violation clips are recorded.
func (c *SiteConfig) GetEnableRecording() bool {
	if c.EnableRecording == nil {
		return true
	}
	return *c.EnableRecording
}

// GetOutputDir returns the clip output directory.
func (c *SiteConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return "violations"
	}
	return *c.OutputDir
}

// GetPreEventSeconds returns the clip lead-in duration.
func (c *SiteConfig) GetPreEventSeconds() float64 {
	if c.PreEventSec == nil {
		return 5.0
	}
	return *c.PreEventSec
}

// GetPostEventSeconds returns the clip lead-out duration.
func (c *SiteConfig) GetPostEventSeconds() float64 {
	if c.PostEventSec == nil {
		return 5.0
	}
	return *c.PostEventSec
}

// GetTargetWidthMeters returns the calibration rectangle width.
func (c *SiteConfig) GetTargetWidthMeters() float64 {
	if c.TargetWidthMeters == nil {
		return 20.0
	}
	return *c.TargetWidthMeters
}

// GetTargetHeightMeters returns the calibration rectangle height.
func (c *SiteConfig) GetTargetHeightMeters() float64 {
	if c.TargetHeightMeters == nil {
		return 30.0
	}
	return *c.TargetHeightMeters
}

// GetZones converts the configured zones into domain zones.
func (c *SiteConfig) GetZones() []traffic.Zone {
	zones := make([]traffic.Zone, 0, len(c.Zones))
	for _, z := range c.Zones {
		poly := make(geom.Polygon, 0, len(z.Polygon))
		for _, p := range z.Polygon {
			poly = append(poly, geom.Point{X: p[0], Y: p[1]})
		}
		zone := traffic.Zone{
			Name:     z.Name,
			Category: traffic.ZoneCategory(z.Category),
			Polygon:  poly,
		}
		if z.Direction != nil {
			zone.Direction = traffic.TravelDirection(*z.Direction)
		}
		zones = append(zones, zone)
	}
	return zones
}

// BehaviorConfig materializes the behavior thresholds for a stream of the
// given geometry.
func (c *SiteConfig) BehaviorConfig(width, height int, fps float64) traffic.BehaviorConfig {
	cfg := traffic.DefaultBehaviorConfig()
	cfg.FPS = fps
	cfg.Width = width
	cfg.Height = height
	cfg.Mode = c.GetMode()
	cfg.SpeedLimitKMH = c.GetSpeedLimitKMH()
	cfg.StationarySpeedKMH = c.GetStationarySpeedKMH()
	cfg.StationaryTime = c.GetStationaryTime()
	cfg.IllegalParkingTime = c.GetIllegalParkingTime()
	cfg.LoiteringTime = c.GetLoiteringTime()
	cfg.CrookedDistance = c.GetCrookedDistance()
	cfg.Cooldown = c.GetViolationCooldown()
	return cfg
}

// CountingLine returns the configured counting-line endpoints, or the
// auto-derived horizontal line for the frame size.
func (c *SiteConfig) CountingLine(width, height int) (start, end geom.Point) {
	if c.LineStart != nil && c.LineEnd != nil {
		return geom.Point{X: c.LineStart[0], Y: c.LineStart[1]},
			geom.Point{X: c.LineEnd[0], Y: c.LineEnd[1]}
	}
	return traffic.AutoCountingLine(width, height)
}

// CalibrationPoints returns the perspective calibration pairs for a frame
// size: four image points and the corresponding corners of the real-world
// target rectangle in meters. When no source points are configured a road
// section is derived from the frame geometry.
func (c *SiteConfig) CalibrationPoints(width, height int) (src, dst [4]geom.Point) {
	w, h := float64(width), float64(height)
	if c.SourcePoints != nil {
		for i, p := range c.SourcePoints {
			src[i] = geom.Point{X: p[0], Y: p[1]}
		}
	} else {
		src = [4]geom.Point{
			{X: w * 0.25, Y: h * 0.33},
			{X: w * 0.75, Y: h * 0.33},
			{X: w * 0.15, Y: h * 0.85},
			{X: w * 0.85, Y: h * 0.85},
		}
	}
	tw, th := c.GetTargetWidthMeters(), c.GetTargetHeightMeters()
	dst = [4]geom.Point{
		{X: 0, Y: 0},
		{X: tw, Y: 0},
		{X: 0, Y: th},
		{X: tw, Y: th},
	}
	return src, dst
}
