package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/traffic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.GetMode(); got != traffic.ModeBoth {
		t.Errorf("GetMode() = %q, want BOTH", got)
	}
	if got := cfg.GetSpeedLimitKMH(); got != 60.0 {
		t.Errorf("GetSpeedLimitKMH() = %v, want 60", got)
	}
	if got := cfg.GetStationarySpeedKMH(); got != 2.0 {
		t.Errorf("GetStationarySpeedKMH() = %v, want 2", got)
	}
	if got := cfg.GetIllegalParkingTime(); got != 15.0 {
		t.Errorf("GetIllegalParkingTime() = %v, want 15", got)
	}
	if got := cfg.GetViolationCooldown(); got != 10*time.Second {
		t.Errorf("GetViolationCooldown() = %v, want 10s", got)
	}
	if got := cfg.GetPreEventSeconds(); got != 5.0 {
		t.Errorf("GetPreEventSeconds() = %v, want 5", got)
	}
	if got := cfg.GetOutputDir(); got != "violations" {
		t.Errorf("GetOutputDir() = %q, want violations", got)
	}
	if !cfg.GetEnableRecording() || !cfg.GetEnableSpeedEstimation() || !cfg.GetLoop() {
		t.Error("expected recording, speed estimation and loop enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"monitoring_mode": "ROAD",
		"speed_limit_kmh": 50,
		"violation_cooldown": "30s",
		"pre_violation_seconds": 3,
		"enable_violation_recording": false
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.GetMode(); got != traffic.ModeRoad {
		t.Errorf("GetMode() = %q, want ROAD", got)
	}
	if got := cfg.GetSpeedLimitKMH(); got != 50.0 {
		t.Errorf("GetSpeedLimitKMH() = %v, want 50", got)
	}
	if got := cfg.GetViolationCooldown(); got != 30*time.Second {
		t.Errorf("GetViolationCooldown() = %v, want 30s", got)
	}
	if got := cfg.GetPreEventSeconds(); got != 3.0 {
		t.Errorf("GetPreEventSeconds() = %v, want 3", got)
	}
	if cfg.GetEnableRecording() {
		t.Error("expected recording disabled")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", `{"monitoring_mode": "HIGHWAY"}`},
		{"bad cooldown", `{"violation_cooldown": "soon"}`},
		{"negative pre", `{"pre_violation_seconds": -1}`},
		{"zero speed limit", `{"speed_limit_kmh": 0}`},
		{"bad zone category", `{"zones": [{"name": "x", "category": "SIDEWALK", "polygon": [[0,0],[1,0],[1,1]]}]}`},
		{"bad zone direction", `{"zones": [{"name": "x", "category": "ROAD_LANE", "polygon": [[0,0],[1,0],[1,1]], "direction": "LEFT"}]}`},
		{"not json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Errorf("expected Load to fail for %s", tc.name)
			}
		})
	}
}

func TestLoadRequiresJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected non-JSON extension rejected")
	}
}

func TestGetZones(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"zones": [
			{"name": "Loading Bay", "category": "NO_PARKING", "polygon": [[0.1,0.1],[0.3,0.1],[0.3,0.4],[0.1,0.4]]},
			{"name": "North Lane", "category": "ROAD_LANE", "polygon": [[0.4,0.0],[0.6,0.0],[0.6,1.0],[0.4,1.0]], "direction": "UP"}
		]
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []traffic.Zone{
		{
			Name:     "Loading Bay",
			Category: traffic.ZoneNoParking,
			Polygon:  geom.Polygon{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.1}, {X: 0.3, Y: 0.4}, {X: 0.1, Y: 0.4}},
		},
		{
			Name:      "North Lane",
			Category:  traffic.ZoneRoadLane,
			Polygon:   geom.Polygon{{X: 0.4, Y: 0.0}, {X: 0.6, Y: 0.0}, {X: 0.6, Y: 1.0}, {X: 0.4, Y: 1.0}},
			Direction: traffic.TravelUp,
		},
	}
	if diff := cmp.Diff(want, cfg.GetZones()); diff != "" {
		t.Errorf("GetZones() mismatch (-want +got):\n%s", diff)
	}
}

func TestBehaviorConfigMaterialization(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"monitoring_mode": "PARKING",
		"speed_limit_kmh": 40,
		"loitering_seconds": 8
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bc := cfg.BehaviorConfig(1920, 1080, 30)
	if bc.FPS != 30 || bc.Width != 1920 || bc.Height != 1080 {
		t.Errorf("stream geometry not carried: %+v", bc)
	}
	if bc.Mode != traffic.ModeParking {
		t.Errorf("Mode = %q, want PARKING", bc.Mode)
	}
	if bc.SpeedLimitKMH != 40 || bc.LoiteringTime != 8 {
		t.Errorf("thresholds not carried: %+v", bc)
	}
	// Untouched thresholds keep their defaults.
	if bc.StationaryTime != 5.0 || bc.CrookedDistance != 0.2 {
		t.Errorf("defaults not preserved: %+v", bc)
	}
}

func TestCountingLine(t *testing.T) {
	cfg := &SiteConfig{}
	start, end := cfg.CountingLine(1920, 1080)
	if start.Y != 1080*0.7 || end.Y != 1080*0.7 {
		t.Errorf("auto line not at 70%% height: %v %v", start, end)
	}
	if start.X != 0 || end.X != 1920 {
		t.Errorf("auto line does not span the frame: %v %v", start, end)
	}

	ls, le := [2]float64{10, 20}, [2]float64{30, 40}
	cfg = &SiteConfig{LineStart: &ls, LineEnd: &le}
	start, end = cfg.CountingLine(1920, 1080)
	want := []geom.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}
	if diff := cmp.Diff(want, []geom.Point{start, end}); diff != "" {
		t.Errorf("explicit line mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrationPoints(t *testing.T) {
	cfg := &SiteConfig{}
	src, dst := cfg.CalibrationPoints(1000, 1000)

	wantSrc := [4]geom.Point{
		{X: 250, Y: 330},
		{X: 750, Y: 330},
		{X: 150, Y: 850},
		{X: 850, Y: 850},
	}
	if diff := cmp.Diff(wantSrc, src); diff != "" {
		t.Errorf("auto source points mismatch (-want +got):\n%s", diff)
	}
	wantDst := [4]geom.Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 0, Y: 30}, {X: 20, Y: 30}}
	if diff := cmp.Diff(wantDst, dst); diff != "" {
		t.Errorf("target rectangle mismatch (-want +got):\n%s", diff)
	}

	// Explicit calibration overrides the derived section.
	pts := [4][2]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	th := 45.0
	cfg = &SiteConfig{SourcePoints: &pts, TargetHeightMeters: &th}
	src, dst = cfg.CalibrationPoints(1000, 1000)
	if src[2] != (geom.Point{X: 5, Y: 6}) {
		t.Errorf("explicit source point not used: %v", src)
	}
	if dst[3] != (geom.Point{X: 20, Y: 45}) {
		t.Errorf("target rectangle height override not used: %v", dst)
	}
}

func TestLoadService(t *testing.T) {
	t.Setenv("CURBSIGHT_HTTP_ADDR", ":9090")
	t.Setenv("CURBSIGHT_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("CURBSIGHT_MINIO_ENDPOINT", "")

	cfg, err := LoadService()
	if err != nil {
		t.Fatalf("LoadService: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if diff := cmp.Diff([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers); diff != "" {
		t.Errorf("KafkaBrokers mismatch (-want +got):\n%s", diff)
	}
	if cfg.KafkaTopic != "curbsight.violations" {
		t.Errorf("KafkaTopic = %q, want default", cfg.KafkaTopic)
	}
	if cfg.MinioEndpoint != "" {
		t.Errorf("MinioEndpoint = %q, want empty", cfg.MinioEndpoint)
	}
}
