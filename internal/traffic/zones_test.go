package traffic

import (
	"testing"

	"github.com/curbsight/curbsight/internal/geom"
)

func testZones() []Zone {
	return []Zone{
		{
			Name:     "Emergency Exit",
			Category: ZoneNoParking,
			Polygon:  geom.Polygon{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.1}, {X: 0.3, Y: 0.45}, {X: 0.1, Y: 0.45}},
		},
		{
			Name:     "VIP Spot",
			Category: ZoneParkingSpot,
			Polygon:  geom.Polygon{{X: 0.7, Y: 0.3}, {X: 0.95, Y: 0.3}, {X: 0.95, Y: 0.9}, {X: 0.7, Y: 0.9}},
		},
		{
			Name:     "Driveway",
			Category: ZoneRoadLane,
			Polygon:  geom.Polygon{{X: 0.35, Y: 0.3}, {X: 0.65, Y: 0.3}, {X: 0.65, Y: 0.9}, {X: 0.35, Y: 0.9}},
		},
	}
}

func TestZoneIndexClassify(t *testing.T) {
	zi := NewZoneIndex(testZones(), 1000, 1000)

	cases := []struct {
		p    geom.Point
		want string
	}{
		{geom.Point{X: 200, Y: 200}, "Emergency Exit"},
		{geom.Point{X: 800, Y: 600}, "VIP Spot"},
		{geom.Point{X: 500, Y: 600}, "Driveway"},
	}
	for _, c := range cases {
		z, ok := zi.Classify(c.p)
		if !ok {
			t.Errorf("expected %v to be inside a zone", c.p)
			continue
		}
		if z.Name != c.want {
			t.Errorf("Classify(%v) = %q, want %q", c.p, z.Name, c.want)
		}
	}

	if _, ok := zi.Classify(geom.Point{X: 10, Y: 990}); ok {
		t.Error("expected point outside every polygon to match no zone")
	}
}

func TestZoneIndexBoundaryInclusive(t *testing.T) {
	zi := NewZoneIndex(testZones(), 1000, 1000)

	// Exactly on the Emergency Exit boundary.
	z, ok := zi.Classify(geom.Point{X: 100, Y: 100})
	if !ok || z.Name != "Emergency Exit" {
		t.Errorf("expected boundary point to classify into Emergency Exit, got %v %v", z, ok)
	}
}

func TestZoneIndexConfigOrderWins(t *testing.T) {
	// Two overlapping zones: the first configured wins.
	zones := []Zone{
		{Name: "first", Category: ZoneNoParking, Polygon: geom.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}},
		{Name: "second", Category: ZoneRoadLane, Polygon: geom.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}},
	}
	zi := NewZoneIndex(zones, 100, 100)

	z, ok := zi.Classify(geom.Point{X: 50, Y: 50})
	if !ok || z.Name != "first" {
		t.Errorf("expected first configured zone to win, got %v %v", z, ok)
	}
}

func TestZoneIndexDropsInvalidPolygons(t *testing.T) {
	zones := []Zone{
		{Name: "degenerate", Category: ZoneNoParking, Polygon: geom.Polygon{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}}},
		{Name: "ok", Category: ZoneRoadLane, Polygon: geom.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0.5, Y: 1}}},
	}
	zi := NewZoneIndex(zones, 100, 100)

	if zi.Len() != 1 {
		t.Fatalf("expected 1 retained zone, got %d", zi.Len())
	}
	if zi.Zones()[0].Name != "ok" {
		t.Errorf("expected the valid zone to survive, got %q", zi.Zones()[0].Name)
	}
}

func TestZoneIndexResize(t *testing.T) {
	zi := NewZoneIndex(testZones(), 100, 100)

	// At 100x100, (500,600) is far outside the frame.
	if _, ok := zi.Classify(geom.Point{X: 500, Y: 600}); ok {
		t.Error("expected no match before resize")
	}

	zi.Resize(1000, 1000)
	if z, ok := zi.Classify(geom.Point{X: 500, Y: 600}); !ok || z.Name != "Driveway" {
		t.Errorf("expected Driveway after resize, got %v %v", z, ok)
	}
}

func TestZoneDirectionDefaultsToDown(t *testing.T) {
	zones := []Zone{{Name: "lane", Category: ZoneRoadLane, Polygon: geom.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0.5, Y: 1}}}}
	zi := NewZoneIndex(zones, 100, 100)
	if zi.Zones()[0].Direction != TravelDown {
		t.Errorf("expected default direction DOWN, got %q", zi.Zones()[0].Direction)
	}
}
