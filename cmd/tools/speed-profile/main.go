// Command speed-profile plots the speed distribution of recorded
// speeding violations as a PNG histogram, with the mean and standard
// deviation in the title.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/curbsight/curbsight/internal/store"
)

func main() {
	dbPath := flag.String("db", "curbsight.db", "violation database")
	output := flag.String("o", "speed-profile.png", "output PNG path")
	bins := flag.Int("bins", 16, "histogram bin count")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	speeds, err := st.Speeds(context.Background())
	if err != nil {
		log.Fatalf("failed to query speeds: %v", err)
	}
	if len(speeds) == 0 {
		log.Fatal("no speed-related violations recorded")
	}

	mean, std := stat.MeanStdDev(speeds, nil)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Violation Speeds (n=%d, mean=%.1f km/h, sd=%.1f)",
		len(speeds), mean, std)
	p.X.Label.Text = "Speed (km/h)"
	p.Y.Label.Text = "Violations"

	values := make(plotter.Values, len(speeds))
	copy(values, speeds)
	hist, err := plotter.NewHist(values, *bins)
	if err != nil {
		log.Fatalf("failed to build histogram: %v", err)
	}
	p.Add(hist)

	if err := p.Save(10*vg.Inch, 6*vg.Inch, *output); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote %s", *output)
}
