// Command violation-report renders an HTML report of the recorded
// violations: totals per type plus an hourly timeline per type.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samber/lo"

	"github.com/curbsight/curbsight/internal/store"
)

func main() {
	dbPath := flag.String("db", "curbsight.db", "violation database")
	output := flag.String("o", "violation-report.html", "output HTML path")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	byType, err := st.CountsByType(ctx)
	if err != nil {
		log.Fatalf("failed to count violations: %v", err)
	}
	if len(byType) == 0 {
		log.Fatal("no violations recorded")
	}
	byHour, err := st.CountsByHour(ctx)
	if err != nil {
		log.Fatalf("failed to bucket violations: %v", err)
	}

	page := components.NewPage()
	page.AddCharts(typeChart(byType), timelineChart(byHour))

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}

	total := lo.Sum(lo.Values(byType))
	log.Printf("wrote %s: %d violations across %d types", *output, total, len(byType))
}

func typeChart(byType map[string]int) *charts.Bar {
	types := lo.Keys(byType)
	sort.Strings(types)

	data := make([]opts.BarData, 0, len(types))
	for _, t := range types {
		data = append(data, opts.BarData{Value: byType[t]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Violations by Type"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(types)
	bar.AddSeries("violations", data)
	return bar
}

func timelineChart(byHour []store.HourCount) *charts.Line {
	hours := lo.Uniq(lo.Map(byHour, func(hc store.HourCount, _ int) string { return hc.Hour }))

	// hour -> type -> count, so each type becomes one series over the
	// shared hour axis.
	perType := make(map[string]map[string]int)
	for _, hc := range byHour {
		if perType[hc.Type] == nil {
			perType[hc.Type] = make(map[string]int)
		}
		perType[hc.Type][hc.Hour] = hc.Count
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Violations per Hour"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(hours)

	types := lo.Keys(perType)
	sort.Strings(types)
	for _, t := range types {
		data := make([]opts.LineData, 0, len(hours))
		for _, h := range hours {
			data = append(data, opts.LineData{Value: perType[t][h]})
		}
		line.AddSeries(t, data)
	}
	return line
}
