package main

import (
	"fmt"
	"io"
	"math"

	"github.com/guptarohit/asciigraph"
	"github.com/miretskiy/compactsim/simulator"
	"github.com/olekukonko/tablewriter"
)

func writeTable(w io.Writer, stores []simulator.StoreMetrics) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Store", "Write amp", "Read amp", "Flushes", "Compactions", "Major", "Files", "Input p50", "Duration p99"})
	for _, s := range stores {
		tbl.Append([]string{
			s.Title,
			fmt.Sprintf("%.2f", s.WriteAmplification),
			fmt.Sprintf("%d", s.ReadAmplification),
			fmt.Sprintf("%d", s.FlushCount),
			fmt.Sprintf("%d", s.CompactionCount),
			fmt.Sprintf("%d", s.MajorCompactionCount),
			fmt.Sprintf("%d", s.FileCount),
			fmt.Sprintf("%d", s.CompactionInputBytesP50),
			fmt.Sprintf("%.1fms", s.CompactionDurationP99Ms),
		})
	}
	tbl.Render()
}

// writeAmpSeries extracts the defined write amplification values of store cf.
func writeAmpSeries(samples []simulator.AmplificationSample, cf int) []float64 {
	var series []float64
	for _, s := range samples {
		if cf >= len(s.WriteAmplification) {
			continue
		}
		v := s.WriteAmplification[cf]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		series = append(series, v)
	}
	return series
}

// writePlot draws one write amplification chart per store.
func writePlot(w io.Writer, samples []simulator.AmplificationSample, height int) {
	if len(samples) == 0 {
		fmt.Fprintln(w, "no samples recorded")
		return
	}
	titles := samples[len(samples)-1].Titles
	for cf, title := range titles {
		series := writeAmpSeries(samples, cf)
		if len(series) == 0 {
			fmt.Fprintf(w, "%s: no flushes\n\n", title)
			continue
		}
		fmt.Fprintln(w, asciigraph.Plot(series,
			asciigraph.Height(height),
			asciigraph.Caption(fmt.Sprintf("%s write amplification", title))))
		fmt.Fprintln(w)
	}
}
