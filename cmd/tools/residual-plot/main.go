// Command residual-plot renders a histogram of triangulation residuals
// from a result stream. Useful for picking a residual sanity cutoff for a
// given rig: well-calibrated runs show a tight peak near zero with a thin
// tail of mismatched or noisy units.
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tanksight/refract3d/internal/recordio"
)

func main() {
	var (
		inPath  = flag.String("in", "", "result stream to read")
		outPath = flag.String("out", "residuals.png", "output image")
		bins    = flag.Int("bins", 40, "histogram bin count")
	)
	flag.Parse()
	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("residual-plot: %v", err)
	}
	defer f.Close()

	sr, err := recordio.NewReader(f)
	if err != nil {
		log.Fatalf("residual-plot: %v", err)
	}

	var values plotter.Values
	for {
		res, err := sr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("residual-plot: %v", err)
		}
		values = append(values, res.Residual)
	}
	if len(values) == 0 {
		log.Fatalf("residual-plot: stream %s holds no records", *inPath)
	}

	p := plot.New()
	p.Title.Text = "Triangulation residuals (run " + sr.Header().RunID + ")"
	p.X.Label.Text = "residual (world units squared)"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(values, *bins)
	if err != nil {
		log.Fatalf("residual-plot: %v", err)
	}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, *outPath); err != nil {
		log.Fatalf("residual-plot: %v", err)
	}
	log.Printf("wrote %s (%d records)", *outPath, len(values))
}
