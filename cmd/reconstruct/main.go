// Command reconstruct runs batch 3D reconstruction: it loads a camera
// calibration bundle, reads linked 2D observations, triangulates every
// (frame, target) unit through the refractive interface and writes the
// results as a sequential record stream plus an optional sqlite database.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tanksight/refract3d/internal/config"
	"github.com/tanksight/refract3d/internal/reconstruct"
	"github.com/tanksight/refract3d/internal/recordio"
	"github.com/tanksight/refract3d/internal/refraction"
	"github.com/tanksight/refract3d/internal/resultdb"
	"github.com/tanksight/refract3d/internal/version"
)

func main() {
	var (
		calibPath  = flag.String("calib", "", "calibration bundle (.json/.yaml): cameras + interface plane")
		obsPath    = flag.String("obs", "", "observations CSV: frame,target,camera,u,v")
		outPath    = flag.String("out", "results.bin", "output result stream")
		dbPath     = flag.String("db", "", "optional sqlite results database")
		tuningPath = flag.String("tuning", "", "optional tuning JSON")
		compress   = flag.Bool("compress", false, "gzip the result stream")
		workers    = flag.Int("workers", 0, "worker pool size (0 = number of CPUs)")
	)
	flag.Parse()

	if *calibPath == "" || *obsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	log.Printf("refract3d %s (%s)", version.Version, version.GitSHA)
	if err := run(*calibPath, *obsPath, *outPath, *dbPath, *tuningPath, *compress, *workers); err != nil {
		log.Fatalf("reconstruct: %v", err)
	}
}

func run(calibPath, obsPath, outPath, dbPath, tuningPath string, compress bool, workers int) error {
	var tuning *config.TuningConfig
	if tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(tuningPath)
		if err != nil {
			return err
		}
	}

	solverCfg := refraction.DefaultConfig()
	tuning.ApplyRefraction(&solverCfg)

	cams, solver, err := reconstruct.LoadSetup(calibPath, solverCfg)
	if err != nil {
		return err
	}

	cfg := reconstruct.DefaultConfig()
	tuning.ApplyReconstruct(&cfg)
	if workers > 0 {
		cfg.Workers = workers
	}

	rec, err := reconstruct.New(cams, solver, cfg)
	if err != nil {
		return err
	}

	obsFile, err := os.Open(obsPath)
	if err != nil {
		return fmt.Errorf("failed to open observations: %w", err)
	}
	defer obsFile.Close()
	obs, err := reconstruct.ParseObservationsCSV(obsFile)
	if err != nil {
		return err
	}
	log.Printf("loaded %d observations across %d cameras", len(obs), len(cams))

	batch := rec.RunBatch(obs)
	log.Printf("run %s: %d points reconstructed, %d units failed",
		batch.RunID, len(batch.Results), len(batch.Failures))

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create result stream: %w", err)
	}
	defer out.Close()
	sw, err := recordio.NewWriter(out, batch.RunID, compress)
	if err != nil {
		return err
	}
	for i := range batch.Results {
		if err := sw.Write(&batch.Results[i]); err != nil {
			return err
		}
	}
	if err := sw.Close(); err != nil {
		return err
	}

	if dbPath != "" {
		db, err := resultdb.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		err = db.InsertRun(resultdb.RunInfo{
			RunID:           batch.RunID,
			CalibrationPath: calibPath,
			CameraCount:     len(cams),
			UnitCount:       len(batch.Results) + len(batch.Failures),
			FailureCount:    len(batch.Failures),
		})
		if err != nil {
			return err
		}
		if err := db.InsertResults(batch.RunID, batch.Results); err != nil {
			return err
		}
	}

	return nil
}
