package reconstruct

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tanksight/refract3d/internal/camera"
)

// ParseObservationsCSV reads linked 2D detections in the exchange format
// produced by the detection subsystem: one record per observation,
//
//	frame,target,camera,u,v
//
// A header row is skipped when the first field is not numeric.
func ParseObservationsCSV(r io.Reader) ([]Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	var obs []Observation
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return obs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("observations line %d: %w", line+1, err)
		}
		line++
		if line == 1 {
			if _, err := strconv.Atoi(strings.TrimSpace(rec[0])); err != nil {
				continue // header row
			}
		}
		frame, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("observations line %d: bad frame %q", line, rec[0])
		}
		target, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("observations line %d: bad target %q", line, rec[1])
		}
		camID := strings.TrimSpace(rec[2])
		if camID == "" {
			return nil, fmt.Errorf("observations line %d: empty camera id", line)
		}
		u, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("observations line %d: bad u %q", line, rec[3])
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err != nil {
			return nil, fmt.Errorf("observations line %d: bad v %q", line, rec[4])
		}
		obs = append(obs, Observation{
			CameraID: camID,
			Pixel:    camera.Pixel{U: u, V: v},
			Frame:    frame,
			Target:   target,
		})
	}
}
