package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Calibrator maps a raw classifier probability to a calibrated one.
type Calibrator interface {
	Calibrate(p float64) (float64, error)
	Kind() string
}

// Calibrator export kinds.
const (
	CalibratorIsotonic = "isotonic"
	CalibratorPlatt    = "platt"
)

type calibratorFile struct {
	Type string `json:"type"`

	// isotonic
	X []float64 `json:"x_thresholds,omitempty"`
	Y []float64 `json:"y_thresholds,omitempty"`

	// platt: p' = 1 / (1 + exp(A*p + B))
	A float64 `json:"a,omitempty"`
	B float64 `json:"b,omitempty"`
}

func parseCalibrator(data []byte) (Calibrator, error) {
	var cf calibratorFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decoding calibrator: %w", err)
	}

	switch cf.Type {
	case CalibratorIsotonic:
		if len(cf.X) == 0 || len(cf.X) != len(cf.Y) {
			return nil, fmt.Errorf("isotonic calibrator needs equal, non-empty x/y thresholds")
		}
		if !sort.Float64sAreSorted(cf.X) {
			return nil, fmt.Errorf("isotonic x_thresholds must be ascending")
		}
		return &isotonicCalibrator{x: cf.X, y: cf.Y}, nil
	case CalibratorPlatt:
		return &plattCalibrator{a: cf.A, b: cf.B}, nil
	default:
		return nil, fmt.Errorf("unsupported calibrator type %q", cf.Type)
	}
}

// isotonicCalibrator interpolates linearly between fitted points and clips outside them.
type isotonicCalibrator struct {
	x []float64
	y []float64
}

func (c *isotonicCalibrator) Kind() string { return CalibratorIsotonic }

func (c *isotonicCalibrator) Calibrate(p float64) (float64, error) {
	if math.IsNaN(p) {
		return 0, fmt.Errorf("isotonic calibration of NaN")
	}
	n := len(c.x)
	if p <= c.x[0] {
		return c.y[0], nil
	}
	if p >= c.x[n-1] {
		return c.y[n-1], nil
	}
	j := sort.SearchFloat64s(c.x, p)
	if c.x[j] == p {
		return c.y[j], nil
	}
	x0, x1 := c.x[j-1], c.x[j]
	y0, y1 := c.y[j-1], c.y[j]
	if x1 == x0 {
		return y1, nil
	}
	return y0 + (p-x0)*(y1-y0)/(x1-x0), nil
}

type plattCalibrator struct {
	a, b float64
}

func (c *plattCalibrator) Kind() string { return CalibratorPlatt }

func (c *plattCalibrator) Calibrate(p float64) (float64, error) {
	out := 1 / (1 + math.Exp(c.a*p+c.b))
	if math.IsNaN(out) {
		return 0, fmt.Errorf("platt calibration produced NaN for %v", p)
	}
	return out, nil
}
