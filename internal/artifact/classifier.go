package artifact

import (
	"encoding/json"
	"fmt"
	"math"
)

// Classifier produces per-class probabilities for one feature vector.
type Classifier interface {
	// PredictProba returns one probability per class, in the order of Classes.
	PredictProba(x []float64) ([]float64, error)
	// Classes returns the class labels, or nil when the export does not carry them.
	Classes() []string
	// Width is the vector length the classifier was trained on.
	Width() int
}

// Model export kinds.
const (
	ModelLogistic = "logistic"
	ModelGBDT     = "gbdt"
)

// modelFile is the on-disk JSON export of a trained binary classifier.
type modelFile struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Classes []string `json:"classes,omitempty"`

	// logistic
	Coefficients []float64 `json:"coefficients,omitempty"`
	Intercept    float64   `json:"intercept,omitempty"`
	Scaler       *scaler   `json:"scaler,omitempty"`

	// gbdt
	BaseScore    float64 `json:"base_score,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	NumFeatures  int     `json:"num_features,omitempty"`
	Trees        []tree  `json:"trees,omitempty"`
}

type scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// treeNode is a split when Leaf is false. Missing (NaN) inputs follow DefaultLeft.
type treeNode struct {
	Leaf        bool    `json:"leaf"`
	Value       float64 `json:"value"`
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	DefaultLeft bool    `json:"default_left"`
}

// ModelInfo identifies the loaded model.
type ModelInfo struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// parseClassifier decodes a model export and checks its internal consistency.
func parseClassifier(data []byte) (Classifier, ModelInfo, error) {
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, ModelInfo{}, fmt.Errorf("decoding model: %w", err)
	}
	info := ModelInfo{Type: mf.Type, Name: mf.Name, Version: mf.Version}
	if len(mf.Classes) != 0 && len(mf.Classes) != 2 {
		return nil, info, fmt.Errorf("binary classifier must expose 2 classes, got %d", len(mf.Classes))
	}

	switch mf.Type {
	case ModelLogistic:
		m := &logisticModel{coef: mf.Coefficients, intercept: mf.Intercept, classes: mf.Classes}
		if len(m.coef) == 0 {
			return nil, info, fmt.Errorf("logistic model has no coefficients")
		}
		if mf.Scaler != nil {
			if len(mf.Scaler.Mean) != len(m.coef) || len(mf.Scaler.Scale) != len(m.coef) {
				return nil, info, fmt.Errorf("scaler width does not match %d coefficients", len(m.coef))
			}
			for i, s := range mf.Scaler.Scale {
				if s == 0 {
					return nil, info, fmt.Errorf("scaler scale[%d] is zero", i)
				}
			}
			m.mean, m.scale = mf.Scaler.Mean, mf.Scaler.Scale
		}
		return m, info, nil

	case ModelGBDT:
		m := &gbdtModel{
			base:    mf.BaseScore,
			rate:    mf.LearningRate,
			width:   mf.NumFeatures,
			trees:   mf.Trees,
			classes: mf.Classes,
		}
		if m.rate == 0 {
			m.rate = 1
		}
		if m.width <= 0 {
			return nil, info, fmt.Errorf("gbdt model must declare num_features")
		}
		if len(m.trees) == 0 {
			return nil, info, fmt.Errorf("gbdt model has no trees")
		}
		for ti, t := range m.trees {
			if err := t.check(m.width); err != nil {
				return nil, info, fmt.Errorf("tree %d: %w", ti, err)
			}
		}
		return m, info, nil

	default:
		return nil, info, fmt.Errorf("unsupported model type %q", mf.Type)
	}
}

type logisticModel struct {
	coef      []float64
	intercept float64
	mean      []float64
	scale     []float64
	classes   []string
}

func (m *logisticModel) Width() int { return len(m.coef) }
func (m *logisticModel) Classes() []string { return m.classes }

func (m *logisticModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != len(m.coef) {
		return nil, fmt.Errorf("vector width %d, model expects %d", len(x), len(m.coef))
	}
	z := m.intercept
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("feature %d is not finite", i)
		}
		if m.scale != nil {
			v = (v - m.mean[i]) / m.scale[i]
		}
		z += m.coef[i] * v
	}
	return m.order(sigmoid(z)), nil
}

// order places the positive probability at the index of class "1" when classes are known.
func (m *logisticModel) order(p float64) []float64 {
	return orderProba(m.classes, p)
}

type gbdtModel struct {
	base    float64
	rate    float64
	width   int
	trees   []tree
	classes []string
}

func (m *gbdtModel) Width() int { return m.width }
func (m *gbdtModel) Classes() []string { return m.classes }

func (m *gbdtModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.width {
		return nil, fmt.Errorf("vector width %d, model expects %d", len(x), m.width)
	}
	raw := m.base
	for _, t := range m.trees {
		raw += m.rate * t.eval(x)
	}
	return orderProba(m.classes, sigmoid(raw)), nil
}

func (t tree) check(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d outside width %d", i, n.Feature, width)
		}
		// Children must point forward so evaluation always terminates.
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

func (t tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v < n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
}

func orderProba(classes []string, p float64) []float64 {
	if len(classes) == 2 && classes[0] == "1" {
		return []float64{p, 1 - p}
	}
	return []float64{1 - p, p}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
