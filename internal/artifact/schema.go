package artifact

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema names for the JSON files of a bundle.
const (
	schemaModel        = "model"
	schemaCalibrator   = "calibrator"
	schemaFeatureOrder = "feature_order"
	schemaThresholds   = "thresholds"
)

var schemaDefinitions = map[string]string{
	schemaModel: `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"enum": ["logistic", "gbdt"]},
			"name": {"type": "string"},
			"version": {"type": "string"},
			"classes": {"type": "array", "items": {"type": "string"}, "maxItems": 2},
			"coefficients": {"type": "array", "items": {"type": "number"}},
			"intercept": {"type": "number"},
			"scaler": {
				"type": "object",
				"required": ["mean", "scale"],
				"properties": {
					"mean": {"type": "array", "items": {"type": "number"}},
					"scale": {"type": "array", "items": {"type": "number"}}
				}
			},
			"base_score": {"type": "number"},
			"learning_rate": {"type": "number", "exclusiveMinimum": 0},
			"num_features": {"type": "integer", "minimum": 1},
			"trees": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["nodes"],
					"properties": {"nodes": {"type": "array", "minItems": 1}}
				}
			}
		}
	}`,
	schemaCalibrator: `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"enum": ["isotonic", "platt"]},
			"x_thresholds": {"type": "array", "items": {"type": "number"}},
			"y_thresholds": {"type": "array", "items": {"type": "number", "minimum": 0, "maximum": 1}},
			"a": {"type": "number"},
			"b": {"type": "number"}
		}
	}`,
	schemaFeatureOrder: `{
		"type": "array",
		"minItems": 1,
		"uniqueItems": true,
		"items": {"type": "string", "minLength": 1}
	}`,
	schemaThresholds: `{
		"type": "object",
		"properties": {
			"threshold": {"type": "number"},
			"screen_threshold": {"type": "number"},
			"priority_threshold": {"type": "number"}
		}
	}`,
}

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validateDocument checks raw JSON against the named bundle schema.
func validateDocument(name string, raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	compiled, err := compiledSchema(name)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", name, err)
	}

	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func compiledSchema(name string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	def, ok := schemaDefinitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	var defParsed any
	if err := json.Unmarshal([]byte(def), &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://gh-risk/%s.json", name)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}
