package tools

import (
	"fmt"

	"github.com/lunai408/local-agent-factory/core"
)

// Schema helpers for building JSON Schema definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// NumberProperty creates a number property with optional description.
func NumberProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
	}
}

// IntegerProperty creates an integer property with optional description.
func IntegerProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// BooleanProperty creates a boolean property with optional description.
func BooleanProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
	}
}

// ArrayProperty creates an array property with the given item type.
func ArrayProperty(description string, itemType map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       itemType,
	}
}

// ObjectProperty creates a free-form object property. Used for payloads whose
// shape the tool server validates itself (e.g. chart data series).
func ObjectProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
	}
}

// ValidateParams checks params against an object schema built with the
// helpers above: required keys present, no unknown keys, value types match,
// enum values allowed. Violations return ErrInvalidParameters.
func ValidateParams(schema map[string]interface{}, params map[string]interface{}) error {
	properties, _ := schema["properties"].(map[string]interface{})

	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := params[key]; !present {
				return fmt.Errorf("missing required parameter %q: %w", key, core.ErrInvalidParameters)
			}
		}
	}

	for key, value := range params {
		propAny, known := properties[key]
		if !known {
			return fmt.Errorf("unknown parameter %q: %w", key, core.ErrInvalidParameters)
		}
		prop, _ := propAny.(map[string]interface{})
		if err := validateValue(key, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(key string, prop map[string]interface{}, value interface{}) error {
	typ, _ := prop["type"].(string)
	switch typ {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string: %w", key, core.ErrInvalidParameters)
		}
		if enum, ok := prop["enum"].([]string); ok {
			for _, allowed := range enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("parameter %q must be one of %v, got %q: %w",
				key, enum, s, core.ErrInvalidParameters)
		}
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("parameter %q must be a number: %w", key, core.ErrInvalidParameters)
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("parameter %q must be an integer: %w", key, core.ErrInvalidParameters)
			}
		default:
			return fmt.Errorf("parameter %q must be an integer: %w", key, core.ErrInvalidParameters)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean: %w", key, core.ErrInvalidParameters)
		}
	case "array":
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("parameter %q must be an array: %w", key, core.ErrInvalidParameters)
		}
		itemProp, _ := prop["items"].(map[string]interface{})
		if itemProp != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", key, i), itemProp, item); err != nil {
					return err
				}
			}
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("parameter %q must be an object: %w", key, core.ErrInvalidParameters)
		}
	}
	return nil
}
