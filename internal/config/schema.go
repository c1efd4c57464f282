package config

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// deskSchema validates the overall shape of the desk document. It is
// deliberately permissive (additionalProperties stays open at the top level)
// so older binaries tolerate newer documents; it exists to catch the
// type-level mistakes that YAML otherwise coerces silently, like a string
// where a list of keywords belongs.
const deskSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "artifacts": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["name", "sensitivity", "keywords"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "sensitivity": {"type": "string", "enum": ["low", "medium", "high"]},
          "requires_nda": {"type": "boolean"},
          "description": {"type": "string"},
          "keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1}
        }
      }
    },
    "nda_database": {
      "type": "array",
      "items": {"type": "string"}
    },
    "templates": {
      "type": "object",
      "properties": {
        "unclear_request": {"type": "string"},
        "nda_required": {"type": "string"},
        "approved_response": {"type": "string"}
      }
    },
    "settings": {
      "type": "object",
      "properties": {
        "link_expiration_days": {"type": "integer", "minimum": 1},
        "email_signature": {"type": "string"},
        "company_name": {"type": "string"},
        "auto_send_when_approved": {"type": "boolean"},
        "dry_run": {"type": "boolean"},
        "escalation": {
          "type": "object",
          "properties": {
            "max_sensitive_without_nda": {"type": "integer", "minimum": 0},
            "human_review_keywords": {"type": "array", "items": {"type": "string"}}
          }
        },
        "monitoring": {
          "type": "object",
          "properties": {
            "check_interval": {"type": "integer", "minimum": 1},
            "max_per_cycle": {"type": "integer", "minimum": 1},
            "search_queries": {"type": "array", "items": {"type": "string"}}
          }
        },
        "notifications": {
          "type": "object",
          "properties": {
            "slack": {
              "type": "object",
              "properties": {
                "enabled": {"type": "boolean"},
                "webhook_url": {"type": "string"}
              }
            }
          }
        },
        "persistence": {
          "type": "object",
          "properties": {
            "backend": {"type": "string"},
            "ttl_days": {"type": "integer", "minimum": 1},
            "redis_url": {"type": "string"},
            "sqlite_path": {"type": "string"},
            "namespace": {"type": "string"}
          }
        }
      }
    }
  }
}`

// ValidateDeskSchema validates desk YAML bytes against the embedded JSON
// schema. The YAML is first converted to JSON because gojsonschema operates
// on JSON.
func ValidateDeskSchema(yamlBytes []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(deskSchema),
		gojsonschema.NewBytesLoader(jsonBytes))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("schema validation errors:\n%s", errMsg)
	}

	return nil
}

// normalizeYAML converts map[interface{}]interface{} trees into
// map[string]interface{} so they marshal to JSON.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
