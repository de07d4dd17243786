package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	sigsyaml "sigs.k8s.io/yaml"
)

const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["steps"],
  "properties": {
    "workdir": {"type": "string"},
    "report_dir": {"type": "string"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "check": {"type": "string"},
          "install": {
            "type": "array",
            "items": {"type": "string", "minLength": 1}
          },
          "manager": {"type": "string"},
          "package": {"type": "string"},
          "sudo": {"type": "boolean"},
          "on_check_error": {"enum": ["install", "fail"]}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("vconf.schema.json", configSchema)

// validateSchema checks raw YAML config bytes against the config schema.
func validateSchema(data []byte) error {
	jsonData, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting config to JSON: %w", err)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
