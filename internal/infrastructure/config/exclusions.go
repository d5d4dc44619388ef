package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
)

// exclusionSchema validates user exclusion files before they are
// trusted. Unknown keys are rejected so a typo ("extentions") fails
// loudly instead of silently scanning everything.
const exclusionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "extensions":   {"type": "array", "items": {"type": "string"}},
    "patterns":     {"type": "array", "items": {"type": "string"}},
    "files":        {"type": "array", "items": {"type": "string"}},
    "directories":  {"type": "array", "items": {"type": "string"}},
    "paths":        {"type": "array", "items": {"type": "string"}},
    "contentTypes": {"type": "array", "items": {"type": "string"}},
    "maxFileSize":  {"type": ["string", "integer"]},
    "perToolExclusions": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    }
  }
}`

// fileExclusions is the on-disk shape: maxFileSize may be a human
// readable string like "10MB" as well as a raw byte count.
type fileExclusions struct {
	Extensions        []string            `json:"extensions" yaml:"extensions"`
	Patterns          []string            `json:"patterns" yaml:"patterns"`
	Files             []string            `json:"files" yaml:"files"`
	Directories       []string            `json:"directories" yaml:"directories"`
	Paths             []string            `json:"paths" yaml:"paths"`
	ContentTypes      []string            `json:"contentTypes" yaml:"contentTypes"`
	MaxFileSize       any                 `json:"maxFileSize" yaml:"maxFileSize"`
	PerToolExclusions map[string][]string `json:"perToolExclusions" yaml:"perToolExclusions"`
}

// LoadExclusions reads a user exclusion file (.yaml, .yml or .json),
// validates it against the schema and merges it over the built-in
// defaults. An empty path returns the defaults unchanged.
func LoadExclusions(path string) (exclusion.Config, []string, error) {
	base := exclusion.DefaultConfig()
	if path == "" {
		return base, nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return exclusion.Config{}, nil, fmt.Errorf("read exclusions %s: %w", path, err)
	}

	jsonData, err := toJSON(path, data)
	if err != nil {
		return exclusion.Config{}, nil, err
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(exclusionSchema),
		gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return exclusion.Config{}, nil, fmt.Errorf("validate exclusions %s: %w", path, err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return exclusion.Config{}, nil, fmt.Errorf("exclusions %s failed validation: %s",
			path, strings.Join(details, "; "))
	}

	var fc fileExclusions
	if err := json.Unmarshal(jsonData, &fc); err != nil {
		return exclusion.Config{}, nil, fmt.Errorf("unmarshal exclusions %s: %w", path, err)
	}

	override := exclusion.Config{
		Extensions:        fc.Extensions,
		Patterns:          fc.Patterns,
		Files:             fc.Files,
		Directories:       fc.Directories,
		Paths:             fc.Paths,
		ContentTypes:      fc.ContentTypes,
		PerToolExclusions: fc.PerToolExclusions,
	}
	switch v := fc.MaxFileSize.(type) {
	case nil:
	case string:
		n, err := exclusion.ParseSize(v)
		if err != nil {
			return exclusion.Config{}, nil, fmt.Errorf("exclusions %s: %w", path, err)
		}
		override.MaxFileSize = n
	case float64:
		override.MaxFileSize = int64(v)
	default:
		return exclusion.Config{}, nil, fmt.Errorf("exclusions %s: maxFileSize has unsupported type %T", path, v)
	}

	merged := base.Merge(override)
	warnings := exclusion.ValidateConfig(merged)
	return merged, warnings, nil
}

// toJSON normalizes YAML input to JSON so one schema covers both
// formats.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", path, err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert %s to json: %w", path, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported exclusion file extension: %s", path)
	}
}
