package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSON converts YAML and TOML configs to JSON so every format goes
// through the same strict decoder. It returns the detected format.
func coerceToJSON(path string, data []byte) ([]byte, string, error) {
	var (
		v      any
		format string
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("yaml unmarshal: %w", err)
		}
	case ".toml":
		format = "toml"
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, format, fmt.Errorf("toml unmarshal: %w", err)
		}
		v = m
	default:
		return data, "json", nil
	}

	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, format, fmt.Errorf("%s->json marshal: %w", format, err)
	}
	return j, format, nil
}

// stringKeys makes every map key a string so the value can be JSON-marshaled.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = stringKeys(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
