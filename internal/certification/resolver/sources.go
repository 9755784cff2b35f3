package resolver

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// MapSource serves values from a fixed map.
type MapSource map[string]string

func (m MapSource) GetConfigValue(_ context.Context, key string) (string, error) {
	return m[key], nil
}

func (m MapSource) GetConfigValues(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// EnvSource reads keys from environment variables, e.g. chain.antchain.accessKeyId
// from CHAIN_ANTCHAIN_ACCESS_KEY_ID.
type EnvSource struct {
	lookup func(string) (string, bool)
}

func NewEnvSource() *EnvSource {
	return &EnvSource{lookup: os.LookupEnv}
}

func (e *EnvSource) GetConfigValue(_ context.Context, key string) (string, error) {
	v, _ := e.lookup(EnvName(key))
	return v, nil
}

// EnvName maps a dotted camelCase key to its environment variable name.
func EnvName(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && key[i-1] != '.' {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// YAMLSource serves values parsed from a YAML document. Nested mappings are
// flattened with dots, so both "chain.provider: bsn" and
//
//	chain:
//	  provider: bsn
//
// produce the key chain.provider.
type YAMLSource struct {
	values map[string]string
}

// LoadYAMLFile parses the YAML file at path.
func LoadYAMLFile(path string) (*YAMLSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain config %s: %w", path, err)
	}
	return ParseYAML(data)
}

func ParseYAML(data []byte) (*YAMLSource, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse chain config: %w", err)
	}
	values := make(map[string]string)
	flatten("", doc, values)
	return &YAMLSource{values: values}, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch typed := v.(type) {
		case map[string]any:
			flatten(key, typed, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
}

func (y *YAMLSource) GetConfigValue(_ context.Context, key string) (string, error) {
	return y.values[key], nil
}

// Values returns a copy of the flattened document.
func (y *YAMLSource) Values() map[string]string {
	return maps.Clone(y.values)
}
