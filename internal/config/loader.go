package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeDirective is the reserved key a bot config file uses to splice in
// another file's contents before decoding, e.g. a shared actions.yaml
// included from every per-bot config.
const includeDirective = "$include"

// LoadRaw reads path and every file it transitively $includes into one
// merged map, with environment variable expansion applied to each file's
// raw bytes before parsing.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	visited := map[string]bool{}
	return resolveIncludes(path, visited)
}

// resolveIncludes loads one file and recursively merges its $include
// targets, guarding against include cycles via visited.
func resolveIncludes(path string, visited map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visited[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	visited[absPath] = true
	defer delete(visited, absPath)

	raw, err := readConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	includePaths, err := popIncludeDirective(raw)
	if err != nil {
		return nil, err
	}

	result := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includePaths {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(baseDir, inc)
		}
		included, err := resolveIncludes(inc, visited)
		if err != nil {
			return nil, err
		}
		result = deepMerge(result, included)
	}

	return deepMerge(result, raw), nil
}

// readConfigFile reads path, expands ${VAR} references against the
// process environment, and parses it as either JSON5 or YAML based on its
// extension.
func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".json" || ext == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// popIncludeDirective removes and returns the file's $include (or legacy
// "include") value, normalized to a path list.
func popIncludeDirective(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}

	var value any
	if v, ok := raw[includeDirective]; ok {
		value = v
		delete(raw, includeDirective)
	} else if v, ok := raw["include"]; ok {
		value = v
		delete(raw, "include")
	}
	if value == nil {
		return nil, nil
	}

	switch typed := value.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

// deepMerge overlays src onto dst, recursing into nested maps so an
// included file can override a single leaf key without clobbering its
// siblings.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = deepMerge(existing, nested)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig strict-decodes a merged raw map into Config, rejecting
// unknown fields so a typo'd key in a bot's YAML fails loudly instead of
// being silently ignored.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	return &cfg, nil
}
