// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Delimiter separates the segments of a dotted key.
const Delimiter = "."

// maxSubstitutionPasses bounds placeholder expansion. A value that is
// still changing after this many passes refers to itself.
const maxSubstitutionPasses = 64

var (
	// ErrKeyNotFound is returned by Get when no value exists at a key.
	ErrKeyNotFound = errors.New("config key not found")

	// ErrSubstitutionCycle is returned when {{key}} placeholders never
	// reach a fixpoint.
	ErrSubstitutionCycle = errors.New("config substitution cycle")

	// ErrUnsupportedFormat is returned by Load for an unknown file
	// extension.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// placeholderPattern matches {{dotted.key}}.
var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Options holds the optional parameters for Load and FromMap.
type Options struct {
	// Logger receives a warning for each placeholder whose key is
	// missing. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Config is a tree of configuration values addressed by dotted keys.
// A Config is not safe for concurrent mutation.
type Config struct {
	k      *koanf.Koanf
	parent *Config
	logger *slog.Logger
}

// Load reads a configuration file. The format follows the extension:
// .yaml and .yml are YAML, .toml is TOML, .json and .jsonc are JSON
// with optional comments and trailing commas.
func Load(path string, options Options) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	values, err := parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return FromMap(values, options)
}

func parse(extension string, data []byte) (map[string]any, error) {
	values := map[string]any{}
	switch strings.ToLower(extension) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &values); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, extension)
	}
	// An empty YAML document decodes to a nil map.
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

// FromMap builds a Config from nested maps. Keys containing the
// delimiter are split into nested sections. The map is copied.
func FromMap(values map[string]any, options Options) (*Config, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	k := koanf.New(Delimiter)
	if err := k.Load(confmap.Provider(values, Delimiter), nil); err != nil {
		return nil, fmt.Errorf("loading config values: %w", err)
	}
	return &Config{k: k, logger: logger}, nil
}

// WithParent returns a view of c whose placeholders may also refer to
// keys of parent. Keys defined in c take precedence. The two share
// storage: Set on either is visible through the view.
func (c *Config) WithParent(parent *Config) *Config {
	return &Config{k: c.k, parent: parent, logger: c.logger}
}

// Exists reports whether key names a value or a section.
func (c *Config) Exists(key string) bool {
	return c.k.Exists(key)
}

// Get returns the value at key. Sections come back as nested maps.
// String values have their {{key}} placeholders replaced until no
// further replacement changes them; placeholders whose key is missing
// are left as written.
func (c *Config) Get(key string) (any, error) {
	if !c.k.Exists(key) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	value := c.k.Get(key)
	text, ok := value.(string)
	if !ok {
		return value, nil
	}
	return c.substitute(key, text)
}

// String returns the value at key formatted as a string.
func (c *Config) String(key string) (string, error) {
	value, err := c.Get(key)
	if err != nil {
		return "", err
	}
	if text, ok := value.(string); ok {
		return text, nil
	}
	return fmt.Sprint(value), nil
}

// Set stores value at key, creating intermediate sections and
// replacing any leaf in the way.
func (c *Config) Set(key string, value any) error {
	if err := c.k.Set(key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// Flatten returns every leaf keyed by its dotted path, without
// substitution.
func (c *Config) Flatten() map[string]any {
	return c.k.All()
}

// Keys returns the dotted paths of every leaf, sorted.
func (c *Config) Keys() []string {
	keys := make([]string, 0)
	for key := range c.k.All() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Compile resolves every leaf with Get and returns them in a flat
// map. With leaves set, entries are keyed by the last key segment
// only; when two leaves share a last segment, the one whose full path
// sorts last wins.
func (c *Config) Compile(leaves bool) (map[string]any, error) {
	compiled := make(map[string]any)
	for _, key := range c.Keys() {
		value, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		if leaves {
			key = lastSegment(key)
		}
		compiled[key] = value
	}
	return compiled, nil
}

// Nested returns the compiled values rebuilt into nested maps.
func (c *Config) Nested() (map[string]any, error) {
	compiled, err := c.Compile(false)
	if err != nil {
		return nil, err
	}
	return maps.Unflatten(compiled, Delimiter), nil
}

// Override replaces existing values and never adds new ones. A dotted
// key replaces the leaf at that path. A key without a delimiter
// replaces every leaf whose last segment matches, at any depth.
// Returns the number of leaves replaced.
func (c *Config) Override(values map[string]any) (int, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	replaced := 0
	for _, name := range names {
		value := values[name]
		if strings.Contains(name, Delimiter) {
			if !c.k.Exists(name) {
				continue
			}
			if err := c.Set(name, value); err != nil {
				return replaced, err
			}
			replaced++
			continue
		}
		for _, key := range c.Keys() {
			if lastSegment(key) != name {
				continue
			}
			if err := c.Set(key, value); err != nil {
				return replaced, err
			}
			replaced++
		}
	}
	return replaced, nil
}

// lookupTable is the flattened view placeholders resolve against:
// the parent chain first, then c.
func (c *Config) lookupTable() map[string]any {
	table := make(map[string]any)
	if c.parent != nil {
		for key, value := range c.parent.lookupTable() {
			table[key] = value
		}
	}
	for key, value := range c.k.All() {
		table[key] = value
	}
	return table
}

func (c *Config) substitute(key, text string) (string, error) {
	if !placeholderPattern.MatchString(text) {
		return text, nil
	}

	table := c.lookupTable()
	warned := make(map[string]bool)
	for range maxSubstitutionPasses {
		next := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
			name := placeholderPattern.FindStringSubmatch(match)[1]
			value, ok := table[name]
			if !ok {
				if !warned[name] {
					warned[name] = true
					c.logger.Warn("config placeholder has no value", "key", key, "placeholder", name)
				}
				return match
			}
			return fmt.Sprint(value)
		})
		if next == text {
			return text, nil
		}
		text = next
	}
	return "", fmt.Errorf("%w: %q", ErrSubstitutionCycle, key)
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, Delimiter); i >= 0 {
		return key[i+len(Delimiter):]
	}
	return key
}
