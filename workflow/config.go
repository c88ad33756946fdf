package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// RunConfig is the read-only key/value configuration of one run: ceilings,
// model identifiers, counts. Nodes and routers read it; nothing mutates it.
// The zero value is an empty config.
type RunConfig struct {
	values map[string]any
}

// NewRunConfig copies values into a new RunConfig.
func NewRunConfig(values map[string]any) RunConfig {
	c := RunConfig{values: make(map[string]any, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// With returns a copy of c with key set to v.
func (c RunConfig) With(key string, v any) RunConfig {
	out := NewRunConfig(c.values)
	out.values[key] = v
	return out
}

// Merge returns a copy of c overlaid with other.
func (c RunConfig) Merge(other RunConfig) RunConfig {
	out := NewRunConfig(c.values)
	for k, v := range other.values {
		out.values[k] = v
	}
	return out
}

// Get returns the raw value for key.
func (c RunConfig) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the configured keys in sorted order.
func (c RunConfig) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int reads an integer. Values decoded from JSON or YAML (float64, int64,
// json.Number, numeric strings) are accepted. def is returned when the key is
// absent or not numeric.
func (c RunConfig) Int(key string, def int) int {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// String reads a string value.
func (c RunConfig) String(key, def string) string {
	if v, ok := c.values[key]; ok {
		switch s := v.(type) {
		case string:
			return s
		case fmt.Stringer:
			return s.String()
		}
	}
	return def
}

// Bool reads a boolean value.
func (c RunConfig) Bool(key string, def bool) bool {
	if v, ok := c.values[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
	}
	return def
}

// Float reads a floating point value.
func (c RunConfig) Float(key string, def float64) float64 {
	if v, ok := c.values[key]; ok {
		switch f := v.(type) {
		case float64:
			return f
		case float32:
			return float64(f)
		case int:
			return float64(f)
		case int64:
			return float64(f)
		case json.Number:
			if parsed, err := f.Float64(); err == nil {
				return parsed
			}
		}
	}
	return def
}

// Duration reads a time.Duration; strings are parsed with time.ParseDuration.
func (c RunConfig) Duration(key string, def time.Duration) time.Duration {
	if v, ok := c.values[key]; ok {
		switch d := v.(type) {
		case time.Duration:
			return d
		case string:
			if parsed, err := time.ParseDuration(d); err == nil {
				return parsed
			}
		}
	}
	return def
}

// MarshalJSON renders the config, mainly for logs and checkpoints.
func (c RunConfig) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

// UnmarshalJSON loads a config from a JSON object.
func (c *RunConfig) UnmarshalJSON(data []byte) error {
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*c = NewRunConfig(values)
	return nil
}

// CeilingFrom returns a guard ceiling reader for key with a default.
func CeilingFrom(key string, def int) func(RunConfig) int {
	return func(cfg RunConfig) int { return cfg.Int(key, def) }
}
