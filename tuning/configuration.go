package tuning

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// Configuration is an immutable assignment of values to hyperparameters.
// Values are int, float64 or string.
type Configuration struct {
	values map[string]interface{}
}

// NewConfiguration copies values into a Configuration.
func NewConfiguration(values map[string]interface{}) Configuration {
	c := Configuration{values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Len returns the number of assigned parameters.
func (c Configuration) Len() int { return len(c.values) }

// Value returns the raw value of name.
func (c Configuration) Value(name string) (interface{}, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Int returns an integer parameter, or 0 when absent or not an int.
func (c Configuration) Int(name string) int {
	v, _ := c.values[name].(int)
	return v
}

// Float returns a real parameter. Integer values are converted; absent
// values return NaN.
func (c Configuration) Float(name string) float64 {
	switch v := c.values[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return math.NaN()
	}
}

// String returns a categorical parameter, or "" when absent.
func (c Configuration) String(name string) string {
	v, _ := c.values[name].(string)
	return v
}

// Names returns the parameter names in sorted order.
func (c Configuration) Names() []string {
	names := make([]string, 0, len(c.values))
	for k := range c.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the underlying values.
func (c Configuration) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	return NewConfiguration(c.values)
}

// With returns a copy with name set to v.
func (c Configuration) With(name string, v interface{}) Configuration {
	out := c.Clone()
	out.values[name] = v
	return out
}

// Equal reports whether both configurations hold the same values.
func (c Configuration) Equal(other Configuration) bool {
	if len(c.values) != len(other.values) {
		return false
	}
	for k, v := range c.values {
		if o, ok := other.values[k]; !ok || o != v {
			return false
		}
	}
	return true
}

// Describe renders the configuration as sorted name=value pairs.
func (c Configuration) Describe() string {
	var b strings.Builder
	for i, name := range c.Names() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatValue(c.values[name]))
	}
	return b.String()
}

// MarshalJSON encodes the configuration as a JSON object.
func (c Configuration) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

// UnmarshalJSON decodes a JSON object. Whole numbers decode as int, other
// numbers as float64.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.values = make(map[string]interface{}, len(raw))
	for k, msg := range raw {
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			c.values[k] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(msg, &n); err != nil {
			return err
		}
		if i, err := n.Int64(); err == nil && !strings.ContainsAny(string(n), ".eE") {
			c.values[k] = int(i)
			continue
		}
		f, err := n.Float64()
		if err != nil {
			return err
		}
		c.values[k] = f
	}
	return nil
}

// DecodeFor converts values to the types the space declares, so integral
// reals stored for float parameters regain their float64 type.
func (c Configuration) DecodeFor(space *Space) Configuration {
	out := c.Clone()
	for name, v := range out.values {
		d, ok := space.Distribution(name)
		if !ok {
			continue
		}
		switch d.(type) {
		case FloatDistribution:
			if i, ok := v.(int); ok {
				out.values[name] = float64(i)
			}
		case IntDistribution:
			if f, ok := v.(float64); ok && f == math.Trunc(f) {
				out.values[name] = int(f)
			}
		}
	}
	return out
}
