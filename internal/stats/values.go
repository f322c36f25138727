package stats

import (
	"encoding/json"
	"fmt"
	"math"
)

// Values is an ordered, append-only collection of raw samples used as
// the accumulator bucket in a Merger. Samples are either numeric or
// repeated equal strings; statistical getters are only meaningful for
// numeric-only sets.
type Values struct {
	values []any
}

// NewValues returns a Values pre-filled with the given samples.
func NewValues(values ...any) *Values {
	return &Values{values: values}
}

// ValuesFromJSON rebuilds a Values from its serialized form, either a
// {"values": [...]} document or a bare scalar (the collapsed form of
// repeated equal non-numeric samples).
func ValuesFromJSON(data any) (*Values, error) {
	switch doc := data.(type) {
	case map[string]any:
		raw, ok := doc["values"]
		if !ok {
			return nil, fmt.Errorf("stats: serialized values missing %q field", "values")
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("stats: serialized %q is %T, want list", "values", raw)
		}
		return NewValues(list...), nil
	default:
		return NewValues(doc), nil
	}
}

// Append adds one sample.
func (v *Values) Append(value any) {
	v.values = append(v.values, value)
}

// AppendAll adds every sample in order.
func (v *Values) AppendAll(values ...any) {
	v.values = append(v.values, values...)
}

// Len returns the number of samples.
func (v *Values) Len() int { return len(v.values) }

// Samples returns the raw samples in append order.
func (v *Values) Samples() []any { return v.values }

// IsNumeric reports whether every sample converts to a float.
func (v *Values) IsNumeric() bool {
	for _, value := range v.values {
		if _, ok := toFloat(value); !ok {
			return false
		}
	}
	return true
}

// Min returns the smallest sample. Panics on an empty or non-numeric
// set: callers check IsNumeric first.
func (v *Values) Min() float64 {
	min := v.number(0)
	for i := 1; i < len(v.values); i++ {
		if n := v.number(i); n < min {
			min = n
		}
	}
	return min
}

// Max returns the largest sample.
func (v *Values) Max() float64 {
	max := v.number(0)
	for i := 1; i < len(v.values); i++ {
		if n := v.number(i); n > max {
			max = n
		}
	}
	return max
}

// Average returns the arithmetic mean.
func (v *Values) Average() float64 {
	var sum float64
	for i := range v.values {
		sum += v.number(i)
	}
	return sum / float64(len(v.values))
}

// Geomean returns the geometric mean, (∏v)^(1/n). Samples are assumed
// strictly positive; this is unguarded on purpose.
func (v *Values) Geomean() float64 {
	product := 1.0
	for i := range v.values {
		product *= v.number(i)
	}
	return math.Pow(product, 1/float64(len(v.values)))
}

// Stddev returns the population standard deviation, dividing by N.
// This ignores the actual distribution of the data and serves as a
// rough estimate of its quality, not as a sample-variance estimator.
func (v *Values) Stddev() float64 {
	average := v.Average()
	var variance float64
	for i := range v.values {
		diff := average - v.number(i)
		variance += diff * diff
	}
	variance /= float64(len(v.values))
	return math.Sqrt(variance)
}

// StddevPercent returns the stddev as a percentage of the average, or
// 0 when the average is 0.
func (v *Values) StddevPercent() float64 {
	average := v.Average()
	if average == 0 {
		return 0
	}
	return v.Stddev() / average * 100
}

func (v *Values) number(i int) float64 {
	n, ok := toFloat(v.values[i])
	if !ok {
		panic(fmt.Sprintf("stats: sample %d is %T, not numeric", i, v.values[i]))
	}
	return n
}

// ToJSON returns the serializable form: numeric sets expand into the
// full statistical summary, repeated equal non-numeric samples
// collapse to the single value, anything else keeps the raw list.
func (v *Values) ToJSON() any {
	if len(v.values) > 0 && v.IsNumeric() {
		average := v.Average()
		stddev := v.Stddev()
		stddevPercent := 0.0
		if average != 0 {
			stddevPercent = stddev / average * 100
		}
		return map[string]any{
			"values":        v.values,
			"min":           v.Min(),
			"average":       average,
			"geomean":       v.Geomean(),
			"max":           v.Max(),
			"stddev":        stddev,
			"stddevPercent": stddevPercent,
		}
	}
	if collapsed, ok := v.collapse(); ok {
		return collapsed
	}
	return map[string]any{"values": v.values}
}

// collapse simplifies repeated equal non-numeric samples to the single
// value.
func (v *Values) collapse() (any, bool) {
	if len(v.values) == 0 {
		return nil, false
	}
	first, ok := v.values[0].(string)
	if !ok {
		return nil, false
	}
	for _, value := range v.values[1:] {
		if value != v.values[0] {
			return nil, false
		}
	}
	return first, true
}

// toFloat converts the numeric JSON shapes Go decodes into.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
