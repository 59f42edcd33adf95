package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SignalItem is one entry of a raw analysis category.
// Rationale is passthrough text and never affects any score.
type SignalItem struct {
	Label     string  `json:"label,omitempty" yaml:"label,omitempty"`
	Value     float64 `json:"value" yaml:"value"`
	Rationale string  `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// ZESDimensions holds the four weighted dimension groups used by the zero echo score.
// Each map is sub-metric name -> value on a 0-10 scale.
type ZESDimensions struct {
	Signal         map[string]float64 `json:"Signal,omitempty" yaml:"signal,omitempty"`
	Noise          map[string]float64 `json:"Noise,omitempty" yaml:"noise,omitempty"`
	Utility        map[string]float64 `json:"Utility,omitempty" yaml:"utility,omitempty"`
	FineAdjustment map[string]float64 `json:"Fine_Adjustment,omitempty" yaml:"fine_adjustment,omitempty"`
}

// RawAnalysis is the structured payload returned by the external analysis service.
type RawAnalysis struct {
	ImpactEntities []SignalItem   `json:"impact_entities,omitempty" yaml:"impact_entities,omitempty"`
	ImpactEvents   []SignalItem   `json:"impact_events,omitempty" yaml:"impact_events,omitempty"`
	Penalties      []SignalItem   `json:"penalties,omitempty" yaml:"penalties,omitempty"`
	Modifiers      []SignalItem   `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	Dimensions     *ZESDimensions `json:"zes,omitempty" yaml:"zes,omitempty"`
}

// Clone returns a deep copy of the analysis.
func (r *RawAnalysis) Clone() *RawAnalysis {
	if r == nil {
		return nil
	}
	c := &RawAnalysis{
		ImpactEntities: append([]SignalItem(nil), r.ImpactEntities...),
		ImpactEvents:   append([]SignalItem(nil), r.ImpactEvents...),
		Penalties:      append([]SignalItem(nil), r.Penalties...),
		Modifiers:      append([]SignalItem(nil), r.Modifiers...),
	}
	if r.Dimensions != nil {
		c.Dimensions = &ZESDimensions{
			Signal:         cloneMetrics(r.Dimensions.Signal),
			Noise:          cloneMetrics(r.Dimensions.Noise),
			Utility:        cloneMetrics(r.Dimensions.Utility),
			FineAdjustment: cloneMetrics(r.Dimensions.FineAdjustment),
		}
	}
	return c
}

func cloneMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// categoryKeys lists accepted upstream keys for each category, canonical key first.
var categoryKeys = map[string][]string{
	"impact_entities": {"impact_entities", "impact_entity_classification", "entities"},
	"impact_events":   {"impact_events", "events"},
	"penalties":       {"penalties"},
	"modifiers":       {"modifiers"},
}

var dimensionKeys = map[string][]string{
	"Signal":          {"Signal", "signal"},
	"Noise":           {"Noise", "noise"},
	"Utility":         {"Utility", "utility"},
	"Fine_Adjustment": {"Fine_Adjustment", "fine_adjustment", "FineAdjustment"},
}

// ParseRawAnalysis decodes a loosely structured payload into a RawAnalysis.
// It never fails: absent keys resolve to empty categories, non-object items are
// dropped and reported in the returned warnings, non-numeric values become 0.
func ParseRawAnalysis(payload map[string]any) (*RawAnalysis, []string) {
	var warnings []string
	raw := &RawAnalysis{}
	if payload == nil {
		return raw, nil
	}

	parse := func(canonical string) []SignalItem {
		value, ok := lookup(payload, categoryKeys[canonical])
		if !ok || value == nil {
			return nil
		}
		list, ok := value.([]any)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: expected a list, got %T", canonical, value))
			return nil
		}
		items := make([]SignalItem, 0, len(list))
		for i, entry := range list {
			obj, ok := entry.(map[string]any)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("%s[%d]: expected an object, got %T", canonical, i, entry))
				continue
			}
			items = append(items, SignalItem{
				Label:     firstString(obj, "label", "name", "entity", "event", "type"),
				Value:     ToFloat(obj["value"]),
				Rationale: firstString(obj, "rationale", "reason", "explanation"),
			})
		}
		return items
	}

	raw.ImpactEntities = parse("impact_entities")
	raw.ImpactEvents = parse("impact_events")
	raw.Penalties = parse("penalties")
	raw.Modifiers = parse("modifiers")

	source := payload
	for _, key := range []string{"zes", "zes_v1", "dimensions"} {
		if nested, ok := payload[key].(map[string]any); ok {
			source = nested
			break
		}
	}
	dims := &ZESDimensions{
		Signal:         parseMetrics(source, dimensionKeys["Signal"]),
		Noise:          parseMetrics(source, dimensionKeys["Noise"]),
		Utility:        parseMetrics(source, dimensionKeys["Utility"]),
		FineAdjustment: parseMetrics(source, dimensionKeys["Fine_Adjustment"]),
	}
	if dims.Signal != nil || dims.Noise != nil || dims.Utility != nil || dims.FineAdjustment != nil {
		raw.Dimensions = dims
	}

	return raw, warnings
}

func parseMetrics(source map[string]any, keys []string) map[string]float64 {
	value, ok := lookup(source, keys)
	if !ok {
		return nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	metrics := make(map[string]float64, len(obj))
	for name, v := range obj {
		metrics[name] = ToFloat(v)
	}
	return metrics
}

func lookup(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ToFloat converts loosely typed numeric values. Anything unusable yields 0.
func ToFloat(v any) float64 {
	f := toFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
