package domain

import (
	"reflect"
	"strings"
)

// PropertyKey names a property by colon separated segments. Model keys are
// part of the declared schema: evidence may update them but never add them.
type PropertyKey struct {
	name  string
	model bool
}

// PropertyExpected holds the verdict of the "seen now" rule
var PropertyExpected = NewPropertyKey("check", "expected")

// NewPropertyKey joins segments into a key
func NewPropertyKey(segments ...string) PropertyKey {
	return PropertyKey{name: strings.Join(segments, ":")}
}

// ParsePropertyKey reads the colon separated form produced by String
func ParsePropertyKey(s string) PropertyKey {
	return PropertyKey{name: s}
}

// Persistent returns the model-only flavour of the key
func (k PropertyKey) Persistent() PropertyKey {
	k.model = true
	return k
}

// IsModel reports a model-only key
func (k PropertyKey) IsModel() bool {
	return k.model
}

// Segments returns the key segments
func (k PropertyKey) Segments() []string {
	return strings.Split(k.name, ":")
}

func (k PropertyKey) String() string {
	return k.name
}

// PropertyValue is a verdict with an explanation, or a plain value
type PropertyValue struct {
	Verdict     Verdict `json:"verdict,omitempty"`
	Explanation string  `json:"exp,omitempty"`
	Value       any     `json:"value,omitempty"`
}

// VerdictValue builds a verdict-bearing value
func VerdictValue(v Verdict, explanation string) PropertyValue {
	return PropertyValue{Verdict: v, Explanation: explanation}
}

// Property is a key with its value
type Property struct {
	Key   PropertyKey
	Value PropertyValue
}

// Properties is an insertion ordered property map
type Properties struct {
	keys   []PropertyKey
	values map[string]PropertyValue
}

// Len returns the number of properties
func (p *Properties) Len() int {
	return len(p.keys)
}

// Get returns the value for a key
func (p *Properties) Get(k PropertyKey) (PropertyValue, bool) {
	if p.values == nil {
		return PropertyValue{}, false
	}
	v, ok := p.values[k.name]
	return v, ok
}

// Has reports whether the key is present
func (p *Properties) Has(k PropertyKey) bool {
	_, ok := p.Get(k)
	return ok
}

// Set stores a value and reports whether anything changed. An existing
// key keeps its original model flag.
func (p *Properties) Set(k PropertyKey, v PropertyValue) bool {
	if p.values == nil {
		p.values = make(map[string]PropertyValue)
	}
	old, ok := p.values[k.name]
	if ok && reflect.DeepEqual(old, v) {
		return false
	}
	if !ok {
		p.keys = append(p.keys, k)
	}
	p.values[k.name] = v
	return true
}

// Delete removes a key
func (p *Properties) Delete(k PropertyKey) {
	if _, ok := p.Get(k); !ok {
		return
	}
	delete(p.values, k.name)
	for i, key := range p.keys {
		if key.name == k.name {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// All returns the properties in insertion order
func (p *Properties) All() []Property {
	out := make([]Property, 0, len(p.keys))
	for _, k := range p.keys {
		out = append(out, Property{Key: k, Value: p.values[k.name]})
	}
	return out
}

// Verdicts returns the verdicts carried by the properties
func (p *Properties) Verdicts() []Verdict {
	var out []Verdict
	for _, k := range p.keys {
		if v := p.values[k.name].Verdict; v != VerdictUndefined {
			out = append(out, v)
		}
	}
	return out
}

// reset drops evidence properties and returns model verdicts to Incon
func (p *Properties) reset() {
	kept := p.keys[:0]
	for _, k := range p.keys {
		if !k.model {
			delete(p.values, k.name)
			continue
		}
		v := p.values[k.name]
		if v.Verdict != VerdictUndefined {
			v.Verdict = VerdictIncon
			p.values[k.name] = v
		}
		kept = append(kept, k)
	}
	p.keys = kept
}
