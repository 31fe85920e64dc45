// Copyright 2026 The sigframe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metric provides primitives for collecting metrics.
package metric

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"sigframe.dev/sigframe/pkg/atomicbitops"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInitializationDone indicates that the caller tried to create a
	// new metric after initialization.
	ErrInitializationDone = errors.New("metric cannot be created after initialization is complete")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrTooManyFieldCombinations indicates that the number of unique
	// combinations of fields is too large to support.
	ErrTooManyFieldCombinations = errors.New("metric has too many combinations of allowed field values")
)

// Uint64Metric encapsulates a cumulative uint64 counter, optionally broken
// down by field values.
type Uint64Metric struct {
	name        string
	description string

	// fields is the map of field-value combination index keys to counters.
	fields []atomicbitops.Uint64

	// fieldMapper is used to generate index keys for the fields array (above)
	// based on field value combinations, and vice-versa.
	fieldMapper fieldMapper
}

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// fieldMapper maps multi-dimensional field values to a single integer key.
type fieldMapper struct {
	fields []Field

	// numFieldCombinations is the number of unique keys for all possible field
	// combinations.
	numFieldCombinations int
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	numFieldCombinations := 1
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return fieldMapper{}, ErrFieldHasNoAllowedValues
		}
		numFieldCombinations *= len(f.allowedValues)
		if numFieldCombinations > math.MaxUint32 {
			return fieldMapper{}, ErrTooManyFieldCombinations
		}
	}
	return fieldMapper{
		fields:               fields,
		numFieldCombinations: numFieldCombinations,
	}, nil
}

// lookup returns the key for the given field values. It panics unless
// exactly one allowed value is passed per field.
func (m fieldMapper) lookup(values ...string) int {
	if len(values) != len(m.fields) {
		panic("invalid field lookup depth")
	}
	idx := 0
	remaining := m.numFieldCombinations
Lookup:
	for i, val := range values {
		for valIdx, allowed := range m.fields[i].allowedValues {
			if val == allowed {
				remaining /= len(m.fields[i].allowedValues)
				idx += remaining * valIdx
				continue Lookup
			}
		}
		panic(fmt.Sprintf("disallowed value %q for field %q", val, m.fields[i].name))
	}
	return idx
}

// keyToMultiField is the reverse of lookup.
func (m fieldMapper) keyToMultiField(key int) []string {
	if len(m.fields) == 0 {
		return nil
	}
	values := make([]string, len(m.fields))
	remaining := m.numFieldCombinations
	for i, f := range m.fields {
		remaining /= len(f.allowedValues)
		values[i] = f.allowedValues[key/remaining]
		key %= remaining
	}
	return values
}

// registry holds all registered metrics.
type registry struct {
	mu sync.RWMutex

	// initialized indicates that all metrics are registered. metrics is
	// immutable once initialized is true.
	initialized bool

	metrics map[string]*Uint64Metric
}

var allMetrics = newRegistry()

func newRegistry() *registry {
	return &registry{metrics: make(map[string]*Uint64Metric)}
}

// Initialize freezes the set of registered metrics. Metrics created
// afterwards fail with ErrInitializationDone.
func Initialize() {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	allMetrics.initialized = true
}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}

	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.initialized {
		return nil, ErrInitializationDone
	}
	if _, ok := allMetrics.metrics[name]; ok {
		return nil, ErrNameInUse
	}
	m := &Uint64Metric{
		name:        name,
		description: description,
		fields:      make([]atomicbitops.Uint64, f.numFieldCombinations),
		fieldMapper: f,
	}
	allMetrics.metrics[name] = m
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Name returns the registered name of the metric.
func (m *Uint64Metric) Name() string {
	return m.name
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.fields[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(v)
}

// Sample is the value of one field combination of a metric.
type Sample struct {
	// Fields maps field name to value. It is nil for metrics without
	// fields.
	Fields map[string]string
	Value  uint64
}

// Snapshot is the state of one metric at a point in time.
type Snapshot struct {
	Name        string
	Description string
	Samples     []Sample
}

func (m *Uint64Metric) snapshot() Snapshot {
	s := Snapshot{
		Name:        m.name,
		Description: m.description,
		Samples:     make([]Sample, 0, len(m.fields)),
	}
	for key := range m.fields {
		var fields map[string]string
		if values := m.fieldMapper.keyToMultiField(key); values != nil {
			fields = make(map[string]string, len(values))
			for i, v := range values {
				fields[m.fieldMapper.fields[i].name] = v
			}
		}
		s.Samples = append(s.Samples, Sample{Fields: fields, Value: m.fields[key].Load()})
	}
	return s
}

// Values returns a snapshot of all registered metrics, sorted by name.
func Values() []Snapshot {
	allMetrics.mu.RLock()
	defer allMetrics.mu.RUnlock()
	out := make([]Snapshot, 0, len(allMetrics.metrics))
	for _, m := range allMetrics.metrics {
		out = append(out, m.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
