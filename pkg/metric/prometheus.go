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

package metric

import (
	"io"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// ExportOptions controls WriteText.
type ExportOptions struct {
	// ExporterPrefix is prepended to all metric names.
	ExporterPrefix string
}

// PrometheusName converts a metric name such as "/signal/frames_built" to a
// valid Prometheus metric name such as "signal_frames_built".
func PrometheusName(prefix, name string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range strings.TrimLeft(name, "/") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// metricFamily converts a snapshot to a Prometheus counter family.
func metricFamily(s Snapshot, opts ExportOptions) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(PrometheusName(opts.ExporterPrefix, s.Name)),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	if s.Description != "" {
		mf.Help = proto.String(s.Description)
	}
	for _, sample := range s.Samples {
		m := &dto.Metric{
			Counter: &dto.Counter{Value: proto.Float64(float64(sample.Value))},
		}
		names := make([]string, 0, len(sample.Fields))
		for name := range sample.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m.Label = append(m.Label, &dto.LabelPair{
				Name:  proto.String(name),
				Value: proto.String(sample.Fields[name]),
			})
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

// WriteText writes all registered metrics to w in the Prometheus text
// exposition format.
func WriteText(w io.Writer, opts ExportOptions) (int, error) {
	written := 0
	for _, s := range Values() {
		n, err := expfmt.MetricFamilyToText(w, metricFamily(s, opts))
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
