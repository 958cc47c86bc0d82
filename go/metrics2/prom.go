package metrics2

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/prometheus/client_golang/prometheus"
)

// unsafeChars matches every character Prometheus forbids in metric and
// label names.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// clean rewrites s into a valid Prometheus name.
func clean(s string) string {
	return unsafeChars.ReplaceAllLiteralString(s, "_")
}

// metricID identifies one metric: the cleaned measurement name plus the
// cleaned, merged label set.
type metricID struct {
	measurement string
	labels      prometheus.Labels
	// keys holds the label names, sorted.
	keys []string
}

func newMetricID(measurement string, tags ...map[string]string) metricID {
	id := metricID{
		measurement: clean(measurement),
		labels:      prometheus.Labels{},
	}
	for _, t := range tags {
		for k, v := range t {
			k = clean(k)
			if _, ok := id.labels[k]; !ok {
				id.keys = append(id.keys, k)
			}
			id.labels[k] = v
		}
	}
	sort.Strings(id.keys)
	return id
}

// cellKey distinguishes the metric from every other metric, including
// others in the same family.
func (id metricID) cellKey() string {
	parts := []string{id.measurement}
	for _, k := range id.keys {
		parts = append(parts, k, id.labels[k])
	}
	return strings.Join(parts, "-")
}

// familyKey distinguishes the vector the metric lives in. Prometheus
// requires every metric of a family to carry the same label names, so the
// family is the measurement plus the sorted label names.
func (id metricID) familyKey() string {
	return fmt.Sprintf("%s %v", id.measurement, id.keys)
}

// gaugeValue is the set of value types a gauge can report.
type gaugeValue interface {
	~int64 | ~float64
}

// promGauge implements Int64Metric and Float64Metric. The last written
// value is kept next to the prometheus gauge because the prometheus client
// offers no way to read a gauge back.
type promGauge[T gaugeValue] struct {
	reg    *gaugeRegistry[T]
	key    string
	vec    *prometheus.GaugeVec
	labels prometheus.Labels
	gauge  prometheus.Gauge

	mtx sync.Mutex
	v   T
}

func (g *promGauge[T]) Get() T {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.v
}

func (g *promGauge[T]) Update(v T) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.v = v
	g.gauge.Set(float64(v))
}

func (g *promGauge[T]) Delete() error {
	g.reg.remove(g.key)
	if !g.vec.Delete(g.labels) {
		return skerr.Fmt("no gauge with labels %v to delete", g.labels)
	}
	return nil
}

// gaugeRegistry hands out the gauges of one value type, creating and
// registering vectors on first use. Asking for the same measurement and
// tags again returns the same gauge.
type gaugeRegistry[T gaugeValue] struct {
	mtx   sync.Mutex
	vecs  map[string]*prometheus.GaugeVec
	cells map[string]*promGauge[T]
}

func newGaugeRegistry[T gaugeValue]() *gaugeRegistry[T] {
	return &gaugeRegistry[T]{
		vecs:  map[string]*prometheus.GaugeVec{},
		cells: map[string]*promGauge[T]{},
	}
}

func (r *gaugeRegistry[T]) get(id metricID) *promGauge[T] {
	key := id.cellKey()
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if cell, ok := r.cells[key]; ok {
		return cell
	}
	vec, ok := r.vecs[id.familyKey()]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: id.measurement,
			Help: id.measurement,
		}, id.keys)
		if err := prometheus.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", id.measurement, err)
		}
		r.vecs[id.familyKey()] = vec
	}
	gauge, err := vec.GetMetricWith(id.labels)
	if err != nil {
		sklog.Fatalf("Failed to get gauge %q: %s", id.measurement, err)
	}
	cell := &promGauge[T]{
		reg:    r,
		key:    key,
		vec:    vec,
		labels: id.labels,
		gauge:  gauge,
	}
	r.cells[key] = cell
	return cell
}

func (r *gaugeRegistry[T]) remove(key string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.cells, key)
}

// promCounter implements Counter on top of an int64 gauge rather than a
// prometheus counter, so that it can be read back, decremented, and reset.
// The read-modify-write runs under the shared cell's lock, so counters for
// the same measurement and tags never lose increments to each other.
type promCounter struct {
	*promGauge[int64]
}

func (c *promCounter) Inc(i int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.v += i
	c.gauge.Set(float64(c.v))
}

func (c *promCounter) Dec(i int64) {
	c.Inc(-i)
}

func (c *promCounter) Reset() {
	c.Update(0)
}

// promSummary implements Float64SummaryMetric.
type promSummary struct {
	obs prometheus.Observer
}

func (s *promSummary) Observe(v float64) {
	s.obs.Observe(v)
}

// promClient implements Client against the process-wide default
// prometheus registerer.
type promClient struct {
	ints   *gaugeRegistry[int64]
	floats *gaugeRegistry[float64]

	summaryMtx  sync.Mutex
	summaryVecs map[string]*prometheus.SummaryVec
	summaries   map[string]*promSummary
}

func newPromClient() *promClient {
	return &promClient{
		ints:        newGaugeRegistry[int64](),
		floats:      newGaugeRegistry[float64](),
		summaryVecs: map[string]*prometheus.SummaryVec{},
		summaries:   map[string]*promSummary{},
	}
}

// GetInt64Metric implements Client.
func (p *promClient) GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return p.ints.get(newMetricID(name, tags...))
}

// GetFloat64Metric implements Client.
func (p *promClient) GetFloat64Metric(name string, tags ...map[string]string) Float64Metric {
	return p.floats.get(newMetricID(name, tags...))
}

// GetCounter implements Client.
func (p *promClient) GetCounter(name string, tags ...map[string]string) Counter {
	return &promCounter{promGauge: p.ints.get(newMetricID(name, tags...))}
}

// GetFloat64SummaryMetric implements Client.
func (p *promClient) GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	id := newMetricID(name, tags...)
	key := id.cellKey()
	p.summaryMtx.Lock()
	defer p.summaryMtx.Unlock()
	if s, ok := p.summaries[key]; ok {
		return s
	}
	vec, ok := p.summaryVecs[id.familyKey()]
	if !ok {
		vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       id.measurement,
			Help:       id.measurement,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, id.keys)
		if err := prometheus.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", id.measurement, err)
		}
		p.summaryVecs[id.familyKey()] = vec
	}
	obs, err := vec.GetMetricWith(id.labels)
	if err != nil {
		sklog.Fatalf("Failed to get summary %q: %s", id.measurement, err)
	}
	s := &promSummary{obs: obs}
	p.summaries[key] = s
	return s
}

// NewLiveness implements Client.
func (p *promClient) NewLiveness(name string, tags ...map[string]string) Liveness {
	return newLiveness(p, name, tags...)
}

// NewTimer implements Client.
func (p *promClient) NewTimer(name string, tags ...map[string]string) Timer {
	return newTimer(p, name, tags...)
}

var _ Int64Metric = (*promGauge[int64])(nil)
var _ Float64Metric = (*promGauge[float64])(nil)
var _ Counter = (*promCounter)(nil)
var _ Float64SummaryMetric = (*promSummary)(nil)
var _ Client = (*promClient)(nil)
