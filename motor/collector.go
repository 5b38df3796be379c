package motor

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	positionDesc = prometheus.NewDesc(
		"akd2g_axis_position_microdegrees",
		"last polled position of the axis",
		[]string{"controller", "axis"}, nil)

	movingDesc = prometheus.NewDesc(
		"akd2g_axis_moving",
		"1 if the axis is running a motion task",
		[]string{"controller", "axis"}, nil)

	commsErrorDesc = prometheus.NewDesc(
		"akd2g_axis_comms_error",
		"1 if the last exchange with the drive failed",
		[]string{"controller", "axis"}, nil)

	problemDesc = prometheus.NewDesc(
		"akd2g_axis_problem",
		"1 if the axis refused the last motion request",
		[]string{"controller", "axis"}, nil)

	powerOnDesc = prometheus.NewDesc(
		"akd2g_axis_power_on",
		"1 if the axis is enabled",
		[]string{"controller", "axis"}, nil)
)

// Collector is a prometheus.Collector over the parameter stores of one or
// more controllers.  It is read at scrape time and never talks to a drive.
type Collector struct {
	mu     sync.Mutex
	names  []string
	stores []*Params
}

// NewCollector returns an empty Collector
func NewCollector() *Collector {
	return &Collector{}
}

// Add registers the store of a controller under name
func (c *Collector) Add(name string, p *Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.stores = append(c.stores, p)
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- positionDesc
	ch <- movingDesc
	ch <- commsErrorDesc
	ch <- problemDesc
	ch <- powerOnDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.stores {
		name := c.names[i]
		for axis, st := range p.Snapshot() {
			label := strconv.Itoa(axis + 1)
			ch <- prometheus.MustNewConstMetric(positionDesc, prometheus.GaugeValue, st.Position, name, label)
			ch <- prometheus.MustNewConstMetric(movingDesc, prometheus.GaugeValue, b2f(st.Moving), name, label)
			ch <- prometheus.MustNewConstMetric(commsErrorDesc, prometheus.GaugeValue, b2f(st.CommsError), name, label)
			ch <- prometheus.MustNewConstMetric(problemDesc, prometheus.GaugeValue, b2f(st.Problem), name, label)
			ch <- prometheus.MustNewConstMetric(powerOnDesc, prometheus.GaugeValue, b2f(st.PowerOn), name, label)
		}
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
