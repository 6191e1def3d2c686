// Package metrics exposes relay counters to prometheus.
// Values are read from component Stats() at scrape time,
// hot path only touches atomic counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/temoto/nmeaproxy/forward"
	"github.com/temoto/nmeaproxy/listen"
)

const namespace = "nmeaproxy"

// MirrorStats is the subset of mirror.Stats needed here.
type MirrorStats struct {
	Published uint64
	Errors    uint64
}

type Sources struct {
	Sources func() []listen.SourceStats
	Forward func() forward.Stats
	Mirror  func() MirrorStats // optional
}

type Collector struct {
	src Sources

	submitted    *prometheus.Desc
	lines        *prometheus.Desc
	decodeErrors *prometheus.Desc
	badChecksum  *prometheus.Desc
	connections  *prometheus.Desc
	open         *prometheus.Desc
	faults       *prometheus.Desc
	received     *prometheus.Desc

	written    *prometheus.Desc
	dropped    *prometheus.Desc
	lost       *prometheus.Desc
	rejected   *prometheus.Desc
	reconnects *prometheus.Desc
	queue      *prometheus.Desc
	linkState  *prometheus.Desc
	sent       *prometheus.Desc

	mirrorPublished *prometheus.Desc
	mirrorErrors    *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

func NewCollector(src Sources) *Collector {
	sourceDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"source"}, nil)
	}
	forwardDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "forward", name), help, nil, nil)
	}
	return &Collector{
		src: src,

		submitted:    sourceDesc("frames_submitted_total", "Frames produced by source adapter and submitted for forwarding."),
		lines:        sourceDesc("lines_total", "Lines read from source."),
		decodeErrors: sourceDesc("decode_errors_total", "Lines dropped because adapter could not decode them."),
		badChecksum:  sourceDesc("bad_checksum_total", "Passthrough lines forwarded despite invalid NMEA checksum."),
		connections:  sourceDesc("connections_total", "Connections accepted or serial ports opened."),
		open:         sourceDesc("connections_open", "Currently open connections."),
		faults:       sourceDesc("connection_faults_total", "Connections closed by read error or oversize line."),
		received:     sourceDesc("received_bytes_total", "Bytes read from source."),

		written:    forwardDesc("written_total", "Frames written to concentrator."),
		dropped:    forwardDesc("dropped_total", "Oldest frames dropped on queue overflow."),
		lost:       forwardDesc("lost_total", "Frames lost on failed write."),
		rejected:   forwardDesc("rejected_total", "Frames submitted during shutdown."),
		reconnects: forwardDesc("reconnects_total", "Successful reconnects to concentrator."),
		queue:      forwardDesc("queue_length", "Frames waiting for delivery."),
		linkState:  forwardDesc("link_state", "0=disconnected 1=connecting 2=connected 3=backoff"),
		sent:       forwardDesc("sent_bytes_total", "Bytes written to concentrator."),

		mirrorPublished: prometheus.NewDesc(prometheus.BuildFQName(namespace, "mirror", "published_total"), "Frames published to MQTT mirror.", nil, nil),
		mirrorErrors:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "mirror", "errors_total"), "MQTT mirror publish failures.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.submitted, c.lines, c.decodeErrors, c.badChecksum, c.connections, c.open, c.faults, c.received,
		c.written, c.dropped, c.lost, c.rejected, c.reconnects, c.queue, c.linkState, c.sent,
	} {
		ch <- d
	}
	if c.src.Mirror != nil {
		ch <- c.mirrorPublished
		ch <- c.mirrorErrors
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	if c.src.Sources != nil {
		for _, s := range c.src.Sources() {
			counter(c.submitted, s.Frames, s.Name)
			counter(c.lines, s.Lines, s.Name)
			counter(c.decodeErrors, s.DecodeErrors, s.Name)
			counter(c.badChecksum, s.BadChecksum, s.Name)
			counter(c.connections, s.Connections, s.Name)
			gauge(c.open, float64(s.Open), s.Name)
			counter(c.faults, s.Faults, s.Name)
			counter(c.received, s.Bytes, s.Name)
		}
	}
	if c.src.Forward != nil {
		f := c.src.Forward()
		counter(c.written, f.Written)
		counter(c.dropped, f.Dropped)
		counter(c.lost, f.Lost)
		counter(c.rejected, f.Rejected)
		counter(c.reconnects, f.Reconnects)
		gauge(c.queue, float64(f.Queued))
		gauge(c.linkState, float64(f.State))
		counter(c.sent, f.Bytes)
	}
	if c.src.Mirror != nil {
		m := c.src.Mirror()
		counter(c.mirrorPublished, m.Published)
		counter(c.mirrorErrors, m.Errors)
	}
}

// NewRegistry returns private registry with relay and process collectors.
func NewRegistry(src Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
