package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics are the console's own metrics. A nil *AppMetrics is valid and records nothing.
type AppMetrics struct {
	BytesReceived  prometheus.Counter
	BytesSent      prometheus.Counter
	FramesDecoded  *prometheus.CounterVec // labels: op
	DecodeErrors   *prometheus.CounterVec // labels: reason
	CommandsPushed prometheus.Counter
	MailboxDrops   prometheus.Counter
	TriggerFires   *prometheus.CounterVec // labels: trigger
	SchedulerState prometheus.Gauge       // 1 running, 0 idle
	Channels       prometheus.Gauge
}

// NewAppMetrics registers and returns the console metrics
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_transport_bytes_received_total",
			Help: "Total bytes delivered by the transport.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_transport_bytes_sent_total",
			Help: "Total bytes written to the transport.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_frames_decoded_total",
			Help: "Inbound frames decoded, by operation code.",
		}, []string{"op"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_frame_resync_total",
			Help: "Bytes skipped while resynchronizing the inbound stream.",
		}, []string{"reason"}),
		CommandsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_commands_pushed_total",
			Help: "Outbound frames handed to the transport.",
		}),
		MailboxDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_mailbox_drops_total",
			Help: "Inbound commands dropped because the mailbox was full.",
		}),
		TriggerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_trigger_fires_total",
			Help: "Scheduler trigger executions.",
		}, []string{"trigger"}),
		SchedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_scheduler_running",
			Help: "1 while the scheduler is running, 0 while idle.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_channels",
			Help: "Channels currently in the registry.",
		}),
	}
	reg.MustRegister(
		m.BytesReceived, m.BytesSent, m.FramesDecoded, m.DecodeErrors,
		m.CommandsPushed, m.MailboxDrops, m.TriggerFires, m.SchedulerState, m.Channels,
	)
	return m
}

func (m *AppMetrics) ObserveReceived(n int) {
	if m == nil {
		return
	}
	m.BytesReceived.Add(float64(n))
}

func (m *AppMetrics) ObserveSent(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}

func (m *AppMetrics) ObserveDecoded(op string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(op).Inc()
}

func (m *AppMetrics) ObserveResync(reason string, skipped int) {
	if m == nil || skipped <= 0 {
		return
	}
	m.DecodeErrors.WithLabelValues(reason).Add(float64(skipped))
}

func (m *AppMetrics) ObservePushed() {
	if m == nil {
		return
	}
	m.CommandsPushed.Inc()
}

func (m *AppMetrics) ObserveMailboxDrop() {
	if m == nil {
		return
	}
	m.MailboxDrops.Inc()
}

func (m *AppMetrics) ObserveTrigger(name string) {
	if m == nil {
		return
	}
	m.TriggerFires.WithLabelValues(name).Inc()
}

func (m *AppMetrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SchedulerState.Set(1)
	} else {
		m.SchedulerState.Set(0)
	}
}

func (m *AppMetrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.Channels.Set(float64(n))
}
