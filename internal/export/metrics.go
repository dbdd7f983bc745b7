package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the controller-wide Prometheus instruments. All vectors
// are labelled by access point so multi-device runs stay separable.
type Metrics struct {
	registry *prometheus.Registry

	Lines        *prometheus.CounterVec
	DecodeErrors *prometheus.CounterVec
	Events       *prometheus.CounterVec
	Commands     *prometheus.CounterVec
	Stations     *prometheus.GaugeVec
	APConnected  *prometheus.GaugeVec
	APReachable  *prometheus.GaugeVec
	APPingRTT    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Lines: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratectl_lines_total",
			Help: "Telemetry lines received, per access point.",
		}, []string{"ap"}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratectl_decode_errors_total",
			Help: "Rejected telemetry lines by error kind.",
		}, []string{"ap", "kind"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratectl_events_total",
			Help: "Decoded events by record type.",
		}, []string{"ap", "type"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratectl_commands_total",
			Help: "Commands written to the device, per access point.",
		}, []string{"ap"}),
		Stations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectl_stations",
			Help: "Known stations, per access point.",
		}, []string{"ap"}),
		APConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectl_ap_connected",
			Help: "1 while the control connection to the access point is up.",
		}, []string{"ap"}),
		APReachable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectl_ap_reachable",
			Help: "1 while the access point answers ICMP echo probes.",
		}, []string{"ap"}),
		APPingRTT: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectl_ap_ping_rtt_ms",
			Help: "Last ICMP probe round trip time in milliseconds.",
		}, []string{"ap"}),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
