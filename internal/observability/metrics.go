// Package observability adapts the teacher's promauto
// metric-registration pattern to swimshell.Recorder: counters of probe
// attempts, probe timeouts, acks received, suspicion transitions, and
// directives by kind. No latency histograms are recorded.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProbesSent tracks probes sent by kind (direct/indirect).
var ProbesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swimshell",
	Subsystem: "probe",
	Name:      "sent_total",
	Help:      "Total probes sent, by kind.",
}, []string{"kind"})

// ProbesTimedOut tracks probe timeouts by kind.
var ProbesTimedOut = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swimshell",
	Subsystem: "probe",
	Name:      "timed_out_total",
	Help:      "Total probes that timed out, by kind.",
}, []string{"kind"})

// AcksReceived tracks acks received by kind.
var AcksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swimshell",
	Subsystem: "probe",
	Name:      "acks_total",
	Help:      "Total acks received, by kind.",
}, []string{"kind"})

// SuspicionsRaised tracks total suspect transitions.
var SuspicionsRaised = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swimshell",
	Subsystem: "membership",
	Name:      "suspicions_raised_total",
	Help:      "Total times a member was newly marked suspect.",
})

// DirectivesHandled tracks executed directives by kind.
var DirectivesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swimshell",
	Subsystem: "shell",
	Name:      "directives_handled_total",
	Help:      "Total directives executed by the shell, by directive kind.",
}, []string{"kind"})

// PrometheusRecorder implements swimshell.Recorder against the
// package-level metrics above.
type PrometheusRecorder struct{}

func (PrometheusRecorder) ProbeSent(kind string)     { ProbesSent.WithLabelValues(kind).Inc() }
func (PrometheusRecorder) ProbeTimedOut(kind string) { ProbesTimedOut.WithLabelValues(kind).Inc() }
func (PrometheusRecorder) AckReceived(kind string)   { AcksReceived.WithLabelValues(kind).Inc() }
func (PrometheusRecorder) SuspicionRaised()          { SuspicionsRaised.Inc() }
func (PrometheusRecorder) DirectiveHandled(kind string) {
	DirectivesHandled.WithLabelValues(kind).Inc()
}
