package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_state_step_count",
		Help: "The number of executed state-machine steps (per state).",
	}, []string{"state"})

	uc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "node_uplink_count",
		Help: "The number of uplinks handed to the stack.",
	})

	tc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "node_uplink_truncated_count",
		Help: "The number of uplinks truncated to the max. payload size.",
	})

	jc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "node_join_count",
		Help: "The number of completed joins.",
	})

	sg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "node_sequence_id",
		Help: "The sequence id of the next uplink.",
	})
)

func stateStepCounter(s State) prometheus.Counter {
	return sc.With(prometheus.Labels{"state": s.String()})
}

func uplinkCounter() prometheus.Counter {
	return uc
}

func uplinkTruncatedCounter() prometheus.Counter {
	return tc
}

func joinCounter() prometheus.Counter {
	return jc
}

func sequenceIDGauge() prometheus.Gauge {
	return sg
}
