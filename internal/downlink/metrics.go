package downlink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/board"
)

var (
	dc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downlink_received_count",
		Help: "The number of received downlinks (per receive window).",
	}, []string{"rx_slot"})

	dic = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downlink_ignored_count",
		Help: "The number of downlinks ignored because they are smaller than the downlink frame.",
	})

	rwc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downlink_relay_write_count",
		Help: "The number of relay output writes (per relay).",
	}, []string{"relay"})
)

func downlinkCounter(s stack.RxSlot) prometheus.Counter {
	return dc.With(prometheus.Labels{"rx_slot": s.String()})
}

func downlinkIgnoredCounter() prometheus.Counter {
	return dic
}

func relayWriteCounter(p board.Pin) prometheus.Counter {
	return rwc.With(prometheus.Labels{"relay": p.String()})
}
