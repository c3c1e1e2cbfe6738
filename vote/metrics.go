package vote

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/calehh/hac-vote/types"
)

type engineMetrics struct {
	ops         *prometheus.CounterVec
	ballots     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	f := promauto.With(reg)
	return &engineMetrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hacvote_engine_ops_total",
			Help: "engine operations by result code",
		}, []string{"op", "code"}),
		ballots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hacvote_engine_ballots_total",
			Help: "accepted ballots",
		}, []string{"kind"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hacvote_engine_transitions_total",
			Help: "proposal state transitions",
		}, []string{"from", "to"}),
	}
}

func (m *engineMetrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, strconv.FormatUint(uint64(types.ErrorCode(err)), 10)).Inc()
}

// record counts what a committed batch did.
func (m *engineMetrics) record(events []types.Event) {
	if m == nil {
		return
	}
	for _, ev := range events {
		switch e := ev.(type) {
		case *types.EventStateChanged:
			m.transitions.WithLabelValues(types.ProposalState(e.Old).String(), types.ProposalState(e.New).String()).Inc()
		case *types.EventVoteCast:
			kind := "identified"
			if e.Nullifier != "" {
				kind = "anonymous"
			}
			m.ballots.WithLabelValues(kind).Inc()
		}
	}
}
