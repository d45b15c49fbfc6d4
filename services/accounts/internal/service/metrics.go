package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ReservationOps  *prometheus.CounterVec
	ExpiredSwept    prometheus.Counter
	SweeperFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ReservationOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_reservation_ops_total",
			Help: "Reservation operations by op and outcome.",
		}, []string{"op", "outcome"}),
		ExpiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_reservations_expired_total",
			Help: "Reservations expired by the background sweeper.",
		}),
		SweeperFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_sweeper_failures_total",
			Help: "Sweeper runs that failed.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.ReservationOps, m.ExpiredSwept, m.SweeperFailures)
}
