// Package service fronts case storage with metrics.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paynow/paynow/services/cases/internal/storage"
)

// CaseStore is the storage surface the service uses.
type CaseStore interface {
	Create(ctx context.Context, c storage.Case) (*storage.Case, bool, error)
	GetByCaseID(ctx context.Context, caseID string) (*storage.Case, error)
}

type Metrics struct {
	CasesOpened *prometheus.CounterVec
	DedupeHits  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		CasesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cases_opened_total",
			Help: "Cases opened by type.",
		}, []string{"case_type"}),
		DedupeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cases_dedupe_hits_total",
			Help: "Case creations answered by an existing case.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.CasesOpened, m.DedupeHits)
}

type Service struct {
	store   CaseStore
	metrics *Metrics
	logger  *slog.Logger
}

func New(store CaseStore, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, metrics: metrics, logger: logger}
}

func (s *Service) Open(ctx context.Context, c storage.Case) (*storage.Case, error) {
	created, isNew, err := s.store.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	if isNew {
		s.metrics.CasesOpened.WithLabelValues(created.CaseType).Inc()
		s.logger.Info("case opened",
			slog.String("case_id", created.CaseID),
			slog.String("case_type", created.CaseType),
			slog.String("request_id", created.RequestID),
		)
	} else {
		s.metrics.DedupeHits.Inc()
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, caseID string) (*storage.Case, error) {
	return s.store.GetByCaseID(ctx, caseID)
}
