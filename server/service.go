package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publisher receives committed mutations.
type Publisher interface {
	Publish(Event)
}

// Service runs card and comment operations. Each call is one store
// transaction: authorize, validate, write, commit, or change nothing.
type Service struct {
	store   TxRunner
	log     *slog.Logger
	events  Publisher
	metrics *metrics
	ongoing OngoingPolicy
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithPublisher(p Publisher) ServiceOption { return func(s *Service) { s.events = p } }

func WithOngoingPolicy(p OngoingPolicy) ServiceOption { return func(s *Service) { s.ongoing = p } }

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func WithMetrics(reg prometheus.Registerer) ServiceOption {
	return func(s *Service) { s.metrics = newMetrics(reg) }
}

func withServiceMetrics(m *metrics) ServiceOption { return func(s *Service) { s.metrics = m } }

func NewService(store TxRunner, log *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		log:     log,
		ongoing: OngoingPolicy{ExcludeSelf: true},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// loadCaller resolves the identity to its user. An identity without a user
// row is treated as unauthenticated.
func (s *Service) loadCaller(ctx context.Context, tx Session, id Identity) (*User, error) {
	if id.IsZero() {
		return nil, nil
	}
	u, err := tx.UserByID(ctx, id.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthenticated("unknown user")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func requireIdentity(id Identity) error {
	if id.IsZero() {
		return unauthenticated("authentication required")
	}
	return nil
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) publish(ev Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

func (s *Service) finish(op string, err error) {
	s.metrics.observeOp(op, err)
	var opErr *OpError
	if err != nil && !errors.As(err, &opErr) {
		s.log.Error(op, "err", err)
	}
}

// ongoingWriteErr turns an index rejection into the same validation failure
// the count check produces.
func ongoingWriteErr(err error) error {
	if errors.Is(err, ErrOngoingTaken) {
		return invalid("status", msgOngoingExists)
	}
	return err
}
