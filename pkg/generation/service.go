package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/metrics"
	"github.com/dmitrymomot/saju/pkg/quota"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 180 * time.Second

// Ledger is the part of *quota.Ledger the service needs.
type Ledger interface {
	Reserve(ctx context.Context, userID uuid.UUID) (*quota.Reservation, error)
	Commit(ctx context.Context, res *quota.Reservation, usage *quota.UsageRecord) error
	Release(ctx context.Context, res *quota.Reservation) error
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service runs one gated generation: reserve a credit, call the provider,
// then commit the usage record or give the credit back.
type Service struct {
	ledger   Ledger
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService panics if ledger or provider is nil.
func NewService(ledger Ledger, provider Provider, opts ...Option) *Service {
	if ledger == nil || provider == nil {
		panic("generation: ledger and provider are required")
	}
	s := &Service{
		ledger:   ledger,
		provider: provider,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("generation"))
	return s
}

// Generate validates input and produces a reading for userID.
//
// A denied reservation surfaces as *quota.ExhaustedError. When the provider
// fails or times out the credit is released and ErrGenerationFailed is
// returned; no usage record is written in that case.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, input Input) (*quota.UsageRecord, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	res, err := s.ledger.Reserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(logger.UserID(userID), logger.ReservationID(res.ID))

	started := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	text, genErr := s.provider.Generate(callCtx, res.Model, input)
	cancel()

	// Settlement must happen even if the caller has gone away.
	settleCtx := context.WithoutCancel(ctx)

	if genErr != nil {
		outcome := "error"
		if errors.Is(genErr, ErrProviderTimeout) || errors.Is(genErr, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.Generation(res.Model, outcome, time.Since(started))
		log.WarnContext(ctx, "generation failed, releasing credit",
			slog.String("model", res.Model), slog.String("outcome", outcome), logger.Error(genErr))

		if err := s.ledger.Release(settleCtx, res); err != nil {
			log.ErrorContext(ctx, "release credit", logger.Error(err))
		}
		return nil, errors.Join(ErrGenerationFailed, genErr)
	}
	s.metrics.Generation(res.Model, "ok", time.Since(started))

	usage := &quota.UsageRecord{
		Subject: input.subject(),
		Result:  text,
		Model:   res.Model,
	}
	if err := s.ledger.Commit(settleCtx, res, usage); err != nil {
		log.ErrorContext(ctx, "commit usage", logger.Error(err))
		if !errors.Is(err, quota.ErrReservationNotPending) {
			if relErr := s.ledger.Release(settleCtx, res); relErr != nil {
				log.ErrorContext(ctx, "release credit after failed commit", logger.Error(relErr))
			}
		}
		return nil, err
	}

	log.InfoContext(ctx, "generation completed",
		slog.String("model", res.Model), logger.Duration(time.Since(started)))
	return usage, nil
}
