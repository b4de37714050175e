package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/scheduler"
	"github.com/dmitrymomot/saju/pkg/storage/memory"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

type noGateway struct{}

func (noGateway) ChargeNewMethod(context.Context, subscription.PaymentMethod, subscription.Money, string) (*subscription.Charge, error) {
	return nil, errors.New("unexpected charge")
}

func (noGateway) ChargeWithToken(context.Context, string, subscription.Money, string) (*subscription.Charge, error) {
	return nil, errors.New("unexpected charge")
}

func TestRegisterDefaults_SweepReportLoggedOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	store := memory.New()
	catalog := subscription.DefaultCatalog()
	sweeper := subscription.NewSweeper(store, noGateway{}, catalog, subscription.WithLogger(log))
	ledger := quota.NewLedger(store, store, catalog, quota.WithLogger(log))

	s := scheduler.New(scheduler.WithLogger(log))
	cfg := scheduler.Config{SweepSchedule: "@hourly", ReaperSchedule: "@hourly"}
	require.NoError(t, scheduler.RegisterDefaults(s, cfg, sweeper, ledger, log))

	require.NoError(t, s.RunNow(context.Background(), scheduler.JobRenewalSweep))
	require.NoError(t, s.RunNow(context.Background(), scheduler.JobReservationReaper))

	assert.Equal(t, 1, strings.Count(buf.String(), "scanned="), buf.String())
}
