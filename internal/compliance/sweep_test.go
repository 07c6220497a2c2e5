package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateAllCoversEveryCompany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateCompany(ctx, Company{ID: "company-2", Name: "Bolt Electric"}))
	env.approveAll(t)

	res, err := env.svc.EvaluateAll(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, res.Evaluated)
	require.Empty(t, res.Failed)
	require.Equal(t, 1, res.Statuses[StatusApproved])
	require.Equal(t, 1, res.Statuses[StatusPendingDocuments])

	app, err := env.store.GetApplication(ctx, "company-2")
	require.NoError(t, err)
	require.Equal(t, StatusPendingDocuments, app.Status)
}

func TestEvaluateAllDowngradesExpiredApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.approveAll(t)
	_, err := env.svc.ToggleBadge(ctx, env.company, "seller-1", true)
	require.NoError(t, err)

	env.clock.Advance(201 * 24 * time.Hour)
	res, err := env.svc.EvaluateAll(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.Evaluated)
	require.Zero(t, res.Statuses[StatusApproved])

	company, err := env.store.GetCompany(ctx, env.company)
	require.NoError(t, err)
	require.NotEqual(t, StatusApproved, company.InsuredSellerStatus)
	require.False(t, company.InsuredSellerBadgeVisible)
}

func TestEvaluateAllStopsOnCanceledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.EvaluateAll(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}
