package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tillworks/fiscal-pos-api/internal/infrastructure/repository/memory"
	"github.com/tillworks/fiscal-pos-api/pkg/apperror"
)

func newSessionService() (*SessionService, *memory.Store) {
	store := memory.NewStore()
	return NewSessionService(store.Sessions(), zap.NewNop()), store
}

func TestOpenSessionPerTillIsExclusive(t *testing.T) {
	svc, _ := newSessionService()
	ctx := context.Background()

	first, err := svc.Open(ctx, "till-1", "op-1", dec("50.00"))
	require.NoError(t, err)
	assert.True(t, first.IsOpen())

	_, err = svc.Open(ctx, "till-1", "op-2", dec("50.00"))
	assert.ErrorIs(t, err, apperror.ErrSessionAlreadyOpen)

	// A different till is unaffected.
	_, err = svc.Open(ctx, "till-2", "op-2", dec("50.00"))
	assert.NoError(t, err)
}

func TestOpenSessionRejectsNegativeFloat(t *testing.T) {
	svc, _ := newSessionService()

	_, err := svc.Open(context.Background(), "till-1", "op-1", dec("-1.00"))
	assert.Error(t, err)
}

func TestCloseWithoutOpenSession(t *testing.T) {
	svc, _ := newSessionService()

	_, err := svc.Close(context.Background(), "till-1", dec("0.00"))
	assert.ErrorIs(t, err, apperror.ErrSessionNotOpen)

	_, err = svc.Current(context.Background(), "till-1")
	assert.ErrorIs(t, err, apperror.ErrSessionNotOpen)
}

func TestCloseReportsDiscrepancyUncorrected(t *testing.T) {
	svc, _ := newSessionService()
	ctx := context.Background()

	_, err := svc.Open(ctx, "till-1", "op-1", dec("100.00"))
	require.NoError(t, err)

	// Operator counts 94.50 against an expected 100.00: the shortfall is
	// recorded as-is.
	closed, err := svc.Close(ctx, "till-1", dec("94.50"))
	require.NoError(t, err)
	require.NotNil(t, closed.Discrepancy)
	assert.True(t, closed.ExpectedBalance.Equal(dec("100.00")))
	assert.True(t, closed.DeclaredBalance.Equal(dec("94.50")))
	assert.True(t, closed.Discrepancy.Equal(dec("-5.50")))
	assert.False(t, closed.IsOpen())

	// The till can open a fresh session afterwards.
	_, err = svc.Open(ctx, "till-1", "op-1", dec("100.00"))
	assert.NoError(t, err)
}

func TestLoadRestoresOpenSessions(t *testing.T) {
	svc, store := newSessionService()
	ctx := context.Background()

	opened, err := svc.Open(ctx, "till-1", "op-1", dec("75.00"))
	require.NoError(t, err)

	// A new service instance over the same store sees the open session.
	restarted := NewSessionService(store.Sessions(), zap.NewNop())
	require.NoError(t, restarted.Load(ctx))

	current, err := restarted.Current(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, opened.ID, current.ID)

	_, err = restarted.Open(ctx, "till-1", "op-2", dec("10.00"))
	assert.ErrorIs(t, err, apperror.ErrSessionAlreadyOpen)
}
