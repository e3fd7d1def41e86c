package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlenko/marketsentry/internal/models"
)

func newTestStorage(t *testing.T, maxHistory int) *Storage {
	t.Helper()
	s, err := New(maxHistory, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadLadderStateEmpty(t *testing.T) {
	s := newTestStorage(t, 10)

	_, found, err := s.LoadLadderState()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLadderStateRoundTrip(t *testing.T) {
	s := newTestStorage(t, 10)

	state := models.LadderState{
		LastPurchasePrice:  412.5,
		FirstRungPrice:     430.0,
		CumulativeDeployed: 30000,
		NextBuyIndex:       3,
		Year:               2025,
		UpdatedAt:          time.Date(2025, 4, 7, 16, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveLadderState(state))

	loaded, found, err := s.LoadLadderState()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.LastPurchasePrice, loaded.LastPurchasePrice)
	assert.Equal(t, state.FirstRungPrice, loaded.FirstRungPrice)
	assert.Equal(t, state.CumulativeDeployed, loaded.CumulativeDeployed)
	assert.Equal(t, state.NextBuyIndex, loaded.NextBuyIndex)
	assert.Equal(t, state.Year, loaded.Year)
	assert.True(t, state.UpdatedAt.Equal(loaded.UpdatedAt))
}

func TestSaveLadderStateReplacesSingleRow(t *testing.T) {
	s := newTestStorage(t, 10)

	first := models.NewLadderState(2025)
	require.NoError(t, s.SaveLadderState(first))

	second := first
	second.CumulativeDeployed = 50000
	second.NextBuyIndex = 4
	require.NoError(t, s.SaveLadderState(second))

	loaded, found, err := s.LoadLadderState()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 50000.0, loaded.CumulativeDeployed)
	assert.Equal(t, 4, loaded.NextBuyIndex)
}

func TestSaveLadderStateRejectsInvalid(t *testing.T) {
	s := newTestStorage(t, 10)
	bad := models.LadderState{NextBuyIndex: 0, Year: 2025}
	assert.Error(t, s.SaveLadderState(bad))
}

func testSignal(dir models.Direction, createdAt time.Time) models.Signal {
	sig := models.Signal{
		ID:        uuid.New().String(),
		Direction: dir,
		Indicators: models.IndicatorSnapshot{
			FractalDimension: 1.1,
			SentimentProxy:   1.5,
			VolatilityIndex:  35,
			Regime:           models.RegimeCrisis,
			AsOf:             createdAt,
		},
		Rationale: "test",
		CreatedAt: createdAt,
	}
	if dir != models.DirectionNone {
		sig.Symbol = "SPXS"
		sig.Entry = 400
		sig.StopLoss = 406
		sig.Target = 384
		sig.PositionSizePct = 2
	}
	return sig
}

func TestSignalRoundTrip(t *testing.T) {
	s := newTestStorage(t, 10)

	now := time.Date(2025, 4, 7, 16, 0, 0, 0, time.UTC)
	sig := testSignal(models.DirectionShort, now)
	require.NoError(t, s.AddSignal(sig))

	got, err := s.RecentSignals(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sig.ID, got[0].ID)
	assert.Equal(t, models.DirectionShort, got[0].Direction)
	assert.Equal(t, "SPXS", got[0].Symbol)
	assert.Equal(t, models.RegimeCrisis, got[0].Indicators.Regime)
	assert.Equal(t, 400.0, got[0].Entry)
	assert.True(t, now.Equal(got[0].CreatedAt))
}

func TestRecentSignalsNewestFirst(t *testing.T) {
	s := newTestStorage(t, 10)

	base := time.Date(2025, 4, 1, 16, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddSignal(testSignal(models.DirectionNone, base.AddDate(0, 0, i))))
	}

	got, err := s.RecentSignals(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestBuyDecisionRoundTrip(t *testing.T) {
	s := newTestStorage(t, 10)

	dec := models.BuyDecision{
		ID:          uuid.New().String(),
		Triggered:   true,
		Amount:      20000,
		DrawdownPct: -0.06,
		Reason:      "single-day drop -6.0%",
		Price:       388.4,
		AsOf:        time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AddBuyDecision(dec))

	got, err := s.RecentBuyDecisions(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dec.ID, got[0].ID)
	assert.True(t, got[0].Triggered)
	assert.Equal(t, dec.Amount, got[0].Amount)
	assert.Equal(t, dec.Reason, got[0].Reason)
	assert.True(t, dec.AsOf.Equal(got[0].AsOf))
}

func TestRotateHistoryTrimsOldRows(t *testing.T) {
	s := newTestStorage(t, 2)

	base := time.Date(2025, 4, 1, 16, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddSignal(testSignal(models.DirectionNone, base.AddDate(0, 0, i))))
	}
	require.NoError(t, s.RotateHistory())

	got, err := s.RecentSignals(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, base.AddDate(0, 0, 4).Equal(got[0].CreatedAt), "newest rows survive rotation")
}
