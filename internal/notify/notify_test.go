package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlenko/marketsentry/internal/models"
)

type recordingNotifier struct {
	signals   int
	decisions int
	fail      bool
}

func (r *recordingNotifier) SendSignal(models.Signal) error {
	r.signals++
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingNotifier) SendBuyDecision(models.BuyDecision, models.LadderState) error {
	r.decisions++
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingNotifier) SendError(error) error  { return nil }
func (r *recordingNotifier) SendRecovery(int) error { return nil }

func sampleSignal() models.Signal {
	return models.Signal{
		ID:        "sig-1",
		Direction: models.DirectionShort,
		Symbol:    "SPXS",
		Indicators: models.IndicatorSnapshot{
			FractalDimension: 1.067,
			SentimentProxy:   1.74,
			VolatilityIndex:  82.7,
			Regime:           models.RegimeCrisis,
			AsOf:             time.Date(2020, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		Entry:           240,
		StopLoss:        243.6,
		Target:          230.4,
		PositionSizePct: 2,
		Rationale:       "volatility index 82.700 > 30.000",
		CreatedAt:       time.Date(2020, 3, 16, 16, 30, 0, 0, time.UTC),
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	m := NewMulti(a, b)

	require.NoError(t, m.SendSignal(sampleSignal()))
	assert.Equal(t, 1, a.signals)
	assert.Equal(t, 1, b.signals)
}

func TestMultiCollectsFailures(t *testing.T) {
	a, b := &recordingNotifier{fail: true}, &recordingNotifier{}
	m := NewMulti(a, b)

	err := m.SendBuyDecision(models.BuyDecision{}, models.LadderState{})
	assert.Error(t, err)
	assert.Equal(t, 1, b.decisions, "one failing transport must not skip the others")
}

func TestSignalSubject(t *testing.T) {
	assert.Equal(t, "TRADE ALERT: SHORT SPXS", signalSubject(sampleSignal()))

	none := models.Signal{Direction: models.DirectionNone}
	assert.Equal(t, "Market check: no signal", signalSubject(none))
}

func TestSignalBodyContents(t *testing.T) {
	body := signalBody(sampleSignal())
	assert.Contains(t, body, "SHORT SPXS")
	assert.Contains(t, body, "$240.00")
	assert.Contains(t, body, "$243.60")
	assert.Contains(t, body, "$230.40")
	assert.Contains(t, body, "Crisis")
	assert.Contains(t, body, "2020-03-16")
}

func TestDecisionSubjectAndBody(t *testing.T) {
	dec := models.BuyDecision{
		Triggered:   true,
		Amount:      20000,
		DrawdownPct: -0.06,
		Reason:      "single-day drop -6.0%",
		Price:       388.4,
		AsOf:        time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC),
	}
	state := models.LadderState{NextBuyIndex: 3, CumulativeDeployed: 30000, Year: 2025, LastPurchasePrice: 388.4}

	assert.Equal(t, "DIP ALERT: buy $20000", decisionSubject(dec))

	body := decisionBody(dec, state)
	assert.Contains(t, body, "$20000 at $388.40")
	assert.Contains(t, body, "rung 3")
	assert.Contains(t, body, "$30000 deployed in 2025")

	quiet := models.BuyDecision{Reason: "no qualifying drawdown", AsOf: dec.AsOf}
	assert.Equal(t, "Dip check: no qualifying drawdown", decisionSubject(quiet))
	assert.Contains(t, decisionBody(quiet, state), "No buy")
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `\-6\.0%`, escapeMarkdownV2("-6.0%"))
	assert.Equal(t, `plain`, escapeMarkdownV2("plain"))
	assert.Equal(t, `a\*b\_c\(d\)`, escapeMarkdownV2("a*b_c(d)"))
}

func TestFormatSignalMarkdownEscaped(t *testing.T) {
	text := formatSignalMarkdown(sampleSignal())
	assert.Contains(t, text, "TRADE ALERT: SHORT SPXS")
	assert.Contains(t, text, `2020\-03\-16`)
	assert.Contains(t, text, `$240\.00`)
	assert.NotContains(t, text, "240.00 |", "raw pipe characters would break MarkdownV2")
}

func TestFormatSignalMarkdownNone(t *testing.T) {
	sig := models.Signal{
		Direction: models.DirectionNone,
		Indicators: models.IndicatorSnapshot{
			FractalDimension: 1.5,
			SentimentProxy:   0.8,
			VolatilityIndex:  16,
			Regime:           models.RegimeNormal,
			AsOf:             time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		},
	}
	text := formatSignalMarkdown(sig)
	assert.Contains(t, text, "No signal")
}

func TestFormatDecisionMarkdown(t *testing.T) {
	dec := models.BuyDecision{
		Triggered:   true,
		Amount:      10000,
		DrawdownPct: -0.055,
		Reason:      "single-day drop -5.5%",
		Price:       400,
		AsOf:        time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC),
	}
	state := models.LadderState{NextBuyIndex: 2, CumulativeDeployed: 10000, Year: 2025}

	text := formatDecisionMarkdown(dec, state)
	assert.Contains(t, text, "DIP ALERT")
	assert.Contains(t, text, `$10000`)
	assert.Contains(t, text, "rung 2")
}

func TestNewEmailValidation(t *testing.T) {
	_, err := NewEmail(EmailConfig{})
	assert.Error(t, err)

	_, err = NewEmail(EmailConfig{Host: "smtp.example.com", From: "a@example.com"})
	assert.Error(t, err, "recipients are required")

	e, err := NewEmail(EmailConfig{Host: "smtp.example.com", From: "a@example.com", To: []string{"b@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 587, e.cfg.Port, "port defaults when unset")
}
