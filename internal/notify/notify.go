// Package notify renders and transmits signal and buy-decision alerts.
// The engine only sees the Notifier interface; transports are configured
// in cmd.
package notify

import (
	"fmt"
	"strings"

	"github.com/arlenko/marketsentry/internal/models"
)

// Notifier delivers engine output to a human.
type Notifier interface {
	SendSignal(sig models.Signal) error
	SendBuyDecision(dec models.BuyDecision, state models.LadderState) error
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

// Multi fans a notification out to several transports. Send errors are
// collected so one failing transport does not hide the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a fan-out notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) SendSignal(sig models.Signal) error {
	return m.each(func(n Notifier) error { return n.SendSignal(sig) })
}

func (m *Multi) SendBuyDecision(dec models.BuyDecision, state models.LadderState) error {
	return m.each(func(n Notifier) error { return n.SendBuyDecision(dec, state) })
}

func (m *Multi) SendError(cycleErr error) error {
	return m.each(func(n Notifier) error { return n.SendError(cycleErr) })
}

func (m *Multi) SendRecovery(failureCount int) error {
	return m.each(func(n Notifier) error { return n.SendRecovery(failureCount) })
}

func (m *Multi) each(send func(Notifier) error) error {
	var errs []string
	for _, n := range m.notifiers {
		if err := send(n); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// signalSubject builds the alert subject line, e.g. "TRADE ALERT: SHORT SPXS".
func signalSubject(sig models.Signal) string {
	if sig.Direction == models.DirectionNone {
		return "Market check: no signal"
	}
	return fmt.Sprintf("TRADE ALERT: %s %s", sig.Direction, sig.Symbol)
}

// signalBody renders the plain-text alert body.
func signalBody(sig models.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trade recommendation (%s)\n\n", sig.Indicators.AsOf.Format("2006-01-02"))
	fmt.Fprintf(&b, "Action:    %s %s\n", sig.Direction, sig.Symbol)
	fmt.Fprintf(&b, "Size:      %.1f%% of portfolio\n", sig.PositionSizePct)
	fmt.Fprintf(&b, "Entry:     $%.2f\n", sig.Entry)
	fmt.Fprintf(&b, "Stop loss: $%.2f\n", sig.StopLoss)
	fmt.Fprintf(&b, "Target:    $%.2f\n\n", sig.Target)
	fmt.Fprintf(&b, "Market conditions:\n")
	fmt.Fprintf(&b, "  Fractal dimension: %.3f\n", sig.Indicators.FractalDimension)
	fmt.Fprintf(&b, "  Put/call proxy:    %.2f\n", sig.Indicators.SentimentProxy)
	fmt.Fprintf(&b, "  Volatility index:  %.1f\n", sig.Indicators.VolatilityIndex)
	fmt.Fprintf(&b, "  Regime:            %s\n\n", sig.Indicators.Regime)
	fmt.Fprintf(&b, "Rationale: %s\n", sig.Rationale)
	return b.String()
}

// decisionSubject builds the dip-alert subject line.
func decisionSubject(dec models.BuyDecision) string {
	if dec.Triggered {
		return fmt.Sprintf("DIP ALERT: buy $%.0f", dec.Amount)
	}
	return "Dip check: " + dec.Reason
}

// decisionBody renders the plain-text dip-alert body.
func decisionBody(dec models.BuyDecision, state models.LadderState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dip evaluation (%s)\n\n", dec.AsOf.Format("2006-01-02"))
	if dec.Triggered {
		fmt.Fprintf(&b, "Buy opportunity: $%.0f at $%.2f\n", dec.Amount, dec.Price)
	} else {
		fmt.Fprintf(&b, "No buy: %s\n", dec.Reason)
	}
	fmt.Fprintf(&b, "Drawdown:  %.1f%%\n", dec.DrawdownPct*100)
	fmt.Fprintf(&b, "Reason:    %s\n\n", dec.Reason)
	fmt.Fprintf(&b, "Ladder: rung %d, $%.0f deployed in %d\n",
		state.NextBuyIndex, state.CumulativeDeployed, state.Year)
	if state.LastPurchasePrice > 0 {
		fmt.Fprintf(&b, "Last purchase: $%.2f\n", state.LastPurchasePrice)
	}
	return b.String()
}
