// Package notification delivers trade alerts to the log and to a webhook.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"papertrader/internal/model"
	"papertrader/internal/strategy"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel         `json:"level"`
	Title   string             `json:"title"`
	Message string             `json:"message"`
	Trade   *model.TradeRecord `json:"trade,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// TradeAlert describes an executed bot trade. Stop-loss exits are warnings.
func TradeAlert(t model.TradeRecord) Alert {
	level := AlertInfo
	if t.Reason == string(strategy.ExitStopLoss) {
		level = AlertWarning
	}
	return Alert{
		Trade:   &t,
		Level:   level,
		Title:   fmt.Sprintf("%s %s", t.Side, t.Symbol),
		Message: fmt.Sprintf("%d @ %s (%s), notional %s", t.Qty, t.Price.StringFixed(2), t.Reason, t.Notional().StringFixed(2)),
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info(alert.Title, slog.String("level", string(alert.Level)), slog.String("message", alert.Message))
	return nil
}

// Multi sends every alert to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
