package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/ledger"
)

// Relay subscribes to ledger settlement events on the signal bus and forwards
// them as operator notifications. Delivery is best-effort; a failed send never
// blocks the ledger.
type Relay struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a Relay on the given bus and notifier.
func NewRelay(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_relay")),
	}
}

// Run consumes settlement events until the context is cancelled. Call in a
// goroutine.
func (r *Relay) Run(ctx context.Context) error {
	completed, err := r.bus.Subscribe(ctx, ledger.EventBondCompleted)
	if err != nil {
		return err
	}
	slashed, err := r.bus.Subscribe(ctx, ledger.EventBondSlashed)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-completed:
			if !ok {
				return nil
			}
			r.forward(ctx, ledger.EventBondCompleted, "Bond completed", payload)
		case payload, ok := <-slashed:
			if !ok {
				return nil
			}
			r.forward(ctx, ledger.EventBondSlashed, "Bond slashed", payload)
		}
	}
}

func (r *Relay) forward(ctx context.Context, event, title string, payload []byte) {
	var detail map[string]any
	if err := json.Unmarshal(payload, &detail); err != nil {
		r.logger.DebugContext(ctx, "malformed event payload", slog.String("event", event))
		return
	}

	message := fmt.Sprintf("bond %v: %v paid to %v",
		detail["bond_id"], detail["amount"], recipientOf(event, detail))
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.DebugContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func recipientOf(event string, detail map[string]any) any {
	if event == ledger.EventBondCompleted {
		return detail["worker"]
	}
	return detail["principal"]
}
