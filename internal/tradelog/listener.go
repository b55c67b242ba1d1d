// internal/tradelog/listener.go
package tradelog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/events"
)

// Listener records committed trades from the event bus into one or more stores.
type Listener struct {
	stores []Store
	logger *zap.Logger
	sub    events.Subscription
}

func NewListener(logger *zap.Logger, stores ...Store) *Listener {
	return &Listener{stores: stores, logger: logger.Named("tradelog")}
}

// Attach subscribes the listener to Hype and Unhype events.
func (l *Listener) Attach(bus *events.Bus) {
	l.sub = bus.SubscribeMany(l, events.Hype, events.Unhype)
}

// Detach removes the subscription installed by Attach.
func (l *Listener) Detach() {
	if l.sub != nil {
		l.sub.Unsubscribe()
		l.sub = nil
	}
}

func (l *Listener) Handle(ctx context.Context, event events.Event) error {
	pe, ok := event.(*events.PoolEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	trade, err := TradeFromEvent(pe)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range l.stores {
		if err := s.Append(ctx, trade); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to record trade %s: %w", trade.Signature, errors.Join(errs...))
	}

	l.logger.Debug("Trade recorded",
		zap.Uint64("post_id", trade.PostID),
		zap.String("type", string(trade.Type)),
		zap.String("amount", trade.Amount),
		zap.String("price", trade.Price.String()))
	return nil
}
