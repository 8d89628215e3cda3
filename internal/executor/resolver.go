package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finvex/autotrader/internal/broker"
	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/ledger"
	"github.com/finvex/autotrader/internal/storage"
	"github.com/finvex/autotrader/internal/telegram"
)

// OrderPlacer is the broker surface the resolver needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID uint, symbol string, side storage.OrderSide, quantity int64, price float64) (*broker.OrderResult, error)
}

// Resolver drives PENDING orders out of PENDING: it submits them to the
// broker and pairs every exit with exactly one ledger call. Retryable broker
// trouble leaves the order PENDING with its funds still reserved; a terminal
// rejection releases the hold; an accepted fill settles it. Orders pending
// past the stale timeout are cancelled and released.
type Resolver struct {
	repo     *storage.Repository
	ledger   *ledger.Ledger
	placer   OrderPlacer
	notifier *telegram.Notifier
	cfg      *config.Config
	log      zerolog.Logger
}

func NewResolver(
	repo *storage.Repository,
	ldg *ledger.Ledger,
	placer OrderPlacer,
	notifier *telegram.Notifier,
	cfg *config.Config,
	log zerolog.Logger,
) *Resolver {
	return &Resolver{
		repo:     repo,
		ledger:   ldg,
		placer:   placer,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

type ResolveResult struct {
	Executed  int `json:"executed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Cancelled int `json:"cancelled"`
}

// ResolvePending makes one pass over all PENDING orders. Calls are serialized
// behind the broker's global rate gate, so one pass paces itself.
func (r *Resolver) ResolvePending(ctx context.Context) (*ResolveResult, error) {
	orders, err := r.repo.PendingOrders()
	if err != nil {
		return nil, fmt.Errorf("load pending orders: %w", err)
	}
	if len(orders) == 0 {
		return &ResolveResult{}, nil
	}
	r.log.Info().Int("pending", len(orders)).Msg("resolving pending orders")

	staleBefore := time.Now().Add(-r.cfg.StaleOrderTimeoutDuration())
	result := &ResolveResult{}

	for _, order := range orders {
		if ctx.Err() != nil {
			r.log.Warn().Err(ctx.Err()).Msg("resolver cancelled, remaining orders stay pending")
			break
		}

		if order.CreatedAt.Before(staleBefore) {
			r.cancelStale(order)
			result.Cancelled++
			continue
		}

		switch r.resolveOrder(ctx, order) {
		case storage.StatusExecuted:
			result.Executed++
		case storage.StatusFailed:
			result.Failed++
		default:
			result.Retried++
		}
	}

	r.log.Info().Int("executed", result.Executed).Int("failed", result.Failed).
		Int("retried", result.Retried).Int("cancelled", result.Cancelled).
		Msg("resolve pass completed")
	return result, nil
}

// resolveOrder submits one order and returns the status it ended up in;
// StatusPending means it was left for a later pass.
func (r *Resolver) resolveOrder(ctx context.Context, order storage.Order) storage.OrderStatus {
	log := r.log.With().Str("order_id", order.OrderID).Str("symbol", order.Symbol).
		Uint("user_id", order.UserID).Logger()

	res, err := r.placer.PlaceOrder(ctx, order.UserID, order.Symbol, order.Side, order.Quantity, order.Price)
	if err != nil {
		if broker.IsRetryable(err) {
			// Funds stay reserved so a retry can still be fulfilled.
			log.Warn().Err(err).Msg("retryable broker error, order stays pending")
			return storage.StatusPending
		}
		log.Warn().Err(err).Msg("terminal broker rejection, releasing funds")
		if ok, rerr := r.ledger.Release(order.UserID, order.TotalAmount); rerr != nil || !ok {
			log.Error().Err(rerr).Msg("release after rejection failed")
		}
		if uerr := r.repo.UpdateOrderStatus(order.OrderID, storage.StatusFailed, ""); uerr != nil {
			log.Error().Err(uerr).Msg("mark order failed")
		}
		r.notifier.NotifyOrderFailed(order.UserID, order.Symbol, err.Error())
		return storage.StatusFailed
	}

	ok, err := r.ledger.Settle(order.UserID, order.TotalAmount, order.Side == storage.SideBuy)
	if err != nil || !ok {
		// The broker accepted but the hold cannot be settled. Leave the order
		// PENDING for the operator rather than guess at the ledger state.
		log.Error().Err(err).Bool("settled", ok).Msg("settle after fill failed, order left pending")
		return storage.StatusPending
	}
	if uerr := r.repo.UpdateOrderStatus(order.OrderID, storage.StatusExecuted, res.BrokerOrderID); uerr != nil {
		log.Error().Err(uerr).Msg("mark order executed")
	}

	log.Info().Str("broker_order_id", res.BrokerOrderID).Msg("order executed and settled")
	r.notifier.NotifyOrderExecuted(order.UserID, order.Symbol, order.Quantity, order.TotalAmount)
	return storage.StatusExecuted
}

func (r *Resolver) cancelStale(order storage.Order) {
	log := r.log.With().Str("order_id", order.OrderID).Str("symbol", order.Symbol).Logger()
	log.Warn().Time("created_at", order.CreatedAt).Msg("cancelling stale pending order")

	if ok, err := r.ledger.Release(order.UserID, order.TotalAmount); err != nil || !ok {
		log.Error().Err(err).Msg("release for stale order failed")
	}
	if err := r.repo.UpdateOrderStatus(order.OrderID, storage.StatusCancelled, ""); err != nil {
		log.Error().Err(err).Msg("mark order cancelled")
	}
}
