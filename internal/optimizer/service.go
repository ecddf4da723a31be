// Package optimizer runs the full cart optimization pipeline: canonical
// items, quantity adjustment, store assignment, delivery eligibility, the
// visiting route and the final price.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/delivery"
	"github.com/noah-isme/shopping-optimizer/internal/events"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
	"github.com/noah-isme/shopping-optimizer/internal/geocode"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
	"github.com/noah-isme/shopping-optimizer/internal/pricing"
	"github.com/noah-isme/shopping-optimizer/internal/quantity"
	"github.com/noah-isme/shopping-optimizer/internal/route"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

// CartReader loads the persisted cart of a user.
type CartReader interface {
	Items(ctx context.Context, userID string) (cart.Snapshot, []cart.LineItem, error)
}

// Request describes one optimization pass.
type Request struct {
	UserID string `json:"-"`
	// Items replaces the persisted cart entirely. Used by anonymous callers.
	Items []cart.LineItem `json:"items,omitempty" validate:"max=500"`
	// LocalItems are merged into the persisted cart for this pass only.
	LocalItems []cart.LineItem `json:"localItems,omitempty" validate:"max=500"`
	Origin     *geo.Point      `json:"origin,omitempty"`
	Address    string          `json:"address,omitempty" validate:"max=300"`
	StoreIDs   []string        `json:"storeIds,omitempty" validate:"max=50"`
	Strategy   string          `json:"strategy,omitempty"`
	PromoCode  string          `json:"promoCode,omitempty" validate:"max=64"`
	SkipAI     bool            `json:"skipAi,omitempty"`
}

// Result is the optimization outcome. Route is nil when no origin was given.
type Result struct {
	CartID     string             `json:"cartId,omitempty"`
	Items      []cart.LineItem    `json:"items"`
	Quantity   quantity.Summary   `json:"quantity"`
	AIDegraded bool               `json:"aiDegraded,omitempty"`
	StoreCarts []stores.StoreCart `json:"storeCarts"`
	Delivery   delivery.Decisions `json:"delivery"`
	Origin     *geo.Point         `json:"origin,omitempty"`
	Route      *route.Plan        `json:"route,omitempty"`
	Totals     pricing.Totals     `json:"totals"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Service wires the pipeline collaborators. Only Catalog is required.
type Service struct {
	Carts               CartReader
	Catalog             *stores.Catalog
	Assigner            *stores.Assigner
	Quantity            quantity.Optimizer
	Geocoder            geocode.Client
	Router              route.Optimizer
	Promos              pricing.PromoResolver
	DefaultStrategy     pricing.Strategy
	CateringDepositRate decimal.Decimal
	Events              *events.Bus
	Timeout             time.Duration
	Logger              zerolog.Logger
}

func (s *Service) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 3 * time.Second
	}
	return s.Timeout
}

// Optimize runs the pipeline. Empty carts and carts with no deliverable store
// produce valid zero results.
func (s *Service) Optimize(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	ctx, span := obs.StartSpan(ctx, "optimizer.optimize", attribute.Int("items.local", len(req.LocalItems)))
	defer span.End()

	strategy := s.DefaultStrategy
	if req.Strategy != "" {
		parsed, err := pricing.ParseStrategy(req.Strategy)
		if err != nil {
			return Result{}, err
		}
		strategy = parsed
	}
	if strategy == "" {
		strategy = pricing.StrategyBalanced
	}

	res, err := s.run(ctx, req, strategy)
	s.record(strategy, start, res, err)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	s.emit(ctx, req, res)
	return res, nil
}

func (s *Service) run(ctx context.Context, req Request, strategy pricing.Strategy) (Result, error) {
	if s.Catalog == nil {
		return Result{}, errors.New("optimizer: store catalog not configured")
	}
	candidates := s.Catalog.All()
	if len(req.StoreIDs) > 0 {
		selected, err := s.Catalog.Select(req.StoreIDs)
		if err != nil {
			return Result{}, err
		}
		candidates = selected
	}

	var (
		res    Result
		items  []cart.LineItem
		origin *geo.Point
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cartID, loaded, err := s.loadItems(gctx, req)
		res.CartID, items = cartID, loaded
		return err
	})
	g.Go(func() error {
		var err error
		origin, err = s.resolveOrigin(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if !req.SkipAI && s.Quantity != nil && len(items) > 0 {
		q, err := s.Quantity.Optimize(ctx, items)
		if err != nil || len(q.Items) != len(items) {
			obs.RecordFallback("ai_quantity")
			logger := obs.LoggerFrom(ctx, s.Logger)
			logger.Warn().Err(err).Msg("ai_optimize_fallback")
			q = quantity.Result{Items: items, Summary: quantity.Summary{TotalItems: len(items)}, Degraded: true}
		}
		items, res.Quantity, res.AIDegraded = q.Items, q.Summary, q.Degraded
	} else {
		res.Quantity = quantity.Summary{TotalItems: len(items)}
	}

	carts, err := s.Assigner.Assign(items, candidates)
	if err != nil {
		return Result{}, err
	}
	decisions, err := delivery.EvaluateAll(carts)
	if err != nil {
		return Result{}, err
	}
	res.StoreCarts = stores.Ordered(carts)
	res.Delivery = decisions

	if origin != nil {
		deliverable := make([]stores.Store, 0, len(decisions.Deliverable))
		for _, sc := range decisions.Deliverable {
			deliverable = append(deliverable, sc.Store)
		}
		plan, err := s.Router.Route(*origin, route.FromStores(deliverable))
		if err != nil {
			return Result{}, err
		}
		res.Origin, res.Route = origin, &plan
	}

	_, other := stores.Partition(items)
	totals, err := pricing.PriceWithCode(pricing.Input{
		StoreCarts:          res.StoreCarts,
		OtherItems:          other,
		Strategy:            strategy,
		DeliveryFees:        decisions.TotalFees,
		CateringDepositRate: s.CateringDepositRate,
	}, req.PromoCode, s.Promos)
	if err != nil {
		return Result{}, err
	}
	res.Totals = totals
	res.Warnings = totals.Warnings()
	res.Items = applyAssignments(items, carts)
	return res, nil
}

func (s *Service) loadItems(ctx context.Context, req Request) (string, []cart.LineItem, error) {
	if len(req.Items) > 0 || s.Carts == nil || req.UserID == "" {
		return "", cart.Merge(req.LocalItems, req.Items), nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	snap, remote, err := s.Carts.Items(ctx, req.UserID)
	if err != nil {
		return "", nil, err
	}
	return snap.ID, cart.Merge(req.LocalItems, remote), nil
}

func (s *Service) resolveOrigin(ctx context.Context, req Request) (*geo.Point, error) {
	if req.Origin != nil {
		if err := req.Origin.Validate(); err != nil {
			return nil, fmt.Errorf("origin: %w", err)
		}
		p := *req.Origin
		return &p, nil
	}
	if req.Address == "" {
		return nil, nil
	}
	if s.Geocoder == nil {
		return nil, fmt.Errorf("address lookup unavailable: %w", common.ErrUpstreamUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	p, err := geocode.Resolve(ctx, s.Geocoder, req.Address)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// applyAssignments copies the chosen store onto each optimizable item.
func applyAssignments(items []cart.LineItem, carts map[string]*stores.StoreCart) []cart.LineItem {
	assigned := make(map[string]string)
	for id, sc := range carts {
		for _, it := range sc.Items {
			assigned[it.Key()] = id
		}
	}
	out := make([]cart.LineItem, len(items))
	for i, it := range items {
		if id, ok := assigned[it.Key()]; ok && it.SourceType.Optimizable() {
			it.StoreID = id
		}
		out[i] = it
	}
	return out
}

func (s *Service) record(strategy pricing.Strategy, start time.Time, res Result, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case res.AIDegraded:
		result = "degraded"
	}
	if obs.OptimizationsTotal != nil {
		obs.OptimizationsTotal.WithLabelValues(string(strategy), result).Inc()
	}
	if obs.OptimizationDuration != nil {
		obs.OptimizationDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		return
	}
	if obs.RouteStops != nil && res.Route != nil {
		obs.RouteStops.Observe(float64(len(res.Route.Stops)))
	}
	if obs.PricingClampedTotal != nil && res.Totals.Clamped {
		obs.PricingClampedTotal.Inc()
	}
}

type optimizedEvent struct {
	UserID      string           `json:"userId,omitempty"`
	Strategy    pricing.Strategy `json:"strategy"`
	Stores      []string         `json:"stores"`
	Deliverable []string         `json:"deliverable"`
	Payable     pricing.Money    `json:"payable"`
	AIDegraded  bool             `json:"aiDegraded,omitempty"`
}

func (s *Service) emit(ctx context.Context, req Request, res Result) {
	if s.Events == nil {
		return
	}
	aggregate := res.CartID
	if aggregate == "" {
		aggregate = req.UserID
	}
	if aggregate == "" {
		return
	}
	ids := make([]string, 0, len(res.StoreCarts))
	for _, sc := range res.StoreCarts {
		ids = append(ids, sc.Store.ID)
	}
	_, err := s.Events.Emit(ctx, events.TopicCartOptimized, aggregate, optimizedEvent{
		UserID:      req.UserID,
		Strategy:    res.Totals.Strategy,
		Stores:      ids,
		Deliverable: res.Delivery.DeliverableIDs(),
		Payable:     res.Totals.Payable,
		AIDegraded:  res.AIDegraded,
	})
	if err != nil {
		logger := obs.LoggerFrom(ctx, s.Logger)
		logger.Warn().Err(err).Str("cart_id", res.CartID).Msg("optimize_event_failed")
	}
}
