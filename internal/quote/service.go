// Package quote is the entry point cart, checkout and admin quoting use to
// price a product configuration.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/pricing/legacyarray"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrPricingRefused means the product has neither a usable catalog nor a
	// static price.
	ErrPricingRefused = errors.New("pricing catalog unavailable for this product")
	// ErrNotPriced is returned when freezing a configuration that did not
	// produce a price.
	ErrNotPriced = errors.New("configuration has no price")
	// ErrInvalidRequest is returned for requests no configuration can
	// produce, such as negative quantities or percentages.
	ErrInvalidRequest = errors.New("invalid price request")
)

// CatalogSource yields the raw catalog rows of a product. It returns
// catalog.ErrNoCatalog for products without a matrix catalog.
type CatalogSource interface {
	LoadCatalog(ctx context.Context, productID string) (catalog.BuildInput, error)
}

type SettingsSource interface {
	Settings(ctx context.Context) (pricing.VATSettings, error)
}

// StaticPriceSource yields the fixed price of products priced without a
// matrix catalog.
type StaticPriceSource interface {
	StaticPrice(ctx context.Context, productID string) (decimal.Decimal, bool, error)
}

type SnapshotStore interface {
	SaveQuoteSnapshot(ctx context.Context, s Snapshot) error
}

// Request is the invocation contract of CalculatePrice.
type Request struct {
	Quantity               int                          `json:"quantity"`
	Width                  *float64                     `json:"width,omitempty"`
	Height                 *float64                     `json:"height,omitempty"`
	Selections             map[string]map[string]string `json:"selections"`
	ProductionSpeedPercent float64                      `json:"production_speed_percent,omitempty"`
	UserDiscountPercent    float64                      `json:"user_discount_percent,omitempty"`
}

// Validate rejects values outside their domain. Missing values are not
// errors; they make the price unresolved.
func (r Request) Validate() error {
	switch {
	case r.Quantity < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidRequest)
	case r.Width != nil && (math.IsNaN(*r.Width) || *r.Width < 0):
		return fmt.Errorf("%w: width must not be negative", ErrInvalidRequest)
	case r.Height != nil && (math.IsNaN(*r.Height) || *r.Height < 0):
		return fmt.Errorf("%w: height must not be negative", ErrInvalidRequest)
	case !inRange(r.ProductionSpeedPercent, 0, math.MaxFloat64):
		return fmt.Errorf("%w: production speed percent must not be negative", ErrInvalidRequest)
	case !inRange(r.UserDiscountPercent, 0, 100):
		return fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidRequest)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Snapshot is a frozen price stored with a finalized order line.
type Snapshot struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Request   json.RawMessage `db:"request" json:"request"`
	Net       decimal.Decimal `db:"net" json:"net"`
	VAT       decimal.Decimal `db:"vat" json:"vat"`
	Gross     decimal.Decimal `db:"gross" json:"gross"`
	Currency  string          `db:"currency" json:"currency"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Config struct {
	// ExtrapolateAboveMax selects server-side extrapolation past the last
	// breakpoint. Interactive previews run with it off.
	ExtrapolateAboveMax bool
	SizeKeywords        []string
}

type Service struct {
	catalogs  CatalogSource
	settings  SettingsSource
	static    StaticPriceSource
	snapshots SnapshotStore
	store     *catalog.Store
	group     singleflight.Group
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the pricing sources. static and snapshots may be nil.
func NewService(
	catalogs CatalogSource,
	settings SettingsSource,
	static StaticPriceSource,
	snapshots SnapshotStore,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		catalogs:  catalogs,
		settings:  settings,
		static:    static,
		snapshots: snapshots,
		store:     catalog.NewStore(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Catalog returns the cached catalog snapshot of a product, building it on
// first use. Concurrent misses for one product share a single build.
func (s *Service) Catalog(ctx context.Context, productID string) (*catalog.Catalog, error) {
	const operation = "quote.Catalog"

	if cat, ok := s.store.Get(productID); ok {
		return cat, nil
	}

	v, err, _ := s.group.Do(productID, func() (any, error) {
		if cat, ok := s.store.Get(productID); ok {
			return cat, nil
		}

		// Shared by every waiting caller; one caller cancelling must not
		// fail the rest.
		in, err := s.catalogs.LoadCatalog(context.WithoutCancel(ctx), productID)
		if err != nil {
			return nil, err
		}
		in.ProductID = productID
		if len(s.cfg.SizeKeywords) > 0 {
			in.SizeKeywords = s.cfg.SizeKeywords
		}

		cat, err := catalog.Build(in)
		if err != nil {
			s.logBuildErrors(productID, err)
			return nil, err
		}
		for _, skipped := range cat.Skipped {
			s.logBuildErrors(productID, skipped)
		}

		s.store.Publish(cat)
		s.logger.Info("Pricing catalog built",
			zap.String("product_id", productID),
			zap.Int("matrices", len(cat.Matrices)),
			zap.Int("skipped", len(cat.Skipped)))
		return cat, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return v.(*catalog.Catalog), nil
}

func (s *Service) logBuildErrors(productID string, err error) {
	fields := []zap.Field{zap.String("product_id", productID), zap.Error(err)}

	var me *catalog.MatrixError
	if errors.As(err, &me) {
		fields = append(fields, zap.String("matrix_id", me.MatrixID), zap.String("field", me.Field))
	}
	var de *legacyarray.DecodeError
	if errors.As(err, &de) {
		fields = append(fields, zap.Int("offset", de.Offset))
	}
	s.logger.Warn("Pricing catalog row skipped", fields...)
}

// Invalidate drops the cached catalog of a product. The next request
// rebuilds it from the source.
func (s *Service) Invalidate(ctx context.Context, productID string) {
	s.store.Invalidate(productID)

	if inv, ok := s.catalogs.(interface {
		InvalidateCatalog(ctx context.Context, productID string) error
	}); ok {
		if err := inv.InvalidateCatalog(ctx, productID); err != nil {
			s.logger.Warn("Failed to invalidate cached catalog rows",
				zap.String("product_id", productID),
				zap.Error(err))
		}
	}
}

// CalculatePrice prices a configuration. Missing choices and unpriced
// combinations come back as the result status; only structural problems
// are errors. Products without a usable catalog fall back to their static
// price.
func (s *Service) CalculatePrice(ctx context.Context, productID string, req Request) (pricing.Result, error) {
	return s.calculate(ctx, productID, req, pricing.Options{ExtrapolateAboveMax: s.cfg.ExtrapolateAboveMax})
}

// Preview prices a configuration for interactive display. It never
// extrapolates past the last breakpoint.
func (s *Service) Preview(ctx context.Context, productID string, req Request) (pricing.Result, error) {
	return s.calculate(ctx, productID, req, pricing.Options{})
}

func (s *Service) calculate(ctx context.Context, productID string, req Request, opts pricing.Options) (pricing.Result, error) {
	const operation = "quote.CalculatePrice"

	if err := req.Validate(); err != nil {
		return pricing.Result{}, fmt.Errorf("%s: %w", operation, err)
	}

	vat, err := s.settings.Settings(ctx)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("%s: load settings: %w", operation, err)
	}

	cat, err := s.Catalog(ctx, productID)
	if err != nil {
		if !s.fallbackAllowed(err) {
			return pricing.Result{}, fmt.Errorf("%s: %w", operation, err)
		}
		return s.staticPrice(ctx, productID, vat, err)
	}
	if len(cat.Skipped) > 0 {
		// An incomplete catalog is treated like one that failed to decode.
		return s.staticPrice(ctx, productID, vat, fmt.Errorf("catalog incomplete: %w", errors.Join(cat.Skipped...)))
	}

	res := pricing.Aggregate(cat, selectionOf(req), modifiersOf(req), vat, opts)

	for _, w := range res.Warnings {
		s.logger.Warn("Pricing data quality warning",
			zap.String("product_id", productID),
			zap.String("warning", w))
	}
	s.logger.Debug("Price calculated",
		zap.String("product_id", productID),
		zap.Stringer("status", res.Status),
		zap.String("gross", res.Gross.StringFixed(2)))

	return res, nil
}

func (s *Service) fallbackAllowed(err error) bool {
	if errors.Is(err, catalog.ErrNoCatalog) {
		return true
	}
	var de *legacyarray.DecodeError
	return errors.As(err, &de)
}

func (s *Service) staticPrice(ctx context.Context, productID string, vat pricing.VATSettings, cause error) (pricing.Result, error) {
	const operation = "quote.staticPrice"

	if s.static == nil {
		return pricing.Result{}, fmt.Errorf("%s: %w: %w", operation, ErrPricingRefused, cause)
	}
	price, ok, err := s.static.StaticPrice(ctx, productID)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("%s: %w", operation, err)
	}
	if !ok {
		s.logger.Warn("Pricing refused",
			zap.String("product_id", productID),
			zap.Error(cause))
		return pricing.Result{}, fmt.Errorf("%s: %w: %w", operation, ErrPricingRefused, cause)
	}

	return pricing.Result{
		Status:   pricing.StatusOK,
		Amounts:  pricing.ApplyVAT(price, vat),
		RawTotal: price,
		Fallback: true,
	}, nil
}

// Freeze prices a configuration and stores the result as an immutable
// snapshot for an order line.
func (s *Service) Freeze(ctx context.Context, productID string, req Request) (Snapshot, error) {
	const operation = "quote.Freeze"

	res, err := s.CalculatePrice(ctx, productID, req)
	if err != nil {
		return Snapshot{}, err
	}
	if res.Status != pricing.StatusOK {
		return Snapshot{}, fmt.Errorf("%s: %w: %s (%s)", operation, ErrNotPriced, res.Status, res.Reason)
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: marshal request: %w", operation, err)
	}

	snap := Snapshot{
		ID:        uuid.New(),
		ProductID: productID,
		Request:   raw,
		Net:       res.Net,
		VAT:       res.VAT,
		Gross:     res.Gross,
		Currency:  res.Currency,
		CreatedAt: s.now().UTC(),
	}
	if s.snapshots != nil {
		if err := s.snapshots.SaveQuoteSnapshot(ctx, snap); err != nil {
			return Snapshot{}, fmt.Errorf("%s: %w", operation, err)
		}
	}

	s.logger.Info("Quote frozen",
		zap.String("snapshot_id", snap.ID.String()),
		zap.String("product_id", productID),
		zap.String("gross", snap.Gross.StringFixed(2)))
	return snap, nil
}

func selectionOf(req Request) pricing.Selection {
	return pricing.Selection{
		Quantity: req.Quantity,
		Width:    req.Width,
		Height:   req.Height,
		Choices:  req.Selections,
	}
}

func modifiersOf(req Request) pricing.Modifiers {
	return pricing.Modifiers{
		ProductionSpeedPercent: decimal.NewFromFloat(req.ProductionSpeedPercent),
		UserDiscountPercent:    decimal.NewFromFloat(req.UserDiscountPercent),
	}
}
