package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"printshop-pricing/internal/config"
	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/quote"
	"printshop-pricing/pkg/redis"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrProductNotFound = errors.New("product not found")

// Cache is the read-through cache in front of the catalog rows.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type PostgresStorage struct {
	db       *sqlx.DB
	cache    Cache
	cacheTTL time.Duration
	defaults pricing.VATSettings
	logger   *zap.Logger
}

// Options tune the storage beyond the connection settings.
type Options struct {
	// Cache may be nil, in which case every load hits the database.
	Cache    Cache
	CacheTTL time.Duration
	// Defaults are returned by Settings when shop_settings is empty.
	Defaults pricing.VATSettings
}

func NewPostgresStorage(ctx context.Context, cfg config.DatabaseConfig, opts Options, logger *zap.Logger) (*PostgresStorage, error) {
	const operation = "storage.NewPostgresStorage"

	var db *sqlx.DB
	var err error

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = 2 * time.Minute
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("Connecting to PostgreSQL...",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name))

	err = backoff.RetryNotify(
		func() error {
			db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			if err = db.PingContext(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, duration time.Duration) {
			logger.Warn("PostgreSQL connection failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", duration))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after retries: %w", operation, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger.Info("Successfully connected to PostgreSQL")
	return NewWithDB(db, opts, logger), nil
}

// NewWithDB wraps an open connection.
func NewWithDB(db *sqlx.DB, opts Options, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:       db,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		defaults: opts.Defaults,
		logger:   logger,
	}
}

// DB exposes the underlying pool for migrations.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db.DB
}

func (s *PostgresStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func catalogCacheKey(productID string) string {
	return "catalog:" + productID
}

// LoadCatalog reads the raw catalog rows of a product. The legacy matrix
// tables win over the normalized pricing model tables when a product has
// rows in both. Products without any matrix yield catalog.ErrNoCatalog.
func (s *PostgresStorage) LoadCatalog(ctx context.Context, productID string) (catalog.BuildInput, error) {
	const operation = "storage.LoadCatalog"

	if in, ok := s.cachedCatalog(ctx, productID); ok {
		return in, nil
	}

	var product productRow
	err := s.db.GetContext(ctx, &product, `
		SELECT id, static_price, dimension_unit, minimum_quantity,
		       minimum_width, minimum_height, maximum_width, maximum_height,
		       numbers_by_matrix
		FROM products
		WHERE id = $1
	`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.BuildInput{}, fmt.Errorf("%s: %s: %w", operation, productID, ErrProductNotFound)
		}
		return catalog.BuildInput{}, fmt.Errorf("%s: failed to get product: %w", operation, err)
	}

	globals, err := product.globals()
	if err != nil {
		return catalog.BuildInput{}, fmt.Errorf("%s: %w", operation, err)
	}

	in := catalog.BuildInput{ProductID: productID, Globals: globals}

	matrices, prices, err := s.legacyRows(ctx, productID)
	if err != nil {
		return catalog.BuildInput{}, fmt.Errorf("%s: %w", operation, err)
	}
	normalized := false
	if len(matrices) == 0 {
		if matrices, prices, err = s.modelRows(ctx, productID); err != nil {
			return catalog.BuildInput{}, fmt.Errorf("%s: %w", operation, err)
		}
		normalized = true
	}
	if len(matrices) == 0 {
		return catalog.BuildInput{}, fmt.Errorf("%s: %s: %w", operation, productID, catalog.ErrNoCatalog)
	}

	rows, kindErrs := matrixRows(matrices)
	for _, e := range kindErrs {
		s.logger.Warn("Matrix row skipped", zap.String("product_id", productID), zap.Error(e))
	}
	if len(rows) == 0 {
		return catalog.BuildInput{}, fmt.Errorf("%s: %s: %w", operation, productID, errors.Join(append([]error{catalog.ErrNoCatalog}, kindErrs...)...))
	}
	if normalized {
		if err := s.attachModels(ctx, rows); err != nil {
			return catalog.BuildInput{}, fmt.Errorf("%s: %w", operation, err)
		}
	}
	in.Matrices = rows
	in.Prices = priceRows(prices)

	if err := s.loadLabels(ctx, &in); err != nil {
		return catalog.BuildInput{}, fmt.Errorf("%s: %w", operation, err)
	}

	s.storeCatalog(ctx, productID, in)
	return in, nil
}

func (s *PostgresStorage) legacyRows(ctx context.Context, productID string) ([]matrixRow, []priceRow, error) {
	var matrices []matrixRow
	err := s.db.SelectContext(ctx, &matrices, `
		SELECT id, kind, numeric_type, num_style, area_unit, sort_order,
		       attributes, attribute_terms, breakpoints
		FROM price_matrices
		WHERE product_id = $1
		ORDER BY sort_order, id
	`, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get price matrices: %w", err)
	}
	if len(matrices) == 0 {
		return nil, nil, nil
	}

	var prices []priceRow
	err = s.db.SelectContext(ctx, &prices, `
		SELECT e.matrix_id, e.attribute_key, e.breakpoint, e.price
		FROM price_matrix_entries e
		JOIN price_matrices m ON m.id = e.matrix_id
		WHERE m.product_id = $1
	`, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get price matrix entries: %w", err)
	}
	return matrices, prices, nil
}

func (s *PostgresStorage) modelRows(ctx context.Context, productID string) ([]matrixRow, []priceRow, error) {
	var models []matrixRow
	err := s.db.SelectContext(ctx, &models, `
		SELECT id, kind, numeric_type, num_style, area_unit, sort_order,
		       '' AS attributes, '' AS attribute_terms, '' AS breakpoints
		FROM pricing_models
		WHERE product_id = $1
		ORDER BY sort_order, id
	`, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pricing models: %w", err)
	}
	if len(models) == 0 {
		return nil, nil, nil
	}

	var prices []priceRow
	err = s.db.SelectContext(ctx, &prices, `
		SELECT p.model_id AS matrix_id, p.attribute_key, p.breakpoint, p.price
		FROM pricing_model_prices p
		JOIN pricing_models m ON m.id = p.model_id
		WHERE m.product_id = $1
	`, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pricing model prices: %w", err)
	}
	return models, prices, nil
}

func (s *PostgresStorage) attachModels(ctx context.Context, rows []catalog.MatrixRow) error {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var attrs []modelAttributeRow
	if err := s.db.SelectContext(ctx, &attrs, `
		SELECT model_id, attribute_id, position
		FROM pricing_model_attributes
		WHERE model_id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to get pricing model attributes: %w", err)
	}

	var terms []modelTermRow
	if err := s.db.SelectContext(ctx, &terms, `
		SELECT model_id, attribute_id, term_id, position
		FROM pricing_model_terms
		WHERE model_id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to get pricing model terms: %w", err)
	}

	var bps []modelBreakpointRow
	if err := s.db.SelectContext(ctx, &bps, `
		SELECT model_id, value
		FROM pricing_model_breakpoints
		WHERE model_id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to get pricing model breakpoints: %w", err)
	}

	attachModelParts(rows, attrs, terms, bps)
	return nil
}

func (s *PostgresStorage) loadLabels(ctx context.Context, in *catalog.BuildInput) error {
	attrIDs, termIDs := referencedIDs(in.Matrices, in.Prices)

	var attrs []attributeRow
	if err := s.db.SelectContext(ctx, &attrs, `
		SELECT id, name, label FROM attributes WHERE id = ANY($1)
	`, pq.Array(attrIDs)); err != nil {
		return fmt.Errorf("failed to get attributes: %w", err)
	}

	var terms []termRow
	if err := s.db.SelectContext(ctx, &terms, `
		SELECT id, label FROM terms WHERE id = ANY($1)
	`, pq.Array(termIDs)); err != nil {
		return fmt.Errorf("failed to get terms: %w", err)
	}

	var meta []termMetaRow
	if err := s.db.SelectContext(ctx, &meta, `
		SELECT term_id, attribute_id, sort_order FROM term_meta WHERE term_id = ANY($1)
	`, pq.Array(termIDs)); err != nil {
		return fmt.Errorf("failed to get term order: %w", err)
	}

	in.Attributes = attributeMap(attrs)
	in.Terms = termMap(terms)
	in.TermOrders = termOrders(meta)
	return nil
}

func (s *PostgresStorage) cachedCatalog(ctx context.Context, productID string) (catalog.BuildInput, bool) {
	if s.cache == nil {
		return catalog.BuildInput{}, false
	}
	data, err := s.cache.Get(ctx, catalogCacheKey(productID))
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.logger.Warn("Catalog cache read failed", zap.String("product_id", productID), zap.Error(err))
		}
		return catalog.BuildInput{}, false
	}
	var in catalog.BuildInput
	if err := json.Unmarshal(data, &in); err != nil {
		s.logger.Warn("Catalog cache entry unreadable", zap.String("product_id", productID), zap.Error(err))
		return catalog.BuildInput{}, false
	}
	return in, true
}

func (s *PostgresStorage) storeCatalog(ctx context.Context, productID string, in catalog.BuildInput) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(in)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, catalogCacheKey(productID), data, s.cacheTTL); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.String("product_id", productID), zap.Error(err))
	}
}

// InvalidateCatalog drops the cached rows of a product after an admin edit
// or import.
func (s *PostgresStorage) InvalidateCatalog(ctx context.Context, productID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, catalogCacheKey(productID))
}

// StaticPrice returns the fixed price of a product, if it has one.
func (s *PostgresStorage) StaticPrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	const operation = "storage.StaticPrice"

	var price decimal.NullDecimal
	err := s.db.GetContext(ctx, &price, `SELECT static_price FROM products WHERE id = $1`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("%s: %w", operation, err)
	}
	return price.Decimal, price.Valid, nil
}

// Settings returns the shop VAT settings, or the configured defaults when
// none are stored.
func (s *PostgresStorage) Settings(ctx context.Context) (pricing.VATSettings, error) {
	const operation = "storage.Settings"

	var row struct {
		Rate             decimal.Decimal `db:"vat_rate"`
		PricesIncludeVAT bool            `db:"prices_include_vat"`
		Currency         string          `db:"currency"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT vat_rate, prices_include_vat, currency FROM shop_settings WHERE id = 1
	`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaults, nil
		}
		return pricing.VATSettings{}, fmt.Errorf("%s: %w", operation, err)
	}
	return pricing.VATSettings{
		Rate:             row.Rate,
		PricesIncludeVAT: row.PricesIncludeVAT,
		Currency:         row.Currency,
	}, nil
}

func (s *PostgresStorage) SaveQuoteSnapshot(ctx context.Context, snap quote.Snapshot) error {
	const operation = "storage.SaveQuoteSnapshot"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_snapshots (id, product_id, request, net, vat, gross, currency, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8)
	`, snap.ID, snap.ProductID, string(snap.Request), snap.Net, snap.VAT, snap.Gross, snap.Currency, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// ListQuoteSnapshots returns the newest snapshots first. An empty productID
// lists every product.
func (s *PostgresStorage) ListQuoteSnapshots(ctx context.Context, productID string, limit int) ([]quote.Snapshot, error) {
	const operation = "storage.ListQuoteSnapshots"

	var snaps []quote.Snapshot
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT id, product_id, request, net, vat, gross, currency, created_at
		FROM quote_snapshots
		WHERE $1 = '' OR product_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return snaps, nil
}
