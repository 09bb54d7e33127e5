// Package session keeps the live configuration of a product per chat and
// reprices it after every change.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/quote"
	"printshop-pricing/pkg/redis"
)

var (
	ErrNoSession     = errors.New("no active configuration")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownOption = errors.New("unknown option")
)

// State is the live selection of one chat.
type State struct {
	ProductID              string                       `json:"product_id"`
	Quantity               int                          `json:"quantity"`
	Width                  *float64                     `json:"width,omitempty"`
	Height                 *float64                     `json:"height,omitempty"`
	Choices                map[string]map[string]string `json:"choices"`
	ProductionSpeedPercent float64                      `json:"production_speed_percent,omitempty"`
	UserDiscountPercent    float64                      `json:"user_discount_percent,omitempty"`
	UpdatedAt              time.Time                    `json:"updated_at"`
}

// Request converts the state into a quote request.
func (s *State) Request() quote.Request {
	return quote.Request{
		Quantity:               s.Quantity,
		Width:                  s.Width,
		Height:                 s.Height,
		Selections:             s.Choices,
		ProductionSpeedPercent: s.ProductionSpeedPercent,
		UserDiscountPercent:    s.UserDiscountPercent,
	}
}

type Manager struct {
	store  StateStore
	pricer Pricer
	now    func() time.Time
}

func NewManager(store StateStore, pricer Pricer) *Manager {
	return &Manager{store: store, pricer: pricer, now: time.Now}
}

// Start opens a fresh configuration for productID, replacing any previous
// one. Every select starts on its default option and the quantity on the
// product minimum.
func (m *Manager) Start(ctx context.Context, chatID int64, productID string) (*State, error) {
	state := &State{
		ProductID: productID,
		Quantity:  1,
		Choices:   make(map[string]map[string]string),
	}

	cat, err := m.pricer.Catalog(ctx, productID)
	switch {
	case err == nil:
		if cat.Globals.MinimumQuantity > 1 {
			state.Quantity = cat.Globals.MinimumQuantity
		}
		for _, mx := range cat.Matrices {
			for _, s := range mx.Selects {
				if opt, ok := s.Default(); ok {
					setChoice(state.Choices, mx.ID, s.AttributeID, opt.Value)
				}
			}
		}
	case errors.Is(err, catalog.ErrNoCatalog):
		// Static products have nothing to choose.
	default:
		return nil, fmt.Errorf("Catalog failed: %w", err)
	}

	if err := m.save(ctx, chatID, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (m *Manager) Get(ctx context.Context, chatID int64) (*State, error) {
	var state State
	if err := m.store.GetState(ctx, chatID, &state); err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("GetState failed: %w", err)
	}
	if state.Choices == nil {
		state.Choices = make(map[string]map[string]string)
	}
	return &state, nil
}

func (m *Manager) save(ctx context.Context, chatID int64, state *State) error {
	state.UpdatedAt = m.now().UTC()
	if err := m.store.SaveState(ctx, chatID, state); err != nil {
		return fmt.Errorf("SaveState failed: %w", err)
	}
	return nil
}

func (m *Manager) update(ctx context.Context, chatID int64, fn func(*State) error) (*State, error) {
	state, err := m.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return nil, err
	}
	if err := m.save(ctx, chatID, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (m *Manager) SetQuantity(ctx context.Context, chatID int64, qty int) (*State, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	return m.update(ctx, chatID, func(s *State) error {
		s.Quantity = qty
		return nil
	})
}

// SetDimensions stores width and height in the product's dimension unit.
func (m *Manager) SetDimensions(ctx context.Context, chatID int64, width, height float64) (*State, error) {
	if !positive(width) || !positive(height) {
		return nil, fmt.Errorf("%w: width and height must be positive numbers", ErrInvalidInput)
	}
	return m.update(ctx, chatID, func(s *State) error {
		s.Width, s.Height = &width, &height
		return nil
	})
}

// Choose sets the option of one select after checking it exists in the
// product catalog.
func (m *Manager) Choose(ctx context.Context, chatID int64, matrixID, attributeID, value string) (*State, error) {
	return m.update(ctx, chatID, func(s *State) error {
		cat, err := m.pricer.Catalog(ctx, s.ProductID)
		if err != nil {
			return fmt.Errorf("Catalog failed: %w", err)
		}
		mx, ok := cat.Matrix(matrixID)
		if !ok {
			return fmt.Errorf("%w: matrix %s", ErrUnknownOption, matrixID)
		}
		sel, ok := mx.Select(attributeID)
		if !ok {
			return fmt.Errorf("%w: %s has no attribute %s", ErrUnknownOption, matrixID, attributeID)
		}
		if _, ok := sel.Option(value); !ok {
			return fmt.Errorf("%w: %s is not an option of %s", ErrUnknownOption, value, sel.Label)
		}
		setChoice(s.Choices, matrixID, attributeID, value)
		return nil
	})
}

// SetModifiers stores the production speed surcharge and user discount in
// percent.
func (m *Manager) SetModifiers(ctx context.Context, chatID int64, speedPercent, discountPercent float64) (*State, error) {
	if math.IsNaN(speedPercent) || math.IsInf(speedPercent, 0) || speedPercent < 0 {
		return nil, fmt.Errorf("%w: production speed percent out of range", ErrInvalidInput)
	}
	if math.IsNaN(discountPercent) || discountPercent < 0 || discountPercent > 100 {
		return nil, fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidInput)
	}
	return m.update(ctx, chatID, func(s *State) error {
		s.ProductionSpeedPercent = speedPercent
		s.UserDiscountPercent = discountPercent
		return nil
	})
}

// Price reprices the current configuration.
func (m *Manager) Price(ctx context.Context, chatID int64) (*State, pricing.Result, error) {
	state, err := m.Get(ctx, chatID)
	if err != nil {
		return nil, pricing.Result{}, err
	}
	res, err := m.pricer.Preview(ctx, state.ProductID, state.Request())
	if err != nil {
		return state, pricing.Result{}, fmt.Errorf("Preview failed: %w", err)
	}
	return state, res, nil
}

// Reset ends the configuration of a chat.
func (m *Manager) Reset(ctx context.Context, chatID int64) error {
	if err := m.store.ClearState(ctx, chatID); err != nil {
		return fmt.Errorf("ClearState failed: %w", err)
	}
	return nil
}

func setChoice(choices map[string]map[string]string, matrixID, attributeID, value string) {
	if choices[matrixID] == nil {
		choices[matrixID] = make(map[string]string)
	}
	choices[matrixID][attributeID] = value
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
