package session

import (
	"context"

	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/quote"
)

// StateStore persists session state per chat. GetState returns an error
// matching redis.ErrNotFound when the chat has no live session.
type StateStore interface {
	SaveState(ctx context.Context, chatID int64, state any) error
	GetState(ctx context.Context, chatID int64, state any) error
	ClearState(ctx context.Context, chatID int64) error
}

type Pricer interface {
	Catalog(ctx context.Context, productID string) (*catalog.Catalog, error)
	Preview(ctx context.Context, productID string, req quote.Request) (pricing.Result, error)
}

var _ Pricer = (*quote.Service)(nil)
