package pricing

import "context"

// Provider maps a product identifier to a price. A nil price with a
// nil error means "unknown"; callers treat lookup failures the same
// way and continue without a price.
type Provider interface {
	GetPrice(ctx context.Context, productID string) (*float64, error)
}

// NullProvider never knows a price. It is the default when no PAAPI
// credentials are configured.
type NullProvider struct{}

// GetPrice always reports an unknown price.
func (NullProvider) GetPrice(context.Context, string) (*float64, error) {
	return nil, nil
}

// StaticProvider serves prices from a fixed map. Used in tests and
// local development.
type StaticProvider struct {
	Prices map[string]float64
}

// GetPrice returns the mapped price, or unknown.
func (p StaticProvider) GetPrice(_ context.Context, productID string) (*float64, error) {
	if v, ok := p.Prices[productID]; ok {
		return &v, nil
	}
	return nil, nil
}
