// README: Pricing service resolves the pickup charge for a tier.
package pricing

import (
	"context"
	"errors"

	"repairtrack/internal/types"
)

var (
	ErrUnknownTier  = errors.New("unknown pickup tier")
	ErrRateNotFound = errors.New("pickup tier rate not found")
)

type RateSource interface {
	GetRate(ctx context.Context, tier string) (Rate, error)
}

type Service struct {
	rates RateSource
}

// NewService accepts a nil source, in which case DefaultRates are used.
func NewService(rates RateSource) *Service {
	return &Service{rates: rates}
}

func (s *Service) PickupCost(ctx context.Context, tier, currency string) (types.Money, error) {
	def, ok := DefaultRates[tier]
	if !ok {
		return types.Money{}, ErrUnknownTier
	}
	if s.rates != nil {
		r, err := s.rates.GetRate(ctx, tier)
		switch {
		case err == nil:
			if r.Currency == "" {
				r.Currency = currency
			}
			return types.NewMoney(r.Cost, r.Currency), nil
		case !errors.Is(err, ErrRateNotFound):
			return types.Money{}, err
		}
	}
	return types.NewMoney(def, currency), nil
}
