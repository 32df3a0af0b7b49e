// Package cache содержит кэш предложений в памяти процесса поверх основного хранилища.
package cache

import (
	"context"
	"time"

	goCache "github.com/patrickmn/go-cache"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// DefaultTTL используется, если время жизни записи не задано.
const DefaultTTL = 30 * time.Second

// OfferSource отдаёт предложение по идентификатору.
type OfferSource interface {
	GetOffer(ctx context.Context, id string) (*model.Offer, error)
}

// Offers кэширует найденные предложения на короткое время.
// Ошибки источника, в том числе «не найдено», не кэшируются.
type Offers struct {
	source OfferSource
	cache  *goCache.Cache
	ttl    time.Duration
}

// NewOffers создаёт кэш предложений. Неположительный ttl заменяется на DefaultTTL.
func NewOffers(source OfferSource, ttl time.Duration) *Offers {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Offers{
		source: source,
		cache:  goCache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// GetOffer возвращает предложение из кэша или загружает его из источника.
func (c *Offers) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	if v, ok := c.cache.Get(id); ok {
		if offer, ok := v.(*model.Offer); ok {
			cp := *offer
			return &cp, nil
		}
	}

	offer, err := c.source.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}

	cp := *offer
	c.cache.Set(id, &cp, c.ttl)
	return offer, nil
}

// Invalidate удаляет предложение из кэша.
func (c *Offers) Invalidate(id string) {
	c.cache.Delete(id)
}
