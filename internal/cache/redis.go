package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

const priceTTL = 2 * time.Minute

func InitRedis(ctx context.Context, addr string) {
	Client = redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := Client.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
}

func priceKey(symbol string) string {
	return fmt.Sprintf("price:%s", symbol)
}

// SetPrice stores the latest traded price for a symbol with a short TTL
// so stale quotes never serve a reprice cycle.
func SetPrice(ctx context.Context, symbol string, price float64) error {
	return Client.Set(ctx, priceKey(symbol), strconv.FormatFloat(price, 'f', -1, 64), priceTTL).Err()
}

// GetPrice returns the cached price for a symbol, or (0, false) on a miss.
func GetPrice(ctx context.Context, symbol string) (float64, bool) {
	raw, err := Client.Get(ctx, priceKey(symbol)).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// PriceStore adapts the package-level price helpers for injection into
// services that want a stubbed cache in tests.
type PriceStore struct{}

func (PriceStore) GetPrices(ctx context.Context, symbols []string) map[string]float64 {
	return GetPrices(ctx, symbols)
}

func (PriceStore) SetPrice(ctx context.Context, symbol string, price float64) error {
	return SetPrice(ctx, symbol, price)
}

// GetPrices returns cached prices for the given symbols, omitting misses.
func GetPrices(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		if price, ok := GetPrice(ctx, symbol); ok {
			out[symbol] = price
		}
	}
	return out
}
