package cache

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/logging"
	"github.com/rs/zerolog"
)

// Fallback reads and writes through primary first, falling back to
// secondary on any primary error — the same primary/then-secondary shape
// as the teacher's FallbackVectorMemory, generalized from vector storage to
// a byte cache. A Fallback write that succeeds on the fallback alone still
// returns success, matching the teacher's "never fail the caller just
// because the fast tier is down" intent.
type Fallback struct {
	primary   Cache
	secondary Cache
	log       zerolog.Logger
}

func NewFallback(primary, secondary Cache) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: logging.Component("cache")}
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := f.primary.Get(ctx, key)
	if err == nil {
		return val, ok, nil
	}
	f.log.Warn().Err(err).Str("key", key).Msg("primary cache get failed, falling back")
	return f.secondary.Get(ctx, key)
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	errPrimary := f.primary.Set(ctx, key, value, ttl)
	if errPrimary == nil {
		return nil
	}
	f.log.Warn().Err(errPrimary).Str("key", key).Msg("primary cache set failed, falling back")
	return f.secondary.Set(ctx, key, value, ttl)
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	errPrimary := f.primary.Delete(ctx, key)
	errSecondary := f.secondary.Delete(ctx, key)
	if errPrimary != nil {
		return errPrimary
	}
	return errSecondary
}
