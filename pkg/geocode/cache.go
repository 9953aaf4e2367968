package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up a cached candidate, respecting TTL if configured.
func (g *geocoder) checkCache(ctx context.Context, key string) (*Candidate, error) {
	var c Candidate
	var formatted *string

	query := "SELECT latitude, longitude, quality, formatted_address FROM geocode_cache WHERE address_hash = $1"
	if g.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", g.cacheTTLDays)
	}

	row := g.pool.QueryRow(ctx, query, key)
	if err := row.Scan(&c.Latitude, &c.Longitude, &c.Quality, &formatted); err != nil {
		return nil, err // no row or scan error, caller handles
	}
	if formatted != nil {
		c.FormattedAddress = *formatted
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix))
	return &c, nil
}

// storeCache upserts a positive result into the cache.
func (g *geocoder) storeCache(ctx context.Context, key string, c Candidate) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, quality, formatted_address, cached_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			quality = EXCLUDED.quality,
			formatted_address = EXCLUDED.formatted_address,
			cached_at = now()`,
		key, c.Latitude, c.Longitude, c.Quality, nilIfEmpty(c.FormattedAddress),
	)
	if err != nil {
		zap.L().Warn("geocode: cache write failed", zap.Error(err))
		return eris.Wrap(err, "geocode: store cache")
	}
	return nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
