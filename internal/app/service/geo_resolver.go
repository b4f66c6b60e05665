package service

import (
	"context"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	geoCacheKeyPrefix = "ip_country:"
	geoCacheTTL       = 24 * time.Hour

	// CountryUnknown is the sentinel returned when lookup fails.
	CountryUnknown = "Unknown"
)

// GeoResolver maps client IPs to ISO-3166 alpha-2 country codes via a
// MaxMind database, caching results in Redis for 24h.
type GeoResolver struct {
	redis  *redis.Client
	reader *geoip2.Reader
	logger *zap.Logger
}

// NewGeoResolver opens the MaxMind database at dbPath. A missing or
// unreadable database degrades every lookup to Unknown.
func NewGeoResolver(rdb *redis.Client, dbPath string, logger *zap.Logger) *GeoResolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	var reader *geoip2.Reader
	if dbPath != "" {
		r, err := geoip2.Open(dbPath)
		if err != nil {
			logger.Warn("geoip database unavailable, country lookups disabled",
				zap.String("path", dbPath), zap.Error(err))
		} else {
			reader = r
		}
	}

	return &GeoResolver{redis: rdb, reader: reader, logger: logger}
}

// Close releases the MaxMind reader.
func (g *GeoResolver) Close() {
	if g.reader != nil {
		_ = g.reader.Close()
	}
}

// Country resolves the country code for ip, consulting the cache first.
// Failures return Unknown; Unknown results are cached too.
func (g *GeoResolver) Country(ctx context.Context, ip string) string {
	key := geoCacheKeyPrefix + ip

	if g.redis != nil {
		if cached, err := g.redis.Get(ctx, key).Result(); err == nil && cached != "" {
			return cached
		}
	}

	country := g.lookup(ip)

	if g.redis != nil {
		if err := g.redis.Set(ctx, key, country, geoCacheTTL).Err(); err != nil {
			g.logger.Debug("failed to cache country lookup", zap.Error(err))
		}
	}
	return country
}

func (g *GeoResolver) lookup(ip string) string {
	if g.reader == nil {
		return CountryUnknown
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return CountryUnknown
	}

	record, err := g.reader.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return CountryUnknown
	}
	return record.Country.IsoCode
}
