package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/metrics"
	redispkg "github.com/faxpilot/faxpilot-backend/pkg/redis"
	"github.com/faxpilot/faxpilot-backend/pkg/telnyx"
)

const (
	tierLocal  = "local"
	tierShared = "shared"
)

// NumberLookupClient is the provider surface the service depends on.
type NumberLookupClient interface {
	NumberLookup(ctx context.Context, e164 string) (*telnyx.NumberLookupResult, error)
}

// Service resolves carrier/portability data for destination numbers through
// a two-tier cache: an in-process TTL map first, the shared Redis cache
// second, the provider API last.
type Service interface {
	Lookup(ctx context.Context, e164 string) (*Result, error)
}

// ServiceParams groups dependencies for the lookup service. Client may be
// nil when no provider API key is configured; lookups then fail with a
// dependency error and callers rate the number without portability data.
type ServiceParams struct {
	Client        NumberLookupClient
	Cache         redispkg.KVStore
	Metrics       *metrics.FaxMetrics
	Logger        *logger.Logger
	CacheTTL      time.Duration
	LocalCacheTTL time.Duration
}

type service struct {
	client   NumberLookupClient
	cache    redispkg.KVStore
	metrics  *metrics.FaxMetrics
	logger   *logger.Logger
	cacheTTL time.Duration
	local    *localCache
	now      func() time.Time
}

// NewService builds the lookup service.
func NewService(params ServiceParams) (Service, error) {
	if params.Cache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	if params.LocalCacheTTL <= 0 {
		return nil, fmt.Errorf("local cache ttl must be positive")
	}
	return &service{
		client:   params.Client,
		cache:    params.Cache,
		metrics:  params.Metrics,
		logger:   params.Logger,
		cacheTTL: params.CacheTTL,
		local:    newLocalCache(params.LocalCacheTTL),
		now:      time.Now,
	}, nil
}

// Lookup returns the carrier record for e164, consulting the local cache,
// then the shared cache, then the provider. Cache writes are best effort: a
// failed write is logged and the fresh result is still returned.
func (s *service) Lookup(ctx context.Context, e164 string) (*Result, error) {
	number := strings.TrimSpace(e164)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}

	key := s.cache.LookupKey(strings.TrimPrefix(number, "+"))

	if cached, ok := s.local.get(key); ok {
		s.metrics.IncLookupCacheHit(tierLocal)
		return &cached, nil
	}

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var cached Result
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			s.metrics.IncLookupCacheHit(tierShared)
			s.local.set(key, cached)
			return &cached, nil
		}
		s.logger.Warn(s.logger.WithField(ctx, "cache_key", key), "discarding undecodable lookup cache entry")
	} else if err != redispkg.Nil {
		s.logger.Error(ctx, "lookup cache read failed", err)
	}

	s.metrics.IncLookupCacheMiss()

	if s.client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "number lookup is not configured")
	}

	upstream, err := s.client.NumberLookup(ctx, number)
	if err != nil {
		return nil, err
	}

	result := Result{
		PhoneNumber: upstream.PhoneNumber,
		CountryCode: upstream.CountryCode,
		CarrierName: upstream.CarrierName,
		LineType:    upstream.LineType,
		Ported:      upstream.Ported,
		LRN:         upstream.LRN,
		SPID:        upstream.SPID,
		OCN:         upstream.OCN,
		RetrievedAt: s.now().UTC(),
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, key, string(payload), s.cacheTTL); err != nil {
			s.logger.Error(ctx, "lookup cache write failed", err)
		}
	}
	s.local.set(key, result)

	return &result, nil
}
