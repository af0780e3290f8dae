package geocode

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/paiban/courierplan/internal/metrics"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
)

// 命中结果标签
const (
	resultHit      = "hit"
	resultNegative = "negative"
	resultError    = "error"
)

// CachedResolver 多级缓存的位置解析器：进程内、外部缓存层、地理编码服务
type CachedResolver struct {
	memo     *MemoryStore
	stores   []Store
	geocoder Geocoder
	group    singleflight.Group
	log      zerolog.Logger
}

// NewCachedResolver 创建解析器，geocoder 为 nil 时只读缓存
func NewCachedResolver(geocoder Geocoder, stores ...Store) *CachedResolver {
	return &CachedResolver{
		memo:     NewMemoryStore(),
		stores:   stores,
		geocoder: geocoder,
		log:      logger.Get().With().Str("component", "geocode").Logger(),
	}
}

// Resolve 解析位置键，查询失败视为未找到并缓存在进程内
func (r *CachedResolver) Resolve(ctx context.Context, key string) (model.Location, bool, error) {
	key = model.NormalizeLocationKey(key)
	if key == "" {
		return model.Location{}, false, nil
	}
	if e, ok, _ := r.memo.Get(ctx, key); ok {
		record(r.memo.Name(), e)
		return e.Location, e.Found, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.load(ctx, key)
	})
	if err != nil {
		return model.Location{}, false, err
	}
	e := v.(Entry)
	return e.Location, e.Found, nil
}

func (r *CachedResolver) load(ctx context.Context, key string) (Entry, error) {
	if e, ok, _ := r.memo.Get(ctx, key); ok {
		return e, nil
	}
	for i, s := range r.stores {
		e, ok, err := s.Get(ctx, key)
		if err != nil {
			r.log.Warn().Err(err).Str("store", s.Name()).Str("key", key).Msg("缓存读取失败")
			continue
		}
		if ok {
			record(s.Name(), e)
			r.fill(ctx, key, e, r.stores[:i])
			return e, nil
		}
	}

	if r.geocoder == nil {
		e := Entry{}
		_ = r.memo.Set(ctx, key, e)
		record("none", e)
		return e, nil
	}

	loc, found, err := r.geocoder.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Entry{}, err
		}
		r.log.Warn().Err(err).Str("key", key).Msg("地理编码查询失败")
		metrics.RecordGeocodeLookup("geocoder", resultError)
		e := Entry{}
		_ = r.memo.Set(ctx, key, e)
		return e, nil
	}

	e := Entry{Location: loc, Found: found}
	record("geocoder", e)
	if !found {
		r.log.Info().Str("key", key).Msg("未找到位置坐标")
	}
	r.fill(ctx, key, e, r.stores)
	return e, nil
}

// fill 回填进程内缓存与给定缓存层
func (r *CachedResolver) fill(ctx context.Context, key string, e Entry, stores []Store) {
	_ = r.memo.Set(ctx, key, e)
	for _, s := range stores {
		if err := s.Set(ctx, key, e); err != nil {
			r.log.Warn().Err(err).Str("store", s.Name()).Str("key", key).Msg("缓存写入失败")
		}
	}
}

// Warm 批量预热进程内缓存
func (r *CachedResolver) Warm(ctx context.Context, keys []string) (int, error) {
	pending := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = model.NormalizeLocationKey(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if _, ok, _ := r.memo.Get(ctx, k); !ok {
			pending = append(pending, k)
		}
	}

	warmed := 0
	for _, s := range r.stores {
		bs, ok := s.(BatchStore)
		if !ok || len(pending) == 0 {
			continue
		}
		entries, err := bs.GetMany(ctx, pending)
		if err != nil {
			return warmed, err
		}
		rest := pending[:0]
		for _, k := range pending {
			if e, ok := entries[k]; ok {
				_ = r.memo.Set(ctx, k, e)
				warmed++
			} else {
				rest = append(rest, k)
			}
		}
		pending = rest
	}
	return warmed, nil
}

func record(source string, e Entry) {
	result := resultHit
	if !e.Found {
		result = resultNegative
	}
	metrics.RecordGeocodeLookup(source, result)
}

// HealthChecks 支持连通性检查的外部缓存层，按层级名称索引
func (r *CachedResolver) HealthChecks() map[string]HealthChecker {
	checks := make(map[string]HealthChecker)
	for _, s := range r.stores {
		if hc, ok := s.(HealthChecker); ok {
			checks[s.Name()] = hc
		}
	}
	return checks
}
