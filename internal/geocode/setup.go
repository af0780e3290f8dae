package geocode

import (
	"context"

	"github.com/paiban/courierplan/internal/config"
	"github.com/paiban/courierplan/internal/database"
	"github.com/paiban/courierplan/pkg/logger"
)

// Open 按配置组装解析器，返回的 close 函数释放外部连接
func Open(ctx context.Context, cfg *config.Config) (*CachedResolver, func(), error) {
	var (
		stores  []Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Redis.Enabled {
		rdb, err := NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { rdb.Close() })
		stores = append(stores, NewRedisStore(rdb, cfg.Geocoder.CacheTTL))
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { db.Close() })
		pg := NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		stores = append(stores, pg)
	}

	var geocoder Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = NewNominatimClient(NominatimConfig{
			BaseURL:       cfg.Geocoder.BaseURL,
			City:          cfg.Geocoder.City,
			UserAgent:     cfg.Geocoder.UserAgent,
			RatePerSecond: cfg.Geocoder.RatePerSecond,
			Timeout:       cfg.Geocoder.Timeout,
		})
	}

	names := make([]string, 0, len(stores))
	for _, s := range stores {
		names = append(names, s.Name())
	}
	logger.Info().Strs("stores", names).Bool("geocoder", geocoder != nil).Msg("位置解析器就绪")

	return NewCachedResolver(geocoder, stores...), closeAll, nil
}
