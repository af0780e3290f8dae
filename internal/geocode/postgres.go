package geocode

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Querier 数据库接口，*database.DB 满足该接口
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	location_key TEXT PRIMARY KEY,
	lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
	lon          DOUBLE PRECISION NOT NULL DEFAULT 0,
	found        BOOLEAN NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore PostgreSQL缓存层
type PostgresStore struct {
	db Querier
}

// NewPostgresStore 创建缓存层
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema 创建缓存表
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// Name 层级名称
func (s *PostgresStore) Name() string { return "postgres" }

// Health 连通性检查，底层连接不支持时视为正常
func (s *PostgresStore) Health(ctx context.Context) error {
	if hc, ok := s.db.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Get 读取
func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	entries, err := s.GetMany(ctx, []string{key})
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[key]
	return e, ok, nil
}

// GetMany 批量读取
func (s *PostgresStore) GetMany(ctx context.Context, keys []string) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_key, lat, lon, found FROM geocode_cache WHERE location_key = ANY($1)`,
		pq.Array(keys),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Entry, len(keys))
	for rows.Next() {
		var (
			key string
			e   Entry
		)
		if err := rows.Scan(&key, &e.Location.Latitude, &e.Location.Longitude, &e.Found); err != nil {
			return nil, err
		}
		out[key] = e
	}
	return out, rows.Err()
}

// Set 写入
func (s *PostgresStore) Set(ctx context.Context, key string, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (location_key, lat, lon, found, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (location_key) DO UPDATE
		SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, found = EXCLUDED.found, updated_at = now()`,
		key, e.Location.Latitude, e.Location.Longitude, e.Found,
	)
	return err
}
