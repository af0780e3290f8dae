package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/paiban/courierplan/internal/config"
	"github.com/paiban/courierplan/pkg/model"
)

// fakeNominatim 按查询文本返回固定结果
func fakeNominatim(t *testing.T, answers map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/search" || r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, ok := answers[r.URL.Query().Get("q")]
		if !ok {
			body = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newClient(url string) *NominatimClient {
	return NewNominatimClient(NominatimConfig{BaseURL: url, City: "Juiz de Fora", UserAgent: "courierplan-test"})
}

func TestNominatimClient_Lookup(t *testing.T) {
	srv, _ := fakeNominatim(t, map[string]string{
		"36010000, Juiz de Fora, Brazil": `[{"lat":"-21.7642","lon":"-43.3503"}]`,
		"36000000, Juiz de Fora, Brazil": `[{"lat":"abc","lon":"-43.0"}]`,
	})
	client := newClient(srv.URL)

	tests := []struct {
		name      string
		key       string
		wantFound bool
		wantErr   bool
	}{
		{"找到坐标", "36010000", true, false},
		{"无结果", "99999999", false, false},
		{"坐标格式错误", "36000000", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, found, err := client.Lookup(context.Background(), tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && (loc.Latitude != -21.7642 || loc.Longitude != -43.3503) {
				t.Errorf("loc = %+v", loc)
			}
		})
	}
}

func TestNominatimClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, _, err := newClient(srv.URL).Lookup(context.Background(), "36010000"); err == nil {
		t.Error("expected error on 429")
	}
}

func TestNominatimClient_RateLimit(t *testing.T) {
	srv, _ := fakeNominatim(t, nil)
	client := NewNominatimClient(NominatimConfig{BaseURL: srv.URL, UserAgent: "t", RatePerSecond: 1})

	if _, _, err := client.Lookup(context.Background(), "1"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	// 第二次请求需等待约 1 秒，超出上下文期限
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := client.Lookup(ctx, "2"); err == nil {
		t.Error("expected rate limiter to reject within deadline")
	}
}

func TestCachedResolver_Memo(t *testing.T) {
	srv, calls := fakeNominatim(t, map[string]string{
		"36010000, Juiz de Fora, Brazil": `[{"lat":"-21.7642","lon":"-43.3503"}]`,
	})
	r := NewCachedResolver(newClient(srv.URL))
	ctx := context.Background()

	for _, key := range []string{"36010-000", " 36010000 ", "36010000"} {
		_, found, err := r.Resolve(ctx, key)
		if err != nil || !found {
			t.Fatalf("Resolve(%q) = %v, %v", key, found, err)
		}
	}
	// 未找到的结果同样缓存
	for i := 0; i < 2; i++ {
		if _, found, err := r.Resolve(ctx, "00000-000"); err != nil || found {
			t.Fatalf("Resolve(missing) = %v, %v", found, err)
		}
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Errorf("geocoder calls = %d, want 2", got)
	}
	if _, found, _ := r.Resolve(ctx, ""); found {
		t.Error("empty key should not resolve")
	}
}

func TestCachedResolver_Concurrent(t *testing.T) {
	srv, calls := fakeNominatim(t, map[string]string{
		"36010000, Juiz de Fora, Brazil": `[{"lat":"-21.7642","lon":"-43.3503"}]`,
	})
	r := NewCachedResolver(newClient(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, found, err := r.Resolve(context.Background(), "36010000"); err != nil || !found {
				t.Errorf("Resolve() = %v, %v", found, err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("geocoder calls = %d, want 1", got)
	}
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, time.Hour)
}

func TestCachedResolver_RedisLayer(t *testing.T) {
	srv, calls := fakeNominatim(t, map[string]string{
		"36010000, Juiz de Fora, Brazil": `[{"lat":"-21.7642","lon":"-43.3503"}]`,
	})
	store := newRedisStore(t)
	ctx := context.Background()

	first := NewCachedResolver(newClient(srv.URL), store)
	if _, found, err := first.Resolve(ctx, "36010000"); err != nil || !found {
		t.Fatalf("first Resolve() = %v, %v", found, err)
	}
	if e, ok, err := store.Get(ctx, "36010000"); err != nil || !ok || !e.Found {
		t.Fatalf("redis entry = %+v, %v, %v", e, ok, err)
	}

	// 新的解析器从 Redis 命中，不再请求地理编码
	second := NewCachedResolver(newClient(srv.URL), store)
	loc, found, err := second.Resolve(ctx, "36010000")
	if err != nil || !found || loc.Latitude != -21.7642 {
		t.Fatalf("second Resolve() = %+v, %v, %v", loc, found, err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("geocoder calls = %d, want 1", got)
	}
}

type failingGeocoder struct{ err error }

func (g failingGeocoder) Lookup(context.Context, string) (model.Location, bool, error) {
	return model.Location{}, false, g.err
}

func TestCachedResolver_GeocoderFailure(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	r := NewCachedResolver(failingGeocoder{err: errors.New("network down")}, store)
	_, found, err := r.Resolve(ctx, "36010000")
	if err != nil || found {
		t.Fatalf("Resolve() = %v, %v; want not found without error", found, err)
	}
	// 查询失败不写入外部缓存
	if _, ok, _ := store.Get(ctx, "36010000"); ok {
		t.Error("failure must not be persisted")
	}

	canceled := NewCachedResolver(failingGeocoder{err: context.Canceled})
	if _, _, err := canceled.Resolve(ctx, "36010000"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCachedResolver_Warm(t *testing.T) {
	ctx := context.Background()
	batch := &memoryBatch{MemoryStore: NewMemoryStore()}
	_ = batch.Set(ctx, "36010000", Entry{Location: model.Location{Latitude: 1, Longitude: 2}, Found: true})

	r := NewCachedResolver(nil, batch)
	n, err := r.Warm(ctx, []string{"36010-000", "36010000", "11111111"})
	if err != nil || n != 1 {
		t.Fatalf("Warm() = %d, %v", n, err)
	}
	if r.memo.Len() != 1 {
		t.Errorf("memo size = %d, want 1", r.memo.Len())
	}
	// 无地理编码时未命中视为未找到
	if _, found, err := r.Resolve(ctx, "11111111"); err != nil || found {
		t.Errorf("Resolve(uncached) = %v, %v", found, err)
	}
}

type memoryBatch struct {
	*MemoryStore
}

func (m *memoryBatch) GetMany(ctx context.Context, keys []string) (map[string]Entry, error) {
	out := map[string]Entry{}
	for _, k := range keys {
		if e, ok, _ := m.Get(ctx, k); ok {
			out[k] = e
		}
	}
	return out, nil
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatal(err)
	}
	srv, calls := fakeNominatim(t, map[string]string{
		"36010000, Juiz de Fora, Brazil": `[{"lat":"-21.7642","lon":"-43.3503"}]`,
	})

	cfg := &config.Config{
		Redis: config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port, PoolSize: 2},
		Geocoder: config.GeocoderConfig{
			Enabled:   true,
			BaseURL:   srv.URL,
			City:      "Juiz de Fora",
			UserAgent: "courierplan-test",
			CacheTTL:  time.Hour,
		},
	}
	r, closeFn, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer closeFn()

	if _, found, err := r.Resolve(context.Background(), "36010-000"); err != nil || !found {
		t.Fatalf("Resolve() = %v, %v", found, err)
	}
	if !mr.Exists(redisKeyPrefix + "36010000") {
		t.Error("entry not written to redis")
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("geocoder calls = %d", atomic.LoadInt32(calls))
	}
}

func TestCachedResolver_HealthChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	r := NewCachedResolver(nil, NewRedisStore(rdb, 0), NewPostgresStore(nil))
	checks := r.HealthChecks()
	if len(checks) != 2 {
		t.Fatalf("checks = %v", checks)
	}
	ctx := context.Background()
	if err := checks["redis"].Health(ctx); err != nil {
		t.Errorf("redis health = %v", err)
	}
	if err := checks["postgres"].Health(ctx); err != nil {
		t.Errorf("postgres health without checker = %v", err)
	}

	mr.Close()
	if err := checks["redis"].Health(ctx); err == nil {
		t.Error("expected redis health error after close")
	}
}
