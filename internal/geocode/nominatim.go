package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/paiban/courierplan/pkg/model"
)

// Geocoder 外部地理编码服务
type Geocoder interface {
	Lookup(ctx context.Context, key string) (model.Location, bool, error)
}

// NominatimConfig 客户端配置
type NominatimConfig struct {
	BaseURL       string
	City          string
	UserAgent     string
	RatePerSecond float64 // <= 0 不限速
	Timeout       time.Duration
}

// NominatimClient OpenStreetMap Nominatim 客户端
type NominatimClient struct {
	baseURL   string
	city      string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewNominatimClient 创建客户端
func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NominatimClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		city:      cfg.City,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Query 构造查询文本
func (c *NominatimClient) Query(key string) string {
	if c.city == "" {
		return key + ", Brazil"
	}
	return fmt.Sprintf("%s, %s, Brazil", key, c.city)
}

// Lookup 查询坐标，无结果返回 ok=false
func (c *NominatimClient) Lookup(ctx context.Context, key string) (model.Location, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Location{}, false, err
	}

	params := url.Values{}
	params.Set("q", c.Query(key))
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return model.Location{}, false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Location{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Location{}, false, fmt.Errorf("nominatim 返回状态 %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return model.Location{}, false, fmt.Errorf("解析 nominatim 响应失败: %w", err)
	}
	if len(results) == 0 {
		return model.Location{}, false, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("无效纬度 %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("无效经度 %q: %w", results[0].Lon, err)
	}
	return model.Location{Latitude: lat, Longitude: lon}, true, nil
}
