package handler

import (
	"context"
	"net/http"
	"time"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthChecker 依赖健康检查
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Health 健康检查，依赖不可用时返回503
func Health(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, c := range checks {
			if err := c.Health(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]interface{}{"status": "ok", "service": "courierplan"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		respondJSON(w, status, body)
	}
}

// Version 版本信息
func Version(info BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, info)
	}
}

// Routes 注册API路由
func Routes(mux *http.ServeMux, h *AllocationHandler) {
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"message": "courierplan 订单分配 API v1",
			"endpoints": map[string]string{
				"allocate": "POST /api/v1/allocate",
				"compare":  "POST /api/v1/scenarios/compare",
				"sweep":    "POST /api/v1/scenarios/sweep",
			},
		})
	})
	mux.HandleFunc("/api/v1/allocate", h.Allocate)
	mux.HandleFunc("/api/v1/scenarios/compare", h.Compare)
	mux.HandleFunc("/api/v1/scenarios/sweep", h.Sweep)
}
