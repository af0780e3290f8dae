// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/paiban/courierplan/pkg/allocator"
	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/result"
	"github.com/paiban/courierplan/pkg/allocator/scenario"
	"github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
	"github.com/paiban/courierplan/pkg/stats"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 8 << 20

// ScenarioDefaults 场景默认参数
type ScenarioDefaults struct {
	Deadlines problem.DeadlinePolicy
	Reduced   bool
	SweepFrom int
	SweepTo   int
	MaxPoints int // 运力扫描点数上限
	Workers   int
	Observer  scenario.Observer
}

// AllocationHandler 分配处理器
type AllocationHandler struct {
	solver   scenario.Solver
	defaults ScenarioDefaults
}

// NewAllocationHandler 创建分配处理器
func NewAllocationHandler(s scenario.Solver, defaults ScenarioDefaults) *AllocationHandler {
	return &AllocationHandler{solver: s, defaults: defaults}
}

// AllocateRequest 分配请求
type AllocateRequest struct {
	model.Dataset
	Deadlines *problem.DeadlinePolicy `json:"deadlines,omitempty"`
	Analysis  bool                    `json:"analysis,omitempty"`
}

// AllocateResponse 分配响应
type AllocateResponse struct {
	Success  bool             `json:"success"`
	Partial  bool             `json:"partial,omitempty"`
	Solution *result.Solution `json:"solution"`
	Analysis *stats.Analysis  `json:"analysis,omitempty"`
}

// CompareRequest 场景对比请求
type CompareRequest struct {
	model.Dataset
	Deadlines *problem.DeadlinePolicy `json:"deadlines,omitempty"`
	Reduced   *bool                   `json:"reduced,omitempty"`
}

// SweepRequest 运力扫描请求
type SweepRequest struct {
	model.Dataset
	From int `json:"from,omitempty"`
	To   int `json:"to,omitempty"`
}

// SweepResponse 运力扫描响应
type SweepResponse struct {
	Results []scenario.Result `json:"results"`
}

// Allocate 求解一批订单的分配
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if !decodePost(w, r, &req) {
		return
	}

	sol, err := h.solver.Run(r.Context(), &req.Dataset, allocator.RunOptions{Deadlines: req.Deadlines})
	if err != nil {
		respondError(w, asAppError(r.Context(), err, "分配失败"))
		return
	}

	resp := AllocateResponse{
		Success:  sol.ExitStatus() == result.ExitSuccess,
		Partial:  sol.ExitStatus() == result.ExitPartial,
		Solution: sol,
	}
	if req.Analysis {
		resp.Analysis = stats.Analyze(stats.FromSolution(sol), len(req.Couriers))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Compare 并行对比基线、时限与减半运力场景
func (h *AllocationHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, asAppError(r.Context(), err, "输入数据无效"))
		return
	}

	deadlines := h.defaults.Deadlines
	if req.Deadlines != nil {
		deadlines = *req.Deadlines
	}
	reduced := h.defaults.Reduced
	if req.Reduced != nil {
		reduced = *req.Reduced
	}

	table, err := h.runner(&req.Dataset).Compare(r.Context(), scenario.ComparisonRequest{
		Deadlines: &deadlines,
		Reduced:   reduced,
	})
	if err != nil {
		respondError(w, asAppError(r.Context(), err, "场景对比失败"))
		return
	}
	respondJSON(w, http.StatusOK, table)
}

// Sweep 对运力区间逐一求解
func (h *AllocationHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	req := SweepRequest{From: h.defaults.SweepFrom, To: h.defaults.SweepTo}
	if !decodePost(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, asAppError(r.Context(), err, "输入数据无效"))
		return
	}

	results, err := h.runner(&req.Dataset).CapacitySweep(r.Context(), req.From, req.To)
	if err != nil {
		respondError(w, asAppError(r.Context(), err, "运力扫描失败"))
		return
	}
	respondJSON(w, http.StatusOK, SweepResponse{Results: results})
}

func (h *AllocationHandler) runner(d *model.Dataset) *scenario.Runner {
	return scenario.NewRunner(h.solver, d, scenario.Options{
		Workers:        h.defaults.Workers,
		MaxSweepPoints: h.defaults.MaxPoints,
		Observer:       h.defaults.Observer,
	})
}

// decodePost 校验方法并解析JSON请求体
func decodePost(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return false
	}
	return true
}

// asAppError 归一化为应用错误，客户端取消或超时单独标记
func asAppError(ctx context.Context, err error, message string) *errors.AppError {
	if e, ok := err.(*errors.AppError); ok {
		return e
	}
	if code := errors.GetCode(err); code != errors.CodeUnknown {
		appErr := errors.Wrap(err, code, message)
		appErr.Family = errors.GetFamily(err)
		return appErr
	}
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.CodeTimeout, "请求超时")
	}
	return errors.Wrap(err, errors.CodeInternal, message)
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	body := map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
	}
	if err.Family != errors.FamilyUnknown {
		body["family"] = err.Family
	}
	if len(err.Fields) > 0 {
		body["fields"] = err.Fields
	}
	respondJSON(w, err.HTTPStatus, body)
}
