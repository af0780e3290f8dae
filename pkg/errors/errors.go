// Package errors 提供统一的错误处理框架
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	// 通用错误码
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeRateLimited  Code = "RATE_LIMITED"

	// 分配引擎相关
	CodeInfeasible          Code = "INFEASIBLE"
	CodeUnbounded           Code = "UNBOUNDED"
	CodeInternalConsistency Code = "INTERNAL_CONSISTENCY"
	CodeTimeout             Code = "TIMEOUT"
	CodeMissingAllocation   Code = "MISSING_ALLOCATION"

	// 数据相关
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeValidationFail Code = "VALIDATION_FAILED"
)

// Family 不可行时触发的约束族
type Family string

const (
	FamilyUnknown  Family = ""
	FamilyCapacity Family = "capacity" // 运力不足
	FamilyDeadline Family = "deadline" // 时限不可达
)

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Family     Family                 `json:"family,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithField 添加字段
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// codeToHTTPStatus 错误码转HTTP状态码
func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidationFail:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeInfeasible:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Is 检查错误是否为特定类型
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode 获取错误码
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetFamily 获取不可行约束族
func GetFamily(err error) Family {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Family
	}
	return FamilyUnknown
}

// GetHTTPStatus 获取HTTP状态码
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// 进程退出码
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitPartial    = 2
	ExitInfeasible = 3
	ExitInput      = 4
	ExitDefect     = 5
	ExitTimeout    = 6
)

// ExitCode 错误转进程退出码
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCode(err) {
	case CodeInfeasible:
		return ExitInfeasible
	case CodeInvalidInput, CodeValidationFail:
		return ExitInput
	case CodeUnbounded, CodeInternalConsistency, CodeMissingAllocation:
		return ExitDefect
	case CodeTimeout:
		return ExitTimeout
	default:
		return ExitFailure
	}
}

// InvalidInput 创建输入无效错误
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("字段 '%s' 无效: %s", field, reason))
}

// NotFound 创建资源不存在错误
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' 不存在", resource, id))
}

// Infeasible 创建无可行分配错误
func Infeasible(family Family, reason string) *AppError {
	err := New(CodeInfeasible, reason)
	err.Family = family
	return err
}

// Unbounded 创建目标无界错误（该模型结构下不应出现）
func Unbounded(backend string) *AppError {
	return New(CodeUnbounded, fmt.Sprintf("求解器 %s 报告目标无界", backend))
}

// InternalConsistency 创建内部一致性错误
func InternalConsistency(details string) *AppError {
	return New(CodeInternalConsistency, "内部一致性错误").WithDetails(details)
}

// TimedOut 创建求解超时错误
func TimedOut(backend string, hasIncumbent bool) *AppError {
	return New(CodeTimeout, fmt.Sprintf("求解器 %s 超出时间预算", backend)).
		WithField("has_incumbent", hasIncumbent)
}

// MissingAllocation 创建订单缺失分配错误
func MissingAllocation(orderID string, assigned int) *AppError {
	return New(CodeMissingAllocation, fmt.Sprintf("订单 %s 分配了 %d 个骑手", orderID, assigned)).
		WithField("order_id", orderID)
}

// ValidationErrors 验证错误集合
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError 单个验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "验证失败"
	}
	return fmt.Sprintf("验证失败: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// Add 添加验证错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors 检查是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转换为 AppError，输入数据问题统一归为 INVALID_INPUT
func (ve *ValidationErrors) ToAppError() *AppError {
	err := New(CodeInvalidInput, fmt.Sprintf("输入数据无效: %d 处问题", len(ve.Errors)))
	err.Fields = make(map[string]interface{})
	for _, e := range ve.Errors {
		err.Fields[e.Field] = e.Message
	}
	err.Cause = ve
	return err
}
