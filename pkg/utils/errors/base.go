package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// OK represents a successful operation.
var OK = Register(New(0, http.StatusOK, codes.OK, "Success", "成功"))

// Request errors (category 01).
var (
	ErrBadRequest   = NewRequestErr(ServiceCommon, 0, "Bad request", "请求错误")
	ErrInvalidParam = NewRequestErr(ServiceCommon, 1, "Invalid parameter", "参数无效")
	ErrMissingParam = NewRequestErr(ServiceCommon, 2, "Missing required parameter", "缺少必需参数")

	ErrMethodNotAllowed = NewError(ServiceCommon, CategoryRequest, 3, http.StatusMethodNotAllowed, codes.Unimplemented,
		"Method not allowed", "请求方法不允许")
)

// Auth errors (category 02).
var (
	ErrUnauthorized      = NewAuthErr(ServiceCommon, 0, "Invalid API key", "API 密钥无效")
	ErrMissingAuthHeader = NewAuthErr(ServiceCommon, 1, "Authorization header missing", "缺少 Authorization 请求头")
)

// Resource errors (category 04).
var (
	ErrNotFound      = NewNotFoundErr(ServiceCommon, 0, "Resource not found", "资源不存在")
	ErrRouteNotFound = NewNotFoundErr(ServiceCommon, 1, "Route not found", "路由不存在")
)

// Rate limit errors (category 06).
var (
	ErrTooManyRequests = NewRateLimitErr(ServiceCommon, 0, "Too many requests", "请求过于频繁")
)

// Internal errors (category 07).
var (
	ErrInternal = NewInternalErr(ServiceCommon, 0, "Internal server error", "服务器内部错误")
	ErrPanic    = NewInternalErr(ServiceCommon, 2, "Service panic", "服务崩溃")
)

// Network and timeout errors (categories 10 and 11).
var (
	ErrServiceUnavailable = NewNetworkErr(ServiceCommon, 0, http.StatusServiceUnavailable, "Service unavailable", "服务不可用")
	ErrTimeout            = NewTimeoutErr(ServiceCommon, 0, "Request timeout", "请求超时")
)

// Cache errors (category 09).
var (
	ErrCacheUnavailable = NewCacheErr(ServiceInfraCache, 0, "Cache unavailable", "缓存不可用")
)
