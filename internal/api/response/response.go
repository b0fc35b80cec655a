package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const CodeSuccess = 0

// Application codes are banded: 1xxxx caller and auth problems, 2xxxx
// resource state, 3xxxx business policy, 9xxxx server side.
const (
	ErrUnauthorized = 10001
	ErrTokenExpired = 10002
	ErrForbidden    = 10003
	ErrInvalidInput = 10004
	ErrRateLimited  = 10005

	ErrNotFound     = 20001
	ErrInvalidState = 20002

	ErrPolicyViolation = 30001

	ErrInvariantViolation = 90002
	ErrUnavailable        = 90003
	ErrInternal           = 99999
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Code       int            `json:"code"`
	Message    string         `json:"message"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Data       any            `json:"data,omitempty"`
	Pagination *Pagination    `json:"pagination,omitempty"`
}

type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func ok(data any) Response {
	return Response{Code: CodeSuccess, Message: "success", Data: data}
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, ok(data))
}

func Paginated(c *gin.Context, data any, page, pageSize int, total int64) {
	body := ok(data)
	body.Pagination = &Pagination{Page: page, PageSize: pageSize, Total: total}
	c.JSON(http.StatusOK, body)
}

func Fail(c *gin.Context, httpStatus, appCode int, message string) {
	c.JSON(httpStatus, Response{Code: appCode, Message: message})
}

// FailWithDetails adds a machine-readable reason and whatever the caller
// needs to correct the request, such as a shortfall amount.
func FailWithDetails(c *gin.Context, httpStatus, appCode int, message, reason string, details map[string]any) {
	c.JSON(httpStatus, Response{Code: appCode, Message: message, Reason: reason, Details: details})
}
