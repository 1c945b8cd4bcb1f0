package app

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误分类：所有 controller 通过这里映射到 HTTP 状态码
var (
	// ErrValidation covers user-correctable input problems (shape, pattern).
	ErrValidation = errors.New("validation failed")
	// ErrConflict covers duplicate userID / email / credential registrations.
	ErrConflict = errors.New("conflict")
	// ErrAuth covers missing, expired or invalid credentials and tokens.
	ErrAuth = errors.New("unauthorized")
	// ErrForbidden covers role and ownership violations.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound covers unknown users, credentials and resources.
	ErrNotFound = errors.New("not found")
	// ErrUpstream covers provider exchange / profile fetch failures.
	ErrUpstream = errors.New("upstream provider failure")
	// ErrInternal covers storage and other infrastructure failures.
	ErrInternal = errors.New("internal error")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fail 统一返回 {"error": ...}。内部错误只记日志，不回显细节。
func Fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		msg = "internal error"
	}
	c.JSON(status, H{"error": msg})
}

func AbortWith(c *gin.Context, err error) {
	status := statusFor(err)
	c.AbortWithStatusJSON(status, H{"error": err.Error()})
}
