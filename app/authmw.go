package app

import (
	"errors"
	"fmt"
	"strings"

	"nagano_festival_backend/db"
	"nagano_festival_backend/models"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
)

const ContextUserKey = "auth.user"

// BearerAuth 保护路由：解析 Authorization: Bearer <token>，校验签名与过期，
// 再按载荷里的 id 解析用户并挂到请求上下文。fails closed。
func BearerAuth(tokens *token.Service, repo *db.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			AbortWith(c, fmt.Errorf("%w: missing token", ErrAuth))
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims, err := tokens.VerifySession(raw)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				AbortWith(c, fmt.Errorf("%w: token expired", ErrAuth))
				return
			}
			AbortWith(c, fmt.Errorf("%w: invalid token", ErrAuth))
			return
		}

		u, err := repo.FindUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			AbortWith(c, fmt.Errorf("%w: user not found", ErrAuth))
			return
		}

		c.Set(ContextUserKey, u)
		c.Next()
	}
}

// CurrentUser 取出 BearerAuth 挂上的用户
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

// AdminOnly 每次操作都用本次请求新查出的用户复核 is_admin，
// 不沿用令牌签发时刻的角色。
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			AbortWith(c, fmt.Errorf("%w: missing token", ErrAuth))
			return
		}
		if !u.IsAdmin {
			AbortWith(c, ErrForbidden)
			return
		}
		c.Next()
	}
}
