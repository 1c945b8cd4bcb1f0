package routes

import (
	"time"

	"nagano_festival_backend/app"
	"nagano_festival_backend/controllers"
	"nagano_festival_backend/limiter"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	lim := limiter.New(a.RDB)

	authMW := app.BearerAuth(a.Tokens, s.Repo)
	adminMW := app.AdminOnly()

	api := r.Group("/api")
	{
		// ローカルアカウント
		api.POST("/register", s.Register)
		api.POST("/login", s.Login)

		// パスキー（options は Bearer があれば既存アカウントへの鍵追加）
		api.POST("/register/options", s.RegisterOptions)
		api.POST("/register/verify", s.RegisterVerify)
		api.POST("/login/options", s.LoginOptions)
		api.POST("/login/verify", s.LoginVerify)

		// ソーシャルログイン
		api.GET("/auth/:provider", s.AuthorizationURL)
		api.POST("/auth/:provider", s.ExchangeCode)
		api.POST("/auth/social-register", s.SocialRegister)

		// パスワードリセット（外側でレート制限）
		api.POST("/forgot-password", lim.Middleware("forgot", 3, time.Hour), s.ForgotPassword)
		api.POST("/reset-password", lim.Middleware("reset", 10, time.Minute), s.ResetPassword)
	}

	me := r.Group("/api/me", authMW)
	{
		me.GET("", s.Me)
		me.GET("/passkeys", s.ListMyPasskeys)
		me.DELETE("/passkeys/:id", s.DeleteMyPasskey)
		me.DELETE("", s.DeleteMe)
	}

	admin := r.Group("/api/admin", authMW, adminMW)
	{
		admin.PUT("/users/:id/role", s.SetUserRole)
		admin.DELETE("/users/:id", s.AdminDeleteUser)
	}
}
