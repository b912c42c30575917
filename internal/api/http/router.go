package http

import (
	"github.com/gin-gonic/gin"

	"github.com/galasfoundry/mooch-auth/internal/logger"
)

// NewRouter assembles the gin engine with the authentication routes.
func NewRouter(auth AuthService, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	handler := NewHandler(auth, log)

	api := r.Group("/api/auth")
	{
		api.POST("/register", handler.Register)
		api.POST("/login", handler.Login)
		api.POST("/refresh", handler.Refresh)
		api.POST("/logout", handler.Logout)
		api.POST("/password", handler.ChangePassword)
		api.GET("/session", Authenticate(auth, log), handler.Session)
	}

	return r
}
