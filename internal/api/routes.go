package api

import (
	"github.com/gin-gonic/gin"
	"github.com/stocksage/stocksage-go/internal/api/handlers"
	"github.com/stocksage/stocksage-go/internal/middleware"
)

// Handlers groups everything SetupRoutes mounts. Users and Auth are nil
// when no database is configured; the account routes are skipped then.
type Handlers struct {
	Health   *handlers.HealthHandler
	Forecast *handlers.ForecastHandler
	Content  *handlers.ContentHandler
	Users    *handlers.UserHandler
	Auth     *middleware.AuthMiddleware
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", h.Health.HealthCheck)

	// Kept at the root for the existing dashboard.
	router.GET("/predict/:symbol", h.Forecast.Predict)

	router.GET("/ws/market-summary", h.Content.StreamMarketSummary)

	api := router.Group("/api")
	{
		api.GET("/predict/:symbol", h.Forecast.Predict)
		api.GET("/stock-returns", h.Forecast.StockReturns)
		api.GET("/symbols", h.Forecast.Symbols)

		api.GET("/news", h.Content.News)
		api.GET("/market-summary", h.Content.MarketSummary)
		api.GET("/sectors", h.Content.Sectors)
		api.GET("/companies", h.Content.Companies)

		if h.Users != nil && h.Auth != nil {
			api.POST("/register", h.Users.RegisterUser)
			api.POST("/login", h.Users.LoginUser)
			api.GET("/profile", h.Auth.RequireAuth(), h.Users.GetUserProfile)

			profile := api.Group("/user/profile", h.Auth.RequireAuth())
			profile.GET("", h.Users.GetUserProfile)
			profile.PUT("", h.Users.UpdateUserProfile)
		}
	}
}
