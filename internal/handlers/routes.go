package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"orderflow/internal/lifecycle"
	"orderflow/internal/middleware"
	"orderflow/internal/notify"
)

type Deps struct {
	Service         *lifecycle.Service
	Events          notify.Subscriber
	JWTSecret       string
	TrackingRefresh time.Duration
}

// Register mounts every order route on r.
func Register(r gin.IRouter, deps Deps) {
	svc := deps.Service

	r.GET("/healthz", Healthz(svc))

	api := r.Group("/api/orders")
	api.Use(middleware.AuthGuard(deps.JWTSecret))
	{
		api.POST("", CreateOrder(svc))
		api.GET("", GetMyOrders(svc))
		api.GET("/:id", GetOrder(svc, "GET /api/orders/:id"))
		api.GET("/:id/tracking", GetTracking(svc))
		api.GET("/:id/tracking/ws", TrackingStream(svc, deps.Events, deps.TrackingRefresh))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(deps.JWTSecret))
	{
		admin.GET("/orders", GetAllOrders(svc))
		admin.GET("/orders/stats", GetOrderStats(svc))
		admin.GET("/orders/:id", GetOrder(svc, "GET /admin/api/orders/:id"))
		admin.PATCH("/orders/:id/status", UpdateOrderStatus(svc, "PATCH /admin/api/orders/:id/status"))
	}

	restaurant := r.Group("/restaurant/api")
	restaurant.Use(middleware.RestaurantAuth(deps.JWTSecret))
	{
		restaurant.GET("/orders", GetRestaurantOrders(svc))
		restaurant.POST("/orders/:id/payment", ConfirmPayment(svc))
		restaurant.PATCH("/orders/:id/status", UpdateOrderStatus(svc, "PATCH /restaurant/api/orders/:id/status"))
	}
}
