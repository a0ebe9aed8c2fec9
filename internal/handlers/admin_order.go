package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"orderflow/internal/lifecycle"
	"orderflow/internal/models"
	"orderflow/internal/statemachine"
)

type updateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Message string `json:"message" binding:"max=280"`
}

func GetAllOrders(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}
		page, err := pageFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		orders, err := svc.ListAllOrders(ctx, actor, page)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(orders, page))
	}
}

func GetOrderStats(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/stats"
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		stats, err := svc.Stats(ctx, actor)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// UpdateOrderStatus applies a manual transition for the calling admin or
// restaurant; the transition table decides which subset each may use.
func UpdateOrderStatus(svc *lifecycle.Service, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.UpdateStatus(ctx, id, actor, models.OrderStatus(req.Status), req.Message)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":            "status updated",
			"order":              order,
			"allowedTransitions": statemachine.Allowed(order.Status, actor.Role),
		})
	}
}
