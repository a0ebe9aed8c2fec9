package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"orderflow/internal/lifecycle"
)

func GetRestaurantOrders(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /restaurant/api/orders"
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

		orders, err := svc.ListOrdersForRestaurant(ctx, actor, page)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(orders, page))
	}
}

func ConfirmPayment(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /restaurant/api/orders/:id/payment"
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.ConfirmPayment(ctx, id, actor)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "payment confirmed",
			"order":   order,
		})
	}
}
