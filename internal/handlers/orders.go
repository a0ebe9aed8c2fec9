package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/lifecycle"
	"orderflow/internal/models"
	"orderflow/internal/statemachine"
)

/* =========================
   REQUEST DTOs
========================= */

type createOrderItemRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Price     float64 `json:"price" binding:"gte=0"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
}

type geoPointRequest struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `json:"lng" binding:"gte=-180,lte=180"`
}

type deliveryAddressRequest struct {
	Street     string          `json:"street" binding:"required"`
	City       string          `json:"city" binding:"required"`
	State      string          `json:"state"`
	PostalCode string          `json:"postalCode"`
	Location   geoPointRequest `json:"location"`
}

type createOrderRequest struct {
	RestaurantID    string                   `json:"restaurantId" binding:"required"`
	Items           []createOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Subtotal        float64                  `json:"subtotal" binding:"gte=0"`
	DeliveryFee     float64                  `json:"deliveryFee" binding:"gte=0"`
	Tax             float64                  `json:"tax" binding:"gte=0"`
	Total           float64                  `json:"total" binding:"gte=0"`
	DeliveryAddress deliveryAddressRequest   `json:"deliveryAddress"`
	PaymentMethod   string                   `json:"paymentMethod" binding:"required,oneof=cod card upi"`
	UpiID           string                   `json:"upiId"`
}

func (req createOrderRequest) toInput() (lifecycle.PlaceOrderInput, error) {
	restaurantID, err := primitive.ObjectIDFromHex(req.RestaurantID)
	if err != nil {
		return lifecycle.PlaceOrderInput{}, &lifecycle.ValidationError{Field: "restaurantId", Reason: "invalid id"}
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return lifecycle.PlaceOrderInput{}, &lifecycle.ValidationError{Field: "productId", Reason: "invalid id"}
		}
		items = append(items, models.OrderItem{
			ProductID: productID,
			Name:      strings.TrimSpace(item.Name),
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}

	return lifecycle.PlaceOrderInput{
		RestaurantID: restaurantID,
		Items:        items,
		Subtotal:     req.Subtotal,
		DeliveryFee:  req.DeliveryFee,
		Tax:          req.Tax,
		Total:        req.Total,
		DeliveryAddress: models.DeliveryAddress{
			Street:     strings.TrimSpace(req.DeliveryAddress.Street),
			City:       strings.TrimSpace(req.DeliveryAddress.City),
			State:      strings.TrimSpace(req.DeliveryAddress.State),
			PostalCode: strings.TrimSpace(req.DeliveryAddress.PostalCode),
			Location: models.GeoPoint{
				Lat: req.DeliveryAddress.Location.Lat,
				Lng: req.DeliveryAddress.Location.Lng,
			},
		},
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		UpiID:         req.UpiID,
	}, nil
}

/* =========================
   CREATE ORDER
========================= */

func CreateOrder(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders"
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.PlaceOrder(ctx, actor, input)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"orderId": order.ID.Hex(),
			"message": "order created",
			"order":   order,
		})
	}
}

/* =========================
   GET ORDERS
========================= */

func GetMyOrders(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"
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

		orders, err := svc.ListOrdersForCustomer(ctx, actor, page)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(orders, page))
	}
}

// GetOrder serves the order detail to its customer, its restaurant and
// admins, with the manual transitions the caller may apply next. It is
// mounted on both the customer and the admin route.
func GetOrder(svc *lifecycle.Service, route string) gin.HandlerFunc {
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

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.GetOrder(ctx, id, actor)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":              order,
			"allowedTransitions": statemachine.Allowed(order.Status, actor.Role),
		})
	}
}
