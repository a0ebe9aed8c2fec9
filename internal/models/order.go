package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderItem is a line item copied from the menu at placement time.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// DeliveryAddress is where the order is delivered.
type DeliveryAddress struct {
	Street     string   `bson:"street" json:"street"`
	City       string   `bson:"city" json:"city"`
	State      string   `bson:"state" json:"state"`
	PostalCode string   `bson:"postalCode" json:"postalCode"`
	Location   GeoPoint `bson:"location" json:"location"`
}

// HistoryEntry records a single status change.
type HistoryEntry struct {
	Status  OrderStatus `bson:"status" json:"status"`
	Time    time.Time   `bson:"time" json:"time"`
	Message string      `bson:"message" json:"message"`
}

// Courier is the simulated rider assigned when the order leaves the restaurant.
type Courier struct {
	ID       string   `bson:"id" json:"id"`
	Name     string   `bson:"name" json:"name"`
	Phone    string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Location GeoPoint `bson:"location" json:"location"`
}

// Order defines the persisted order document.
type Order struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CustomerID          primitive.ObjectID `bson:"customerId" json:"customerId"`
	CustomerEmail       string             `bson:"customerEmail,omitempty" json:"customerEmail,omitempty"`
	RestaurantID        primitive.ObjectID `bson:"restaurantId" json:"restaurantId"`
	RestaurantName      string             `bson:"restaurantName" json:"restaurantName"`
	RestaurantLocation  GeoPoint           `bson:"restaurantLocation" json:"restaurantLocation"`
	Items               []OrderItem        `bson:"items" json:"items"`
	Subtotal            float64            `bson:"subtotal" json:"subtotal"`
	DeliveryFee         float64            `bson:"deliveryFee" json:"deliveryFee"`
	Tax                 float64            `bson:"tax" json:"tax"`
	Total               float64            `bson:"total" json:"total"`
	DeliveryAddress     DeliveryAddress    `bson:"deliveryAddress" json:"deliveryAddress"`
	PaymentMethod       PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	UpiID               string             `bson:"upiId,omitempty" json:"upiId,omitempty"`
	PaymentStatus       PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	Status              OrderStatus        `bson:"status" json:"status"`
	StatusHistory       []HistoryEntry     `bson:"statusHistory" json:"statusHistory"`
	EstimatedDeliveryAt time.Time          `bson:"estimatedDeliveryAt" json:"estimatedDeliveryAt"`
	Courier             *Courier           `bson:"courier,omitempty" json:"courier,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// LastEntry returns the most recent history entry, if any.
func (o *Order) LastEntry() (HistoryEntry, bool) {
	if len(o.StatusHistory) == 0 {
		return HistoryEntry{}, false
	}
	return o.StatusHistory[len(o.StatusHistory)-1], true
}

// EnteredAt returns when the order last entered the given status.
func (o *Order) EnteredAt(status OrderStatus) (time.Time, bool) {
	for i := len(o.StatusHistory) - 1; i >= 0; i-- {
		if o.StatusHistory[i].Status == status {
			return o.StatusHistory[i].Time, true
		}
	}
	return time.Time{}, false
}
