package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduledTransition is a pending automatic transition. It only applies if
// the order is still in From when it fires.
type ScheduledTransition struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID   primitive.ObjectID `bson:"orderId" json:"orderId"`
	From      OrderStatus        `bson:"from" json:"from"`
	To        OrderStatus        `bson:"to" json:"to"`
	Message   string             `bson:"message" json:"message"`
	DueAt     time.Time          `bson:"dueAt" json:"dueAt"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
