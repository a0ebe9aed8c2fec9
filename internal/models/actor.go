package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Role identifies who is acting on an order.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
)

// Actor is an already-verified caller. RestaurantID is only set for
// restaurant owners.
type Actor struct {
	Role         Role
	UserID       primitive.ObjectID
	RestaurantID primitive.ObjectID
	Email        string
}

// OwnsOrder reports whether the actor is the customer or restaurant the order
// belongs to.
func (a Actor) OwnsOrder(o *Order) bool {
	switch a.Role {
	case RoleCustomer:
		return !a.UserID.IsZero() && a.UserID == o.CustomerID
	case RoleRestaurant:
		return !a.RestaurantID.IsZero() && a.RestaurantID == o.RestaurantID
	}
	return false
}
