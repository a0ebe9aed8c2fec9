package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("orders").Indexes()

	orderIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("customer_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "restaurantId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("restaurant_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_index"),
		},
	}

	log.Println("EnsureOrderIndexes: creating order indexes")
	if _, err := indexes.CreateMany(ctx, orderIndexes); err != nil {
		log.Println("EnsureOrderIndexes: index error:", err)
		return err
	}
	log.Println("EnsureOrderIndexes: order indexes created")
	return nil
}

func EnsureScheduledTransitionIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("scheduled_transitions").Indexes()

	dueIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "dueAt", Value: 1}},
		Options: options.Index().SetName("dueAt_index"),
	}

	log.Println("EnsureScheduledTransitionIndexes: creating dueAt_index index")
	if _, err := indexes.CreateOne(ctx, dueIndex); err != nil {
		log.Println("EnsureScheduledTransitionIndexes: dueAt index error:", err)
		return err
	}
	log.Println("EnsureScheduledTransitionIndexes: dueAt_index index created")
	return nil
}

func EnsureRestaurantIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("restaurants").Indexes()

	ownerIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "ownerId", Value: 1}},
		Options: options.Index().SetName("ownerId_index"),
	}

	log.Println("EnsureRestaurantIndexes: creating ownerId_index index")
	if _, err := indexes.CreateOne(ctx, ownerIndex); err != nil {
		log.Println("EnsureRestaurantIndexes: ownerId index error:", err)
		return err
	}
	log.Println("EnsureRestaurantIndexes: ownerId_index index created")
	return nil
}
