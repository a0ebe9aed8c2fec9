package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"orderflow/internal/models"
)

const (
	OrdersCollection      = "orders"
	RestaurantsCollection = "restaurants"
	JobsCollection        = "scheduled_transitions"
)

// MongoStore keeps every order as one document with an embedded status
// history, so each conditional update is a single-document atomic write.
type MongoStore struct {
	db          *mongo.Database
	orders      *mongo.Collection
	restaurants *mongo.Collection
	jobs        *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:          db,
		orders:      db.Collection(OrdersCollection),
		restaurants: db.Collection(RestaurantsCollection),
		jobs:        db.Collection(JobsCollection),
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.Client().Ping(checkCtx, readpref.Primary())
}

func (s *MongoStore) InsertOrder(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := s.orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *MongoStore) FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

func (s *MongoStore) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	filter = filter.Normalize()

	query := bson.M{}
	if filter.CustomerID != nil {
		query["customerId"] = *filter.CustomerID
	}
	if filter.RestaurantID != nil {
		query["restaurantId"] = *filter.RestaurantID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(filter.Offset()).
		SetLimit(filter.Limit)

	cursor, err := s.orders.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func (s *MongoStore) UpdateOrderIf(ctx context.Context, id primitive.ObjectID, guard Guard, change Change) (bool, error) {
	filter := bson.M{"_id": id, "status": guard.Status}
	if guard.PaymentStatus != "" {
		filter["paymentStatus"] = guard.PaymentStatus
	}

	set := bson.M{"updatedAt": change.UpdatedAt}
	if change.Status != "" {
		set["status"] = change.Status
	}
	if change.PaymentStatus != "" {
		set["paymentStatus"] = change.PaymentStatus
	}
	if change.Courier != nil {
		set["courier"] = change.Courier
	}

	update := bson.M{"$set": set}
	if change.Entry != nil {
		update["$push"] = bson.M{"statusHistory": change.Entry}
	}

	res, err := s.orders.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("update order: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) OrderStats(ctx context.Context) (Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
			"paidRevenue": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$paymentStatus", models.PaymentPaid}}, "$total", 0},
			}},
		}}},
	}

	cursor, err := s.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status      models.OrderStatus `bson:"_id"`
		Count       int64              `bson:"count"`
		PaidRevenue float64            `bson:"paidRevenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}

	stats := Stats{ByStatus: make(map[models.OrderStatus]int64, len(rows))}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
		stats.PaidRevenue += row.PaidRevenue
	}
	return stats, nil
}

func (s *MongoStore) FindRestaurant(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := s.restaurants.FindOne(ctx, bson.M{"_id": id}).Decode(&restaurant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find restaurant: %w", err)
	}
	return &restaurant, nil
}

func (s *MongoStore) SaveJob(ctx context.Context, job *models.ScheduledTransition) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	if _, err := s.jobs.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *MongoStore) DueJobs(ctx context.Context, now time.Time, limit int64) ([]models.ScheduledTransition, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "dueAt", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.jobs.Find(ctx, bson.M{"dueAt": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find due jobs: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := make([]models.ScheduledTransition, 0)
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

func (s *MongoStore) DeleteJob(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.jobs.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}
