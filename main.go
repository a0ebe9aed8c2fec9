package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/cache"
	"orderflow/internal/config"
	"orderflow/internal/database"
	"orderflow/internal/handlers"
	"orderflow/internal/lifecycle"
	"orderflow/internal/middleware"
	"orderflow/internal/notify"
	"orderflow/internal/scheduler"
	"orderflow/internal/store"
)

type backing struct {
	orders      store.OrderStore
	jobs        store.JobStore
	restaurants store.RestaurantDirectory
}

func main() {
	config.Load()
	cfg := config.AppEnv

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	var b backing
	if cfg.MongoURI != "" {
		client, err := database.Connect(cfg.MongoURI)
		if err != nil {
			log.Fatal(err)
		}
		cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })

		db := client.Database(cfg.DBName)
		log.Println("MongoDB connected to:", db.Name())

		if err := database.EnsureOrderIndexes(db); err != nil {
			log.Printf("order index warning: %v", err)
		}
		if err := database.EnsureScheduledTransitionIndexes(db); err != nil {
			log.Printf("scheduled transition index warning: %v", err)
		}
		if err := database.EnsureRestaurantIndexes(db); err != nil {
			log.Printf("restaurant index warning: %v", err)
		}

		mongoStore := store.NewMongoStore(db)
		b = backing{orders: mongoStore, jobs: mongoStore, restaurants: mongoStore}
	} else {
		log.Println("[DB] [INFO] MONGO_URI not set, using in-memory store")
		mem := store.NewMemoryStore()
		b = backing{orders: mem, jobs: mem, restaurants: mem}
	}

	broker := notify.NewBroker()
	publishers := notify.Multi{broker}
	var events notify.Subscriber = broker

	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("[DB] [ERROR] redis disabled: %v", err)
		} else {
			cleanups = append(cleanups, func() { _ = rdb.Close() })
			b.restaurants = cache.NewRestaurants(rdb, b.restaurants, cfg.RestaurantCacheTTL)
			bus := notify.NewRedisBus(rdb)
			// the redis bus reaches every instance, the local broker only this one
			publishers = notify.Multi{bus}
			events = bus
		}
	}

	if cfg.RabbitMQURL != "" {
		conn, ch, err := database.ConnectRabbitMQ(cfg.RabbitMQURL, notify.StatusExchange)
		if err != nil {
			log.Printf("[DB] [ERROR] rabbitmq disabled: %v", err)
		} else {
			cleanups = append(cleanups, func() {
				_ = ch.Close()
				_ = conn.Close()
			})
			publishers = append(publishers, notify.NewAMQPPublisher(ch))
		}
	}

	if cfg.SMTPHost != "" && cfg.SMTPFrom != "" {
		mailer := notify.NewMailer(notify.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		publishers = append(publishers, notify.Async{Next: mailer})
	}

	clock := clockwork.NewRealClock()
	sched := scheduler.New(b.orders, b.jobs,
		scheduler.WithClock(clock),
		scheduler.WithSweepInterval(cfg.SweepInterval),
		scheduler.WithPublisher(publishers),
	)
	svc := lifecycle.NewService(b.orders, b.restaurants, sched, publishers, clock, lifecycle.Config{
		ConfirmDelay:  cfg.ConfirmDelay,
		PrepareDelay:  cfg.PrepareDelay,
		DeliveryDelay: cfg.DeliveryDelay,
		ETAWindow:     cfg.ETAWindow,
	})
	delays := svc.Config()
	log.Printf("[ORDER] [INFO] auto-confirm after %s, preparing after %s, auto-delivery after %s",
		delays.ConfirmDelay, delays.PrepareDelay, delays.DeliveryDelay)

	r := gin.Default()
	r.Use(middleware.RequestID())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	handlers.Register(r, handlers.Deps{
		Service:   svc,
		Events:    events,
		JWTSecret: cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Start(gctx)
	})
	g.Go(func() error {
		log.Println("listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Println("server stopped with error:", err)
	}
	log.Println("server stopped")
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}
