package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/store"
)

func main() {
	config.Load()
	cfg := config.AppEnv

	var logger *zap.Logger
	var err error
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	db := client.Database(cfg.DBName)
	logger.Info("MongoDB connected", zap.String("database", db.Name()))

	if err := database.EnsureIndexes(db, logger); err != nil {
		logger.Warn("index setup incomplete", zap.Error(err))
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := handlers.SeedAdmin(seedCtx, db, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		logger.Warn("admin seed failed", zap.Error(err))
	}
	seedCancel()

	var cartCache cart.Cache = cart.NopCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, cart cache disabled", zap.Error(err))
		} else {
			cartCache = cart.NewRedisCache(redisClient)
			logger.Info("Redis cart cache enabled", zap.String("addr", cfg.RedisAddr))
		}
		cancel()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		pool, err := events.NewChannelPool(cfg.RabbitMQURL, cfg.OrderEventsQueue, 5)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, order events disabled", zap.Error(err))
		} else {
			defer pool.Close()
			publisher = events.NewRabbitPublisher(pool, logger)
			logger.Info("order events enabled", zap.String("queue", cfg.OrderEventsQueue))
		}
	}

	products := store.NewProducts(db)
	orders := store.NewOrders(db)
	carts := cart.NewService(store.NewCarts(db), cartCache, logger)

	checkout := payment.NewOrchestrator(orders, carts, publisher, payment.Options{
		DeliveryFee:   cfg.DeliveryFee,
		AbandonPolicy: payment.AbandonPolicy(cfg.RedirectAbandonPolicy),
	}, logger,
		payment.CashOnDelivery{},
		payment.NewRedirectCheckout(payment.RedirectConfig{
			SecretKey:   cfg.Stripe.SecretKey,
			APIURL:      cfg.Stripe.APIURL,
			Currency:    cfg.Currency,
			FrontendURL: cfg.FrontendURL,
			DeliveryFee: cfg.DeliveryFee,
			Timeout:     cfg.ProviderTimeout,
		}, logger),
		payment.NewSignedCheckout(payment.SignedConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			APIURL:    cfg.Razorpay.APIURL,
			Currency:  cfg.Currency,
			Timeout:   cfg.ProviderTimeout,
		}, logger),
	)

	handlers.SetRequestTimeout(cfg.RequestDBTimeout)
	auth := handlers.AuthSettings{
		JWTSecret:  cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	orderDeps := handlers.OrderDeps{
		Products:    products,
		Carts:       carts,
		Orders:      orders,
		Checkout:    checkout,
		DeliveryFee: cfg.DeliveryFee,
		Logger:      logger,
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(metrics.PrometheusMiddleware(metrics.ServiceName))
	r.Static("/public", filepath.Clean(cfg.UploadDir))

	r.GET("/health", handlers.Health(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userAuth := middleware.UserAuth(cfg.JWTSecret, logger)
	adminAuth := middleware.AdminAuth(cfg.JWTSecret, logger)

	user := r.Group("/api/user")
	{
		user.POST("/register", handlers.Register(db, auth, logger))
		user.POST("/login", handlers.Login(db, auth, logger))
		user.POST("/refresh", handlers.Refresh(db, auth, logger))
		user.POST("/logout", handlers.Logout(db, logger))
		user.POST("/admin", handlers.AdminLogin(db, auth, logger))
	}

	product := r.Group("/api/product")
	{
		product.GET("/list", handlers.ListProducts(products, logger))
		product.POST("/single", handlers.SingleProduct(products, logger))
		product.POST("/add", adminAuth, handlers.AddProduct(products, cfg.UploadDir, logger))
		product.POST("/remove", adminAuth, handlers.RemoveProduct(products, logger))
	}

	cartRoutes := r.Group("/api/cart", userAuth)
	{
		cartRoutes.POST("/get", handlers.GetCart(carts, logger))
		cartRoutes.POST("/add", handlers.AddToCart(carts, logger))
		cartRoutes.POST("/update", handlers.UpdateCart(carts, logger))
	}

	handlers.RegisterOrderRoutes(r.Group("/api/order"), orderDeps, userAuth, adminAuth)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := client.Disconnect(ctx); err != nil {
		logger.Error("failed to disconnect MongoDB", zap.Error(err))
	}
	logger.Info("server exited")
}
