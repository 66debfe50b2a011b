package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"zelenka/internal/auth"
	"zelenka/internal/config"
	httpapi "zelenka/internal/http"
	"zelenka/internal/repository"
	"zelenka/internal/service"
	"zelenka/internal/storage"

	_ "zelenka/docs"
)

func main() {
	cfg := config.Load()

	log.SetFormatter(&log.JSONFormatter{})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx := context.Background()

	var (
		products      repository.ProductRepository
		categories    repository.CategoryRepository
		orders        repository.OrderRepository
		carts         repository.CartRepository
		prescriptions repository.PrescriptionRepository
		feedback      repository.FeedbackRepository
		tx            repository.TxManager
	)
	if cfg.DatabaseURL != "" {
		store, err := repository.NewPgStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("connect to postgres")
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("run migrations")
		}
		products = repository.NewPgProducts(store)
		categories = repository.NewPgCategories(store)
		orders = repository.NewPgOrders(store)
		carts = repository.NewPgCarts(store)
		prescriptions = repository.NewPgPrescriptions(store)
		feedback = repository.NewPgFeedback(store)
		tx = repository.NewPgTx(store)
		log.Info("using postgres storage")
	} else {
		store := repository.NewMemoryStore()
		products = store
		categories = repository.NewMemoryCategories(store)
		orders = repository.NewMemoryOrders(store)
		carts = repository.NewMemoryCarts(store)
		prescriptions = repository.NewMemoryPrescriptions(store)
		feedback = repository.NewMemoryFeedback(store)
		tx = repository.NewMemoryTx(store)
		log.Info("using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("connect to redis")
		}
		products = repository.NewCachedProducts(products, rdb, 5*time.Minute)
		log.Info("product cache enabled")
	}

	blobs, err := storage.NewDirStore(cfg.BlobDir)
	if err != nil {
		log.WithError(err).Fatal("init blob storage")
	}

	var verifier auth.Verifier
	if cfg.AuthURL != "" {
		verifier = auth.NewRemoteVerifier(cfg.AuthURL)
	} else {
		verifier = auth.DevVerifier{}
		log.Warn("AUTH_URL is not set, using dev token verifier")
	}

	ledger := service.NewInventoryLedger(products)
	productsSvc := service.NewProductService(products, categories, orders, ledger)
	cartsSvc := service.NewCartService(carts, products)
	ordersSvc := service.NewOrderService(products, orders, carts, ledger, tx)
	prescriptionsSvc := service.NewPrescriptionService(prescriptions, ordersSvc, blobs, tx)
	feedbackSvc := service.NewFeedbackService(feedback, products)

	srv := httpapi.NewServer(verifier, productsSvc, cartsSvc, ordersSvc, prescriptionsSvc, feedbackSvc)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}
