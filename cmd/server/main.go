package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/motorbid/vehicle-auction/internal/clock"
	"github.com/motorbid/vehicle-auction/internal/config"
	"github.com/motorbid/vehicle-auction/internal/database"
	"github.com/motorbid/vehicle-auction/internal/handler"
	"github.com/motorbid/vehicle-auction/internal/importer"
	"github.com/motorbid/vehicle-auction/internal/queue"
	"github.com/motorbid/vehicle-auction/internal/realtime"
	"github.com/motorbid/vehicle-auction/internal/repository"
	"github.com/motorbid/vehicle-auction/internal/router"
	"github.com/motorbid/vehicle-auction/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()

	clk := clock.NewSystem()
	auctions := repository.NewAuctionRepo(db)
	bids := repository.NewBidRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	photos := repository.NewPhotoRepo(db)
	bidStore := repository.NewBidStore(db, users, auctions, bids)

	hub := realtime.NewHub()
	defer hub.Close()

	bidService := service.NewBidService(bidStore, hub, clk)
	reconciler := service.NewReconciler(auctions, hub, clk, cfg.ReconcileEvery)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reconciler.Run(ctx)
	go func() { _ = queue.StartBidConsumer(ctx) }()

	importOpts := importer.OptionsFromEnv()
	imp := importer.NewServiceFromEnv(auctions, photos, importOpts)
	if imp != nil && importOpts.Enabled {
		go imp.RunPeriodic(ctx, importOpts.Interval)
	}

	rdb := config.NewRedisClient()
	rateCfg := config.LoadRateLimitConfig()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	importHandler := handler.NewImportHandler(nil)
	if imp != nil {
		importHandler = handler.NewImportHandler(imp)
	}

	router.Register(e, router.Deps{
		Auth:      handler.NewAuthHandler(cfg, users, tokens),
		Auctions:  handler.NewAuctionHandler(auctions, bids, photos, hub, clk),
		Bids:      handler.NewBidHandler(bidService, auctions, bids),
		Import:    importHandler,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
		RateCfg:   rateCfg,
		Redis:     rdb,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
