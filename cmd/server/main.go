package main

import (
    "context"
    "database/sql"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    _ "github.com/joho/godotenv/autoload"
    "go.uber.org/zap"

    "github.com/iliyamo/market-stall-booking/internal/config"
    "github.com/iliyamo/market-stall-booking/internal/database"
    "github.com/iliyamo/market-stall-booking/internal/handler"
    "github.com/iliyamo/market-stall-booking/internal/logger"
    "github.com/iliyamo/market-stall-booking/internal/market"
    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/queue"
    "github.com/iliyamo/market-stall-booking/internal/repository"
    "github.com/iliyamo/market-stall-booking/internal/router"
    "github.com/iliyamo/market-stall-booking/internal/service"
    "github.com/iliyamo/market-stall-booking/internal/utils"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    lg, err := logger.Init(cfg.Env)
    if err != nil {
        log.Fatalf("logger: %v", err)
    }
    defer func() { _ = lg.Sync() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    db, err := database.Connect(cfg)
    if err != nil {
        lg.Fatal("connect database", zap.Error(err))
    }
    defer db.Close()

    if err := bootstrap(ctx, cfg, db); err != nil {
        lg.Fatal("bootstrap database", zap.Error(err))
    }

    rdb := config.NewRedisClient(config.LoadRedisConfig())
    if rdb == nil {
        lg.Warn("redis unavailable, rate limiting and caching disabled")
    } else {
        defer rdb.Close()
    }

    publisher := service.NewEventPublisher(cfg.Events)
    defer publisher.Close()

    users := repository.NewUserRepo(db)
    stalls := repository.NewStallRepo(db)
    ledger := repository.NewLedgerRepo(db)
    window := market.NewWindow(cfg.Market.OffsetHours, cfg.Market.OpenAt, cfg.Market.CancelBefore)

    booking := service.NewBookingService(db, stalls, users, ledger,
        service.WithWindow(window),
        service.WithPublisher(publisher),
        service.WithSilentUnauthorizedCancel(cfg.Booking.SilentUnauthorizedCancel),
    )
    go booking.RunDailyRollover(ctx, cfg.Booking.RolloverEvery)

    if cfg.Events.Consumer && cfg.Events.Driver == service.EventsAMQP {
        consumer := queue.LogConsumer{URL: cfg.Events.AMQPURL, Queue: cfg.Events.Queue, Dir: cfg.Events.LogDir}
        go func() {
            if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
                lg.Error("stall event consumer stopped", zap.Error(err))
            }
        }()
    }

    cacheCfg := config.LoadCacheConfig()
    e := router.New(router.Deps{
        DB:        db,
        Redis:     rdb,
        JWTSecret: cfg.JWTSecret,
        RateLimit: config.LoadRateLimitConfig(),
        Cache:     cacheCfg,
        Log:       lg,
        Auth:      handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db)),
        Stalls:    handler.NewStallHandler(booking),
        Account:   handler.NewAccountHandler(service.NewLedger(db, users, ledger, market.SystemClock, window), ledger),
        Reviews:   handler.NewReviewHandler(repository.NewReviewRepo(db), rdb, cacheCfg.Prefix),
        Admin:     handler.NewAdminHandler(booking, users, stalls),
    })

    addr := ":" + cfg.Port
    go func() {
        lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", cfg.DBDriver))
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            lg.Fatal("http server", zap.Error(err))
        }
    }()

    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := e.Shutdown(shutdownCtx); err != nil {
        lg.Error("shutdown", zap.Error(err))
    }
}

// bootstrap applies the schema, seeds the stall inventory and provisions
// the admin and demo accounts.
func bootstrap(ctx context.Context, cfg config.Config, db *sql.DB) error {
    if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
        return err
    }
    n, err := database.SeedInventory(ctx, db, database.DefaultInventory)
    if err != nil {
        return err
    }
    if n > 0 {
        zap.L().Info("seeded stall inventory", zap.Int("stalls", n))
    }

    var seeds []database.SeedUser
    add := func(username, password, role string, credit int64) error {
        if username == "" || password == "" {
            return nil
        }
        hash, err := utils.HashPassword(password, cfg.BcryptCost)
        if err != nil {
            return err
        }
        seeds = append(seeds, database.SeedUser{Username: username, PasswordHash: hash, Role: role, Credit: credit})
        return nil
    }
    if err := add(cfg.AdminUsername, cfg.AdminPassword, model.RoleAdmin, 0); err != nil {
        return err
    }
    if err := add(cfg.DemoUsername, cfg.DemoPassword, model.RoleUser, cfg.DemoCredit); err != nil {
        return err
    }
    return database.SeedUsers(ctx, db, seeds)
}
