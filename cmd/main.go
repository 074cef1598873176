package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"CollectLedger/internal/appmanager"
	"CollectLedger/internal/config"
	"CollectLedger/internal/logger"
)

// InitDB opens the database/sql handle used by the configuration tree
func InitDB() (*sql.DB, error) {
	db, err := sql.Open("postgres", config.PostgresDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(config.EnvInt("DB_MAX_CONNS", 10))
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// InitPgxPool opens the pool used by the ledger and the reports
func InitPgxPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(config.PostgresDSN())
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(config.EnvInt("DB_MAX_CONNS", 10))
	return pgxpool.NewWithConfig(ctx, cfg)
}

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load when present")
	servicesFile := flag.String("services", "services.yaml", "service sequence file")
	flag.Parse()

	log := logger.Log()

	// Load .env for local dev; real deployments set the variables directly
	_ = godotenv.Load(*envFile)

	db, err := InitDB()
	if err != nil {
		log.WithError(err).Fatal("failed to open DB")
	}
	defer db.Close()
	appmanager.SetDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := InitPgxPool(ctx)
	if err == nil {
		err = pool.Ping(ctx)
	}
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect pgx pool")
	}
	defer pool.Close()
	appmanager.SetPgxPool(pool)

	manager := appmanager.NewAppManager()

	// Load service configs from YAML
	servicesCfg, err := appmanager.LoadServiceSequence(*servicesFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load service sequence")
	}

	if err := manager.AutoRegisterServices(servicesCfg); err != nil {
		log.WithError(err).Fatal("failed to register services")
	}

	if err := manager.StartAll(); err != nil {
		log.WithError(err).Fatal("failed to start")
	}

	// Graceful shutdown handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.WithField("signal", sig.String()).Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(),
		config.EnvDuration("SHUTDOWN_TIMEOUT", 20*time.Second))
	defer stopCancel()
	if err := manager.StopAll(stopCtx); err != nil {
		log.WithError(err).Error("failed to stop cleanly")
	}
}
