package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"CollectLedger/api/settlement/ledger"
	"CollectLedger/api/settlement/reconcile"
	"CollectLedger/internal/archive"
	"CollectLedger/internal/config"
	"CollectLedger/internal/dashboard"
	"CollectLedger/internal/logger"
	"CollectLedger/internal/resource"
	"CollectLedger/internal/serviceiface"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettlementService struct {
	config   map[string]interface{}
	pool     *pgxpool.Pool
	registry reconcile.TerminalRegistry
	scratch  *resource.ResourceManager
	hub      *dashboard.WebSocketServer
	server   *http.Server
}

func NewSettlementService(cfg map[string]interface{}, pool *pgxpool.Pool, registry reconcile.TerminalRegistry, scratch *resource.ResourceManager) serviceiface.Service {
	return &SettlementService{
		config:   cfg,
		pool:     pool,
		registry: registry,
		scratch:  scratch,
		hub:      dashboard.NewWebSocketServer(),
	}
}

func (s *SettlementService) Name() string {
	return "settlement"
}

func (s *SettlementService) Start() error {
	if s.pool == nil {
		return errors.New("settlement service needs a postgres pool")
	}
	if s.registry == nil {
		return errors.New("settlement service needs a terminal registry")
	}
	if s.scratch == nil {
		return errors.New("settlement service needs the resource manager")
	}
	log := logger.Log().WithField("service", "settlement")
	store := ledger.NewStore(s.pool)

	engine := reconcile.NewEngine(store, s.registry,
		reconcile.WithWorkers(config.Int(s.config, "workers", config.DefaultImportWorkers)),
		reconcile.WithLogger(log),
	)
	importer := &Importer{
		Engine:         engine,
		Batches:        store,
		Events:         s.hub,
		HeaderScanRows: config.Int(s.config, "header_scan_rows", config.DefaultHeaderScanRows),
		Log:            log,
	}
	if arch := config.Archive(); arch.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a, err := archive.NewS3ArchiverFromEnv(ctx, arch.Bucket, arch.Region, arch.Prefix)
		cancel()
		if err != nil {
			log.WithError(err).Warn("[IMPORT] raw file archive disabled")
		} else {
			importer.Archive = a
		}
	}

	handlers := &Handlers{
		Importer:       importer,
		Scratch:        s.scratch,
		Batches:        store,
		Events:         http.HandlerFunc(s.hub.HandleConnections),
		MaxUploadBytes: int64(config.Int(s.config, "max_upload_mb", config.MaxUploadBytes>>20)) << 20,
	}
	router := mux.NewRouter()
	handlers.Register(router)

	port := config.Int(s.config, "port", config.DefaultSettlementPort)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Settlement Service started on :%d", port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Settlement Service failed")
		}
	}()
	return nil
}

func (s *SettlementService) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
