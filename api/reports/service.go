package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"CollectLedger/internal/config"
	"CollectLedger/internal/logger"
	"CollectLedger/internal/serviceiface"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReportsService struct {
	config map[string]interface{}
	pool   *pgxpool.Pool
	server *http.Server
}

func NewReportsService(cfg map[string]interface{}, pool *pgxpool.Pool) serviceiface.Service {
	return &ReportsService{config: cfg, pool: pool}
}

func (s *ReportsService) Name() string {
	return "reports"
}

func (s *ReportsService) Start() error {
	if s.pool == nil {
		return errors.New("reports service needs a postgres pool")
	}
	router := mux.NewRouter()
	(&Handlers{Source: NewRepository(s.pool)}).Register(router)

	port := config.Int(s.config, "port", config.DefaultReportsPort)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logger.Log().WithField("service", "reports")
	go func() {
		log.Infof("Reports Service started on :%d", port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Reports Service failed")
		}
	}()
	return nil
}

func (s *ReportsService) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
