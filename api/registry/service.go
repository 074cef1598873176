package registry

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
)

type RegistryService struct {
	config map[string]interface{}
	store  ConfigStore
	cache  Invalidator
	server *http.Server
}

// NewRegistryService serves the configuration tree. cache may be nil when
// terminal lookups are not cached.
func NewRegistryService(cfg map[string]interface{}, store ConfigStore, cache Invalidator) serviceiface.Service {
	return &RegistryService{config: cfg, store: store, cache: cache}
}

func (s *RegistryService) Name() string {
	return "registry"
}

func (s *RegistryService) Start() error {
	if s.store == nil {
		return errors.New("registry service needs a configuration store")
	}
	router := mux.NewRouter()
	(&Handlers{Store: s.store, Cache: s.cache}).Register(router)

	port := config.Int(s.config, "port", config.DefaultRegistryPort)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logger.Log().WithField("service", "registry")
	go func() {
		log.Infof("Registry Service started on :%d", port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Registry Service failed")
		}
	}()
	return nil
}

func (s *RegistryService) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
