package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"CollectLedger/internal/config"
	"CollectLedger/internal/logger"
	"CollectLedger/internal/serviceiface"
)

type GatewayService struct {
	config map[string]interface{}
	server *http.Server
}

func NewGatewayService(cfg map[string]interface{}) serviceiface.Service {
	return &GatewayService{config: cfg}
}

func (s *GatewayService) Name() string {
	return "gateway"
}

func (s *GatewayService) Start() error {
	handler, err := NewGatewayHandler(RoutesFromConfig(s.config))
	if err != nil {
		return err
	}
	port := config.Int(s.config, "port", config.DefaultGatewayPort)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log().Infof("API Gateway started on :%d", port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().WithError(err).Error("Gateway server failed")
		}
	}()
	return nil
}

func (s *GatewayService) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
