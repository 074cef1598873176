package appmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"CollectLedger/api"
	"CollectLedger/api/registry"
	"CollectLedger/api/reports"
	"CollectLedger/api/settlement"
	"CollectLedger/api/settlement/reconcile"
	"CollectLedger/internal/config"
	"CollectLedger/internal/jobs"
	"CollectLedger/internal/logger"
	"CollectLedger/internal/resource"
	"CollectLedger/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

var db *sql.DB
var pgxPool *pgxpool.Pool

// Shared between services and built on first use.
var (
	scratch       *resource.ResourceManager
	terminals     reconcile.TerminalRegistry
	registryStore *registry.Store
	registryCache registry.Invalidator
	closers       []io.Closer
	sharedMu      sync.Mutex
)

func SetDB(database *sql.DB) {
	db = database
}

func SetPgxPool(pool *pgxpool.Pool) {
	pgxPool = pool
}

// GetDB returns the database/sql connection used by the configuration tree
func GetDB() *sql.DB {
	return db
}

// GetPgxPool returns the pgx pool used by the ledger and the reports
func GetPgxPool() *pgxpool.Pool {
	return pgxPool
}

func sharedScratch(cfg map[string]interface{}) *resource.ResourceManager {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if scratch == nil {
		scratch = resource.NewResourceManagerService(cfg)
	}
	return scratch
}

// sharedRegistry returns the terminal lookup used by imports and the cache
// the configuration handlers invalidate. The cache is nil without REDIS_ADDR.
func sharedRegistry() (reconcile.TerminalRegistry, registry.Invalidator) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if terminals != nil {
		return terminals, registryCache
	}
	registryStore = registry.NewStore(db)
	terminals = registryStore
	if rs, ok := config.Redis(); ok {
		client := registry.NewRedisClient(rs)
		closers = append(closers, client)
		cached := registry.NewCachedRegistry(client, registryStore, rs.TTL, logger.Log().WithField("component", "registry-cache"))
		terminals = cached
		registryCache = cached
		logger.Log().Infof("Terminal lookups cached in redis at %s (ttl %s)", rs.Addr, rs.TTL)
	}
	return terminals, registryCache
}

var serviceConstructors = map[string]func(map[string]interface{}) serviceiface.Service{
	"logger": func(cfg map[string]interface{}) serviceiface.Service {
		return logger.NewLoggerService(cfg)
	},
	"resourcemanager": func(cfg map[string]interface{}) serviceiface.Service {
		return sharedScratch(cfg)
	},
	"settlement": func(cfg map[string]interface{}) serviceiface.Service {
		lookup, _ := sharedRegistry()
		return settlement.NewSettlementService(cfg, pgxPool, lookup, sharedScratch(nil))
	},
	"registry": func(cfg map[string]interface{}) serviceiface.Service {
		_, cache := sharedRegistry()
		return registry.NewRegistryService(cfg, registryStore, cache)
	},
	"reports": func(cfg map[string]interface{}) serviceiface.Service {
		return reports.NewReportsService(cfg, pgxPool)
	},
	"cron": func(cfg map[string]interface{}) serviceiface.Service {
		return jobs.NewCronService(cfg, sharedScratch(nil))
	},
	"gateway": func(cfg map[string]interface{}) serviceiface.Service {
		return api.NewGatewayService(cfg)
	},
}

// ------------------- MANAGER -------------------

type AppManager struct {
	services []serviceiface.Service
	mu       sync.Mutex
}

func NewAppManager() *AppManager {
	return &AppManager{
		services: make([]serviceiface.Service, 0),
	}
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, service := range am.services {
		logger.Log().Infof("Starting service: %s", service.Name())
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}
	return nil
}

// StopAll stops services in reverse start order and then closes shared
// clients. Every service gets its Stop call even when an earlier one fails.
func (am *AppManager) StopAll(ctx context.Context) error {
	am.mu.Lock()
	defer am.mu.Unlock()
	var errs []error
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop service %s: %w", svc.Name(), err))
		}
	}
	sharedMu.Lock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	closers = nil
	sharedMu.Unlock()
	return errors.Join(errs...)
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseServiceSequence(data)
}

func ParseServiceSequence(data []byte) ([]ServiceConfig, error) {
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}

	// sort by start_order
	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})

	return seq.Services, nil
}

// AutoRegisterServices builds every configured service in start order.
// Unknown names are reported rather than silently dropped.
func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) error {
	var unknown []string
	for _, svc := range configs {
		constructor, ok := serviceConstructors[svc.Name]
		if !ok {
			unknown = append(unknown, svc.Name)
			continue
		}
		am.RegisterService(constructor(svc.Config))
	}

	for _, svc := range am.services {
		if l, ok := svc.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
			break
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown services in configuration: %v", unknown)
	}
	return nil
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}
