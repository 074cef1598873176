package serviceiface

import "context"

// Service is a unit started and stopped by the app manager.
type Service interface {
	Name() string
	Start() error
	Stop(ctx context.Context) error
}
