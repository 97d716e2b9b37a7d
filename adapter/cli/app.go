package cli

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/therapia/internal/app"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	"github.com/felixgeelhaar/therapia/pkg/config"
)

// App holds what the commands share: the loaded configuration and the
// container, which is only built when a command first asks for it.
type App struct {
	Config *config.Config

	mu        sync.Mutex
	container *app.Container
	owned     bool
}

var current *App

// NewApp creates a CLI application for cfg.
func NewApp(cfg *config.Config) *App {
	return &App{Config: cfg}
}

// NewAppWithContainer creates a CLI application around an existing
// container. The caller keeps ownership of it.
func NewAppWithContainer(c *app.Container) *App {
	return &App{Config: c.Config, container: c}
}

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	current = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return current
}

// Container returns the dependency container, creating it on first use.
func (a *App) Container(ctx context.Context) (*app.Container, error) {
	if a == nil || a.Config == nil {
		return nil, errors.New("application not initialized - configuration required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.container != nil {
		return a.container, nil
	}
	c, err := app.NewContainer(ctx, a.Config, Logger())
	if err != nil {
		return nil, err
	}
	a.container = c
	a.owned = true
	return c, nil
}

// Close releases a container created by Container.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.container != nil && a.owned {
		a.container.Close()
		a.container = nil
	}
}

// Operator is the actor the CLI acts as: the practice owner.
func Operator() identity.Actor {
	return identity.NewActor(uuid.Nil, identity.RoleOwner)
}

// ContainerFor resolves the container of the global application.
func ContainerFor(ctx context.Context) (*app.Container, error) {
	return GetApp().Container(ctx)
}
