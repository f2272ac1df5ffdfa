package nasc

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ServiceProvider is the interface that must be implemented by service providers.
// Service providers encapsulate related service registrations.
//
// Example:
//
//	type LoggingProvider struct{}
//
//	func (p *LoggingProvider) Register(container *Nasc) error {
//	    return container.Singleton((*Logger)(nil), &ConsoleLogger{})
//	}
type ServiceProvider interface {
	Register(container *Nasc) error
}

// BootableProvider is an optional interface for providers that need a boot phase.
// The Boot method is called after all providers have been registered.
//
// Example:
//
//	func (p *DatabaseProvider) Boot(container *Nasc) error {
//	    db := container.Make((*Database)(nil)).(Database)
//	    return db.Connect()
//	}
type BootableProvider interface {
	ServiceProvider
	Boot(container *Nasc) error
}

// DeferredProvider is an optional interface for providers that should be registered
// conditionally.
//
// Example:
//
//	func (p *CacheProvider) ShouldRegister(container *Nasc) bool {
//	    return container.HasNamed((*Config)(nil), "cache")
//	}
type DeferredProvider interface {
	ServiceProvider
	ShouldRegister(container *Nasc) bool
}

// DisposableProvider is an optional interface for providers that release
// resources when the container is disposed, before the owned instances.
type DisposableProvider interface {
	ServiceProvider
	Dispose(container *Nasc) error
}

type providerEntry struct {
	provider ServiceProvider
	booted   bool
}

// providerSet tracks registered providers, at most one per provider type.
type providerSet struct {
	mu      sync.Mutex
	entries []*providerEntry
}

func (s *providerSet) has(t reflect.Type) bool {
	for _, entry := range s.entries {
		if reflect.TypeOf(entry.provider) == t {
			return true
		}
	}
	return false
}

func (s *providerSet) list() []ServiceProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	providers := make([]ServiceProvider, len(s.entries))
	for i, entry := range s.entries {
		providers[i] = entry.provider
	}
	return providers
}

// RegisterProvider registers a service provider with the container.
// The provider's Register method is called immediately, unless it is a
// DeferredProvider declining registration. A second provider of the same
// type is ignored.
//
// Example:
//
//	container.RegisterProvider(&LoggingProvider{})
//	container.RegisterProvider(&DatabaseProvider{})
//	container.BootProviders()
func (n *Nasc) RegisterProvider(provider ServiceProvider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}
	providerType := reflect.TypeOf(provider)

	if deferred, ok := provider.(DeferredProvider); ok && !deferred.ShouldRegister(n) {
		n.logger.Debug("provider deferred", zap.Stringer("provider", providerType))
		return nil
	}

	n.providers.mu.Lock()
	if n.providers.has(providerType) {
		n.providers.mu.Unlock()
		return nil
	}
	entry := &providerEntry{provider: provider}
	n.providers.entries = append(n.providers.entries, entry)
	n.providers.mu.Unlock()

	if err := provider.Register(n); err != nil {
		n.providers.mu.Lock()
		for i, e := range n.providers.entries {
			if e == entry {
				n.providers.entries = append(n.providers.entries[:i], n.providers.entries[i+1:]...)
				break
			}
		}
		n.providers.mu.Unlock()
		return errors.Wrapf(err, "provider %v registration failed", providerType)
	}
	n.logger.Debug("provider registered", zap.Stringer("provider", providerType))
	return nil
}

// BootProviders calls the Boot method on all registered providers that implement
// BootableProvider, in registration order. Providers already booted are
// skipped, so it is safe to call again after registering more providers.
func (n *Nasc) BootProviders() error {
	n.providers.mu.Lock()
	pending := make([]*providerEntry, 0, len(n.providers.entries))
	for _, entry := range n.providers.entries {
		if !entry.booted {
			pending = append(pending, entry)
		}
	}
	n.providers.mu.Unlock()

	for _, entry := range pending {
		bootable, ok := entry.provider.(BootableProvider)
		if !ok {
			continue
		}
		if err := bootable.Boot(n); err != nil {
			return errors.Wrapf(err, "provider %T boot failed", entry.provider)
		}
		n.providers.mu.Lock()
		entry.booted = true
		n.providers.mu.Unlock()
	}
	return nil
}

// GetProviders returns a list of all registered providers.
// This is useful for debugging and introspection.
func (n *Nasc) GetProviders() []ServiceProvider {
	return n.providers.list()
}
