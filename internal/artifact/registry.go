package artifact

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// BundleLoader builds a fresh bundle.
type BundleLoader interface {
	Load() (*Bundle, error)
}

// Registry publishes the current bundle. Reads are lock-free; reloads are serialized and a
// failed reload leaves the current bundle in place.
type Registry struct {
	loader  BundleLoader
	logger  *logrus.Logger
	current atomic.Pointer[Bundle]
	version atomic.Int64
	mu      sync.Mutex
}

// NewRegistry loads the initial bundle. Any load error is returned; startup should abort.
func NewRegistry(loader BundleLoader, logger *logrus.Logger) (*Registry, error) {
	r := &Registry{loader: loader, logger: logger}
	if _, err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry publishes a bundle that was built in memory.
func NewStaticRegistry(b *Bundle, logger *logrus.Logger) *Registry {
	r := &Registry{logger: logger}
	b.Version = r.version.Add(1)
	r.current.Store(b)
	return r
}

// Current returns the bundle in effect.
func (r *Registry) Current() *Bundle {
	return r.current.Load()
}

// Reload loads a new bundle and swaps it in under the next version number.
func (r *Registry) Reload() (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loader == nil {
		return nil, fmt.Errorf("registry has no loader")
	}

	b, err := r.loader.Load()
	if err != nil {
		entry := r.logger.WithError(err)
		if cur := r.current.Load(); cur != nil {
			entry = entry.WithField("current_version", cur.Version)
		}
		entry.Error("Artifact reload failed, keeping current bundle")
		return nil, fmt.Errorf("loading artifact bundle: %w", err)
	}

	b.Version = r.version.Add(1)
	prev := r.current.Swap(b)

	fields := logrus.Fields{"bundle_id": b.ID, "version": b.Version}
	if prev != nil {
		fields["previous_version"] = prev.Version
	}
	r.logger.WithFields(fields).Info("Artifact bundle published")
	return b, nil
}
