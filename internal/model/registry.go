// Package model provides the forecasters the experiment driver can train
// and the registry that builds them by name.
package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Options carries the dimensions every forecaster is built with
type Options struct {
	SeqLen   int
	LabelLen int
	PredLen  int
	Channels int
	Seed     int64
}

// Validate checks the dimensions
func (o Options) Validate() error {
	switch {
	case o.SeqLen <= 0:
		return errors.NewConfigurationError(nil, fmt.Sprintf("seq_len must be positive, got %d", o.SeqLen))
	case o.PredLen <= 0:
		return errors.NewConfigurationError(nil, fmt.Sprintf("pred_len must be positive, got %d", o.PredLen))
	case o.LabelLen < 0:
		return errors.NewConfigurationError(nil, fmt.Sprintf("label_len must not be negative, got %d", o.LabelLen))
	case o.Channels <= 0:
		return errors.NewConfigurationError(nil, fmt.Sprintf("channel count must be positive, got %d", o.Channels))
	}
	return nil
}

// Factory builds a forecaster from options
type Factory func(opts Options) (interfaces.Forecaster, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		ETSformerName: func(opts Options) (interfaces.Forecaster, error) { return NewETSformer(opts) },
		IdentityName:  func(opts Options) (interfaces.Forecaster, error) { return NewIdentity(opts) },
	}
)

// Register adds or replaces a factory
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Names returns the registered model names, sorted
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is registered
func Known(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[name]
	return ok
}

// New builds the model registered under name
func New(name string, opts Options) (interfaces.Forecaster, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, errors.NewConfigurationError(errors.ErrUnknownModel,
			fmt.Sprintf("model %q is not registered, want one of %s", name, strings.Join(Names(), ", ")))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return f(opts)
}
