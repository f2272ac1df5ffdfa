package nasc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/intercept"
	"github.com/toutaio/toutago-nasc-builder/internal/logging"
	"github.com/toutaio/toutago-nasc-builder/policy"
	"github.com/toutaio/toutago-nasc-builder/scan"
)

// Option is a function that configures a Nasc container.
type Option func(*Nasc) error

// WithLogger sets the logger used by the container, the build chain and
// its strategies.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Nasc) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		n.logger = logger
		return nil
	}
}

// WithDebug logs every build step to stderr in console format.
func WithDebug() Option {
	return func(n *Nasc) error {
		logger, err := logging.New("debug", logging.FormatConsole, nil)
		if err != nil {
			return err
		}
		n.logger = logger.Named("nasc")
		return nil
	}
}

// WithValidation enables strict validation mode: inject tags of concrete
// types are checked when the binding is registered instead of on first
// resolution.
func WithValidation() Option {
	return func(n *Nasc) error {
		n.validate = true
		return nil
	}
}

// WithStrategy adds a custom strategy to stage, after the default
// strategies of that stage.
func WithStrategy(stage builder.Stage, s builder.Strategy) Option {
	return func(n *Nasc) error {
		if s == nil {
			return fmt.Errorf("strategy cannot be nil")
		}
		n.pending = append(n.pending, stagedStrategy{stage: stage, strategy: s})
		return nil
	}
}

// WithProxies shares a proxy registry with the container.
func WithProxies(proxies *intercept.Proxies) Option {
	return func(n *Nasc) error {
		if proxies == nil {
			return fmt.Errorf("proxies cannot be nil")
		}
		n.proxies = proxies
		return nil
	}
}

// WithPolicies makes the container build from an existing policy list.
func WithPolicies(policies *policy.List) Option {
	return func(n *Nasc) error {
		if policies == nil {
			return fmt.Errorf("policies cannot be nil")
		}
		n.policies = policies
		return nil
	}
}

// WithScanCache shares the inject tag cache between containers.
func WithScanCache(cache *scan.Cache) Option {
	return func(n *Nasc) error {
		n.scanCache = cache
		return nil
	}
}
