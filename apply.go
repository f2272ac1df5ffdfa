package nasc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/config"
	"github.com/toutaio/toutago-nasc-builder/internal/logging"
)

// Types names the types a configuration may refer to.
//
// Example:
//
//	types := nasc.Types{
//	    "Greeter":        reflect.TypeOf((*Greeter)(nil)).Elem(),
//	    "EnglishGreeter": reflect.TypeOf(&EnglishGreeter{}),
//	}
type Types map[string]reflect.Type

// FromConfig creates a container logging as cfg.Log says, then applies
// cfg. Options run after the configured logger is set, so WithLogger
// still wins.
func FromConfig(cfg *config.Config, types Types, options ...Option) (*Nasc, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, nil)
	if err != nil {
		return nil, err
	}
	n := New(append([]Option{WithLogger(logger)}, options...)...)
	if err := n.Apply(cfg, types); err != nil {
		return nil, err
	}
	return n, nil
}

// Apply registers the bindings of cfg and stores its values in the
// locator. Every binding is attempted; the failures are returned together.
func (n *Nasc) Apply(cfg *config.Config, types Types) error {
	var err error
	for _, b := range cfg.Bindings {
		err = multierr.Append(err, n.applyBinding(b, types))
	}
	for k, v := range cfg.Values {
		n.locator.Add(k, v)
	}
	return err
}

func (n *Nasc) applyBinding(b config.Binding, types Types) error {
	abstractT, ok := types[b.Abstract]
	if !ok {
		return &InvalidBindingError{Reason: fmt.Sprintf("unknown abstract type %q", b.Abstract)}
	}
	concreteT, ok := types[b.Concrete]
	if !ok {
		return &InvalidBindingError{Reason: fmt.Sprintf("unknown concrete type %q", b.Concrete)}
	}
	lt, err := ParseLifetime(b.Lifetime)
	if err != nil {
		return err
	}
	if concreteT.Kind() != reflect.Ptr || concreteT.Elem().Kind() != reflect.Struct {
		return &InvalidBindingError{
			Reason: fmt.Sprintf("concrete type must be pointer to struct, got %v", concreteT),
		}
	}
	return n.register(buildkey.New(abstractT, b.Name), concreteT, lt, b.Tags)
}
