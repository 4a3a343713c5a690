package registry

import common "github.com/example/messenger/internal/adapters/common"

// Plugin describes a third-party transport.
type Plugin struct {
	Name    string
	Factory common.Factory
}

// NewPlugin builds a plugin descriptor. With autoRegister the factory is added
// to the default registry straight away.
func NewPlugin(name string, f common.Factory, autoRegister bool) (Plugin, error) {
	p := Plugin{Name: name, Factory: f}
	if autoRegister {
		if err := p.Register(Default()); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Register adds the plugin to r.
func (p Plugin) Register(r *Registry) error {
	return r.Register(p.Name, p.Factory)
}
