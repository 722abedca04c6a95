package transport

import "github.com/librescoot/commwatch/pkg/model"

// Registry maps a DeviceType to its Adapter implementation. The session
// pipeline looks up the adapter by device type before calling Open.
type Registry struct {
	adapters map[model.DeviceType]Adapter
}

// NewRegistry builds a registry with the five built-in transport adapters.
func NewRegistry() *Registry {
	return &Registry{adapters: map[model.DeviceType]Adapter{
		model.DeviceUART:     UARTAdapter{},
		model.DeviceCAN:      CANAdapter{},
		model.DeviceEthernet: EthernetAdapter{},
		model.DeviceSPI:      SPIAdapter{},
		model.DeviceI2C:      I2CAdapter{},
	}}
}

// Get returns the adapter registered for typ, if any.
func (r *Registry) Get(typ model.DeviceType) (Adapter, bool) {
	a, ok := r.adapters[typ]
	return a, ok
}

// Register overrides or adds an adapter for typ. Useful for tests that
// substitute a fake adapter.
func (r *Registry) Register(typ model.DeviceType, a Adapter) {
	r.adapters[typ] = a
}
