package transport

import (
	"sync"
	"time"

	"github.com/librescoot/commwatch/pkg/model"
)

const i2cSimLatency = 2 * time.Millisecond

// virtualI2CDevice is one entry in the simulated I2C bus's device table.
type virtualI2CDevice struct {
	mem []byte
}

func defaultI2CDevices() map[int]*virtualI2CDevice {
	eeprom := make([]byte, 256)
	for i := range eeprom {
		eeprom[i] = 0xAA
	}
	return map[int]*virtualI2CDevice{
		0x50: {mem: eeprom},
		0x68: {mem: []byte{0x01, 0x02, 0x03, 0x04}},
	}
}

// I2CAdapter is a simulated I2C bus holding a table of virtual devices at
// 7-bit addresses (spec.md §4.3.4). As with SPI, no real I2C host access is
// in scope, so this stays on the standard library.
type I2CAdapter struct{}

func (I2CAdapter) ListDevices() ([]model.DeviceInfo, error) {
	return []model.DeviceInfo{{ID: "i2c-sim-0", Name: "Simulated I2C", Type: model.DeviceI2C}}, nil
}

func (I2CAdapter) Open(device model.DeviceInfo, options model.AdapterOpenOptions) (Handle, error) {
	return &i2cHandle{baseHandle: newBaseHandle(), devices: defaultI2CDevices()}, nil
}

func (I2CAdapter) SupportsSimulation() bool { return true }

func (I2CAdapter) CreateSimulator(config model.SimulatorConfig) (Handle, error) {
	return newSimHandle(config, nil), nil
}

type i2cHandle struct {
	*baseHandle
	mu      sync.Mutex
	devices map[int]*virtualI2CDevice
}

// Write layout: [addr<<1|rw, length, ...]. Read requests (rw==1) return
// the first `length` bytes of the target device; write requests apply to
// the device starting at offset 0.
func (h *i2cHandle) Write(data []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	if len(data) < 2 {
		h.recordError()
		return nil
	}
	addrByte := data[0]
	addr := int(addrByte >> 1)
	rw := addrByte & 0x01
	length := int(data[1])

	h.mu.Lock()
	dev, ok := h.devices[addr]
	var resp []byte
	latency := i2cSimLatency
	if !ok {
		h.mu.Unlock()
		h.recordError()
		return nil
	}
	if rw == 1 {
		n := length
		if n > len(dev.mem) {
			n = len(dev.mem)
		}
		resp = append([]byte(nil), dev.mem[:n]...)
	} else {
		payload := data[2:]
		for i, b := range payload {
			if i < len(dev.mem) {
				dev.mem[i] = b
			}
		}
		latency = 0
	}
	h.mu.Unlock()

	h.recordTx(len(data))

	if rw == 1 {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			select {
			case <-time.After(latency):
			case <-h.stopChan:
				return
			}
			h.recordRx(len(resp))
			h.deliver(resp, model.RxMeta{
				Timestamp:         nextTimestamp(),
				Direction:         model.DirectionRX,
				Length:            len(resp),
				TransportSpecific: map[string]any{"i2cSlaveAddress": addr},
			})
		}()
	}
	return nil
}

func (h *i2cHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return h.addSubscriber(callback)
}

func (h *i2cHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if h.isClosed() {
		return ErrClosed
	}
	return nil
}

func (h *i2cHandle) Close() error {
	h.closeBase()
	return nil
}
