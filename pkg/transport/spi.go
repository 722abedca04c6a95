package transport

import (
	"sync"
	"time"

	"github.com/librescoot/commwatch/pkg/model"
)

const (
	spiCmdRead  = 0x03
	spiCmdWrite = 0x02

	spiSimLatency = 5 * time.Millisecond
)

// SPIAdapter is a simulated SPI bus over a 256-byte memory region (spec.md
// §4.3.4). No real SPI hardware is in scope — periph.io/x/periph (seen in
// the retrieval pack's google-periph repo) assumes an actual spidev/GPIO
// host, which this module never touches, so this stays on the standard
// library (see DESIGN.md).
type SPIAdapter struct{}

func (SPIAdapter) ListDevices() ([]model.DeviceInfo, error) {
	return []model.DeviceInfo{{ID: "spi-sim-0", Name: "Simulated SPI", Type: model.DeviceSPI}}, nil
}

func (SPIAdapter) Open(device model.DeviceInfo, options model.AdapterOpenOptions) (Handle, error) {
	return newSPIHandle(), nil
}

func (SPIAdapter) SupportsSimulation() bool { return true }

// CreateSimulator returns a generic loopback/scripted/burst/error-inject
// handle (spec.md §4.4), distinct from the command/response memory-region
// behavior Open provides — both satisfy the same Handle contract.
func (SPIAdapter) CreateSimulator(config model.SimulatorConfig) (Handle, error) {
	return newSimHandle(config, nil), nil
}

type spiHandle struct {
	*baseHandle
	mu  sync.Mutex
	mem [256]byte
}

func newSPIHandle() *spiHandle {
	return &spiHandle{baseHandle: newBaseHandle()}
}

func (h *spiHandle) Write(data []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	if len(data) == 0 {
		h.recordError()
		return nil
	}
	cmd := data[0]

	h.mu.Lock()
	var resp []byte
	switch cmd {
	case spiCmdRead:
		addr := 0
		if len(data) > 1 {
			addr = int(data[1])
		}
		resp = make([]byte, len(data))
		for i := 2; i < len(resp); i++ {
			resp[i] = h.mem[(addr+i-2)%256]
		}
	case spiCmdWrite:
		if len(data) > 1 {
			addr := int(data[1])
			for i, b := range data[2:] {
				h.mem[(addr+i)%256] = b
			}
		}
		resp = []byte{0x00}
	default:
		resp = append([]byte(nil), data...)
	}
	h.mu.Unlock()

	h.recordTx(len(data))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-time.After(spiSimLatency):
		case <-h.stopChan:
			return
		}
		h.recordRx(len(resp))
		h.deliver(resp, model.RxMeta{Timestamp: nextTimestamp(), Direction: model.DirectionRX, Length: len(resp)})
	}()
	return nil
}

func (h *spiHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return h.addSubscriber(callback)
}

func (h *spiHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if h.isClosed() {
		return ErrClosed
	}
	return nil
}

func (h *spiHandle) Close() error {
	h.closeBase()
	return nil
}
