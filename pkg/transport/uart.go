package transport

import (
	"fmt"
	"log"

	serial "go.bug.st/serial"

	"github.com/librescoot/commwatch/pkg/crc"
	"github.com/librescoot/commwatch/pkg/model"
)

// UARTAdapter implements Adapter over asynchronous serial ports using
// go.bug.st/serial, the teacher's own UART dependency (its go.mod requires
// it directly, though the shipped code used the simpler tarm/serial; we
// adopt go.bug.st/serial here because it is the one library in the pack
// that actually exposes parity, stop bits, and flow-control lines, all of
// which AdapterOpenOptions needs to honor).
type UARTAdapter struct{}

func (UARTAdapter) ListDevices() ([]model.DeviceInfo, error) {
	ports, err := serial.GetPortsList()
	if err != nil || len(ports) == 0 {
		return []model.DeviceInfo{{
			ID:   "uart-sim-0",
			Name: "Simulated UART",
			Type: model.DeviceUART,
		}}, nil
	}
	devices := make([]model.DeviceInfo, 0, len(ports))
	for i, p := range ports {
		devices = append(devices, model.DeviceInfo{
			ID:   fmt.Sprintf("uart-%d", i),
			Name: p,
			Type: model.DeviceUART,
			Path: p,
		})
	}
	return devices, nil
}

func uartMode(o model.AdapterOpenOptions) *serial.Mode {
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits}
	switch o.Parity {
	case "even":
		mode.Parity = serial.EvenParity
	case "odd":
		mode.Parity = serial.OddParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}
	switch o.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	return mode
}

func (UARTAdapter) Open(device model.DeviceInfo, options model.AdapterOpenOptions) (Handle, error) {
	if device.Path == "" {
		return nil, ErrDevicePathMissing
	}
	options = options.WithDefaults()

	port, err := serial.Open(device.Path, uartMode(options))
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", device.Path, err)
	}

	h := &uartHandle{
		baseHandle: newBaseHandle(),
		port:       port,
	}
	h.wg.Add(1)
	go h.readLoop()
	return h, nil
}

func (UARTAdapter) SupportsSimulation() bool { return true }

func (UARTAdapter) CreateSimulator(config model.SimulatorConfig) (Handle, error) {
	counter := 0
	gen := func(tick int) [][]byte {
		counter++
		value := sineADC12(counter, 2048, 500)
		payload := []byte{byte(value >> 8), byte(value)}
		codec := efuseFrame(0x01, payload)
		return [][]byte{codec}
	}
	return newSimHandle(config, gen), nil
}

// efuseFrame constructs a well-formed EFuse frame for the given type and
// payload, independent of the codec package (transport must not depend on
// codec) — mirrors the wire layout of spec.md §4.2.1 exactly.
func efuseFrame(typ byte, payload []byte) []byte {
	buf := make([]byte, 0, 6+len(payload)+1)
	buf = append(buf, 0xAA, typ, byte(len(payload)>>8), byte(len(payload)))
	buf = append(buf, payload...)
	crcVal := crc.CRC16CCITTFALSE(buf[1:])
	buf = append(buf, byte(crcVal>>8), byte(crcVal))
	buf = append(buf, 0xBB)
	return buf
}

type uartHandle struct {
	*baseHandle
	port serial.Port
}

func (h *uartHandle) readLoop() {
	defer h.wg.Done()
	buf := make([]byte, 4096)
	for {
		select {
		case <-h.stopChan:
			return
		default:
		}
		n, err := h.port.Read(buf)
		if err != nil {
			if !h.isClosed() {
				log.Printf("uart: read error: %v", err)
				h.recordError()
			}
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		h.recordRx(n)
		h.deliver(chunk, model.RxMeta{
			Timestamp: nextTimestamp(),
			Direction: model.DirectionRX,
			Length:    n,
		})
	}
}

func (h *uartHandle) Write(data []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	n, err := h.port.Write(data)
	if err != nil {
		h.recordError()
		return fmt.Errorf("uart: write: %w", err)
	}
	h.recordTx(n)
	return nil
}

func (h *uartHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return h.addSubscriber(callback)
}

func (h *uartHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if h.isClosed() {
		return ErrClosed
	}
	if partial.BaudRate == 0 && partial.FlowControl == nil {
		return nil
	}
	if partial.BaudRate != 0 {
		if err := h.port.SetMode(uartMode(partial.WithDefaults())); err != nil {
			return fmt.Errorf("uart: set baud rate: %w", err)
		}
	}
	for _, fc := range partial.FlowControl {
		switch fc {
		case "rts":
			_ = h.port.SetRTS(true)
		case "dtr":
			_ = h.port.SetDTR(true)
		}
	}
	return nil
}

func (h *uartHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stopChan)
	h.subscribers = nil
	h.mu.Unlock()
	// Closing the port unblocks readLoop so the wait below can finish.
	err := h.port.Close()
	h.wg.Wait()
	return err
}
