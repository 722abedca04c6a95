package transport

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	canbus "github.com/brutella/can"

	"github.com/librescoot/commwatch/pkg/model"
)

const (
	canFlagExtended = 0x80
	canFlagRemote   = 0x40

	canOpenReadinessDelay = 100 * time.Millisecond
)

// CANAdapter implements Adapter over SocketCAN using
// github.com/brutella/can, the socketcan binding grounded on
// samsamfire-gocanopen's pkg/can/socketcanv3 usage in the retrieval pack.
type CANAdapter struct{}

func (CANAdapter) ListDevices() ([]model.DeviceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var devices []model.DeviceInfo
	for _, iface := range ifaces {
		if strings.HasPrefix(iface.Name, "can") || strings.HasPrefix(iface.Name, "vcan") {
			devices = append(devices, model.DeviceInfo{
				ID:   "can-" + iface.Name,
				Name: iface.Name,
				Type: model.DeviceCAN,
				Path: iface.Name,
			})
		}
	}
	if len(devices) == 0 {
		return []model.DeviceInfo{{
			ID:   "can-sim-0",
			Name: "Simulated CAN",
			Type: model.DeviceCAN,
		}}, nil
	}
	return devices, nil
}

func (CANAdapter) Open(device model.DeviceInfo, options model.AdapterOpenOptions) (Handle, error) {
	if device.Path == "" {
		return nil, ErrDevicePathMissing
	}
	bus, err := canbus.NewBusForInterfaceWithName(device.Path)
	if err != nil {
		return nil, fmt.Errorf("can: attach to %s: %w", device.Path, err)
	}

	h := &canHandle{
		baseHandle: newBaseHandle(),
		bus:        bus,
		filters:    options.CANFilters,
	}
	bus.SubscribeFunc(h.onFrame)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := bus.ConnectAndPublish(); err != nil && !h.isClosed() {
			log.Printf("can: bus disconnected: %v", err)
		}
	}()

	// Readiness artifact of the underlying binding (spec.md §9 open
	// question); a real implementation with explicit readiness
	// notification would remove this.
	time.Sleep(canOpenReadinessDelay)

	return h, nil
}

func (CANAdapter) SupportsSimulation() bool { return true }

func (CANAdapter) CreateSimulator(config model.SimulatorConfig) (Handle, error) {
	counter := 0
	gen := func(tick int) [][]byte {
		frames := [][]byte{
			canNormalize(0x100, false, rpmPayload(counter)),
			canNormalize(0x200, false, speedPayload(counter)),
			canNormalize(0x300, false, coolantPayload(counter)),
		}
		counter++
		if tick%10 == 0 {
			frames = append(frames, canNormalize(0x7E0, false, obdRequestPayload()))
		}
		return frames
	}
	return newSimHandle(config, gen), nil
}

// canNormalize builds the adapter-normalized layout
// [id:u32be | dlc:u8 | data[dlc]] from a logical CAN message.
func canNormalize(id uint32, ext bool, data []byte) []byte {
	buf := make([]byte, 5+len(data))
	binary.BigEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(data))
	copy(buf[5:], data)
	return buf
}

func rpmPayload(counter int) []byte {
	rpm := uint16(800 + (counter*37)%6000)
	return []byte{byte(rpm >> 8), byte(rpm), 0, 0, 0, 0, 0, 0}
}

func speedPayload(counter int) []byte {
	speed := byte((counter * 3) % 180)
	return []byte{speed, 0, 0, 0, 0, 0, 0, 0}
}

func coolantPayload(counter int) []byte {
	temp := byte(70 + (counter % 30))
	return []byte{temp, 0, 0, 0, 0, 0, 0, 0}
}

func obdRequestPayload() []byte {
	return []byte{0x02, 0x01, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// canFilterMatches reports whether msg passes filter per spec.md §4.3.2 /
// §8 testable property 8.
func canFilterMatches(msgID uint32, msgExt bool, f model.CANFilter) bool {
	if msgID&f.Mask != f.ID&f.Mask {
		return false
	}
	if f.Extended != nil && *f.Extended != msgExt {
		return false
	}
	return true
}

func canFiltersPass(msgID uint32, msgExt bool, filters []model.CANFilter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if canFilterMatches(msgID, msgExt, f) {
			return true
		}
	}
	return false
}

type canHandle struct {
	*baseHandle
	bus     *canbus.Bus
	filters []model.CANFilter
}

func (h *canHandle) onFrame(frm canbus.Frame) {
	ext := frm.Flags&canFlagExtended != 0
	rtr := frm.Flags&canFlagRemote != 0

	h.mu.Lock()
	filters := h.filters
	h.mu.Unlock()
	if !canFiltersPass(frm.ID, ext, filters) {
		return
	}

	data := frm.Data[:frm.Length]
	chunk := canNormalize(frm.ID, ext, data)

	h.recordRx(len(chunk))
	h.deliver(chunk, model.RxMeta{
		Timestamp: nextTimestamp(),
		Direction: model.DirectionRX,
		Length:    len(chunk),
		TransportSpecific: map[string]any{
			"canId":  frm.ID,
			"canExt": ext,
			"canRtr": rtr,
			"canDlc": frm.Length,
		},
	})
}

func (h *canHandle) Write(data []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	if len(data) < 5 {
		h.recordError()
		return fmt.Errorf("can: frame shorter than 5 bytes")
	}
	id := binary.BigEndian.Uint32(data[0:4])
	dlc := data[4]
	if dlc > 8 {
		h.recordError()
		return fmt.Errorf("can: dlc %d exceeds 8", dlc)
	}
	if len(data) < 5+int(dlc) {
		h.recordError()
		return fmt.Errorf("can: frame shorter than declared dlc")
	}

	var frm canbus.Frame
	frm.ID = id
	frm.Length = dlc
	if id > 0x7FF {
		frm.Flags |= canFlagExtended
	}
	copy(frm.Data[:], data[5:5+int(dlc)])

	if err := h.bus.Publish(frm); err != nil {
		h.recordError()
		return fmt.Errorf("can: publish: %w", err)
	}
	h.recordTx(len(data))
	return nil
}

func (h *canHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return h.addSubscriber(callback)
}

func (h *canHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if h.isClosed() {
		return ErrClosed
	}
	if partial.CANFilters != nil {
		h.mu.Lock()
		h.filters = partial.CANFilters
		h.mu.Unlock()
	}
	return nil
}

func (h *canHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stopChan)
	h.subscribers = nil
	h.mu.Unlock()
	// Disconnecting ends ConnectAndPublish so the wait below can finish.
	err := h.bus.Disconnect()
	h.wg.Wait()
	return err
}
