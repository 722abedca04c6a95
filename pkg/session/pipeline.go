// Package session implements the pipeline that holds the one live
// transport handle, timestamps and decodes incoming chunks, and fans out
// annotated frames to subscribers (spec.md §4.5).
package session

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/librescoot/commwatch/pkg/codec"
	"github.com/librescoot/commwatch/pkg/eventbus"
	"github.com/librescoot/commwatch/pkg/model"
	"github.com/librescoot/commwatch/pkg/transport"
)

// DefaultDecoder is the protocol used when a session has not selected one
// explicitly.
const DefaultDecoder = "efuse"

// Pipeline holds at most one live handle, per spec.md §4.5.
type Pipeline struct {
	transports *transport.Registry
	codecs     *codec.Registry
	bus        *eventbus.Bus

	mu          sync.Mutex
	handle      transport.Handle
	handleSub   transport.Subscription
	device      model.DeviceInfo
	decoderName string

	logMu sync.Mutex
	log   []model.ProtocolFrame

	nextID uint64

	metrics *Metrics
}

// New constructs a pipeline over the given transport and codec registries,
// publishing events on bus.
func New(transports *transport.Registry, codecs *codec.Registry, bus *eventbus.Bus) *Pipeline {
	return &Pipeline{
		transports:  transports,
		codecs:      codecs,
		bus:         bus,
		decoderName: DefaultDecoder,
	}
}

// WithMetrics attaches a Prometheus metrics exporter to the pipeline. Purely
// additive instrumentation — no decode-path behavior depends on it.
func (p *Pipeline) WithMetrics(m *Metrics) *Pipeline {
	p.metrics = m
	return p
}

// SetDecoder selects the protocol codec used to decode and validate
// incoming chunks. Returns an error if name is not registered.
func (p *Pipeline) SetDecoder(name string) error {
	if _, ok := p.codecs.Get(name); !ok {
		return fmt.Errorf("session: unknown protocol %q", name)
	}
	p.mu.Lock()
	p.decoderName = name
	p.mu.Unlock()
	return nil
}

// Connect looks up the adapter for device.Type, opens it, and subscribes
// to its read stream. Only one handle may be open at a time; Connect
// closes any previously open handle first.
func (p *Pipeline) Connect(device model.DeviceInfo, options model.AdapterOpenOptions) error {
	adapter, ok := p.transports.Get(device.Type)
	if !ok {
		return fmt.Errorf("session: no adapter registered for device type %q", device.Type)
	}

	handle, err := adapter.Open(device, options)
	if err != nil {
		p.bus.Publish(eventbus.DeviceError, err)
		return fmt.Errorf("session: open %s: %w", device.ID, err)
	}

	p.mu.Lock()
	if p.handle != nil {
		p.disconnectLocked()
	}
	p.handle = handle
	p.device = device
	sub := handle.Read(p.onChunk)
	p.handleSub = sub
	p.mu.Unlock()

	p.bus.Publish(eventbus.DeviceConnected, device)
	return nil
}

// ConnectSimulator opens a simulator handle for deviceType instead of a
// real device.
func (p *Pipeline) ConnectSimulator(deviceType model.DeviceType, config model.SimulatorConfig) error {
	adapter, ok := p.transports.Get(deviceType)
	if !ok {
		return fmt.Errorf("session: no adapter registered for device type %q", deviceType)
	}
	if !adapter.SupportsSimulation() {
		return fmt.Errorf("session: %s adapter does not support simulation", deviceType)
	}
	handle, err := adapter.CreateSimulator(config)
	if err != nil {
		return fmt.Errorf("session: create simulator: %w", err)
	}

	p.mu.Lock()
	if p.handle != nil {
		p.disconnectLocked()
	}
	p.handle = handle
	p.device = model.DeviceInfo{Type: deviceType, Name: "simulator"}
	p.handleSub = handle.Read(p.onChunk)
	p.mu.Unlock()

	p.bus.Publish(eventbus.DeviceConnected, p.device)
	return nil
}

// Disconnect closes the live handle, if any.
func (p *Pipeline) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnectLocked()
}

func (p *Pipeline) disconnectLocked() error {
	if p.handle == nil {
		return nil
	}
	if p.handleSub != nil {
		p.handleSub.Unsubscribe()
		p.handleSub = nil
	}
	err := p.handle.Close()
	device := p.device
	p.handle = nil
	if err != nil {
		p.bus.Publish(eventbus.DeviceError, err)
		return fmt.Errorf("session: close: %w", err)
	}
	p.bus.Publish(eventbus.DeviceDisconnected, device)
	return nil
}

// onChunk is the handle's read callback: it assigns the next frame id,
// decodes and validates the chunk, appends the resulting frame to the
// session log, and publishes it on the bus.
func (p *Pipeline) onChunk(data []byte, meta model.RxMeta) {
	p.mu.Lock()
	decoderName := p.decoderName
	p.mu.Unlock()

	frame := p.buildFrame(data, meta.Timestamp, meta.Direction, decoderName)
	p.appendAndPublish(frame)
}

func (p *Pipeline) buildFrame(data []byte, timestamp int64, direction model.Direction, decoderName string) model.ProtocolFrame {
	if timestamp == 0 {
		timestamp = time.Now().UnixNano()
	}

	raw := append([]byte(nil), data...)
	frame := model.ProtocolFrame{
		ID:        atomic.AddUint64(&p.nextID, 1),
		Timestamp: timestamp,
		Direction: direction,
		Raw:       raw,
	}

	if decoder, ok := p.codecs.Get(decoderName); ok {
		if decoded, ok := decoder.Decode(raw); ok {
			frame.Decoded = decoded
		}
		frame.Error = decoder.Validate(raw)
	}
	return frame
}

func (p *Pipeline) appendAndPublish(frame model.ProtocolFrame) {
	p.logMu.Lock()
	p.log = append(p.log, frame)
	p.logMu.Unlock()

	if p.metrics != nil {
		p.metrics.ObserveFrame(frame)
	}

	eventType := eventbus.FrameReceived
	if frame.Direction == model.DirectionTX {
		eventType = eventbus.FrameSent
	}
	p.bus.Publish(eventType, frame)
	if frame.Error != nil {
		p.bus.Publish(eventbus.FrameError, frame)
	}
}

// Send records a synthetic tx frame with a wall-clock timestamp, then
// writes data to the open handle. A write failure marks no frame (spec.md
// §4.5).
func (p *Pipeline) Send(data []byte) error {
	p.mu.Lock()
	handle := p.handle
	decoderName := p.decoderName
	p.mu.Unlock()

	if handle == nil {
		return fmt.Errorf("session: no open handle")
	}

	frame := p.buildFrame(data, time.Now().UnixNano(), model.DirectionTX, decoderName)

	if err := handle.Write(data); err != nil {
		log.Printf("session: write failed: %v", err)
		p.bus.Publish(eventbus.DeviceError, err)
		return fmt.Errorf("session: write: %w", err)
	}

	p.appendAndPublish(frame)
	return nil
}

// Log returns a snapshot copy of the session's append-only frame log.
func (p *Pipeline) Log() []model.ProtocolFrame {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	out := make([]model.ProtocolFrame, len(p.log))
	copy(out, p.log)
	return out
}

// Stats returns the live handle's stats snapshot, or a zero value if no
// handle is open.
func (p *Pipeline) Stats() model.AdapterStats {
	p.mu.Lock()
	handle := p.handle
	p.mu.Unlock()
	if handle == nil {
		return model.AdapterStats{}
	}
	stats := handle.GetStats()
	p.bus.Publish(eventbus.StatsUpdate, stats)
	return stats
}
