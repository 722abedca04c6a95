package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/librescoot/commwatch/pkg/codec"
	"github.com/librescoot/commwatch/pkg/eventbus"
	"github.com/librescoot/commwatch/pkg/model"
	"github.com/librescoot/commwatch/pkg/transport"
)

func newTestPipeline() (*Pipeline, *transport.Registry, *eventbus.Bus) {
	transports := transport.NewRegistry()
	codecs := codec.NewRegistry()
	bus := eventbus.New()
	return New(transports, codecs, bus), transports, bus
}

func TestFrameIDsAreUniqueAndMonotonic(t *testing.T) {
	p, _, _ := newTestPipeline()
	if err := p.ConnectSimulator(model.DeviceUART, model.SimulatorConfig{Mode: model.SimModeLoopback}); err != nil {
		t.Fatalf("ConnectSimulator: %v", err)
	}
	defer p.Disconnect()

	for i := 0; i < 5; i++ {
		if err := p.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	log := p.Log()
	if len(log) == 0 {
		t.Fatal("expected non-empty log")
	}
	var lastID uint64
	var lastTS int64
	for i, f := range log {
		if i > 0 {
			if f.ID <= lastID {
				t.Fatalf("frame ids not strictly increasing: %d after %d", f.ID, lastID)
			}
			if f.Timestamp < lastTS {
				t.Fatalf("timestamps decreased: %d after %d", f.Timestamp, lastTS)
			}
		}
		lastID = f.ID
		lastTS = f.Timestamp
	}
}

func TestSendFailureRecordsNoFrame(t *testing.T) {
	p, transports, _ := newTestPipeline()
	transports.Register(model.DeviceUART, failingAdapter{})

	if err := p.Connect(model.DeviceInfo{Type: model.DeviceUART, Path: "/dev/fake"}, model.AdapterOpenOptions{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer p.Disconnect()

	if err := p.Send([]byte{0x01}); err == nil {
		t.Fatal("expected Send to fail")
	}
	if len(p.Log()) != 0 {
		t.Fatalf("expected no frame recorded on write failure, got %d", len(p.Log()))
	}
}

func TestPublishesFrameSentOnBus(t *testing.T) {
	p, _, bus := newTestPipeline()
	var mu sync.Mutex
	var received []model.ProtocolFrame
	bus.Subscribe(eventbus.FrameSent, func(payload any) {
		mu.Lock()
		received = append(received, payload.(model.ProtocolFrame))
		mu.Unlock()
	})

	if err := p.ConnectSimulator(model.DeviceUART, model.SimulatorConfig{Mode: model.SimModeLoopback}); err != nil {
		t.Fatalf("ConnectSimulator: %v", err)
	}
	defer p.Disconnect()

	if err := p.Send([]byte{0xAA}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 frame:sent event, got %d", len(received))
	}
}

func TestDisconnectPublishesDeviceDisconnected(t *testing.T) {
	p, _, bus := newTestPipeline()
	disconnected := make(chan struct{}, 1)
	bus.Subscribe(eventbus.DeviceDisconnected, func(payload any) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	if err := p.ConnectSimulator(model.DeviceUART, model.SimulatorConfig{Mode: model.SimModeLoopback}); err != nil {
		t.Fatalf("ConnectSimulator: %v", err)
	}
	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	select {
	case <-disconnected:
	default:
		t.Fatal("expected device:disconnected to be published")
	}
}

func TestExportCSVFormat(t *testing.T) {
	frames := []model.ProtocolFrame{
		{ID: 1, Timestamp: 1_500_000, Direction: model.DirectionRX, Raw: []byte{0xDE, 0xAD}},
	}
	var buf strings.Builder
	if err := ExportCSV(&buf, frames); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	want := "Timestamp,Direction,Length,Hex\n1.5,rx,2,\"de ad\"\n"
	if buf.String() != want {
		t.Fatalf("csv = %q, want %q", buf.String(), want)
	}
}

func TestExportJSONFormat(t *testing.T) {
	frames := []model.ProtocolFrame{
		{ID: 7, Timestamp: 123456789, Direction: model.DirectionTX, Raw: []byte{0x01, 0x02}},
	}
	var buf strings.Builder
	if err := ExportJSON(&buf, frames); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"version": "1.0"`) {
		t.Errorf("missing version field: %s", out)
	}
	if !strings.Contains(out, `"timestamp": "123456789"`) {
		t.Errorf("timestamp not encoded as decimal string: %s", out)
	}
	if !strings.Contains(out, `"raw": [`) {
		t.Errorf("raw array missing: %s", out)
	}
}

// failingAdapter always opens successfully but fails every write, to
// exercise the "write failure marks no frame" invariant.
type failingAdapter struct{}

func (failingAdapter) ListDevices() ([]model.DeviceInfo, error) { return nil, nil }
func (failingAdapter) Open(model.DeviceInfo, model.AdapterOpenOptions) (transport.Handle, error) {
	return &failingHandle{}, nil
}
func (failingAdapter) SupportsSimulation() bool { return false }
func (failingAdapter) CreateSimulator(model.SimulatorConfig) (transport.Handle, error) {
	return nil, transport.ErrUnsupportedOption
}

type failingHandle struct{}

func (*failingHandle) Write([]byte) error { return errWriteFailed }
func (*failingHandle) Read(func([]byte, model.RxMeta)) transport.Subscription {
	return noopSubscription{}
}
func (*failingHandle) SetOptions(model.AdapterOpenOptions) error { return nil }
func (*failingHandle) Close() error                              { return nil }
func (*failingHandle) GetStats() model.AdapterStats              { return model.AdapterStats{} }

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

var errWriteFailed = &writeError{}

type writeError struct{}

func (*writeError) Error() string { return "simulated write failure" }
