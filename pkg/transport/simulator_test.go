package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/librescoot/commwatch/pkg/codec"
	"github.com/librescoot/commwatch/pkg/model"
)

func TestLoopbackFidelity(t *testing.T) {
	adapter := UARTAdapter{}
	h, err := adapter.CreateSimulator(model.SimulatorConfig{Mode: model.SimModeLoopback})
	if err != nil {
		t.Fatalf("CreateSimulator: %v", err)
	}
	defer h.Close()

	var mu sync.Mutex
	var received [][]byte
	done := make(chan struct{}, 1)
	h.Read(func(data []byte, meta model.RxMeta) {
		mu.Lock()
		received = append(received, append([]byte(nil), data...))
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	payload := []byte{0x01, 0x02, 0x03}
	if err := h.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for loopback delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly one rx callback, got %d", len(received))
	}
	if string(received[0]) != string(payload) {
		t.Fatalf("received %v, want %v", received[0], payload)
	}
}

func TestBurstSimulatorProducesValidEFuseFrames(t *testing.T) {
	adapter := UARTAdapter{}
	h, err := adapter.CreateSimulator(model.SimulatorConfig{
		Mode:            model.SimModeBurst,
		BurstSize:       1,
		BurstIntervalMS: 20,
	})
	if err != nil {
		t.Fatalf("CreateSimulator: %v", err)
	}
	defer h.Close()

	efuse := codec.EFuse{}
	var mu sync.Mutex
	count := 0
	h.Read(func(data []byte, meta model.RxMeta) {
		if _, ok := efuse.Decode(data); !ok {
			t.Errorf("burst frame did not decode as a valid EFuse frame: % X", data)
			return
		}
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count < 5 {
		t.Fatalf("expected at least 5 synthesized frames, got %d", count)
	}
}

func TestSimulatorErrorInjectDropsChunks(t *testing.T) {
	adapter := UARTAdapter{}
	h, err := adapter.CreateSimulator(model.SimulatorConfig{
		Mode:            model.SimModeBurst,
		BurstSize:       1,
		BurstIntervalMS: 10,
		ErrorRate:       1.0,
	})
	if err != nil {
		t.Fatalf("CreateSimulator: %v", err)
	}
	defer h.Close()

	var count int
	var mu sync.Mutex
	h.Read(func(data []byte, meta model.RxMeta) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected all chunks dropped with errorRate=1.0, got %d deliveries", count)
	}
	stats := h.GetStats()
	if stats.Errors == 0 {
		t.Fatalf("expected Errors to be incremented for dropped chunks")
	}
}

func TestSubscriptionUnsubscribeStopsDelivery(t *testing.T) {
	adapter := UARTAdapter{}
	h, err := adapter.CreateSimulator(model.SimulatorConfig{Mode: model.SimModeLoopback})
	if err != nil {
		t.Fatalf("CreateSimulator: %v", err)
	}
	defer h.Close()

	var count int
	var mu sync.Mutex
	sub := h.Read(func(data []byte, meta model.RxMeta) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	sub.Unsubscribe()

	if err := h.Write([]byte{0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", count)
	}
}

func TestHandleOperationsFailAfterClose(t *testing.T) {
	adapter := UARTAdapter{}
	h, err := adapter.CreateSimulator(model.SimulatorConfig{Mode: model.SimModeLoopback})
	if err != nil {
		t.Fatalf("CreateSimulator: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Write([]byte{0x01}); err != ErrClosed {
		t.Errorf("Write after close = %v, want ErrClosed", err)
	}
	// Close must be idempotent.
	if err := h.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
