package transport

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/librescoot/commwatch/pkg/model"
)

func TestSPIWriteThenRead(t *testing.T) {
	adapter := SPIAdapter{}
	h, err := adapter.Open(model.DeviceInfo{}, model.AdapterOpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	var mu sync.Mutex
	var responses [][]byte
	h.Read(func(data []byte, meta model.RxMeta) {
		mu.Lock()
		responses = append(responses, append([]byte(nil), data...))
		mu.Unlock()
	})

	if err := h.Write([]byte{spiCmdWrite, 0x10, 0xDE, 0xAD}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := h.Write([]byte{spiCmdRead, 0x10, 0x00, 0x00}); err != nil {
		t.Fatalf("read: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if !bytes.Equal(responses[0], []byte{0x00}) {
		t.Errorf("write ack = % X, want [00]", responses[0])
	}
	want := []byte{0x00, 0x00, 0xDE, 0xAD}
	if !bytes.Equal(responses[1], want) {
		t.Errorf("read response = % X, want % X", responses[1], want)
	}
}

func TestI2CReadEEPROM(t *testing.T) {
	adapter := I2CAdapter{}
	h, err := adapter.Open(model.DeviceInfo{}, model.AdapterOpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	var mu sync.Mutex
	var response []byte
	h.Read(func(data []byte, meta model.RxMeta) {
		mu.Lock()
		response = append([]byte(nil), data...)
		mu.Unlock()
	})

	addrByte := byte(0x50<<1 | 0x01)
	if err := h.Write([]byte{addrByte, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	if !bytes.Equal(response, want) {
		t.Errorf("eeprom read = % X, want % X", response, want)
	}
}
