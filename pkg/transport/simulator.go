package transport

import (
	"math"
	"math/rand"
	"time"

	"github.com/librescoot/commwatch/pkg/model"
)

// BurstGenerator produces the set of frames to emit on one burst tick. tick
// is the 0-based index of the burst interval since the simulator started.
type BurstGenerator func(tick int) [][]byte

// simHandle implements the four simulator modes of spec.md §4.4 on top of
// baseHandle. It is returned by every transport's CreateSimulator so that a
// simulator handle is indistinguishable from a real one for read/write
// semantics.
type simHandle struct {
	*baseHandle
	config   model.SimulatorConfig
	burstGen BurstGenerator
	rng      *rand.Rand
}

func newSimHandle(config model.SimulatorConfig, burstGen BurstGenerator) *simHandle {
	s := &simHandle{
		baseHandle: newBaseHandle(),
		config:     config,
		burstGen:   burstGen,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.start()
	return s
}

// shouldDrop applies the error-inject probability: with probability
// ErrorRate, a synthesized chunk is discarded and errors is incremented
// instead of being delivered.
func (s *simHandle) shouldDrop() bool {
	if s.config.ErrorRate <= 0 {
		return false
	}
	return s.rng.Float64() < s.config.ErrorRate
}

func (s *simHandle) emit(data []byte, transportSpecific map[string]any) {
	if s.shouldDrop() {
		s.recordError()
		return
	}
	meta := model.RxMeta{
		Timestamp:         nextTimestamp(),
		Direction:         model.DirectionRX,
		Length:            len(data),
		TransportSpecific: transportSpecific,
	}
	s.recordRx(len(data))
	s.deliver(data, meta)
}

func (s *simHandle) start() {
	switch s.config.Mode {
	case model.SimModeLoopback:
		// Write() schedules the delayed delivery; nothing to run here.
	case model.SimModeScripted:
		s.wg.Add(1)
		go s.runScripted()
	case model.SimModeBurst:
		s.wg.Add(1)
		go s.runBurst()
	case model.SimModeErrorInject:
		s.wg.Add(1)
		go s.runErrorInject()
	}
}

func (s *simHandle) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.stopChan:
		return false
	}
}

func (s *simHandle) runScripted() {
	defer s.wg.Done()
	if s.config.Script == nil {
		return
	}
	for {
		for _, ev := range s.config.Script.Events {
			if !s.sleep(time.Duration(ev.DelayMS) * time.Millisecond) {
				return
			}
			switch ev.Action {
			case model.ActionSend, model.ActionReceive:
				s.emit(ev.Data, nil)
			case model.ActionError:
				s.recordError()
			case model.ActionDisconnect:
				return
			}
		}
		if !s.config.Script.Loop {
			return
		}
	}
}

func (s *simHandle) runBurst() {
	defer s.wg.Done()
	interval := time.Duration(s.config.BurstIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	tick := 0
	for {
		if !s.sleep(interval) {
			return
		}
		if s.burstGen == nil {
			tick++
			continue
		}
		burstSize := s.config.BurstSize
		if burstSize <= 0 {
			burstSize = 1
		}
		frames := s.burstGen(tick)
		for i, f := range frames {
			if i >= burstSize && burstSize > 0 && len(frames) > burstSize {
				break
			}
			s.emit(f, nil)
		}
		tick++
	}
}

func (s *simHandle) runErrorInject() {
	defer s.wg.Done()
	interval := time.Duration(s.config.BurstIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	tick := 0
	for {
		if !s.sleep(interval) {
			return
		}
		s.emit([]byte{byte(tick)}, nil)
		tick++
	}
}

func (s *simHandle) Write(data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	cp := append([]byte(nil), data...)
	s.recordTx(len(cp))
	if s.config.Mode == model.SimModeLoopback {
		go func() {
			if !s.sleep(10 * time.Millisecond) {
				return
			}
			s.emit(cp, nil)
		}()
	}
	return nil
}

func (s *simHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return s.addSubscriber(callback)
}

func (s *simHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if s.isClosed() {
		return ErrClosed
	}
	return nil
}

func (s *simHandle) Close() error {
	s.closeBase()
	return nil
}

// sineADC12 returns a 12-bit value oscillating around center with the
// given amplitude, as a function of a monotonically increasing counter.
func sineADC12(counter int, center, amplitude float64) uint16 {
	v := center + amplitude*math.Sin(float64(counter)*0.2)
	if v < 0 {
		v = 0
	}
	if v > 4095 {
		v = 4095
	}
	return uint16(v)
}
