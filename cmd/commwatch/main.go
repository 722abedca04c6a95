package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/librescoot/commwatch/pkg/codec"
	"github.com/librescoot/commwatch/pkg/eventbus"
	"github.com/librescoot/commwatch/pkg/model"
	"github.com/librescoot/commwatch/pkg/session"
	"github.com/librescoot/commwatch/pkg/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	switch os.Args[1] {
	case "record":
		runRecord(os.Args[2:])
	case "replay":
		runReplay(os.Args[2:])
	case "monitor":
		runMonitor(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: commwatch <record|replay|monitor> [flags]")
}

type transportFlags struct {
	proto string
	port  string
	baud  int
	iface string
}

func bindTransportFlags(fs *flag.FlagSet) *transportFlags {
	t := &transportFlags{}
	fs.StringVar(&t.proto, "proto", "uart", "transport protocol: uart, spi, i2c, can, ethernet")
	fs.StringVar(&t.port, "port", "", "device path (uart/spi/i2c)")
	fs.IntVar(&t.baud, "baud", 115200, "uart baud rate")
	fs.StringVar(&t.iface, "iface", "", "network interface (can/ethernet)")
	return t
}

func (t *transportFlags) deviceType() (model.DeviceType, error) {
	switch t.proto {
	case "uart":
		return model.DeviceUART, nil
	case "spi":
		return model.DeviceSPI, nil
	case "i2c":
		return model.DeviceI2C, nil
	case "can":
		return model.DeviceCAN, nil
	case "ethernet":
		return model.DeviceEthernet, nil
	default:
		return "", fmt.Errorf("unknown --proto %q", t.proto)
	}
}

func (t *transportFlags) deviceInfo(typ model.DeviceType) model.DeviceInfo {
	path := t.port
	if typ == model.DeviceCAN || typ == model.DeviceEthernet {
		path = t.iface
	}
	return model.DeviceInfo{ID: path, Name: path, Type: typ, Path: path}
}

func (t *transportFlags) openOptions() model.AdapterOpenOptions {
	return model.AdapterOpenOptions{BaudRate: t.baud}.WithDefaults()
}

func newPipeline() (*session.Pipeline, *eventbus.Bus) {
	bus := eventbus.New()
	p := session.New(transport.NewRegistry(), codec.NewRegistry(), bus)
	return p, bus
}

func connectOrSimulate(p *session.Pipeline, typ model.DeviceType, device model.DeviceInfo, opts model.AdapterOpenOptions) error {
	if device.Path == "" {
		log.Printf("no --port/--iface given, falling back to the %s simulator", typ)
		return p.ConnectSimulator(typ, model.SimulatorConfig{Mode: model.SimModeBurst, BurstIntervalMS: 200, BurstSize: 1})
	}
	return p.Connect(device, opts)
}

func runRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	t := bindTransportFlags(fs)
	out := fs.String("out", "session.json", "output file")
	duration := fs.Duration("duration", 10*time.Second, "recording duration")
	fs.Parse(args)

	typ, err := t.deviceType()
	if err != nil {
		log.Fatalf("record: %v", err)
	}

	p, _ := newPipeline()
	if err := connectOrSimulate(p, typ, t.deviceInfo(typ), t.openOptions()); err != nil {
		log.Fatalf("record: connect: %v", err)
	}
	defer p.Disconnect()

	log.Printf("recording for %s...", duration)
	time.Sleep(*duration)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("record: create %s: %v", *out, err)
	}
	defer f.Close()

	if err := session.ExportJSON(f, p.Log()); err != nil {
		log.Fatalf("record: export: %v", err)
	}
	log.Printf("wrote %d frames to %s", len(p.Log()), *out)
}

func runReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	t := bindTransportFlags(fs)
	in := fs.String("in", "session.json", "input file")
	speed := fs.Float64("speed", 1.0, "playback speed multiplier")
	fs.Parse(args)

	typ, err := t.deviceType()
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	frames, err := loadExportedFrames(*in)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	p, _ := newPipeline()
	if err := connectOrSimulate(p, typ, t.deviceInfo(typ), t.openOptions()); err != nil {
		log.Fatalf("replay: connect: %v", err)
	}
	defer p.Disconnect()

	var lastTimestamp int64
	sent := 0
	for i, f := range frames {
		if f.Direction != model.DirectionTX {
			continue
		}
		if i > 0 && lastTimestamp != 0 && f.Timestamp > lastTimestamp {
			delay := time.Duration(float64(f.Timestamp-lastTimestamp) / *speed)
			time.Sleep(delay)
		}
		lastTimestamp = f.Timestamp
		if err := p.Send(f.Raw); err != nil {
			log.Printf("replay: send frame %d: %v", f.ID, err)
			continue
		}
		sent++
	}
	log.Printf("replayed %d tx frames", sent)
}

func runMonitor(args []string) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	t := bindTransportFlags(fs)
	fs.Parse(args)

	typ, err := t.deviceType()
	if err != nil {
		log.Fatalf("monitor: %v", err)
	}

	p, bus := newPipeline()
	bus.Subscribe(eventbus.FrameReceived, func(payload any) {
		frame := payload.(model.ProtocolFrame)
		log.Printf("rx #%d: % X", frame.ID, frame.Raw)
	})
	bus.Subscribe(eventbus.FrameError, func(payload any) {
		frame := payload.(model.ProtocolFrame)
		log.Printf("frame #%d error: %s", frame.ID, frame.Error)
	})

	if err := connectOrSimulate(p, typ, t.deviceInfo(typ), t.openOptions()); err != nil {
		log.Fatalf("monitor: connect: %v", err)
	}
	defer p.Disconnect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutting down...")
}

type jsonExportFrame struct {
	ID        uint64              `json:"id"`
	Timestamp string              `json:"timestamp"`
	Direction model.Direction     `json:"direction"`
	Raw       []int               `json:"raw"`
	Decoded   *model.DecodedFrame `json:"decoded,omitempty"`
	Error     *model.FrameError   `json:"error,omitempty"`
}

type jsonExportDocument struct {
	Version string            `json:"version"`
	Frames  []jsonExportFrame `json:"frames"`
}

func loadExportedFrames(path string) ([]model.ProtocolFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc jsonExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	frames := make([]model.ProtocolFrame, len(doc.Frames))
	for i, f := range doc.Frames {
		ts, err := strconv.ParseInt(f.Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("frame %d: invalid timestamp %q: %w", f.ID, f.Timestamp, err)
		}
		raw := make([]byte, len(f.Raw))
		for j, b := range f.Raw {
			raw[j] = byte(b)
		}
		frames[i] = model.ProtocolFrame{
			ID:        f.ID,
			Timestamp: ts,
			Direction: f.Direction,
			Raw:       raw,
			Decoded:   f.Decoded,
			Error:     f.Error,
		}
	}
	return frames, nil
}
