package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/librescoot/commwatch/pkg/model"
)

// EthernetAdapter implements Adapter over UDP and TCP sockets (spec.md
// §4.3.3). Raw link-layer capture is explicitly out of scope (spec.md §1
// Non-goals), so this is built entirely on the standard library's net
// package — no third-party packet-capture dependency in the retrieval pack
// targets userspace UDP/TCP framing without also pulling in raw capture.
type EthernetAdapter struct{}

func (EthernetAdapter) ListDevices() ([]model.DeviceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var devices []model.DeviceInfo
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			devices = append(devices, model.DeviceInfo{
				ID:   "eth-" + iface.Name,
				Name: iface.Name,
				Type: model.DeviceEthernet,
				Path: ipNet.IP.String(),
			})
		}
	}
	if len(devices) == 0 {
		return []model.DeviceInfo{{
			ID:   "eth-sim-0",
			Name: "Simulated Ethernet",
			Type: model.DeviceEthernet,
		}}, nil
	}
	return devices, nil
}

func (EthernetAdapter) Open(device model.DeviceInfo, options model.AdapterOpenOptions) (Handle, error) {
	switch options.EthProtocol {
	case "tcp":
		return openTCP(options)
	case "raw":
		return nil, ErrUnsupportedOption
	default:
		return openUDP(options)
	}
}

func openUDP(options model.AdapterOpenOptions) (Handle, error) {
	addr := &net.UDPAddr{Port: options.EthPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ethernet: listen udp :%d: %w", options.EthPort, err)
	}
	for _, group := range options.EthMulticast {
		ip := net.ParseIP(group)
		if ip == nil {
			continue
		}
		_ = ip // joining requires a specific interface; best-effort no-op without one configured
	}

	h := &udpHandle{
		baseHandle: newBaseHandle(),
		conn:       conn,
		remoteHost: options.EthHost,
		remotePort: options.EthPort,
	}
	h.wg.Add(1)
	go h.readLoop()
	return h, nil
}

func openTCP(options model.AdapterOpenOptions) (Handle, error) {
	if options.EthHost != "" {
		addr := net.JoinHostPort(options.EthHost, strconv.Itoa(options.EthPort))
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("ethernet: dial tcp %s: %w", addr, err)
		}
		h := &tcpHandle{baseHandle: newBaseHandle(), conn: conn}
		h.wg.Add(1)
		go h.readLoop()
		return h, nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", options.EthPort))
	if err != nil {
		return nil, fmt.Errorf("ethernet: listen tcp :%d: %w", options.EthPort, err)
	}
	conn, err := listener.Accept()
	_ = listener.Close()
	if err != nil {
		return nil, fmt.Errorf("ethernet: accept: %w", err)
	}
	h := &tcpHandle{baseHandle: newBaseHandle(), conn: conn}
	h.wg.Add(1)
	go h.readLoop()
	return h, nil
}

func (EthernetAdapter) SupportsSimulation() bool { return true }

func (EthernetAdapter) CreateSimulator(config model.SimulatorConfig) (Handle, error) {
	counter := 0
	gen := func(tick int) [][]byte {
		counter++
		return [][]byte{{byte(counter >> 8), byte(counter)}}
	}
	return newSimHandle(config, gen), nil
}

type udpHandle struct {
	*baseHandle
	conn       *net.UDPConn
	mu2        sync.Mutex
	remoteHost string
	remotePort int
	lastAddr   *net.UDPAddr
}

func (h *udpHandle) readLoop() {
	defer h.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, remote, err := h.conn.ReadFromUDP(buf)
		if err != nil {
			if !h.isClosed() {
				h.recordError()
			}
			return
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])

		h.mu2.Lock()
		h.lastAddr = remote
		h.mu2.Unlock()

		h.recordRx(n)
		h.deliver(chunk, model.RxMeta{
			Timestamp: nextTimestamp(),
			Direction: model.DirectionRX,
			Length:    n,
			TransportSpecific: map[string]any{
				"remoteAddress": remote.IP.String(),
				"remotePort":    remote.Port,
			},
		})
	}
}

func (h *udpHandle) Write(data []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	var addr *net.UDPAddr
	if h.remoteHost != "" {
		addr = &net.UDPAddr{IP: net.ParseIP(h.remoteHost), Port: h.remotePort}
	} else {
		h.mu2.Lock()
		addr = h.lastAddr
		h.mu2.Unlock()
	}
	if addr == nil {
		h.recordError()
		return fmt.Errorf("ethernet: no destination address for udp write")
	}
	n, err := h.conn.WriteToUDP(data, addr)
	if err != nil {
		h.recordError()
		return fmt.Errorf("ethernet: udp write: %w", err)
	}
	h.recordTx(n)
	return nil
}

func (h *udpHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return h.addSubscriber(callback)
}

func (h *udpHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if h.isClosed() {
		return ErrClosed
	}
	return nil
}

func (h *udpHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stopChan)
	h.subscribers = nil
	h.mu.Unlock()
	// Closing the socket unblocks readLoop so the wait below can finish.
	err := h.conn.Close()
	h.wg.Wait()
	return err
}

type tcpHandle struct {
	*baseHandle
	conn net.Conn
}

func (h *tcpHandle) readLoop() {
	defer h.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, err := h.conn.Read(buf)
		if err != nil {
			if !h.isClosed() {
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

func (h *tcpHandle) Write(data []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	n, err := h.conn.Write(data)
	if err != nil {
		h.recordError()
		return fmt.Errorf("ethernet: tcp write: %w", err)
	}
	h.recordTx(n)
	return nil
}

func (h *tcpHandle) Read(callback func(data []byte, meta model.RxMeta)) Subscription {
	return h.addSubscriber(callback)
}

func (h *tcpHandle) SetOptions(partial model.AdapterOpenOptions) error {
	if h.isClosed() {
		return ErrClosed
	}
	return nil
}

func (h *tcpHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stopChan)
	h.subscribers = nil
	h.mu.Unlock()
	// Closing the connection unblocks readLoop so the wait below can finish.
	err := h.conn.Close()
	h.wg.Wait()
	return err
}
