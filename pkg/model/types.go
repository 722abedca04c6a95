// Package model holds the data types shared by the codec, transport, and
// session layers: device identity, open options, stats, rx metadata,
// decoded frames, and the simulator configuration.
package model

import "time"

// DeviceType identifies the wire family a DeviceInfo belongs to.
type DeviceType string

const (
	DeviceUART     DeviceType = "uart"
	DeviceSPI      DeviceType = "spi"
	DeviceI2C      DeviceType = "i2c"
	DeviceCAN      DeviceType = "can"
	DeviceEthernet DeviceType = "ethernet"
)

// Direction tags a chunk or frame as inbound or outbound.
type Direction string

const (
	DirectionRX Direction = "rx"
	DirectionTX Direction = "tx"
)

// DeviceInfo is the stable, immutable identity of a discovered wire
// endpoint, as produced by Adapter.ListDevices.
type DeviceInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         DeviceType        `json:"type"`
	Path         string            `json:"path,omitempty"`
	Vendor       string            `json:"vendor,omitempty"`
	Product      string            `json:"product,omitempty"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Serial       string            `json:"serial,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CANFilter matches CAN ids: a message passes when
// (msg.ID & Mask) == (ID & Mask) and (Extended is nil or equals msg.Ext).
type CANFilter struct {
	ID       uint32 `json:"id" validate:"required"`
	Mask     uint32 `json:"mask"`
	Extended *bool  `json:"extended,omitempty"`
}

// AdapterOpenOptions is the superset of options recognized by every
// transport; each adapter reads only the fields relevant to it. Modeled as
// one flat record (rather than a per-transport sum type) so the CLI/JSON
// surface can accept the same shape regardless of protocol, per spec.md §9.
type AdapterOpenOptions struct {
	// UART
	BaudRate     int           `json:"baudRate,omitempty" validate:"omitempty,gt=0"`
	DataBits     int           `json:"dataBits,omitempty" validate:"omitempty,oneof=5 6 7 8"`
	StopBits     float64       `json:"stopBits,omitempty" validate:"omitempty,oneof=1 1.5 2"`
	Parity       string        `json:"parity,omitempty" validate:"omitempty,oneof=none even odd mark space"`
	FlowControl  []string      `json:"flowControl,omitempty" validate:"omitempty,dive,oneof=rts cts dtr dsr xon-xoff"`
	ReadTimeout  time.Duration `json:"readTimeout,omitempty"`

	// SPI
	SPIMode    int    `json:"spiMode,omitempty" validate:"omitempty,oneof=0 1 2 3"`
	ClockSpeed int    `json:"clockSpeed,omitempty" validate:"omitempty,gt=0"`
	BitOrder   string `json:"bitOrder,omitempty" validate:"omitempty,oneof=msb lsb"`
	CSPolarity int    `json:"csPolarity,omitempty"`
	CSHoldTime time.Duration `json:"csHoldTime,omitempty"`

	// I2C
	I2CBusSpeed     int `json:"i2cBusSpeed,omitempty" validate:"omitempty,oneof=100000 400000 1000000"`
	I2CAddressMode  int `json:"i2cAddressMode,omitempty" validate:"omitempty,oneof=7 10"`
	I2CSlaveAddress int `json:"i2cSlaveAddress,omitempty"`

	// CAN
	CANBitrate    int         `json:"canBitrate,omitempty" validate:"omitempty,gt=0"`
	CANFD         bool        `json:"canFD,omitempty"`
	CANListenOnly bool        `json:"canListenOnly,omitempty"`
	CANFilters    []CANFilter `json:"canFilters,omitempty" validate:"omitempty,dive"`

	// Ethernet
	EthProtocol  string   `json:"ethProtocol,omitempty" validate:"omitempty,oneof=udp tcp raw"`
	EthPort      int      `json:"ethPort,omitempty" validate:"omitempty,gt=0,lte=65535"`
	EthHost      string   `json:"ethHost,omitempty"`
	EthMulticast []string `json:"ethMulticast,omitempty"`
	EthBPFFilter string   `json:"ethBpfFilter,omitempty"`
}

// WithDefaults returns a copy of o with transport defaults applied for any
// zero-valued field (baud 115200, 8 data bits, 1 stop bit, no parity).
func (o AdapterOpenOptions) WithDefaults() AdapterOpenOptions {
	if o.BaudRate == 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.Parity == "" {
		o.Parity = "none"
	}
	return o
}

// AdapterStats holds the counters for one open handle. Monotonic except
// Uptime, which is computed at read time.
type AdapterStats struct {
	BytesRx     uint64        `json:"bytesRx"`
	BytesTx     uint64        `json:"bytesTx"`
	MessagesRx  uint64        `json:"messagesRx"`
	MessagesTx  uint64        `json:"messagesTx"`
	Errors      uint64        `json:"errors"`
	Uptime      time.Duration `json:"uptime"`
}

// RxMeta is the per-chunk metadata an adapter attaches to every delivered
// chunk.
type RxMeta struct {
	Timestamp         int64             `json:"timestamp"` // monotonic nanoseconds, non-decreasing per handle
	Direction         Direction         `json:"direction"`
	Length            int               `json:"length"`
	Error             string            `json:"error,omitempty"`
	TransportSpecific map[string]any    `json:"transportSpecific,omitempty"`
}

// FieldType tags the semantic type of a FrameField's value.
type FieldType string

const (
	FieldUint8  FieldType = "uint8"
	FieldUint16 FieldType = "uint16"
	FieldUint32 FieldType = "uint32"
	FieldInt8   FieldType = "int8"
	FieldInt16  FieldType = "int16"
	FieldInt32  FieldType = "int32"
	FieldFloat  FieldType = "float"
	FieldString FieldType = "string"
	FieldBytes  FieldType = "bytes"
)

// FrameField is one named, typed value decoded out of a frame, along with
// the raw bytes it was decoded from.
type FrameField struct {
	Name    string    `json:"name"`
	Value   any       `json:"value"`
	Type    FieldType `json:"type"`
	Raw     []byte    `json:"raw"`
	Offset  int       `json:"offset"`
	Scaling float64   `json:"scaling,omitempty"`
	Unit    string    `json:"unit,omitempty"`
}

// ChecksumInfo reports a codec's checksum verification outcome.
type ChecksumInfo struct {
	Type       string `json:"type"`
	Expected   uint64 `json:"expected"`
	Calculated uint64 `json:"calculated"`
	Valid      bool   `json:"valid"`
}

// DecodedFrame is a codec's structured decode output.
type DecodedFrame struct {
	Protocol string            `json:"protocol"`
	Fields   []FrameField      `json:"fields"`
	Checksum *ChecksumInfo     `json:"checksum,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// Severity tags a FrameError's urgency.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// FrameError is a codec validate() finding, attached to a ProtocolFrame
// without aborting ingestion.
type FrameError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (e *FrameError) Error() string {
	return e.Code + ": " + e.Message
}

// ProtocolFrame is the observed unit in a session: created by the pipeline,
// appended to the session log, and immutable thereafter.
type ProtocolFrame struct {
	ID        uint64        `json:"id"`
	Timestamp int64         `json:"timestamp"`
	Direction Direction     `json:"direction"`
	Raw       []byte        `json:"raw"`
	Decoded   *DecodedFrame `json:"decoded,omitempty"`
	Error     *FrameError   `json:"error,omitempty"`
}

// SimulatorMode selects the traffic-synthesis strategy of a simulator
// handle.
type SimulatorMode string

const (
	SimModeLoopback    SimulatorMode = "loopback"
	SimModeScripted    SimulatorMode = "scripted"
	SimModeBurst       SimulatorMode = "burst"
	SimModeErrorInject SimulatorMode = "error-inject"
)

// SimulatorAction is one scripted timeline step's verb.
type SimulatorAction string

const (
	ActionSend       SimulatorAction = "send"
	ActionReceive    SimulatorAction = "receive"
	ActionError      SimulatorAction = "error"
	ActionDisconnect SimulatorAction = "disconnect"
)

// SimulatorEvent is one entry in a scripted simulator timeline.
type SimulatorEvent struct {
	DelayMS int             `json:"delay_ms"`
	Action  SimulatorAction `json:"action" validate:"required,oneof=send receive error disconnect"`
	Data    []byte          `json:"data,omitempty"`
}

// SimulatorScript is an ordered timeline of events, optionally looping.
type SimulatorScript struct {
	Events []SimulatorEvent `json:"events"`
	Loop   bool             `json:"loop,omitempty"`
}

// SimulatorConfig configures a simulator handle.
type SimulatorConfig struct {
	Mode            SimulatorMode    `json:"mode" validate:"required,oneof=loopback scripted burst error-inject"`
	Script          *SimulatorScript `json:"script,omitempty"`
	ErrorRate       float64          `json:"errorRate,omitempty" validate:"gte=0,lte=1"`
	BurstSize       int              `json:"burstSize,omitempty" validate:"omitempty,gt=0"`
	BurstIntervalMS int              `json:"burstInterval_ms,omitempty" validate:"omitempty,gt=0"`
}
