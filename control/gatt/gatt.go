// Package gatt is the clock's configuration service: three write-only characteristics that accept
// a short string each (Wi-Fi credentials, the time, the alarm).  Accepted writes are handed to a
// Sink; nothing here interprets them.
package gatt

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/trace"
)

// PayloadCapacity is the receive buffer size, including the terminating NUL.  The largest write
// accepted is one byte less.
const PayloadCapacity = 128

var (
	ServiceUUID = uuid.MustParse("12345678-9abc-def0-f0de-bc9a78563412")

	writesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatt_writes_total",
		Help: "count of configuration writes, by channel and result",
	}, []string{"channel", "result"})
)

// Channel is one of the configuration characteristics.
type Channel int

const (
	ChannelWifi Channel = iota
	ChannelTime
	ChannelAlarm
)

// Channels lists every channel in registration order.
var Channels = []Channel{ChannelWifi, ChannelTime, ChannelAlarm}

var channelUUIDs = [...]uuid.UUID{
	ChannelWifi:  uuid.MustParse("9abcdef0-1234-5678-7856-3412f0debc9a"),
	ChannelTime:  uuid.MustParse("9bbcdef0-1234-5678-7856-3412f0debc9b"),
	ChannelAlarm: uuid.MustParse("9cbcdef0-1234-5678-7856-3412f0debc9c"),
}

// UUID returns the characteristic's identifier.
func (c Channel) UUID() uuid.UUID {
	return channelUUIDs[c]
}

func (c Channel) String() string {
	switch c {
	case ChannelWifi:
		return "wifi"
	case ChannelTime:
		return "time"
	case ChannelAlarm:
		return "alarm"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// ChannelByUUID finds the channel with identifier u.
func ChannelByUUID(u uuid.UUID) (Channel, bool) {
	for _, c := range Channels {
		if c.UUID() == u {
			return c, true
		}
	}
	return 0, false
}

// ATTError is an attribute protocol error code.  Access callbacks return these to reject a request.
type ATTError byte

const (
	ErrInvalidHandle       ATTError = 0x01
	ErrReadNotPermitted    ATTError = 0x02
	ErrWriteNotPermitted   ATTError = 0x03
	ErrReqNotSupported     ATTError = 0x06
	ErrInvalidAttrValueLen ATTError = 0x0d
	ErrUnlikely            ATTError = 0x0e
)

func (e ATTError) Error() string {
	switch e {
	case ErrInvalidHandle:
		return "att: invalid handle"
	case ErrReadNotPermitted:
		return "att: read not permitted"
	case ErrWriteNotPermitted:
		return "att: write not permitted"
	case ErrReqNotSupported:
		return "att: request not supported"
	case ErrInvalidAttrValueLen:
		return "att: invalid attribute value length"
	case ErrUnlikely:
		return "att: unlikely error"
	}
	return fmt.Sprintf("att: error 0x%02x", byte(e))
}

// Payload is a received value.  It always has room for a terminating NUL after the data.
type Payload struct {
	buf [PayloadCapacity]byte
	n   int
}

// Decode copies data into a Payload, or rejects it with ErrInvalidAttrValueLen if it would not
// leave room for the terminator.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if len(data) >= PayloadCapacity {
		return p, ErrInvalidAttrValueLen
	}
	p.n = copy(p.buf[:], data)
	return p, nil
}

// Len is the number of bytes received.
func (p Payload) Len() int { return p.n }

// Bytes returns a copy of the received bytes.
func (p Payload) Bytes() []byte {
	return append([]byte(nil), p.buf[:p.n]...)
}

// String returns the payload as text, stopping at the first NUL.
func (p Payload) String() string {
	b := p.buf[:p.n]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// WriteRequest is one accepted write.
type WriteRequest struct {
	Channel Channel
	Conn    uint16 // Connection the write arrived on.
	Attr    uint16 // Value handle written.
	Payload Payload
}

// Op is the kind of attribute access.
type Op int

const (
	OpReadChr Op = iota
	OpWriteChr
	OpReadDsc
	OpWriteDsc
)

func (o Op) String() string {
	switch o {
	case OpReadChr:
		return "read characteristic"
	case OpWriteChr:
		return "write characteristic"
	case OpReadDsc:
		return "read descriptor"
	case OpWriteDsc:
		return "write descriptor"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// AccessRequest describes one access.  Writes carry Data; reads append their value to Response.
type AccessRequest struct {
	Op       Op
	Data     []byte
	Response []byte
}

// AccessFunc handles accesses to one attribute.  A non-nil error, normally an ATTError, rejects
// the access.
type AccessFunc func(conn, attr uint16, req *AccessRequest) error

// Flags are characteristic properties.
type Flags uint16

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagWriteNoRsp
	FlagNotify
	FlagIndicate
)

// Descriptor is an attribute under a characteristic.
type Descriptor struct {
	UUID   uuid.UUID
	Access AccessFunc
}

// Characteristic is one value within a service.
type Characteristic struct {
	UUID        uuid.UUID
	Flags       Flags
	Access      AccessFunc
	Descriptors []Descriptor
}

// Service is a primary service definition.
type Service struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// Stack is the attribute server that services are registered with.
type Stack interface {
	AddServices(svcs []Service) error
}

// Server is the configuration service.
type Server struct {
	sink   Sink
	log    zerolog.Logger
	events trace.EventLog
}

// Option configures a Server.
type Option func(s *Server)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New returns a server that delivers accepted writes to sink.
func New(sink Sink, opts ...Option) *Server {
	s := &Server{
		sink:   sink,
		log:    zerolog.Nop(),
		events: trace.NewEventLog("gatt", "config"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the server's event log.  Access callbacks must not be called afterwards.
func (s *Server) Close() {
	s.events.Finish()
}

// Access returns the access callback for ch.  Only characteristic writes are supported.
func (s *Server) Access(ch Channel) AccessFunc {
	return func(conn, attr uint16, req *AccessRequest) error {
		if req.Op != OpWriteChr {
			s.events.Errorf("%s: unsupported %s on conn %d", ch, req.Op, conn)
			writesCounter.WithLabelValues(ch.String(), "unsupported").Inc()
			return ErrUnlikely
		}
		p, err := Decode(req.Data)
		if err != nil {
			s.events.Errorf("%s: rejected %d byte write on conn %d", ch, len(req.Data), conn)
			writesCounter.WithLabelValues(ch.String(), "too_long").Inc()
			return err
		}
		s.events.Printf("%s: %d bytes on conn %d", ch, p.Len(), conn)
		writesCounter.WithLabelValues(ch.String(), "ok").Inc()
		s.sink.Deliver(WriteRequest{Channel: ch, Conn: conn, Attr: attr, Payload: p})
		return nil
	}
}

// Services returns the service definition, with every channel writable with or without response.
func (s *Server) Services() []Service {
	svc := Service{UUID: ServiceUUID}
	for _, ch := range Channels {
		svc.Characteristics = append(svc.Characteristics, Characteristic{
			UUID:   ch.UUID(),
			Flags:  FlagWrite | FlagWriteNoRsp,
			Access: s.Access(ch),
		})
	}
	return []Service{svc}
}

// Register installs the service on stack.
func (s *Server) Register(stack Stack) error {
	if err := stack.AddServices(s.Services()); err != nil {
		s.events.Errorf("register: %v", err)
		return fmt.Errorf("initialize config service: %w", err)
	}
	return nil
}

// Registered logs a register event.  Pass it to the Table with WithRegisterHandler.
func (s *Server) Registered(ev RegisterEvent) {
	switch ev.Kind {
	case RegisterService:
		s.log.Debug().Msgf("registered service %s with handle=%d", ev.UUID, ev.Handle)
	case RegisterCharacteristic:
		s.log.Debug().Msgf("registering characteristic %s with def_handle=%d val_handle=%d", ev.UUID, ev.Handle, ev.ValueHandle)
	case RegisterDescriptor:
		s.log.Debug().Msgf("registering descriptor %s with handle=%d", ev.UUID, ev.Handle)
	}
}

// Subscribed logs a subscribe event.  Pass it to the Table with WithSubscribeHandler.
func (s *Server) Subscribed(ev SubscribeEvent) {
	if ev.Conn != ConnNone {
		s.log.Info().Msgf("subscribe event; conn_handle=%d attr_handle=%d", ev.Conn, ev.Attr)
		return
	}
	s.log.Info().Msgf("subscribe by stack; attr_handle=%d", ev.Attr)
}
