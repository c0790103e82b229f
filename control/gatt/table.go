package gatt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ConnNone is the connection handle used for events that come from the stack itself.
const ConnNone uint16 = 0xffff

// DefaultMaxAttributes is the attribute capacity of a Table made with a zero max.
const DefaultMaxAttributes = 64

// MaxHandles is the largest capacity a Table can have: handles are 16 bits, 0 is invalid, and
// 0xffff is reserved.
const MaxHandles = 0xfffe

// ErrNoMem means the attribute table has no room for the services being added.
var ErrNoMem = errors.New("attribute table full")

// RegisterKind says what a RegisterEvent registered.
type RegisterKind int

const (
	RegisterService RegisterKind = iota
	RegisterCharacteristic
	RegisterDescriptor
)

// RegisterEvent reports one attribute definition being installed.  For characteristics, Handle
// is the declaration and ValueHandle the value.
type RegisterEvent struct {
	Kind        RegisterKind
	UUID        uuid.UUID
	Handle      uint16
	ValueHandle uint16
}

// SubscribeEvent reports a peer (or the stack, with Conn == ConnNone) changing its subscription to
// a characteristic.
type SubscribeEvent struct {
	Conn   uint16
	Attr   uint16
	Notify bool
}

type attrKind int

const (
	attrService attrKind = iota
	attrCharDecl
	attrCharValue
	attrDescriptor
)

type attribute struct {
	kind   attrKind
	uuid   uuid.UUID
	flags  Flags
	access AccessFunc
}

// Table is an in-memory attribute server.  Handles start at 1 and are assigned in definition order:
// each service takes one, each characteristic two (declaration then value), and each descriptor
// one.
type Table struct {
	max         int
	onRegister  func(RegisterEvent)
	onSubscribe func(SubscribeEvent)

	mu    sync.Mutex
	attrs []attribute // attrs[i] has handle i+1.  Must hold mu.
}

// TableOption configures a Table.
type TableOption func(t *Table)

// WithRegisterHandler calls f for every attribute installed.
func WithRegisterHandler(f func(RegisterEvent)) TableOption {
	return func(t *Table) {
		t.onRegister = f
	}
}

// WithSubscribeHandler calls f for every subscribe request, accepted or not.
func WithSubscribeHandler(f func(SubscribeEvent)) TableOption {
	return func(t *Table) {
		t.onSubscribe = f
	}
}

// NewTable returns an empty table that holds at most max attributes.
func NewTable(max int, opts ...TableOption) *Table {
	if max <= 0 {
		max = DefaultMaxAttributes
	}
	if max > MaxHandles {
		max = MaxHandles
	}
	t := &Table{max: max}
	for _, o := range opts {
		o(t)
	}
	return t
}

func count(svcs []Service) int {
	n := 0
	for _, svc := range svcs {
		n++
		for _, c := range svc.Characteristics {
			n += 2 + len(c.Descriptors)
		}
	}
	return n
}

// AddServices installs svcs.  Either all of them are installed or, if there is not enough room,
// none are and ErrNoMem is returned.
func (t *Table) AddServices(svcs []Service) error {
	var events []RegisterEvent
	t.mu.Lock()
	if need := count(svcs); len(t.attrs)+need > t.max {
		t.mu.Unlock()
		return fmt.Errorf("add %d attributes to table with %d of %d used: %w", need, len(t.attrs), t.max, ErrNoMem)
	}
	add := func(a attribute) uint16 {
		t.attrs = append(t.attrs, a)
		return uint16(len(t.attrs))
	}
	for _, svc := range svcs {
		h := add(attribute{kind: attrService, uuid: svc.UUID})
		events = append(events, RegisterEvent{Kind: RegisterService, UUID: svc.UUID, Handle: h})
		for _, c := range svc.Characteristics {
			def := add(attribute{kind: attrCharDecl, uuid: c.UUID, flags: c.Flags})
			val := add(attribute{kind: attrCharValue, uuid: c.UUID, flags: c.Flags, access: c.Access})
			events = append(events, RegisterEvent{Kind: RegisterCharacteristic, UUID: c.UUID, Handle: def, ValueHandle: val})
			for _, d := range c.Descriptors {
				h := add(attribute{kind: attrDescriptor, uuid: d.UUID, access: d.Access})
				events = append(events, RegisterEvent{Kind: RegisterDescriptor, UUID: d.UUID, Handle: h})
			}
		}
	}
	t.mu.Unlock()

	if t.onRegister != nil {
		for _, ev := range events {
			t.onRegister(ev)
		}
	}
	return nil
}

// Len returns the number of attributes installed.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.attrs)
}

// ValueHandle returns the value handle of the characteristic identified by u.
func (t *Table) ValueHandle(u uuid.UUID) (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, a := range t.attrs {
		if a.kind == attrCharValue && a.uuid == u {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

func (t *Table) lookup(attr uint16) (attribute, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if attr == 0 || int(attr) > len(t.attrs) {
		return attribute{}, ErrInvalidHandle
	}
	return t.attrs[attr-1], nil
}

// Write delivers a write from conn to the attribute at handle attr.
func (t *Table) Write(conn, attr uint16, data []byte) error {
	a, err := t.lookup(attr)
	if err != nil {
		return err
	}
	req := &AccessRequest{Data: data}
	switch a.kind {
	case attrCharValue:
		if a.flags&(FlagWrite|FlagWriteNoRsp) == 0 {
			return ErrWriteNotPermitted
		}
		req.Op = OpWriteChr
	case attrDescriptor:
		req.Op = OpWriteDsc
	default:
		return ErrWriteNotPermitted
	}
	if a.access == nil {
		return ErrUnlikely
	}
	return a.access(conn, attr, req)
}

// Read reads the attribute at handle attr on behalf of conn.
func (t *Table) Read(conn, attr uint16) ([]byte, error) {
	a, err := t.lookup(attr)
	if err != nil {
		return nil, err
	}
	req := new(AccessRequest)
	switch a.kind {
	case attrCharValue:
		if a.flags&FlagRead == 0 {
			return nil, ErrReadNotPermitted
		}
		req.Op = OpReadChr
	case attrDescriptor:
		req.Op = OpReadDsc
	default:
		return a.uuid[:], nil
	}
	if a.access == nil {
		return nil, ErrUnlikely
	}
	if err := a.access(conn, attr, req); err != nil {
		return nil, err
	}
	return req.Response, nil
}

// Subscribe changes conn's subscription to the characteristic with value handle attr.  Only
// characteristics that notify or indicate can be subscribed to.
func (t *Table) Subscribe(conn, attr uint16, notify bool) error {
	a, err := t.lookup(attr)
	if err != nil {
		return err
	}
	if t.onSubscribe != nil {
		t.onSubscribe(SubscribeEvent{Conn: conn, Attr: attr, Notify: notify})
	}
	if a.kind != attrCharValue || a.flags&(FlagNotify|FlagIndicate) == 0 {
		return ErrReqNotSupported
	}
	return nil
}
