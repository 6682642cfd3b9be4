// internal/registers/types.go
package registers

// Bank selects the Modbus register table an attribute lives in.
type Bank uint8

const (
	Holding Bank = iota + 1 // FC 3 / FC 16
	Input                   // FC 4
)

func (b Bank) String() string {
	switch b {
	case Holding:
		return "holding"
	case Input:
		return "input"
	default:
		return "unknown"
	}
}

// Address is the fixed location of one attribute on the device.
type Address struct {
	Bank  Bank
	Addr  uint16
	Count uint16
}

// Access describes whether an attribute may be written.
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

// Attribute names one entry of the register map.
type Attribute string

// AttributeSpec binds an attribute to its register and decoding rule.
type AttributeSpec struct {
	Name    Attribute
	Address Address
	Rule    Rule
	Access  Access

	// Notify marks attributes whose transitions are surfaced as change events.
	Notify bool

	// Title and Unit are presentation only.
	Title string
	Unit  string
}

// Writable reports whether the attribute accepts commands.
func (s AttributeSpec) Writable() bool {
	return s.Access == ReadWrite
}

// Words returns the register count, never less than one.
func (s AttributeSpec) Words() uint16 {
	if s.Address.Count == 0 {
		return 1
	}
	return s.Address.Count
}
