// internal/transport/transport.go
package transport

import (
	"errors"
	"fmt"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// Reader abstracts the register reads the poller needs.
type Reader interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)   // FC 4
}

// Writer abstracts the register writes the dispatcher needs.
type Writer interface {
	WriteHoldingRegisters(addr uint16, values []uint16) error // FC 16
}

// Transport is a connected, request/response register link.
type Transport interface {
	Reader
	Writer
}

// ErrLinkDown marks a failure of the link itself rather than of one request.
// A poll cycle that sees it stops issuing further reads.
var ErrLinkDown = errors.New("transport: link down")

// Error describes a failed register request.
type Error struct {
	Op   string // "read" or "write"
	Bank registers.Bank
	Addr uint16
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s %d: %v", e.Op, e.Bank, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsLinkDown reports whether err aborts the remainder of a cycle.
func IsLinkDown(err error) bool {
	return errors.Is(err, ErrLinkDown)
}

// Read issues the read matching a's bank.
func Read(r Reader, a registers.Address) ([]uint16, error) {
	qty := a.Count
	if qty == 0 {
		qty = 1
	}

	var (
		regs []uint16
		err  error
	)
	switch a.Bank {
	case registers.Holding:
		regs, err = r.ReadHoldingRegisters(a.Addr, qty)
	case registers.Input:
		regs, err = r.ReadInputRegisters(a.Addr, qty)
	default:
		return nil, &Error{Op: "read", Bank: a.Bank, Addr: a.Addr, Err: errors.New("unsupported bank")}
	}
	if err != nil {
		return nil, &Error{Op: "read", Bank: a.Bank, Addr: a.Addr, Err: err}
	}
	if len(regs) < int(qty) {
		return nil, &Error{
			Op:   "read",
			Bank: a.Bank,
			Addr: a.Addr,
			Err:  fmt.Errorf("short response: got %d want %d registers", len(regs), qty),
		}
	}
	return regs, nil
}

// Write writes values to a holding register.
func Write(w Writer, a registers.Address, values []uint16) error {
	if a.Bank != registers.Holding {
		return &Error{Op: "write", Bank: a.Bank, Addr: a.Addr, Err: errors.New("bank is read-only")}
	}
	if err := w.WriteHoldingRegisters(a.Addr, values); err != nil {
		return &Error{Op: "write", Bank: a.Bank, Addr: a.Addr, Err: err}
	}
	return nil
}
