// internal/transport/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/nilan-modbus/internal/transport"
)

// Mode selects the physical link.
type Mode string

const (
	ModeRTU Mode = "rtu" // serial line
	ModeTCP Mode = "tcp" // Modbus TCP, e.g. an RTU gateway
)

// Config is the link configuration owned by the host.
type Config struct {
	Mode Mode

	// RTU
	Port     string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int

	// TCP
	Endpoint string

	SlaveID     uint8
	Timeout     time.Duration
	IdleTimeout time.Duration
}

type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Client implements transport.Transport over goburrow/modbus.
// Requests are serialized: the link carries one outstanding request at a time.
type Client struct {
	mu      sync.Mutex
	handler handler
	client  modbus.Client
}

// New creates a connected client.
func New(cfg Config) (*Client, error) {
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus %s connect: %w", cfg.Mode, err)
	}
	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func newHandler(cfg Config) (handler, error) {
	switch cfg.Mode {
	case ModeRTU, "":
		if cfg.Port == "" {
			return nil, errors.New("modbus rtu: serial port required")
		}
		h := modbus.NewRTUClientHandler(cfg.Port)
		h.BaudRate = cfg.BaudRate
		h.DataBits = cfg.DataBits
		h.Parity = cfg.Parity
		h.StopBits = cfg.StopBits
		h.SlaveId = cfg.SlaveID
		h.Timeout = cfg.Timeout
		h.IdleTimeout = cfg.IdleTimeout
		return h, nil

	case ModeTCP:
		if cfg.Endpoint == "" {
			return nil, errors.New("modbus tcp: endpoint required")
		}
		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.SlaveId = cfg.SlaveID
		h.Timeout = cfg.Timeout
		h.IdleTimeout = cfg.IdleTimeout
		return h, nil

	default:
		return nil, fmt.Errorf("modbus: unsupported mode %q", cfg.Mode)
	}
}

// Close releases the underlying port or connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *Client) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, c.fail(err)
	}
	return unpackRegisters(b), nil
}

func (c *Client) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.client.ReadInputRegisters(addr, qty)
	if err != nil {
		return nil, c.fail(err)
	}
	return unpackRegisters(b), nil
}

func (c *Client) WriteHoldingRegisters(addr uint16, values []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(values)), packRegisters(values))
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// fail classifies err. A dead link is closed so the next request redials;
// goburrow reconnects lazily on Send. Caller holds mu.
func (c *Client) fail(err error) error {
	err = classify(err)
	if transport.IsLinkDown(err) {
		_ = c.handler.Close()
	}
	return err
}

// classify marks errors that mean the link itself is gone.
// Exception responses and timeouts stay request-scoped.
func classify(err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}

	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrClosed),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ENXIO),
		errors.Is(err, syscall.EIO):
		return fmt.Errorf("%w: %v", transport.ErrLinkDown, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", transport.ErrLinkDown, err)
	}

	return err
}

// ---- helpers (register byte order is big-endian) ----

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

var _ transport.Transport = (*Client)(nil)
