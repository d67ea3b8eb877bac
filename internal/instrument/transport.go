package instrument

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// PortOptions describes the serial line settings used when opening an
// ASRL resource.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits int    `json:"data_bits" yaml:"data_bits"`
	StopBits int    `json:"stop_bits" yaml:"stop_bits"`
	Parity   string `json:"parity" yaml:"parity"`
}

// Normalize validates the options and fills in defaults (9600 8N1).
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 9600
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}
	switch strings.ToUpper(strings.TrimSpace(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// ResourceKind distinguishes the transports a resource string can name.
type ResourceKind int

const (
	ResourceTCP ResourceKind = iota
	ResourceSerial
)

// Resource is a parsed VISA-style resource string.
type Resource struct {
	Kind ResourceKind
	// Address is host:port for TCP and the device path for serial.
	Address string
}

func (r Resource) String() string {
	if r.Kind == ResourceSerial {
		return "ASRL" + r.Address + "::INSTR"
	}
	host, port, _ := net.SplitHostPort(r.Address)
	return "TCPIP0::" + host + "::" + port + "::SOCKET"
}

// ParseResource parses "TCPIP[n]::host::port::SOCKET" and
// "ASRL<device>::INSTR". A bare "host:port" is accepted as TCP.
func ParseResource(s string) (Resource, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "TCPIP"):
		parts := strings.Split(s, "::")
		if len(parts) != 4 || !strings.EqualFold(parts[3], "SOCKET") {
			return Resource{}, fmt.Errorf("resource %q: expected TCPIP0::host::port::SOCKET", s)
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil || port <= 0 || port > 65535 {
			return Resource{}, fmt.Errorf("resource %q: invalid port %q", s, parts[2])
		}
		if parts[1] == "" {
			return Resource{}, fmt.Errorf("resource %q: empty host", s)
		}
		return Resource{Kind: ResourceTCP, Address: net.JoinHostPort(parts[1], parts[2])}, nil
	case strings.HasPrefix(upper, "ASRL"):
		dev, ok := strings.CutSuffix(s[len("ASRL"):], "::INSTR")
		if !ok {
			dev, ok = strings.CutSuffix(s[len("ASRL"):], "::instr")
		}
		if !ok || dev == "" {
			return Resource{}, fmt.Errorf("resource %q: expected ASRL<device>::INSTR", s)
		}
		return Resource{Kind: ResourceSerial, Address: dev}, nil
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return Resource{Kind: ResourceTCP, Address: s}, nil
	}
	return Resource{}, fmt.Errorf("unsupported resource %q", s)
}

// Dialer opens ports for resources. Tests replace its functions.
type Dialer struct {
	DialTCP    func(ctx context.Context, address string) (Port, error)
	OpenSerial func(path string, mode *serial.Mode) (Port, error)
}

// DefaultDialer reaches real hardware.
var DefaultDialer = Dialer{
	DialTCP: func(ctx context.Context, address string) (Port, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", address)
	},
	OpenSerial: func(path string, mode *serial.Mode) (Port, error) {
		return serial.Open(path, mode)
	},
}

// Dial opens the port named by res.
func (d Dialer) Dial(ctx context.Context, res Resource, opts PortOptions) (Port, error) {
	switch res.Kind {
	case ResourceSerial:
		mode, err := opts.SerialMode()
		if err != nil {
			return nil, err
		}
		return d.OpenSerial(res.Address, mode)
	default:
		return d.DialTCP(ctx, res.Address)
	}
}
