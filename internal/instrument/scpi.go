package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Port is the byte stream an SCPI instrument is reached through: a serial
// port, a TCP socket or a test double.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Conn speaks newline-terminated SCPI over a Port. It is safe for
// concurrent use; each Write or Query holds the connection for the whole
// exchange.
type Conn struct {
	name string

	mu     sync.Mutex
	port   Port
	r      *bufio.Reader
	closed bool
}

// NewConn wraps port. name identifies the connection in errors.
func NewConn(name string, port Port) *Conn {
	return &Conn{name: name, port: port, r: bufio.NewReader(port)}
}

var errConnClosed = errors.New("connection closed")

func (c *Conn) send(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return errConnClosed
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	_, err := io.WriteString(c.port, command)
	return err
}

// Write sends a command that has no response.
func (c *Conn) Write(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, command); err != nil {
		return Wrap(c.name, fmt.Sprintf("write %q", strings.TrimSpace(command)), err)
	}
	return nil
}

// Query sends a command and returns the response line without its line
// terminator.
func (c *Conn) Query(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op := fmt.Sprintf("query %q", strings.TrimSpace(command))
	if err := c.send(ctx, command); err != nil {
		return "", Wrap(c.name, op, err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", Wrap(c.name, op, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close closes the underlying port. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}

// Preset holds the SCPI command templates for one instrument family.
type Preset struct {
	// Set is a fmt template taking the output value.
	Set string
	// Read is the measurement query.
	Read string
	// Field selects the comma-separated field of the response holding the
	// reading.
	Field int
	// Init commands are sent once when the instrument is opened.
	Init []string
}

// Presets are the known instrument families by name.
var Presets = map[string]Preset{
	// Bilt modular DC sources and voltmeters; the channel selects the card.
	"bilt": {Set: "VOLT %g", Read: "MEAS?"},
	// Keithley 2400 source-measure unit; :READ? returns
	// voltage,current,resistance,time,status.
	"k2400": {Set: ":SOUR:VOLT %g", Read: ":READ?", Init: []string{":SOUR:FUNC VOLT"}},
}

// LookupPreset returns the preset called name.
func LookupPreset(name string) (Preset, error) {
	p, ok := Presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("unknown instrument preset %q", name)
	}
	return p, nil
}

// SCPIChannel is one addressable output or input of an SCPI instrument.
// It implements Instrument; whether it is used as a source or a meter
// depends on the caller.
type SCPIChannel struct {
	name    string
	conn    *Conn
	preset  Preset
	channel string
	release func() error
}

// NewSCPIChannel returns a channel of conn using preset commands. A
// non-empty channel is sent as a selector before each command, separated
// by ';' (for example "I1;VOLT 0.5").
func NewSCPIChannel(name string, conn *Conn, preset Preset, channel string) *SCPIChannel {
	return &SCPIChannel{name: name, conn: conn, preset: preset, channel: channel}
}

func (s *SCPIChannel) command(body string) string {
	if s.channel == "" {
		return body
	}
	return s.channel + ";" + body
}

// Init sends the preset's initialisation commands.
func (s *SCPIChannel) Init(ctx context.Context) error {
	for _, cmd := range s.preset.Init {
		if err := s.conn.Write(ctx, s.command(cmd)); err != nil {
			return Wrap(s.name, "init", err)
		}
	}
	return nil
}

// SetOutput implements Source.
func (s *SCPIChannel) SetOutput(ctx context.Context, value float64) error {
	if s.preset.Set == "" {
		return &Error{Instrument: s.name, Op: "set", Err: errors.New("instrument has no output")}
	}
	cmd := s.command(fmt.Sprintf(s.preset.Set, value))
	if err := s.conn.Write(ctx, cmd); err != nil {
		return rename(s.name, err)
	}
	return nil
}

// ReadInput implements Meter.
func (s *SCPIChannel) ReadInput(ctx context.Context) (float64, error) {
	if s.preset.Read == "" {
		return 0, &Error{Instrument: s.name, Op: "read", Err: errors.New("instrument has no input")}
	}
	resp, err := s.conn.Query(ctx, s.command(s.preset.Read))
	if err != nil {
		return 0, rename(s.name, err)
	}
	v, err := ParseReading(resp, s.preset.Field)
	if err != nil {
		return 0, &Error{Instrument: s.name, Op: "read", Err: err}
	}
	return v, nil
}

// Close releases the channel's hold on its connection.
func (s *SCPIChannel) Close() error {
	if s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	return release()
}

// rename reports a connection error under the channel's name.
func rename(name string, err error) error {
	var ie *Error
	if errors.As(err, &ie) {
		return &Error{Instrument: name, Op: ie.Op, Err: ie.Err}
	}
	return Wrap(name, "io", err)
}

// ParseReading extracts field from a comma-separated SCPI response.
func ParseReading(resp string, field int) (float64, error) {
	parts := strings.Split(strings.TrimSpace(resp), ",")
	if field < 0 || field >= len(parts) {
		return 0, fmt.Errorf("response %q has no field %d", resp, field)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[field]), 64)
	if err != nil {
		return 0, fmt.Errorf("response %q: %w", resp, err)
	}
	return v, nil
}
