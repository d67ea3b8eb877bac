package instrument

import (
	"context"
	"fmt"
	"sync"
)

// Config describes one named instrument channel.
type Config struct {
	// Resource is a VISA-style resource ("TCPIP0::10.0.0.5::5025::SOCKET",
	// "ASRL/dev/ttyUSB0::INSTR") or "sim".
	Resource string `json:"resource" yaml:"resource"`
	// Preset names the command family ("bilt", "k2400").
	Preset string `json:"preset" yaml:"preset"`
	// Channel is sent as a selector before each command, e.g. "I1".
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
	// Serial holds line settings for ASRL resources.
	Serial PortOptions `json:"serial,omitzero" yaml:"serial,omitempty"`
	// Safe overrides the value the source is driven to at teardown.
	Safe *float64 `json:"safe,omitempty" yaml:"safe,omitempty"`
}

// Validate checks the resource and preset.
func (c Config) Validate() error {
	if c.Resource == "sim" {
		return nil
	}
	if _, err := ParseResource(c.Resource); err != nil {
		return err
	}
	if _, err := LookupPreset(c.Preset); err != nil {
		return err
	}
	if _, err := c.Serial.Normalize(); err != nil {
		return err
	}
	return nil
}

type sharedConn struct {
	conn *Conn
	refs int
}

// ConfigProvider opens SCPI instruments described by configuration.
// Channels on the same resource share one connection, which is closed when
// the last channel is closed. Names without configuration, and names
// configured with resource "sim", are delegated to Fallback.
type ConfigProvider struct {
	Instruments map[string]Config
	Fallback    Provider
	Dialer      Dialer

	mu    sync.Mutex
	conns map[string]*sharedConn
}

// NewConfigProvider returns a provider for instruments using the default
// dialer.
func NewConfigProvider(instruments map[string]Config, fallback Provider) *ConfigProvider {
	return &ConfigProvider{Instruments: instruments, Fallback: fallback, Dialer: DefaultDialer}
}

// Open implements Provider.
func (p *ConfigProvider) Open(ctx context.Context, name string) (any, error) {
	cfg, ok := p.Instruments[name]
	if !ok || cfg.Resource == "sim" {
		if p.Fallback == nil {
			return nil, fmt.Errorf("no instrument configured for %q", name)
		}
		return p.Fallback.Open(ctx, name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	res, _ := ParseResource(cfg.Resource)
	preset, _ := LookupPreset(cfg.Preset)

	conn, err := p.acquire(ctx, res, cfg.Serial)
	if err != nil {
		return nil, err
	}
	ch := NewSCPIChannel(name, conn, preset, cfg.Channel)
	ch.release = func() error { return p.release(res.String()) }
	if err := ch.Init(ctx); err != nil {
		ch.Close()
		return nil, err
	}
	logf("opened %s on %s (%s)", name, res, cfg.Preset)
	if cfg.Safe != nil {
		return &safeChannel{SCPIChannel: ch, safe: *cfg.Safe}, nil
	}
	return ch, nil
}

func (p *ConfigProvider) acquire(ctx context.Context, res Resource, opts PortOptions) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := res.String()
	if sc, ok := p.conns[key]; ok {
		sc.refs++
		return sc.conn, nil
	}
	dialer := p.Dialer
	if dialer.DialTCP == nil || dialer.OpenSerial == nil {
		dialer = DefaultDialer
	}
	port, err := dialer.Dial(ctx, res, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	if p.conns == nil {
		p.conns = make(map[string]*sharedConn)
	}
	sc := &sharedConn{conn: NewConn(key, port), refs: 1}
	p.conns[key] = sc
	return sc.conn, nil
}

func (p *ConfigProvider) release(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc, ok := p.conns[key]
	if !ok {
		return nil
	}
	sc.refs--
	if sc.refs > 0 {
		return nil
	}
	delete(p.conns, key)
	return sc.conn.Close()
}

// OpenConns reports how many connections are currently open.
func (p *ConfigProvider) OpenConns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

type safeChannel struct {
	*SCPIChannel
	safe float64
}

func (s *safeChannel) SafeOutput() float64 { return s.safe }
