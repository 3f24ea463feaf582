// Package config defines the per-port configuration value type, spec §6
// "Configuration (port)". Loading configuration from a file, environment,
// or CLI flags is out of scope (spec §1); this package only owns the
// validated struct a port is constructed from, built in the teacher
// library's constructor-with-validation style (see
// pkg/ast.NewDataMessage's checkRep) but returning an error instead of
// panicking, per spec §9's Result-based re-architecture note.
package config

import (
	"fmt"
	"time"
)

// Default values, spec §6.
const (
	DefaultT3ReplyTimeout           = 45 * time.Second
	DefaultT5ConnectSeparationDelay = 10 * time.Second
	DefaultT6ControlTransactionTO   = 5 * time.Second
	DefaultT7NotSelectedTimeout     = 10 * time.Second
	DefaultT8InterCharTimeout       = 5 * time.Second
	DefaultIdleLinktestInterval     = 10 * time.Second
	DefaultMaximumMesgBodySize      = 1 << 20 // 1 MiB
	DefaultMaximumSendQueueSize     = 256
	DefaultMaxConcurrentPostedSends = 20
)

// PortMode selects whether a port actively connects out or passively
// accepts, spec §4.3 "Active: ... Passive: ...".
type PortMode int

const (
	PortModeActive PortMode = iota
	PortModePassive
)

// PortConfig is the validated configuration for one SessionEngine port,
// spec §6.
type PortConfig struct {
	Name     string
	Mode     PortMode
	DeviceID uint16
	SessionID uint16

	HostName  string
	IPAddress string
	PortNum   int

	KeepAlivePeriod          time.Duration
	AutoReconnectHoldoff     time.Duration // 0 disables auto-reconnect
	HostNameLookupTimeLimit  time.Duration
	ConnectTimeLimit         time.Duration
	DisconnectTimeLimit      time.Duration
	DeselectTimeLimit        time.Duration

	T3ReplyTimeout           time.Duration
	T5ConnectSeparationDelay time.Duration
	T6ControlTransactionTO   time.Duration
	T7NotSelectedTimeout     time.Duration
	T8NetworkInterCharTO     time.Duration
	IdleLinktestInterval     time.Duration

	MaximumMesgBodySize      int
	MaximumSendQueueSize     int
	MaxConcurrentPostedSends int

	// MakeDefault requests this port become the Manager's default port;
	// the Manager rejects a second port with MakeDefault set.
	MakeDefault bool
}

// Option overrides a field of the default PortConfig.
type Option func(*PortConfig)

func WithSessionID(id uint16) Option        { return func(c *PortConfig) { c.SessionID = id } }
func WithDeviceID(id uint16) Option         { return func(c *PortConfig) { c.DeviceID = id } }
func WithHostNameAndPort(host string, port int) Option {
	return func(c *PortConfig) { c.HostName = host; c.PortNum = port }
}
func WithIPAddress(addr string) Option      { return func(c *PortConfig) { c.IPAddress = addr } }
func WithMakeDefault() Option                { return func(c *PortConfig) { c.MakeDefault = true } }
func WithT3ReplyTimeout(d time.Duration) Option {
	return func(c *PortConfig) { c.T3ReplyTimeout = d }
}
func WithIdleLinktestInterval(d time.Duration) Option {
	return func(c *PortConfig) { c.IdleLinktestInterval = d }
}
func WithAutoReconnectHoldoff(d time.Duration) Option {
	return func(c *PortConfig) { c.AutoReconnectHoldoff = d }
}
func WithMaximumMesgBodySize(n int) Option {
	return func(c *PortConfig) { c.MaximumMesgBodySize = n }
}

// New builds a validated PortConfig for a port named name, in mode, with
// defaults applied, then opts applied on top.
func New(name string, mode PortMode, opts ...Option) (PortConfig, error) {
	c := PortConfig{
		Name:                     name,
		Mode:                     mode,
		PortNum:                  5000,
		ConnectTimeLimit:         10 * time.Second,
		DisconnectTimeLimit:      5 * time.Second,
		DeselectTimeLimit:        5 * time.Second,
		HostNameLookupTimeLimit:  5 * time.Second,
		T3ReplyTimeout:           DefaultT3ReplyTimeout,
		T5ConnectSeparationDelay: DefaultT5ConnectSeparationDelay,
		T6ControlTransactionTO:   DefaultT6ControlTransactionTO,
		T7NotSelectedTimeout:     DefaultT7NotSelectedTimeout,
		T8NetworkInterCharTO:     DefaultT8InterCharTimeout,
		IdleLinktestInterval:     DefaultIdleLinktestInterval,
		MaximumMesgBodySize:      DefaultMaximumMesgBodySize,
		MaximumSendQueueSize:     DefaultMaximumSendQueueSize,
		MaxConcurrentPostedSends: DefaultMaxConcurrentPostedSends,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return PortConfig{}, err
	}
	return c, nil
}

func (c PortConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: port name must not be empty")
	}
	if c.PortNum < 1 || c.PortNum > 65535 {
		return fmt.Errorf("config: port number %d out of range 1..65535", c.PortNum)
	}
	if c.MaximumMesgBodySize <= 0 {
		return fmt.Errorf("config: MaximumMesgBodySize must be positive")
	}
	if c.MaximumSendQueueSize <= 0 {
		return fmt.Errorf("config: MaximumSendQueueSize must be positive")
	}
	if c.MaxConcurrentPostedSends <= 0 {
		return fmt.Errorf("config: MaxConcurrentPostedSends must be positive")
	}
	if c.Mode == PortModeActive && c.HostName == "" && c.IPAddress == "" {
		return fmt.Errorf("config: active port %q requires HostName or IPAddress", c.Name)
	}
	return nil
}
