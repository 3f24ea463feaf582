// Package manager implements the Manager described in spec §4.4: a
// registry of named ports, the process-wide SystemBytes/DATAID
// counters, the stream/function handler table, and the high-rate
// stream/function key set used to pick a quieter log level.
//
// Grounded in spec §9's explicit anti-singleton re-architecture note
// ("make the Manager an explicitly owned object passed to every port");
// pkg/session never imports this package, instead depending on the
// SequenceSource and Dispatcher interfaces it defines, which *Manager
// implements and is handed to each session.Engine at construction.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-collections/collections/set"

	"github.com/mosaicsys/go-secs2hsms/internal/logging"
	"github.com/mosaicsys/go-secs2hsms/internal/metrics"
	"github.com/mosaicsys/go-secs2hsms/pkg/config"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
	"github.com/mosaicsys/go-secs2hsms/pkg/session"
)

// Port is one named, ordered port owned by a Manager.
type Port struct {
	Name        string
	Ordinal     int // 1-based, assigned in creation order, spec §4.4 "port_num"
	MakeDefault bool
	Engine      *session.Engine
}

// Manager is the passive object spec §5 describes: "protected by a
// single mutex around its registry, counter, and handler-table
// mutations; counter reads use atomic loads."
type Manager struct {
	mu           sync.Mutex
	ports        []*Port
	byName       map[string]*Port
	defaultPort  *Port
	sysBytes     uint32
	dataID       uint32
	handlers     map[handlerKey]Handler
	highRate     *set.Set
	met          *metrics.Metrics
	log          *logging.Logger
}

// New creates an empty Manager. met may be nil (metrics.Noop is used);
// log may be nil (logging.Default is used).
func New(met *metrics.Metrics, log *logging.Logger) *Manager {
	if met == nil {
		met = metrics.Noop()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		byName:   make(map[string]*Port),
		handlers: make(map[handlerKey]Handler),
		highRate: set.New(),
		met:      met,
		log:      log,
	}
}

// CreatePort allocates and registers a new port, spec §4.4 "create_port
// (name, type, make_default, config)". It does not start the port; call
// StartPortsIfNeeded or Port.Engine.GoOnline for that.
func (m *Manager) CreatePort(cfg config.PortConfig) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[cfg.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePort, cfg.Name)
	}
	if cfg.MakeDefault && m.defaultPort != nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDefault, m.defaultPort.Name)
	}

	p := &Port{
		Name:        cfg.Name,
		Ordinal:     len(m.ports) + 1,
		MakeDefault: cfg.MakeDefault,
		Engine:      session.New(cfg, m, m, m.met, m.log),
	}
	m.ports = append(m.ports, p)
	m.byName[cfg.Name] = p
	if cfg.MakeDefault || m.defaultPort == nil {
		m.defaultPort = p
	}
	return p, nil
}

// Port looks up a registered port by name.
func (m *Manager) Port(name string) (*Port, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byName[name]
	return p, ok
}

// DefaultPort returns the port created with make_default, or the
// first-added port if none was explicitly marked, spec §4.4
// "default_port lazily resolves to the first-added port if none was
// explicitly marked".
func (m *Manager) DefaultPort() (*Port, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultPort == nil {
		return nil, false
	}
	return m.defaultPort, true
}

// StartPortsIfNeeded brings every registered port online concurrently.
// Every port is given the chance to start even if one fails; the first
// error encountered (if any) is returned once all attempts complete.
func (m *Manager) StartPortsIfNeeded(ctx context.Context) error {
	m.mu.Lock()
	ports := append([]*Port(nil), m.ports...)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(ports))
	for i, p := range ports {
		wg.Add(1)
		go func(i int, p *Port) {
			defer wg.Done()
			errs[i] = p.Engine.GoOnline(ctx)
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// StopPortsIfNeeded issues a graceful (or forceful) go-offline to every
// port concurrently, spec §4.4 "stop_ports_if_needed(graceful) issues
// graceful go-offline in parallel and then tears down each port."
func (m *Manager) StopPortsIfNeeded(ctx context.Context, graceful bool) {
	m.mu.Lock()
	ports := append([]*Port(nil), m.ports...)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range ports {
		wg.Add(1)
		go func(p *Port) {
			defer wg.Done()
			_ = p.Engine.GoOffline(ctx, graceful)
		}(p)
	}
	wg.Wait()
}

// Close tears down all ports in reverse creation order, spec §9
// "disposed at shutdown, tearing down all ports in reverse creation
// order."
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	ports := append([]*Port(nil), m.ports...)
	m.mu.Unlock()

	for i := len(ports) - 1; i >= 0; i-- {
		if err := ports[i].Engine.GoOffline(ctx, true); err != nil {
			m.log.ErrorContext(ctx, "port teardown failed", "port", ports[i].Name, "error", err)
		}
	}
	return nil
}

// NextSystemBytes implements session.SequenceSource: a single monotonic
// counter shared by every port this Manager owns, skipping zero on
// wrap, spec §4.4 "Uniqueness is guaranteed across all ports sharing
// the manager."
func (m *Manager) NextSystemBytes() uint32 {
	v := nextNonZero(&m.sysBytes)
	m.met.SystemBytesIssued.Inc()
	return v
}

// NextDataID issues the next DATAID value, spec §4.4.
func (m *Manager) NextDataID() uint32 {
	v := nextNonZero(&m.dataID)
	m.met.DataIDIssued.Inc()
	return v
}

// RegisterHighRate marks sf as a high-rate stream/function whose
// traffic is logged at a quieter level, spec §4.4 "a set of high-rate
// stream/function keys used to choose a less verbose log level."
func (m *Manager) RegisterHighRate(sf sfparser.StreamFunction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highRate.Insert(highRateKey(sf))
}

func (m *Manager) isHighRate(sf sfparser.StreamFunction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highRate.Has(highRateKey(sf))
}

func highRateKey(sf sfparser.StreamFunction) string {
	return fmt.Sprintf("S%dF%d", sf.Stream, sf.Function)
}
