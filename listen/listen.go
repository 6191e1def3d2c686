// Package listen accepts instrument connections and turns their lines into frames.
// Each source is either TCP listener or serial port.
// All sources are bound before any of them starts serving.
package listen

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/log2"
	"github.com/temoto/nmeaproxy/nmea"
)

// Sink receives frames in the order they were read from each source.
// Submit must not block.
type Sink interface {
	Submit(source string, frame nmea.Frame)
}

type SinkFunc func(source string, frame nmea.Frame)

func (f SinkFunc) Submit(source string, frame nmea.Frame) { f(source, frame) }

type Options struct {
	Log  *log2.Log
	Sink Sink
	// OpenSerial defaults to go.bug.st/serial 8N1.
	OpenSerial OpenSerialFunc
	// serial reopen backoff, defaults 1s..60s
	ReopenBackoff helpers.Backoff
}

type Manager struct {
	alive   *alive.Alive
	log     *log2.Log
	sink    Sink
	opt     Options
	sources []*sourceState
	listens struct {
		sync.RWMutex
		m map[string]net.Listener
	}
	conns struct {
		sync.Mutex
		m map[string]io.Closer
	}
}

// Start binds every source, then starts serving them.
// Any bind failure closes what was already bound and returns *BindError.
// Cancelled ctx is same as Stop().
func Start(ctx context.Context, opt Options, sources []Source) (*Manager, error) {
	if opt.Sink == nil {
		return nil, errors.NotValidf("code error listen Sink=nil")
	}
	if opt.OpenSerial == nil {
		opt.OpenSerial = OpenSerial
	}
	if opt.ReopenBackoff.Min == 0 {
		opt.ReopenBackoff = helpers.Backoff{Min: DefaultReopenMin, Max: DefaultReopenMax, K: 2}
	}
	m := &Manager{
		alive: alive.NewAlive(),
		log:   opt.Log,
		sink:  opt.Sink,
		opt:   opt,
	}
	m.listens.m = make(map[string]net.Listener, len(sources))
	m.conns.m = make(map[string]io.Closer)

	seen := make(map[string]struct{}, len(sources))
	ports := make([]io.ReadCloser, len(sources))
	for i, src := range sources {
		if _, ok := seen[src.Name]; ok {
			m.unbind(ports)
			return nil, errors.NotValidf("duplicate source name=%s", src.Name)
		}
		seen[src.Name] = struct{}{}
		if src.Adapter == nil {
			m.unbind(ports)
			return nil, errors.NotValidf("code error source=%s Adapter=nil", src.Name)
		}
		if src.ReadLimit <= 0 {
			src.ReadLimit = DefaultReadLimit
		}
		state := &sourceState{Source: src}
		m.sources = append(m.sources, state)

		var err error
		switch {
		case src.Listen != "" && src.Device == "":
			err = m.bindTCP(state)
		case src.Device != "" && src.Listen == "":
			ports[i], err = m.opt.OpenSerial(src.Device, src.Baud)
		default:
			err = errors.NotValidf("exactly one of listen address or device")
		}
		if err != nil {
			m.unbind(ports)
			return nil, &BindError{Source: src.Name, Addr: src.endpoint(), Err: err}
		}
		m.log.Debugf("listen: bound source=%s kind=%s addr=%s", src.Name, src.Adapter.Kind(), m.addr(state))
	}

	// all bound, start serving
	for i, state := range m.sources {
		m.alive.Add(1)
		if ports[i] != nil {
			go m.serialLoop(state, ports[i])
		} else {
			go m.acceptLoop(state, m.listener(state.Name))
		}
		m.log.Infof("listen: source=%s kind=%s addr=%s", state.Name, state.Adapter.Kind(), m.addr(state))
	}

	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.alive.StopChan():
		}
	}()
	return m, nil
}

// Stop closes listeners and connections, waits for all connection goroutines.
func (m *Manager) Stop() {
	m.alive.Stop()
	errs := make([]error, 0)
	helpers.WithLock(&m.listens, func() {
		for name, l := range m.listens.m {
			if err := l.Close(); err != nil {
				errs = append(errs, errors.Annotatef(err, "close source=%s", name))
			}
			delete(m.listens.m, name)
		}
	})
	helpers.WithLock(&m.conns, func() {
		for _, c := range m.conns.m {
			_ = c.Close()
		}
	})
	m.alive.Wait()
	if err := helpers.FoldErrors(errs); err != nil {
		m.log.Errorf("listen: stop %v", err)
	}
	m.log.Debugf("listen: stopped")
}

// Addrs returns bound address of each TCP source by name.
func (m *Manager) Addrs() map[string]string {
	m.listens.RLock()
	defer m.listens.RUnlock()
	addrs := make(map[string]string, len(m.listens.m))
	for name, l := range m.listens.m {
		addrs[name] = l.Addr().String()
	}
	return addrs
}

func (m *Manager) Stats() []SourceStats {
	ss := make([]SourceStats, len(m.sources))
	for i, s := range m.sources {
		ss[i] = s.stats()
	}
	sortStats(ss)
	return ss
}

func (m *Manager) bindTCP(state *sourceState) error {
	ll, err := net.Listen("tcp", state.Listen)
	if err != nil {
		return errors.Annotatef(err, "net.Listen address=%s", state.Listen)
	}
	m.listens.Lock()
	m.listens.m[state.Name] = ll
	m.listens.Unlock()
	return nil
}

func (m *Manager) unbind(ports []io.ReadCloser) {
	helpers.WithLock(&m.listens, func() {
		for name, l := range m.listens.m {
			_ = l.Close()
			delete(m.listens.m, name)
		}
	})
	for _, p := range ports {
		if p != nil {
			_ = p.Close()
		}
	}
}

func (m *Manager) listener(name string) net.Listener {
	m.listens.RLock()
	defer m.listens.RUnlock()
	return m.listens.m[name]
}

func (m *Manager) addr(state *sourceState) string {
	if l := m.listener(state.Name); l != nil {
		return l.Addr().String()
	}
	return state.endpoint()
}

func (m *Manager) acceptLoop(state *sourceState, ll net.Listener) {
	defer m.alive.Done() // one alive subtask for each listener
	for {
		conn, err := ll.Accept()
		if !m.alive.IsRunning() {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				m.log.Errorf("listen: accept source=%s err=%v", state.Name, err)
				continue
			}
			// listener is unusable, other sources keep working
			m.log.Errorf("listen: accept source=%s err=%v, source stopped", state.Name, err)
			return
		}

		if !m.alive.Add(1) { // and one alive subtask for each connection
			_ = conn.Close()
			return
		}
		go m.processConn(state, conn, conn.RemoteAddr().String())
	}
}

// track registers conn for Stop, false means Manager is stopping and conn is closed.
func (m *Manager) track(id string, c io.Closer) bool {
	m.conns.Lock()
	defer m.conns.Unlock()
	if !m.alive.IsRunning() {
		_ = c.Close()
		return false
	}
	m.conns.m[id] = c
	return true
}

func (m *Manager) untrack(id string) {
	m.conns.Lock()
	delete(m.conns.m, id)
	m.conns.Unlock()
}

func (m *Manager) String() string {
	return fmt.Sprintf("listen.Manager sources=%d %s", len(m.sources), m.alive.String())
}
