package listen

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/nmea"
)

func (m *Manager) processConn(state *sourceState, conn io.ReadCloser, remote string) {
	defer m.alive.Done()

	id := uuid.New().String()
	if !m.track(id, conn) {
		return
	}
	defer m.untrack(id)
	atomic.AddUint64(&state.connections, 1)
	atomic.AddInt64(&state.open, 1)
	defer atomic.AddInt64(&state.open, -1)
	m.log.Infof("listen: source=%s conn=%s remote=%s open", state.Name, id, remote)

	lines, err := m.readLines(state, helpers.NewCountReader(conn, &state.bytes))
	_ = conn.Close()
	if err != nil && m.alive.IsRunning() {
		atomic.AddUint64(&state.faults, 1)
		m.log.Errorf("listen: source=%s conn=%s remote=%s lines=%d err=%v", state.Name, id, remote, lines, err)
		return
	}
	m.log.Infof("listen: source=%s conn=%s remote=%s lines=%d closed", state.Name, id, remote, lines)
}

// readLines feeds lines to the source adapter until EOF or read error.
// Line longer than ReadLimit is an error and closes the connection.
func (m *Manager) readLines(state *sourceState, r io.Reader) (int, error) {
	initial := 512
	if state.ReadLimit < initial {
		initial = state.ReadLimit
	}
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, initial), state.ReadLimit)
	scan.Split(scanLines)
	n := 0
	for scan.Scan() {
		n++
		line := scan.Bytes()
		if line[len(line)-1] != '\n' {
			// EOF in the middle of a line, frame without terminator would merge with next one
			atomic.AddUint64(&state.lines, 1)
			atomic.AddUint64(&state.decodeErrors, 1)
			m.log.Errorf("listen: source=%s partial line at EOF dropped line=%q", state.Name, line)
			continue
		}
		m.handleLine(state, line)
	}
	err := scan.Err()
	if err == bufio.ErrTooLong {
		return n, errors.Errorf("line longer than read_limit=%d", state.ReadLimit)
	}
	return n, errors.Trace(err)
}

func (m *Manager) handleLine(state *sourceState, line []byte) {
	atomic.AddUint64(&state.lines, 1)
	state.lastLine.SetNow()

	raw := line
	passthrough := state.Adapter.Kind().Passthrough()
	if !passthrough {
		raw = bytes.TrimRight(line, "\r\n")
	}

	frames, err := state.Adapter.Decode(raw)
	if err != nil {
		atomic.AddUint64(&state.decodeErrors, 1)
		m.log.Errorf("listen: %v", err)
		return
	}
	if passthrough {
		if err := nmea.Verify(line); err != nil {
			atomic.AddUint64(&state.badChecksum, 1)
			m.log.Debugf("listen: source=%s passthrough not valid NMEA (%v) line=%q", state.Name, err, line)
		}
	}
	for _, f := range frames {
		m.sink.Submit(state.Name, f)
	}
	atomic.AddUint64(&state.frames, uint64(len(frames)))
}

// scanLines is bufio.ScanLines that keeps terminator,
// passthrough sources forward lines byte exact.
// Final token without '\n' is a partial line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
