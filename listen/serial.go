package listen

import (
	"io"
	"time"

	"github.com/juju/errors"
	"go.bug.st/serial"
)

const (
	DefaultBaud      = 9600
	DefaultReopenMin = 1 * time.Second
	DefaultReopenMax = 60 * time.Second
)

type OpenSerialFunc = func(device string, baud int) (io.ReadCloser, error)

// OpenSerial opens device in 8N1 mode.
func OpenSerial(device string, baud int) (io.ReadCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "serial.Open device=%s baud=%d", device, baud)
	}
	return port, nil
}

// serialLoop reads port until Stop, reopening device with backoff after errors.
// Unplugged USB adapter comes back under the same path.
func (m *Manager) serialLoop(state *sourceState, port io.ReadCloser) {
	defer m.alive.Done()
	backoff := m.opt.ReopenBackoff
	for {
		if port == nil {
			delay := backoff.DelayBefore()
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-m.alive.StopChan():
					return
				}
			}
			var err error
			if port, err = m.opt.OpenSerial(state.Device, state.Baud); err != nil {
				next := backoff.Failure()
				m.log.Errorf("listen: source=%s reopen %v, retry in %s", state.Name, err, next)
				continue
			}
			backoff.Reset()
		}

		if !m.alive.Add(1) {
			_ = port.Close()
			return
		}
		// processConn does alive.Done
		m.processConn(state, port, state.endpoint())
		port = nil
		if !m.alive.IsRunning() {
			return
		}
		backoff.Failure()
	}
}
