package listen

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/temoto/nmeaproxy/adapter"
	"github.com/temoto/nmeaproxy/helpers/atomic_clock"
)

const DefaultReadLimit = 4096

// Source is one configured instrument input.
// Exactly one of Listen or Device is set.
type Source struct {
	Name      string
	Adapter   adapter.Adapter
	Listen    string // host:port
	Device    string // serial port path
	Baud      int
	ReadLimit int // longest accepted line, including terminator
}

func (s *Source) endpoint() string {
	if s.Device != "" {
		return fmt.Sprintf("serial:%s@%d", s.Device, s.Baud)
	}
	return s.Listen
}

// BindError means a source could not start listening, nothing was started.
type BindError struct {
	Source string
	Addr   string
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind source=%s addr=%s: %v", e.Source, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

type SourceStats struct {
	Name         string
	Kind         adapter.Kind
	Endpoint     string
	Connections  uint64
	Open         int64
	Bytes        uint64
	Lines        uint64
	Frames       uint64
	DecodeErrors uint64
	BadChecksum  uint64 // passthrough lines that are not valid NMEA, still forwarded
	Faults       uint64 // connections closed by read error or oversize line
	LastLine     time.Time
}

type sourceState struct {
	// 64-bit atomic counters first for alignment on 32-bit ARM
	connections  uint64
	open         int64
	bytes        uint64
	lines        uint64
	frames       uint64
	decodeErrors uint64
	badChecksum  uint64
	faults       uint64
	lastLine     atomic_clock.Clock

	Source
}

func (s *sourceState) stats() SourceStats {
	return SourceStats{
		Name:         s.Name,
		Kind:         s.Adapter.Kind(),
		Endpoint:     s.endpoint(),
		Connections:  atomic.LoadUint64(&s.connections),
		Open:         atomic.LoadInt64(&s.open),
		Bytes:        atomic.LoadUint64(&s.bytes),
		Lines:        atomic.LoadUint64(&s.lines),
		Frames:       atomic.LoadUint64(&s.frames),
		DecodeErrors: atomic.LoadUint64(&s.decodeErrors),
		BadChecksum:  atomic.LoadUint64(&s.badChecksum),
		Faults:       atomic.LoadUint64(&s.faults),
		LastLine:     s.lastLine.Time(),
	}
}

func sortStats(ss []SourceStats) {
	sort.Slice(ss, func(i, j int) bool { return ss[i].Name < ss[j].Name })
}
