package sanitize

import (
	"io"
)

type writeRec struct {
	Region
	First byte
}

// memDevice is an in-memory Device that records every request.
type memDevice struct {
	data []byte

	lengthErr   error
	failRead    map[int64]error
	failWrite   map[int64]error
	dropWrite   map[int64]bool // acknowledge but discard writes at offset
	maxWrite    int            // cap bytes accepted per WriteAt call
	reportedLen int64          // overrides len(data) when > 0
	writeEnd    int64          // writes stop here when > 0

	reads   []Region
	writes  []writeRec
	flushes int
	closed  int
}

func newMemDevice(data []byte) *memDevice {
	return &memDevice{data: data}
}

func (m *memDevice) ReadAt(p []byte, off int64) (int, error) {
	m.reads = append(m.reads, Region{Offset: off, Length: int64(len(p))})
	if err := m.failRead[off]; err != nil {
		return 0, err
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memDevice) WriteAt(p []byte, off int64) (int, error) {
	rec := writeRec{Region: Region{Offset: off, Length: int64(len(p))}}
	if len(p) > 0 {
		rec.First = p[0]
	}
	m.writes = append(m.writes, rec)
	if err := m.failWrite[off]; err != nil {
		return 0, err
	}
	limit := int64(len(m.data))
	if m.writeEnd > 0 && m.writeEnd < limit {
		limit = m.writeEnd
	}
	if off >= limit {
		return 0, io.EOF
	}
	n := len(p)
	if m.maxWrite > 0 && n > m.maxWrite {
		n = m.maxWrite
	}
	if rest := limit - off; int64(n) > rest {
		n = int(rest)
	}
	if !m.dropWrite[off] {
		copy(m.data[off:], p[:n])
	}
	return n, nil
}

func (m *memDevice) Flush() error { m.flushes++; return nil }
func (m *memDevice) Close() error { m.closed++; return nil }

func (m *memDevice) Length() (int64, error) {
	if m.lengthErr != nil {
		return 0, m.lengthErr
	}
	if m.reportedLen > 0 {
		return m.reportedLen, nil
	}
	return int64(len(m.data)), nil
}

// writesAt returns the recorded writes whose offset falls in rg.
func (m *memDevice) writesAt(rg Region) []writeRec {
	var out []writeRec
	for _, w := range m.writes {
		if w.Offset >= rg.Offset && w.Offset < rg.End() {
			out = append(out, w)
		}
	}
	return out
}

// bareDevice hides Length so the engine must walk to exhaustion.
type bareDevice struct{ m *memDevice }

func (b bareDevice) ReadAt(p []byte, off int64) (int, error)  { return b.m.ReadAt(p, off) }
func (b bareDevice) WriteAt(p []byte, off int64) (int, error) { return b.m.WriteAt(p, off) }
func (b bareDevice) Flush() error                             { return b.m.Flush() }
func (b bareDevice) Close() error                             { return b.m.Close() }

func filled(n int, b byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}
