package devices

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sys/unix"
)

const (
	ttyMajor = 5
	ptsMajor = 136

	charEOF   = 0x04 // ^D
	charErase = 0x7f // DEL
)

// PtyMux is the pseudo-terminal multiplexer. Every Open allocates a new
// session and binds the caller to its master end; the session number is
// available through the TIOCGPTN ioctl and the slave end through Session.
type PtyMux struct {
	base
	next     atomic.Uint32
	sessions *xsync.Map[uint32, *Pty]
}

func NewPtyMux() *PtyMux {
	return &PtyMux{
		base:     newBase(kvfs.TypeCharDevice, ttyMajor, 2, 0o666),
		sessions: xsync.NewMap[uint32, *Pty](),
	}
}

// Open hands back the master end of a fresh session instead of the mux.
func (m *PtyMux) Open(kvfs.OpenFlags) (kvfs.Node, error) {
	logger := util.GetLogger("PtyMux.Open")
	n := m.next.Add(1) - 1
	p := newPty(m, n)
	m.sessions.Store(n, p)
	logger.Debug().Uint32("pty", n).Msg("Allocated session")
	return p.master, nil
}

// Session returns a live session by number.
func (m *PtyMux) Session(n uint32) (*Pty, bool) {
	return m.sessions.Load(n)
}

// Sessions returns the number of live sessions.
func (m *PtyMux) Sessions() int {
	return m.sessions.Size()
}

func (m *PtyMux) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable | kvfs.PollWritable, nil
}

// Pty is one pseudo-terminal session: a master end driven by a terminal
// emulator and a slave end used by the program running in it.
type Pty struct {
	mux    *PtyMux
	n      uint32
	master *PtyMaster
	slave  *PtySlave

	mu          sync.Mutex
	canon, echo bool
	ws          unix.Winsize
	line        []byte       // canonical line still being edited
	input       bytes.Buffer // ready for slave reads
	output      bytes.Buffer // ready for master reads
	eof         int          // pending end-of-file markers from ^D
	slaves      int          // open slave handles
	slaveClosed bool         // the last slave handle went away
	hungup      bool         // the master handle went away
}

func newPty(mux *PtyMux, n uint32) *Pty {
	p := &Pty{
		mux:   mux,
		n:     n,
		canon: true,
		echo:  true,
		ws:    unix.Winsize{Row: 24, Col: 80},
	}
	p.master = &PtyMaster{base: newBase(kvfs.TypeCharDevice, ttyMajor, 2, 0o620), pty: p}
	p.slave = &PtySlave{base: newBase(kvfs.TypeCharDevice, ptsMajor, n, 0o620), pty: p}
	return p
}

func (p *Pty) Index() uint32 {
	return p.n
}

func (p *Pty) Master() *PtyMaster {
	return p.master
}

func (p *Pty) Slave() *PtySlave {
	return p.slave
}

// discipline feeds keyboard input through the line discipline. Callers
// hold p.mu.
func (p *Pty) discipline(in []byte) {
	for _, c := range in {
		if !p.canon {
			p.input.WriteByte(c)
			if p.echo {
				p.output.WriteByte(c)
			}
			continue
		}
		switch c {
		case charErase, '\b':
			if len(p.line) > 0 {
				p.line = p.line[:len(p.line)-1]
				if p.echo {
					p.output.WriteString("\b \b")
				}
			}
		case charEOF:
			if len(p.line) == 0 {
				p.eof++
			} else {
				p.input.Write(p.line)
				p.line = p.line[:0]
			}
		case '\r', '\n':
			p.line = append(p.line, '\n')
			p.input.Write(p.line)
			p.line = p.line[:0]
			if p.echo {
				p.output.WriteString("\r\n")
			}
		default:
			p.line = append(p.line, c)
			if p.echo {
				p.output.WriteByte(c)
			}
		}
	}
}

// ioctl serves the terminal requests both ends understand.
func (p *Pty) ioctl(cmd uint, arg any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch cmd {
	case unix.TIOCGWINSZ:
		ws, ok := arg.(*unix.Winsize)
		if !ok || ws == nil {
			return 0, kvfs.BadAddress
		}
		*ws = p.ws
	case unix.TIOCSWINSZ:
		ws, ok := arg.(*unix.Winsize)
		if !ok || ws == nil {
			return 0, kvfs.BadAddress
		}
		p.ws = *ws
	case unix.TCGETS:
		t, ok := arg.(*unix.Termios)
		if !ok || t == nil {
			return 0, kvfs.BadAddress
		}
		t.Lflag &^= unix.ICANON | unix.ECHO
		if p.canon {
			t.Lflag |= unix.ICANON
		}
		if p.echo {
			t.Lflag |= unix.ECHO
		}
	case unix.TCSETS, unix.TCSETSW, unix.TCSETSF:
		t, ok := arg.(*unix.Termios)
		if !ok || t == nil {
			return 0, kvfs.BadAddress
		}
		wasCanon := p.canon
		p.canon = t.Lflag&unix.ICANON != 0
		p.echo = t.Lflag&unix.ECHO != 0
		if wasCanon && !p.canon {
			// a half edited line becomes readable input
			p.input.Write(p.line)
			p.line = p.line[:0]
		}
	case unix.TIOCGPTN:
		n, ok := arg.(*uint32)
		if !ok || n == nil {
			return 0, kvfs.BadAddress
		}
		*n = p.n
	default:
		return 0, kvfs.Unsupported
	}
	return 0, nil
}

// forget drops the session from the mux once both ends are closed. Callers
// hold p.mu.
func (p *Pty) forget() {
	if p.hungup && p.slaves == 0 {
		p.mux.sessions.Delete(p.n)
	}
}

// PtyMaster is the terminal emulator's end of a session.
type PtyMaster struct {
	base
	pty *Pty
}

func (m *PtyMaster) Session() *Pty {
	return m.pty
}

// ReadAt returns program output. It reports end of data once the last
// slave handle is closed.
func (m *PtyMaster) ReadAt(b []byte, _ int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p := m.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output.Len() == 0 {
		if p.slaveClosed {
			return 0, nil
		}
		return 0, kvfs.WouldBlock
	}
	n, _ := p.output.Read(b)
	return n, nil
}

// WriteAt sends keyboard input through the line discipline.
func (m *PtyMaster) WriteAt(b []byte, _ int64) (int, error) {
	p := m.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hungup {
		return 0, kvfs.Io
	}
	p.discipline(b)
	return len(b), nil
}

func (m *PtyMaster) Ioctl(cmd uint, arg any) (int, error) {
	return m.pty.ioctl(cmd, arg)
}

func (m *PtyMaster) Poll() (kvfs.PollEvents, error) {
	p := m.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := kvfs.PollWritable
	if p.output.Len() > 0 || p.slaveClosed {
		ev |= kvfs.PollReadable
	}
	if p.slaveClosed {
		ev |= kvfs.PollHangup
	}
	return ev, nil
}

// Release hangs the session up; slave reads then see end of data.
func (m *PtyMaster) Release(kvfs.OpenFlags) error {
	logger := util.GetLogger("PtyMaster.Release")
	p := m.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hungup {
		p.hungup = true
		logger.Debug().Uint32("pty", p.n).Msg("Hung up")
	}
	p.forget()
	return nil
}

// PtySlave is the program's end of a session.
type PtySlave struct {
	base
	pty *Pty
}

func (s *PtySlave) Session() *Pty {
	return s.pty
}

func (s *PtySlave) Open(kvfs.OpenFlags) (kvfs.Node, error) {
	p := s.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hungup {
		return nil, kvfs.Io
	}
	p.slaves++
	p.slaveClosed = false
	return nil, nil
}

func (s *PtySlave) Release(kvfs.OpenFlags) error {
	p := s.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slaves > 0 {
		p.slaves--
		if p.slaves == 0 {
			p.slaveClosed = true
		}
	}
	p.forget()
	return nil
}

// ReadAt returns cooked input. In canonical mode a read never returns more
// than one line.
func (s *PtySlave) ReadAt(b []byte, _ int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p := s.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.input.Len() == 0 {
		switch {
		case p.eof > 0:
			p.eof--
			return 0, nil
		case p.hungup:
			return 0, nil
		}
		return 0, kvfs.WouldBlock
	}
	if p.canon {
		if i := bytes.IndexByte(p.input.Bytes(), '\n'); i >= 0 && i+1 < len(b) {
			b = b[:i+1]
		}
	}
	n, _ := p.input.Read(b)
	return n, nil
}

// WriteAt queues program output, translating "\n" to "\r\n".
func (s *PtySlave) WriteAt(b []byte, _ int64) (int, error) {
	p := s.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hungup {
		return 0, kvfs.Io
	}
	for _, c := range b {
		if c == '\n' {
			p.output.WriteByte('\r')
		}
		p.output.WriteByte(c)
	}
	return len(b), nil
}

func (s *PtySlave) Ioctl(cmd uint, arg any) (int, error) {
	return s.pty.ioctl(cmd, arg)
}

func (s *PtySlave) Poll() (kvfs.PollEvents, error) {
	p := s.pty
	p.mu.Lock()
	defer p.mu.Unlock()
	var ev kvfs.PollEvents
	if p.input.Len() > 0 || p.eof > 0 || p.hungup {
		ev |= kvfs.PollReadable
	}
	if p.hungup {
		ev |= kvfs.PollHangup
	} else {
		ev |= kvfs.PollWritable
	}
	return ev, nil
}
