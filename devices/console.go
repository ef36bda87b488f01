package devices

import (
	"bytes"
	"sync"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/rs/zerolog"
)

// Console turns written bytes into log lines and reads from an input queue
// filled with Feed.
type Console struct {
	base
	logger zerolog.Logger

	mu    sync.Mutex
	line  bytes.Buffer // output not yet terminated by a newline
	input bytes.Buffer
}

func NewConsole() *Console {
	return &Console{
		base:   newBase(kvfs.TypeCharDevice, 5, 1, 0o620),
		logger: util.GetLogger("Console"),
	}
}

// WriteAt logs every complete line; a trailing partial line waits for the
// next write or Fsync.
func (c *Console) WriteAt(p []byte, _ int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.line.Write(p)
	for {
		i := bytes.IndexByte(c.line.Bytes(), '\n')
		if i < 0 {
			break
		}
		c.emit(c.line.Next(i + 1)[:i])
	}
	return len(p), nil
}

func (c *Console) emit(line []byte) {
	c.logger.Info().Msg(string(bytes.TrimRight(line, "\r")))
}

// Fsync logs any pending partial line.
func (c *Console) Fsync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.line.Len() > 0 {
		c.emit(c.line.Bytes())
		c.line.Reset()
	}
	return nil
}

// Feed queues input for readers.
func (c *Console) Feed(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.Write(p)
}

func (c *Console) ReadAt(p []byte, _ int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.input.Len() == 0 {
		return 0, kvfs.WouldBlock
	}
	n, _ := c.input.Read(p)
	return n, nil
}

func (c *Console) Poll() (kvfs.PollEvents, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev := kvfs.PollWritable
	if c.input.Len() > 0 {
		ev |= kvfs.PollReadable
	}
	return ev, nil
}
