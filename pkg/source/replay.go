package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"posewire/pkg/protocol"
)

var ErrEmptyReplay = errors.New("replay file holds no complete record")

// Replay plays back a raw record capture, starting over at end of file.
// A trailing partial record is ignored.
type Replay struct {
	rs     io.ReadSeeker
	closer io.Closer
	ra     *protocol.Reassembler
	frames uint64
	loops  uint64
}

// OpenReplay opens a capture written by logger.RawWriter.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReplay(f)
	r.closer = f
	return r, nil
}

func NewReplay(rs io.ReadSeeker) *Replay {
	return &Replay{rs: rs, ra: protocol.NewReassembler(rs)}
}

func (r *Replay) Sample(time.Time) (Sample, error) {
	for {
		frame, err := r.ra.Next()
		if err == nil {
			r.frames++
			return &frame, nil
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, protocol.ErrTruncatedStream) {
			return nil, fmt.Errorf("replay: %w", err)
		}
		if r.frames == 0 {
			return nil, ErrEmptyReplay
		}
		if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("replay rewind: %w", err)
		}
		r.ra = protocol.NewReassembler(r.rs)
		r.frames = 0
		r.loops++
	}
}

// Loops reports how many times playback wrapped around.
func (r *Replay) Loops() uint64 {
	return r.loops
}

func (r *Replay) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
