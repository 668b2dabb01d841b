package protocol

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// DefaultBankSize matches the receive buffer of the capture clients.
const DefaultBankSize = 64 * 1024

// ReassemblerStats counts the work done on one stream.
type ReassemblerStats struct {
	Frames       uint64
	BytesRead    uint64
	CarriedBytes uint64
	BankSwaps    uint64
}

// Reassembler turns an arbitrarily chunked byte stream into whole records.
//
// Two fixed banks alternate: after a record is consumed only the trailing
// partial bytes move, and they move to the start of the idle bank. Reads are
// capped at the free space of the active bank, so memory never grows past
// two banks.
type Reassembler struct {
	r       io.Reader
	banks   [2][]byte
	active  int
	pending int
	readErr error
	err     error
	stats   ReassemblerStats
}

type ReassemblerOption func(*Reassembler)

// WithBankSize sets the capacity of each bank. Sizes below RecordSize are
// raised to RecordSize.
func WithBankSize(n int) ReassemblerOption {
	return func(ra *Reassembler) {
		if n <= 0 {
			return
		}
		if n < RecordSize {
			n = RecordSize
		}
		ra.banks[0] = make([]byte, n)
		ra.banks[1] = make([]byte, n)
	}
}

func NewReassembler(r io.Reader, opts ...ReassemblerOption) *Reassembler {
	ra := &Reassembler{r: r}
	for _, opt := range opts {
		opt(ra)
	}
	if ra.banks[0] == nil {
		ra.banks[0] = make([]byte, DefaultBankSize)
		ra.banks[1] = make([]byte, DefaultBankSize)
	}
	return ra
}

// Next returns the next record of the stream.
//
// A clean end of stream on a record boundary yields io.EOF. Every other
// terminal condition is reported once and then repeated: ErrTruncatedStream
// when the stream stops inside a record, ErrHeaderMismatch when a record tag
// is wrong, ErrTransport for read failures.
func (ra *Reassembler) Next() (SkeletonFrame, error) {
	if ra.err != nil {
		return SkeletonFrame{}, ra.err
	}

	for ra.pending < RecordSize {
		if ra.readErr != nil {
			ra.err = ra.finish()
			return SkeletonFrame{}, ra.err
		}
		ra.fill()
	}

	bank := ra.banks[ra.active]
	frame, err := Decode(bank[:RecordSize])
	if err != nil {
		// No resync: the rest of the stream is not trusted.
		ra.pending = 0
		ra.err = err
		return SkeletonFrame{}, err
	}

	leftover := ra.pending - RecordSize
	if leftover > 0 {
		next := 1 - ra.active
		copy(ra.banks[next], bank[RecordSize:ra.pending])
		ra.active = next
		ra.stats.CarriedBytes += uint64(leftover)
		ra.stats.BankSwaps++
	}
	ra.pending = leftover
	ra.stats.Frames++
	return frame, nil
}

// All ranges over the remaining records. A terminal error other than io.EOF
// is yielded as the final element.
func (ra *Reassembler) All() iter.Seq2[SkeletonFrame, error] {
	return func(yield func(SkeletonFrame, error) bool) {
		for {
			frame, err := ra.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(SkeletonFrame{}, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// Pending reports how many bytes of an incomplete record are buffered.
func (ra *Reassembler) Pending() int {
	return ra.pending
}

// BankSize reports the capacity of each bank.
func (ra *Reassembler) BankSize() int {
	return len(ra.banks[0])
}

func (ra *Reassembler) Stats() ReassemblerStats {
	return ra.stats
}

func (ra *Reassembler) fill() {
	bank := ra.banks[ra.active]
	n, err := ra.r.Read(bank[ra.pending:])
	if n > 0 {
		ra.pending += n
		ra.stats.BytesRead += uint64(n)
	}
	switch {
	case err != nil:
		ra.readErr = err
	case n == 0:
		ra.readErr = io.EOF
	}
}

func (ra *Reassembler) finish() error {
	if errors.Is(ra.readErr, io.EOF) {
		if ra.pending == 0 {
			return io.EOF
		}
		return fmt.Errorf("%w: %d of %d bytes", ErrTruncatedStream, ra.pending, RecordSize)
	}
	return fmt.Errorf("%w: %w", ErrTransport, ra.readErr)
}
