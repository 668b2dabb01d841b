package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrShortBuffer     = errors.New("protocol: buffer shorter than one record")
	ErrHeaderMismatch  = errors.New("protocol: header mismatch")
	ErrTruncatedStream = errors.New("protocol: stream ended inside a record")
	ErrTransport       = errors.New("protocol: transport failure")
)

// HeaderError reports the tag found where ProtocolTag was expected.
type HeaderError struct {
	Got uint32
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("protocol: header mismatch: got tag %d want %d", e.Got, ProtocolTag)
}

func (e *HeaderError) Is(target error) bool {
	return target == ErrHeaderMismatch
}
