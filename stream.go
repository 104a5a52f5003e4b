package reactorio

import (
	"bytes"
	"context"
	"io"
	"slices"
)

// ReadWriteCloser is the minimum a [Stream] needs from its underlying
// connection: both [Socket] and [File] satisfy it.
type ReadWriteCloser interface {
	Reader
	Writer
	io.Closer
}

// Stream is a buffered byte stream layered over an async connection,
// driven by the [Context] running the calling Task. Grounded on
// streams.go's AsyncStream, rewired from its
// AsyncReadWriteCloser.WaitForReady retry loop onto [AsyncRead] and
// [AsyncWrite]: since both backends already hide EAGAIN behind a single
// completion, a Stream read or write needs no retry loop of its own,
// only a loop over short reads/writes.
type Stream struct {
	ctx  *Context
	conn ReadWriteCloser

	buffer []byte

	writeLock Mutex
}

// NewStream constructs a Stream over conn, driven by c.
func NewStream(c *Context, conn ReadWriteCloser) *Stream {
	return &Stream{ctx: c, conn: conn}
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

func (s *Stream) read(ctx context.Context, maxBytes int) (n int, err error) {
	if len(s.buffer) >= maxBytes {
		return maxBytes, nil
	}
	if cap(s.buffer) < maxBytes {
		s.buffer = slices.Grow(s.buffer, maxBytes)
	}

	fut := NewFuture[int]()
	AsyncRead(s.ctx, s.conn, s.buffer[len(s.buffer):maxBytes], func(n int, err error) {
		fut.SetResult(n, err)
	})
	readN, err := fut.Await(ctx)
	if readN > 0 {
		s.buffer = s.buffer[:len(s.buffer)+readN]
	}
	if err == nil && readN == 0 {
		err = io.EOF
	}
	return len(s.buffer), err
}

// Write writes data to the stream. The returned [Awaitable] resolves
// once every byte has been written, serialized against any other
// concurrent Write on the same Stream by s.writeLock.
func (s *Stream) Write(ctx context.Context, data []byte) Awaitable[int] {
	return SpawnTask(ctx, func(ctx context.Context) (int, error) {
		if err := s.writeLock.Lock(ctx); err != nil {
			return 0, err
		}
		defer s.writeLock.Unlock()

		var written int
		for len(data) > 0 {
			fut := NewFuture[int]()
			AsyncWrite(s.ctx, s.conn, data, func(n int, err error) {
				fut.SetResult(n, err)
			})
			n, err := fut.Await(ctx)
			if n > 0 {
				written += n
				data = data[n:]
			}
			if err != nil {
				return written, err
			}
		}
		return written, nil
	})
}

func (s *Stream) consumeInto(buf []byte) (n int) {
	n = copy(buf, s.buffer)
	copy(s.buffer, s.buffer[n:])
	s.buffer = s.buffer[:len(s.buffer)-n]
	return n
}

func (s *Stream) consume(maxBytes int) []byte {
	buf := make([]byte, min(maxBytes, len(s.buffer)))
	n := s.consumeInto(buf)
	return buf[:n]
}

func (s *Stream) consumeAll() []byte {
	buf := slices.Clone(s.buffer)
	s.buffer = s.buffer[:0]
	return buf
}

// Stream returns an [AsyncIterable] that yields the buffered data as
// soon as any is available. Each read asks for at most bufSize bytes; a
// chunk is larger than bufSize only when earlier calls left more than
// that already buffered.
func (s *Stream) Stream(ctx context.Context, bufSize int) AsyncIterable[[]byte] {
	return AsyncIter(func(yield func([]byte) error) error {
		for {
			n, err := s.read(ctx, bufSize)
			if n > 0 {
				if err := yield(s.consumeAll()); err != nil {
					return err
				}
			}
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}
		}
	})
}

// Chunks returns an [AsyncIterable] that iterates over the stream in
// fixed-size chunks of data. The final chunk may be shorter.
func (s *Stream) Chunks(ctx context.Context, chunkSize int) AsyncIterable[[]byte] {
	return AsyncIter(func(yield func([]byte) error) error {
		for {
			var err error
			for len(s.buffer) < chunkSize && err == nil {
				_, err = s.read(ctx, chunkSize)
			}
			if len(s.buffer) > 0 {
				if err := yield(s.consume(chunkSize)); err != nil {
					return err
				}
			}
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}
		}
	})
}

func (s *Stream) yieldLines(yield func([]byte) error, data []byte) error {
	start := 0
	for i, b := range data {
		if b == '\n' || i == len(data)-1 {
			if err := yield(data[start : i+1]); err != nil {
				return err
			}
			start = i + 1
		}
	}
	return nil
}

// Lines returns an [AsyncIterable] that iterates over all lines in the
// stream, newline included.
func (s *Stream) Lines(ctx context.Context) AsyncIterable[[]byte] {
	return AsyncIter(func(yield func([]byte) error) error {
		bufSize := 1024
		scanned := 0
		for {
			_, err := s.read(ctx, bufSize)
			if err == io.EOF {
				return s.yieldLines(yield, s.consumeAll())
			} else if err != nil {
				return err
			}

			for i := len(s.buffer) - 1; i >= scanned; i-- {
				if s.buffer[i] == '\n' {
					if err := s.yieldLines(yield, s.consume(i+1)); err != nil {
						return err
					}
					break
				}
			}
			scanned = len(s.buffer)
			if len(s.buffer) >= bufSize {
				bufSize *= 2
			}
		}
	})
}

// ReadLine returns all data up to and including the next newline.
func (s *Stream) ReadLine(ctx context.Context) ([]byte, error) {
	return s.ReadUntil(ctx, '\n')
}

// ReadUntil returns all data up to and including the next occurrence of
// character.
func (s *Stream) ReadUntil(ctx context.Context, character byte) ([]byte, error) {
	for i, b := range s.buffer {
		if b == character {
			return s.consume(i + 1), nil
		}
	}

	bufSize := 1024
	for {
		n, err := s.read(ctx, bufSize)
		for i := len(s.buffer) - n; i < len(s.buffer); i++ {
			if s.buffer[i] == character {
				return s.consume(i + 1), nil
			}
		}
		if err == io.EOF && len(s.buffer) > 0 {
			return s.consumeAll(), nil
		} else if err != nil {
			return nil, err
		}

		if len(s.buffer) >= bufSize {
			bufSize *= 2
		}
	}
}

// ReadChunk reads a single fixed-size chunk of data from the stream. A
// trailing short chunk is returned at end of stream.
func (s *Stream) ReadChunk(ctx context.Context, chunkSize int) ([]byte, error) {
	var err error
	for len(s.buffer) < chunkSize && err == nil {
		_, err = s.read(ctx, chunkSize)
	}
	if err == nil || (err == io.EOF && len(s.buffer) > 0) {
		return s.consume(chunkSize), nil
	}
	return nil, err
}

// ReadAll reads until end of stream and returns everything read.
func (s *Stream) ReadAll(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	for chunk := range s.Stream(ctx, 1024).UntilErr(&err) {
		buf.Write(chunk)
	}
	return buf.Bytes(), err
}
