package reactorio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileOptions is the mode bitset governing how [OpenFile] opens a path,
// translated to OS open flags by openFlags.
type FileOptions struct {
	Read      bool
	Write     bool
	Create    bool
	Truncate  bool
	Append    bool
	ReadWrite bool
}

func (o FileOptions) openFlags() int {
	flags := 0
	switch {
	case o.ReadWrite:
		flags |= unix.O_RDWR
	case o.Write:
		flags |= unix.O_WRONLY
	default:
		flags |= unix.O_RDONLY
	}
	if o.Create {
		flags |= unix.O_CREAT
	}
	if o.Truncate {
		flags |= unix.O_TRUNC
	}
	if o.Append {
		flags |= unix.O_APPEND
	}
	return flags
}

// File is a [Handle] opened against a filesystem path, with mode and
// seek semantics distinct from a socket.
type File struct {
	*Handle
}

// OpenFile opens path with the given [FileOptions], always non-blocking
// so the result can be driven by either reactor backend.
func OpenFile(path string, opts FileOptions) (*File, error) {
	fd, err := unix.Open(path, opts.openFlags()|unix.O_NONBLOCK, 0o644)
	if err != nil {
		return nil, Wrap(err, fmt.Sprintf("opening %q", path))
	}
	return &File{Handle: NewGenericHandle(fd)}, nil
}

// Read implements [Reader] by issuing a single non-blocking read(2).
func (f *File) Read(p []byte) (int, error) {
	n, err := unix.Read(f.Fd(), p)
	if err != nil {
		return 0, Wrap(err, "read")
	}
	return n, nil
}

// Write implements [Writer] by issuing a single non-blocking write(2).
func (f *File) Write(p []byte) (int, error) {
	n, err := unix.Write(f.Fd(), p)
	if err != nil {
		return 0, Wrap(err, "write")
	}
	return n, nil
}
