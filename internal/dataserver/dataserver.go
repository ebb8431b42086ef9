// Package dataserver implements the passive side of the data protocol:
// accept a connection, find the header, lock the referenced transfer, and
// run the push_n/pull_n byte-copy loop described in spec.md §4.5.
package dataserver

import (
	"strconv"

	"etdc/internal/dataheader"
	"etdc/internal/etderrors"
	"etdc/internal/openmode"
	"etdc/internal/registry"
	"etdc/internal/transport"
	"etdc/internal/uuidtok"
)

const copyChunk = 10 * 1024 * 1024

// Server is the server-side data-connection handler: one Handle call per
// accepted data connection.
type Server struct {
	reg *registry.Registry
}

// New returns a data server operating against the shared registry reg.
func New(reg *registry.Registry) *Server {
	return &Server{reg: reg}
}

// Handle reads the header from conn, locks the transfer it names, and runs
// the indicated push_n or pull_n loop to completion. It returns any error
// encountered; the caller is responsible for closing conn afterward.
func (s *Server) Handle(conn transport.Conn) error {
	header, leftover, err := readHeader(conn)
	if err != nil {
		return err
	}

	uuidStr, ok := header.Get("uuid")
	if !ok {
		return etderrors.NewProtocolError("data header missing required field 'uuid'")
	}
	szStr, ok := header.Get("sz")
	if !ok {
		return etderrors.NewProtocolError("data header missing required field 'sz'")
	}
	n, err := strconv.ParseInt(szStr, 10, 64)
	if err != nil || n < 0 {
		return etderrors.NewProtocolError("data header has invalid 'sz' value " + szStr)
	}
	pushVal, hasPush := header.Get("push")
	if hasPush && pushVal != "1" {
		return etderrors.NewProtocolError("data header has invalid 'push' value " + pushVal)
	}

	uuid, err := uuidtok.Parse(uuidStr)
	if err != nil {
		return etderrors.NewProtocolError("data header has invalid 'uuid' value")
	}

	rec, ok := s.reg.Acquire(uuid)
	if !ok {
		return etderrors.NewInvalidArgument("data server: no transfer registered for uuid " + uuidStr)
	}
	defer rec.Unlock()

	if hasPush {
		// The far end wants us to push: our record must be readable.
		if rec.OpenMode != openmode.Read {
			return etderrors.NewInvalidArgument("data server: transfer is not open for reading")
		}
		return pushN(rec.Fd, conn, n)
	}
	// The far end wants us to pull: our record must be writable, but
	// never SkipExisting (that mode exists only to refuse to be touched).
	if !openmode.GetFileWriteModes[rec.OpenMode] {
		return etderrors.NewInvalidArgument("data server: transfer is not open for writing")
	}
	return pullN(conn, rec.Fd, n, leftover)
}

// readHeader accumulates bytes from conn until dataheader.Find locates a
// complete "{ ... }" span or the configured limit is exceeded. It returns
// the decoded header plus any payload bytes that were read past the
// closing brace in the same read.
func readHeader(conn transport.Conn) (dataheader.Header, []byte, error) {
	buf := make([]byte, 0, dataheader.MaxHeaderBytes)
	tmp := make([]byte, 512)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if len(buf) > 0 {
			h, consumed, ok, herr := dataheader.Find(buf)
			if herr != nil {
				return dataheader.Header{}, nil, herr
			}
			if ok {
				return h, buf[consumed:], nil
			}
		}
		if len(buf) >= dataheader.MaxHeaderBytes {
			return dataheader.Header{}, nil, etderrors.NewProtocolError("data header exceeds 4KiB without a closing '}'")
		}
		if err != nil {
			return dataheader.Header{}, nil, etderrors.NewIOError("read-header", "", err)
		}
	}
}

// pushN streams exactly n bytes from src to dst, then reads one
// acknowledgement byte from dst.
func pushN(src registry.File, dst transport.Conn, n int64) error {
	buf := make([]byte, copyChunk)
	remaining := n
	for remaining > 0 {
		want := int64(copyChunk)
		if remaining < want {
			want = remaining
		}
		if err := readFullFile(src, buf[:want]); err != nil {
			return err
		}
		if err := writeFullConn(dst, buf[:want]); err != nil {
			return err
		}
		remaining -= want
	}
	ack := make([]byte, 1)
	if _, err := dst.Read(ack); err != nil {
		return etderrors.NewIOError("read-ack", "", err)
	}
	return nil
}

// pullN streams exactly n bytes from src into dst. leftover holds bytes
// already read past the header in the same read call and must be flushed
// to dst first, per spec.md §4.5's "suffix bytes belong to the payload"
// rule. It finishes by writing the single ack byte 'y' to src.
func pullN(src transport.Conn, dst registry.File, n int64, leftover []byte) error {
	remaining := n
	if len(leftover) > 0 {
		take := leftover
		if int64(len(take)) > remaining {
			take = take[:remaining]
		}
		if len(take) > 0 {
			if err := writeFullFile(dst, take); err != nil {
				return err
			}
			remaining -= int64(len(take))
		}
	}

	buf := make([]byte, copyChunk)
	for remaining > 0 {
		want := int64(copyChunk)
		if remaining < want {
			want = remaining
		}
		n, err := src.Read(buf[:want])
		if n == 0 {
			if err != nil {
				return etderrors.NewIOError("read", "", err)
			}
			return &etderrors.ShortRead{Wanted: remaining, Got: 0}
		}
		if err := writeFullFile(dst, buf[:n]); err != nil {
			return err
		}
		remaining -= int64(n)
	}

	if err := writeFullConn(src, []byte{'y'}); err != nil {
		return etderrors.NewIOError("write-ack", "", err)
	}
	return nil
}

func readFullFile(f registry.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Read(p)
		if n == 0 && err != nil {
			return etderrors.NewIOError("read", "", err)
		}
		if n == 0 {
			return &etderrors.ShortRead{Wanted: int64(len(p)), Got: 0}
		}
		p = p[n:]
	}
	return nil
}

func writeFullFile(f registry.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return etderrors.NewIOError("write", "", err)
		}
		if n == 0 {
			return &etderrors.ShortWrite{Wanted: int64(len(p)), Got: 0}
		}
		p = p[n:]
	}
	return nil
}

func writeFullConn(c transport.Conn, p []byte) error {
	for len(p) > 0 {
		n, err := c.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return &etderrors.ShortWrite{Wanted: int64(len(p)), Got: 0}
		}
		p = p[n:]
	}
	return nil
}
