// Package server implements LocalServer: the Service contract driven
// directly against the local filesystem and a shared registry.Registry.
// Grounded on goshare's ETDServer-shaped responsibilities split across
// internal/store (shared state) and internal/transfer (the operations
// themselves), generalized to the seven-operation contract of spec.md §4.1.
package server

import (
	"context"
	"fmt"
	"os"
	"strings"

	"etdc/internal/etdaddr"
	"etdc/internal/etderrors"
	"etdc/internal/openmode"
	"etdc/internal/pathutil"
	"etdc/internal/progress"
	"etdc/internal/registry"
	"etdc/internal/transport"
	"etdc/internal/uuidtok"
)

// LocalServer implements service.Service directly against the local
// filesystem. Each LocalServer owns exactly one UUID and shares a single
// Registry with every other Service in the daemon.
type LocalServer struct {
	uuid     uuidtok.UUID
	reg      *registry.Registry
	dialers  *transport.Registry
	reporter func(label string) progress.Reporter
}

// Option configures a LocalServer at construction.
type Option func(*LocalServer)

// WithReporter installs a factory used to build a progress.Reporter for
// each sendFile/getFile call. The default installs progress.NoopReporter.
func WithReporter(f func(label string) progress.Reporter) Option {
	return func(s *LocalServer) { s.reporter = f }
}

// New allocates a fresh UUID and returns a LocalServer bound to it and to
// the given shared registry and transport dialer registry.
func New(reg *registry.Registry, dialers *transport.Registry, opts ...Option) *LocalServer {
	s := &LocalServer{
		uuid:    uuidtok.New(),
		reg:     reg,
		dialers: dialers,
		reporter: func(string) progress.Reporter {
			return progress.NoopReporter{}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UUID returns this Service's own identity.
func (s *LocalServer) UUID() uuidtok.UUID { return s.uuid }

func (s *LocalServer) ListPath(path string, allowTilde bool) ([]string, error) {
	if path == "" {
		return nil, etderrors.NewInvalidArgument("listPath: empty path")
	}
	expanded, err := pathutil.ExpandTilde(path, allowTilde)
	if err != nil {
		return nil, etderrors.NewInvalidArgument(err.Error())
	}
	gPath := expanded
	if strings.HasSuffix(expanded, "/") {
		gPath += "*"
	}
	entries, err := pathutil.Glob(gPath)
	if err != nil {
		return nil, etderrors.NewIOError("glob", gPath, err)
	}
	return entries, nil
}

func (s *LocalServer) RequestFileWrite(path string, mode openmode.Mode) (uuidtok.UUID, int64, error) {
	if !openmode.WritableModes[mode] {
		return "", 0, etderrors.NewInvalidArgument(fmt.Sprintf("requestFileWrite: invalid open mode %s", mode))
	}
	nPath, err := pathutil.Normalize(path)
	if err != nil {
		return "", 0, etderrors.NewIOError("normalize", path, err)
	}

	rec, err := s.reg.WithNewRecord(s.uuid, nPath, mode,
		func(existingAllRead bool) bool { return true }, // any existing record at all conflicts with a write
		func() (*registry.Record, error) {
			flags, perm := openmode.OSFlags(mode)
			if dir := parentDir(nPath); dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, etderrors.NewIOError("mkdirall", dir, err)
				}
			}
			f, err := os.OpenFile(nPath, flags, perm)
			if err != nil {
				return nil, etderrors.NewIOError("open", nPath, err)
			}
			return &registry.Record{Fd: f, Path: nPath, OpenMode: mode}, nil
		},
	)
	if err != nil {
		return "", 0, err
	}
	if mode == openmode.New || mode == openmode.OverWrite {
		return s.uuid, 0, nil
	}
	size, err := rec.Fd.Seek(0, os.SEEK_END)
	if err != nil {
		return "", 0, etderrors.NewIOError("seek", nPath, err)
	}
	return s.uuid, size, nil
}

func (s *LocalServer) RequestFileRead(path string, alreadyHave int64) (uuidtok.UUID, int64, error) {
	nPath, err := pathutil.Normalize(path)
	if err != nil {
		return "", 0, etderrors.NewIOError("normalize", path, err)
	}

	rec, err := s.reg.WithNewRecord(s.uuid, nPath, openmode.Read,
		func(existingAllRead bool) bool { return !existingAllRead }, // conflicts only if some existing record isn't Read
		func() (*registry.Record, error) {
			f, err := os.OpenFile(nPath, os.O_RDONLY, 0)
			if err != nil {
				return nil, etderrors.NewIOError("open", nPath, err)
			}
			if _, err := f.Seek(alreadyHave, os.SEEK_SET); err != nil {
				f.Close()
				return nil, etderrors.NewIOError("seek", nPath, err)
			}
			return &registry.Record{Fd: f, Path: nPath, OpenMode: openmode.Read}, nil
		},
	)
	if err != nil {
		return "", 0, err
	}
	size, err := seekEnd(rec.Fd)
	if err != nil {
		return "", 0, etderrors.NewIOError("seek", nPath, err)
	}
	return s.uuid, size - alreadyHave, nil
}

func (s *LocalServer) DataChannelAddr() ([]etdaddr.SockName, error) {
	return s.reg.DataAddrs(), nil
}

func (s *LocalServer) RemoveUUID(uuid uuidtok.UUID) (bool, error) {
	if uuid != s.uuid {
		return false, etderrors.NewInvalidArgument("removeUUID: cannot remove someone else's UUID")
	}
	return s.reg.Remove(uuid)
}

func (s *LocalServer) SendFile(srcUUID, dstUUID uuidtok.UUID, nBytes int64, addrs []etdaddr.SockName) (bool, error) {
	if srcUUID != s.uuid {
		return false, etderrors.NewInvalidArgument("sendFile: srcUUID is not our UUID")
	}
	rec, found, err := s.reg.AcquireBounded(srcUUID)
	if !found {
		return false, etderrors.NewInvalidArgument("sendFile: this server was not initialized yet")
	}
	if err != nil {
		return false, err
	}
	defer rec.Unlock()

	if rec.OpenMode != openmode.Read {
		return false, etderrors.NewInvalidArgument("sendFile: this server was initialized, but not for reading a file")
	}

	conn, err := dialAny(s.dialers, addrs)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	header := fmt.Sprintf("{ uuid:%s, sz:%d}", dstUUID, nBytes)
	if err := writeFull(conn, []byte(header)); err != nil {
		return false, etderrors.NewIOError("write", "", err)
	}

	reporter := s.reporter("send")
	reporter.Start(nBytes)
	defer reporter.Done()

	const bufSz = 10 * 1024 * 1024
	buf := make([]byte, bufSz)
	todo := nBytes
	for todo > 0 {
		n := int64(bufSz)
		if todo < n {
			n = todo
		}
		if err := readFull(rec.Fd, buf[:n]); err != nil {
			return false, etderrors.NewIOError("read", rec.Path, err)
		}
		if err := writeFull(conn, buf[:n]); err != nil {
			return false, etderrors.NewIOError("write", "", err)
		}
		reporter.Advance(int(n))
		todo -= n
	}

	ack := make([]byte, 1)
	if _, err := conn.Read(ack); err != nil {
		return false, etderrors.NewIOError("read-ack", "", err)
	}
	return true, nil
}

func (s *LocalServer) GetFile(srcUUID, dstUUID uuidtok.UUID, nBytes int64, addrs []etdaddr.SockName) (bool, error) {
	if dstUUID != s.uuid {
		return false, etderrors.NewInvalidArgument("getFile: dstUUID is not our UUID")
	}
	rec, found, err := s.reg.AcquireBounded(dstUUID)
	if !found {
		return false, etderrors.NewInvalidArgument("getFile: this server was not initialized yet")
	}
	if err != nil {
		return false, err
	}
	defer rec.Unlock()

	if !openmode.GetFileWriteModes[rec.OpenMode] {
		return false, etderrors.NewInvalidArgument("getFile: this server was initialized, but not for writing to file")
	}

	conn, err := dialAny(s.dialers, addrs)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	header := fmt.Sprintf("{ uuid:%s, push:1, sz:%d}", srcUUID, nBytes)
	if err := writeFull(conn, []byte(header)); err != nil {
		return false, etderrors.NewIOError("write", "", err)
	}

	reporter := s.reporter("get")
	reporter.Start(nBytes)
	defer reporter.Done()

	const bufSz = 10 * 1024 * 1024
	buf := make([]byte, bufSz)
	todo := nBytes
	for todo > 0 {
		max := int64(bufSz)
		if todo < max {
			max = todo
		}
		n, err := conn.Read(buf[:max])
		if err != nil {
			return false, etderrors.NewIOError("read", "", err)
		}
		if n <= 0 {
			return false, &etderrors.ShortRead{Wanted: todo, Got: 0}
		}
		if err := writeFull(rec.Fd, buf[:n]); err != nil {
			return false, etderrors.NewIOError("write", rec.Path, err)
		}
		reporter.Advance(n)
		todo -= int64(n)
	}

	if err := writeFull(conn, []byte{'y'}); err != nil {
		return false, etderrors.NewIOError("write-ack", "", err)
	}
	return true, nil
}

// dialAny tries each address in order, accumulating a diagnostic per
// failure, and returns the first successful connection. Mirrors spec.md
// §4.1's AllAddressesFailed contract.
func dialAny(dialers *transport.Registry, addrs []etdaddr.SockName) (transport.Conn, error) {
	var attempts []string
	for _, addr := range addrs {
		d, ok := dialers.Dialer(addr.Protocol)
		if !ok {
			attempts = append(attempts, fmt.Sprintf("%s: no dialer registered for protocol %q", addr, addr.Protocol))
			continue
		}
		conn, err := d.Dial(context.Background(), addr.Host, addr.Port)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		return conn, nil
	}
	return nil, &etderrors.AllAddressesFailed{Attempts: attempts}
}

func writeFull(w interface{ Write([]byte) (int, error) }, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
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

func readFull(r interface{ Read([]byte) (int, error) }, p []byte) error {
	for len(p) > 0 {
		n, err := r.Read(p)
		if n == 0 && err != nil {
			return err
		}
		if n == 0 {
			return &etderrors.ShortRead{Wanted: int64(len(p)), Got: 0}
		}
		p = p[n:]
	}
	return nil
}

func seekEnd(f registry.File) (int64, error) {
	cur, err := f.Seek(0, os.SEEK_CUR)
	if err != nil {
		return 0, err
	}
	end, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(cur, os.SEEK_SET); err != nil {
		return 0, err
	}
	return end, nil
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, os.PathSeparator)
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
