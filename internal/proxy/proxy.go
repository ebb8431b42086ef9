// Package proxy implements the client-side half of the control protocol:
// Proxy makes a remote ControlWrapper indistinguishable from a local
// service.Service by encoding each Service call as a command line and
// decoding the reply sequence spec.md §4.2 describes.
package proxy

import (
	"fmt"
	"strconv"
	"strings"

	"etdc/internal/etdaddr"
	"etdc/internal/etderrors"
	"etdc/internal/lineproto"
	"etdc/internal/openmode"
	"etdc/internal/transport"
	"etdc/internal/uuidtok"
)

// shortReplyBufCap is the 2 KiB bound for replies with no unbounded
// payload; listReplyBufCap is the 16 KiB bound for "list" replies.
const (
	shortReplyBufCap = 2048
	listReplyBufCap  = 16 * 1024
)

// Proxy is a wire-level shim to a remote LocalServer. It satisfies
// service.Service; SendFile dispatches the "send-file" control command
// and returns once the remote side reports completion.
type Proxy struct {
	conn transport.Conn
	uuid uuidtok.UUID
}

// New wraps an established control connection. The Proxy's UUID is not
// known until the remote side reports one via a write-file or read-file
// reply.
func New(conn transport.Conn) *Proxy {
	return &Proxy{conn: conn}
}

// remoteError carries an ERR reply's payload back as a Go error, preserving
// the message the remote ControlWrapper produced from its own Service
// error.
type remoteError struct{ reason string }

func (e *remoteError) Error() string { return e.reason }

func (p *Proxy) ListPath(path string, allowTilde bool) ([]string, error) {
	if path == "" {
		return nil, etderrors.NewInvalidArgument("listPath: empty path")
	}
	lines, err := p.roundTrip("list "+path, listReplyBufCap)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(lines))
	for _, l := range lines {
		if !strings.HasPrefix(l, "OK ") {
			return nil, etderrors.NewProtocolError("list: unexpected reply line " + l)
		}
		entries = append(entries, l[len("OK "):])
	}
	return entries, nil
}

func (p *Proxy) RequestFileWrite(path string, mode openmode.Mode) (uuidtok.UUID, int64, error) {
	cmd := fmt.Sprintf("write-file-%d %s", int(mode), path)
	lines, err := p.roundTrip(cmd, shortReplyBufCap)
	if err != nil {
		return "", 0, err
	}
	already, uuid, err := parseFields(lines, "AlreadyHave:")
	if err != nil {
		return "", 0, err
	}
	p.uuid = uuid
	return uuid, already, nil
}

func (p *Proxy) RequestFileRead(path string, alreadyHave int64) (uuidtok.UUID, int64, error) {
	cmd := fmt.Sprintf("read-file %d %s", alreadyHave, path)
	lines, err := p.roundTrip(cmd, shortReplyBufCap)
	if err != nil {
		return "", 0, err
	}
	remain, uuid, err := parseFields(lines, "Remain:")
	if err != nil {
		return "", 0, err
	}
	p.uuid = uuid
	return uuid, remain, nil
}

func (p *Proxy) DataChannelAddr() ([]etdaddr.SockName, error) {
	lines, err := p.roundTrip("data-channel-addr", listReplyBufCap)
	if err != nil {
		return nil, err
	}
	addrs := make([]etdaddr.SockName, 0, len(lines))
	for _, l := range lines {
		if !strings.HasPrefix(l, "OK ") {
			return nil, etderrors.NewProtocolError("data-channel-addr: unexpected reply line " + l)
		}
		addr, derr := etdaddr.Decode(l[len("OK "):])
		if derr != nil {
			return nil, derr
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (p *Proxy) RemoveUUID(uuid uuidtok.UUID) (bool, error) {
	_, err := p.roundTrip("remove-uuid "+uuid.String(), shortReplyBufCap)
	if err != nil {
		if _, ok := err.(*remoteError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Proxy) SendFile(srcUUID, dstUUID uuidtok.UUID, nBytes int64, addrs []etdaddr.SockName) (bool, error) {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	cmd := fmt.Sprintf("send-file %s %s %d %s", srcUUID, dstUUID, nBytes, strings.Join(parts, ","))
	_, err := p.roundTrip(cmd, shortReplyBufCap)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetFile has no wire representation: the control protocol carries only
// "send-file" (spec.md §4.2's table has no symmetric pull command), and
// the original implementation this system was distilled from likewise
// never defines ETDProxy::getFile. Pulling bytes into a file necessarily
// happens on the host that owns that file, so getFile is only ever called
// on a local Service; a remote destination always receives via the
// source's sendFile instead.
func (p *Proxy) GetFile(srcUUID, dstUUID uuidtok.UUID, nBytes int64, addrs []etdaddr.SockName) (bool, error) {
	return false, etderrors.NewInvalidArgument("getFile cannot be proxied: call it on the local Service that owns the destination file")
}

// roundTrip sends cmd terminated by a newline and collects reply lines
// until a bare "OK" or an "ERR ..." line terminates the sequence. On
// success it returns every line read before the terminator (payload and
// field lines, in arrival order). On ERR it returns a *remoteError with
// the reason preserved, unless the ERR arrived after one or more OK
// payload lines were already collected — spec.md §4.2/§8 treats switching
// from OK to ERR mid-reply as a protocol violation, not an ordinary
// failure, since the server committed to success before reneging. Either
// way, any bytes left buffered past the terminal line are also a protocol
// violation: the remote sent more than the reply it just terminated.
func (p *Proxy) roundTrip(cmd string, bufCap int) ([]string, error) {
	if _, err := p.conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, etderrors.NewIOError("write", "", err)
	}

	framer := lineproto.NewFramer(bufCap)
	tmp := make([]byte, 512)
	var collected []string
	for {
		n, err := p.conn.Read(tmp)
		if n > 0 {
			if ferr := framer.Feed(tmp[:n]); ferr != nil {
				return nil, ferr
			}
			lines := framer.Lines()
			for i, line := range lines {
				last := i == len(lines)-1
				switch {
				case line == "OK":
					if framer.Residual() != 0 || !last {
						return nil, etderrors.NewProtocolError("trailing bytes after OK")
					}
					return collected, nil
				case line == "ERR" || strings.HasPrefix(line, "ERR "):
					if framer.Residual() != 0 || !last {
						return nil, etderrors.NewProtocolError("trailing bytes after ERR")
					}
					if len(collected) > 0 {
						reason := strings.TrimSpace(strings.TrimPrefix(line, "ERR"))
						return nil, etderrors.NewProtocolError("ERR after OK payload lines: " + reason)
					}
					reason := strings.TrimSpace(strings.TrimPrefix(line, "ERR"))
					return nil, &remoteError{reason: reason}
				default:
					collected = append(collected, line)
				}
			}
		}
		if err != nil {
			return nil, etderrors.NewIOError("read", "", err)
		}
	}
}

// parseFields extracts the mandatory numeric field (named by numericKey,
// either "AlreadyHave:" or "Remain:") and the mandatory "UUID:" field from
// a write-file/read-file reply, failing if either is missing or
// duplicated.
func parseFields(lines []string, numericKey string) (int64, uuidtok.UUID, error) {
	var (
		numVal  int64
		uuidVal uuidtok.UUID
		sawNum  bool
		sawUUID bool
	)
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, numericKey):
			if sawNum {
				return 0, "", etderrors.NewProtocolError("duplicate " + numericKey + " field")
			}
			v, err := strconv.ParseInt(strings.TrimPrefix(l, numericKey), 10, 64)
			if err != nil {
				return 0, "", etderrors.NewProtocolError("malformed " + numericKey + " field")
			}
			numVal = v
			sawNum = true
		case strings.HasPrefix(l, "UUID:"):
			if sawUUID {
				return 0, "", etderrors.NewProtocolError("duplicate UUID: field")
			}
			u, err := uuidtok.Parse(strings.TrimPrefix(l, "UUID:"))
			if err != nil {
				return 0, "", etderrors.NewProtocolError("malformed UUID: field")
			}
			uuidVal = u
			sawUUID = true
		default:
			return 0, "", etderrors.NewProtocolError("unexpected reply line " + l)
		}
	}
	if !sawNum || !sawUUID {
		return 0, "", etderrors.NewProtocolError("reply missing required field")
	}
	return numVal, uuidVal, nil
}
