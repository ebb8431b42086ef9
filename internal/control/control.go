// Package control implements the server-side half of the control protocol:
// ControlWrapper reads command lines off an accepted connection, dispatches
// them to a bound service.Service, and writes back the reply sequence
// spec.md §4.2 prescribes.
package control

import (
	"errors"
	"strconv"
	"strings"

	"etdc/internal/etdaddr"
	"etdc/internal/etderrors"
	"etdc/internal/lineproto"
	"etdc/internal/openmode"
	"etdc/internal/service"
	"etdc/internal/transport"
	"etdc/internal/uuidtok"
)

// controlBufCap is the 2 KiB command buffer spec.md §4.4 specifies; filling
// it without a complete line is a fatal protocol violation.
const controlBufCap = 2048

// Wrapper runs one connection's command loop against a bound Service.
type Wrapper struct {
	svc  service.Service
	conn transport.Conn
}

// New returns a Wrapper that dispatches commands read from conn to svc.
func New(svc service.Service, conn transport.Conn) *Wrapper {
	return &Wrapper{svc: svc, conn: conn}
}

// errClientMisbehaved is the sentinel "fatal client misbehaviour"
// condition of spec.md §4.4: dispatch returns it after writing a single
// "ERR" reply for an unrecognized command, and the loop then terminates.
var errClientMisbehaved = errors.New("control: client misbehaved")

// Serve runs the per-connection command loop until the connection closes,
// a line buffer overflows, or the client sends an unrecognized command.
func (w *Wrapper) Serve() error {
	framer := lineproto.NewFramer(controlBufCap)
	tmp := make([]byte, 512)
	for {
		n, err := w.conn.Read(tmp)
		if n > 0 {
			if ferr := framer.Feed(tmp[:n]); ferr != nil {
				return ferr
			}
			for _, line := range framer.Lines() {
				if derr := w.dispatch(line); derr != nil {
					if errors.Is(derr, errClientMisbehaved) {
						return nil
					}
					return derr
				}
			}
		}
		if err != nil {
			return nil
		}
	}
}

func (w *Wrapper) dispatch(line string) error {
	lower := strings.ToLower(line)
	switch {
	case lower == "data-channel-addr":
		return w.handleDataChannelAddr()
	case strings.HasPrefix(lower, "list "):
		return w.handleList(line[len("list "):])
	case strings.HasPrefix(lower, "write-file-"):
		return w.handleWriteFile(line)
	case strings.HasPrefix(lower, "read-file "):
		return w.handleReadFile(line[len("read-file "):])
	case strings.HasPrefix(lower, "remove-uuid "):
		return w.handleRemoveUUID(line[len("remove-uuid "):])
	case strings.HasPrefix(lower, "send-file "):
		return w.handleSendFile(line[len("send-file "):])
	default:
		w.writeLine("ERR " + etderrors.NewProtocolError("unrecognized command").Error())
		return errClientMisbehaved
	}
}

func (w *Wrapper) handleList(path string) error {
	entries, err := w.svc.ListPath(path, false)
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	for _, e := range entries {
		if werr := w.writeLine("OK " + e); werr != nil {
			return werr
		}
	}
	return w.writeLine("OK")
}

func (w *Wrapper) handleWriteFile(line string) error {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return w.writeLine("ERR " + etderrors.NewProtocolError("malformed write-file command").Error())
	}
	modeTok := strings.TrimPrefix(strings.ToLower(fields[0]), "write-file-")
	path := fields[1]

	mode, err := openmode.Parse(modeTok)
	if err != nil {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument(err.Error()).Error())
	}
	uuid, already, err := w.svc.RequestFileWrite(path, mode)
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	return w.writeLines(
		"AlreadyHave:"+strconv.FormatInt(already, 10),
		"UUID:"+uuid.String(),
		"OK",
	)
}

func (w *Wrapper) handleReadFile(rest string) error {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) != 2 {
		return w.writeLine("ERR " + etderrors.NewProtocolError("malformed read-file command").Error())
	}
	already, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument("read-file: invalid alreadyHave").Error())
	}
	uuid, remain, err := w.svc.RequestFileRead(fields[1], already)
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	return w.writeLines(
		"Remain:"+strconv.FormatInt(remain, 10),
		"UUID:"+uuid.String(),
		"OK",
	)
}

func (w *Wrapper) handleDataChannelAddr() error {
	addrs, err := w.svc.DataChannelAddr()
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	for _, a := range addrs {
		if werr := w.writeLine("OK " + a.String()); werr != nil {
			return werr
		}
	}
	return w.writeLine("OK")
}

func (w *Wrapper) handleRemoveUUID(tok string) error {
	uuid, err := uuidtok.Parse(strings.TrimSpace(tok))
	if err != nil {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument("remove-uuid: invalid uuid").Error())
	}
	ok, err := w.svc.RemoveUUID(uuid)
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	if !ok {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument("remove-uuid: no such transfer").Error())
	}
	return w.writeLine("OK")
}

func (w *Wrapper) handleSendFile(rest string) error {
	fields := strings.SplitN(rest, " ", 4)
	if len(fields) != 4 {
		return w.writeLine("ERR " + etderrors.NewProtocolError("malformed send-file command").Error())
	}
	srcUUID, err := uuidtok.Parse(fields[0])
	if err != nil {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument("send-file: invalid srcUUID").Error())
	}
	dstUUID, err := uuidtok.Parse(fields[1])
	if err != nil {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument("send-file: invalid dstUUID").Error())
	}
	n, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return w.writeLine("ERR " + etderrors.NewInvalidArgument("send-file: invalid byte count").Error())
	}
	addrs, err := decodeAddrList(fields[3])
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	ok, err := w.svc.SendFile(srcUUID, dstUUID, n, addrs)
	if err != nil {
		return w.writeLine("ERR " + err.Error())
	}
	if !ok {
		return w.writeLine("ERR " + etderrors.NewProtocolError("send-file did not complete").Error())
	}
	return w.writeLine("OK")
}

func decodeAddrList(s string) ([]etdaddr.SockName, error) {
	parts := strings.Split(s, ",")
	out := make([]etdaddr.SockName, 0, len(parts))
	for _, p := range parts {
		addr, err := etdaddr.Decode(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func (w *Wrapper) writeLine(line string) error {
	_, err := w.conn.Write([]byte(line + "\n"))
	return err
}

func (w *Wrapper) writeLines(lines ...string) error {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	_, err := w.conn.Write([]byte(sb.String()))
	return err
}
