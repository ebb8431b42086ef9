// Package service defines the Service contract: the five-and-two
// operations that both LocalServer and Proxy implement identically, per
// spec.md §4.1. Callers drive a pair of Services (source and destination)
// and never need to know whether either is local or remote.
package service

import (
	"etdc/internal/etdaddr"
	"etdc/internal/openmode"
	"etdc/internal/uuidtok"
)

// Service is the abstract contract implemented by both a LocalServer
// (direct access to the registry on its own host) and a Proxy (a
// wire-level shim to a remote LocalServer via a ControlWrapper).
type Service interface {
	// ListPath returns directory/file entries matching path. If path ends
	// in "/", "*" is appended before expansion. Directory entries are
	// marked with a trailing "/". allowTilde requests tilde expansion;
	// proxies always pass false to a remote server.
	ListPath(path string, allowTilde bool) ([]string, error)

	// RequestFileWrite opens path for writing under mode and returns this
	// Service's UUID plus the file's current length on disk (0 for
	// New/OverWrite, the existing size for Resume).
	RequestFileWrite(path string, mode openmode.Mode) (uuidtok.UUID, int64, error)

	// RequestFileRead opens path for reading, seeks to alreadyHave, and
	// returns this Service's UUID plus the number of remaining bytes.
	RequestFileRead(path string, alreadyHave int64) (uuidtok.UUID, int64, error)

	// DataChannelAddr returns the currently advertised data-channel
	// addresses.
	DataChannelAddr() ([]etdaddr.SockName, error)

	// RemoveUUID releases the transfer record for uuid, which must equal
	// this Service's own UUID. Returns false if no such record exists.
	RemoveUUID(uuid uuidtok.UUID) (bool, error)

	// SendFile streams nBytes from the record referenced by srcUUID (which
	// must be this Service's own UUID, opened for Read) to dstUUID over a
	// freshly dialed data connection, trying each address in turn.
	SendFile(srcUUID, dstUUID uuidtok.UUID, nBytes int64, addrs []etdaddr.SockName) (bool, error)

	// GetFile is the symmetric pull: it streams nBytes from a data
	// connection into the record referenced by dstUUID (which must be
	// this Service's own UUID, opened for writing and not SkipExisting).
	GetFile(srcUUID, dstUUID uuidtok.UUID, nBytes int64, addrs []etdaddr.SockName) (bool, error)
}
