package control_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etdc/internal/control"
	"etdc/internal/openmode"
	"etdc/internal/proxy"
	"etdc/internal/registry"
	"etdc/internal/server"
	"etdc/internal/transport"
)

// wireUp starts a control.Wrapper around a fresh server.LocalServer serving
// one end of an in-process pipe, and returns a proxy.Proxy bound to the
// other end plus a cleanup func.
func wireUp(t *testing.T) (*proxy.Proxy, func()) {
	t.Helper()
	reg := registry.New(nil)
	svc := server.New(reg, transport.NewRegistry())

	clientConn, serverConn := net.Pipe()
	w := control.New(svc, serverConn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Serve()
	}()

	p := proxy.New(clientConn)
	cleanup := func() {
		clientConn.Close()
		<-done
	}
	return p, cleanup
}

func TestListEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	p, cleanup := wireUp(t)
	defer cleanup()

	entries, err := p.ListPath(dir+"/", false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFileNewModeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	p, cleanup := wireUp(t)
	defer cleanup()

	uuid, already, err := p.RequestFileWrite(path, openmode.New)
	require.NoError(t, err)
	assert.False(t, uuid.IsZero())
	assert.Equal(t, int64(0), already)
}

func TestReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	p, cleanup := wireUp(t)
	defer cleanup()

	uuid, remain, err := p.RequestFileRead(path, 3)
	require.NoError(t, err)
	assert.False(t, uuid.IsZero())
	assert.Equal(t, int64(7), remain)
}

func TestDataChannelAddrRoundTripEmpty(t *testing.T) {
	p, cleanup := wireUp(t)
	defer cleanup()

	addrs, err := p.DataChannelAddr()
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestRemoveUUIDRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	p, cleanup := wireUp(t)
	defer cleanup()

	uuid, _, err := p.RequestFileWrite(path, openmode.New)
	require.NoError(t, err)

	ok, err := p.RemoveUUID(uuid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveUUIDUnknownReportsFalseNotError(t *testing.T) {
	p, cleanup := wireUp(t)
	defer cleanup()

	ok, err := p.RemoveUUID("not-a-real-uuid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFileConflictSurfacesAsRemoteError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	reg := registry.New(nil)
	svc1 := server.New(reg, transport.NewRegistry())
	_, _, err := svc1.RequestFileWrite(path, openmode.New)
	require.NoError(t, err)

	svc2 := server.New(reg, transport.NewRegistry())
	clientConn, serverConn := net.Pipe()
	w := control.New(svc2, serverConn)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Serve()
	}()
	defer func() {
		clientConn.Close()
		<-done
	}()

	p := proxy.New(clientConn)
	_, _, err = p.RequestFileWrite(path, openmode.New)
	assert.Error(t, err)
}

func TestUnrecognizedCommandRepliesErrAndEndsConnection(t *testing.T) {
	reg := registry.New(nil)
	svc := server.New(reg, transport.NewRegistry())
	clientConn, serverConn := net.Pipe()
	w := control.New(svc, serverConn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Serve()
	}()

	_, err := clientConn.Write([]byte("bogus-command\n"))
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, _ := clientConn.Read(buf)
	assert.Contains(t, string(buf[:n]), "ERR")

	clientConn.Close()
	<-done
}
