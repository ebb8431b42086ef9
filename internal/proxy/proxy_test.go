package proxy

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etdc/internal/etderrors"
)

func TestGetFileIsNotWireRepresentable(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	p := New(client)
	_, err := p.GetFile("src", "dst", 10, nil)
	var inv *etderrors.InvalidArgument
	assert.ErrorAs(t, err, &inv)
}

func TestParseFieldsRejectsMissingNumericField(t *testing.T) {
	_, _, err := parseFields([]string{"UUID:abc"}, "AlreadyHave:")
	assert.Error(t, err)
}

func TestParseFieldsRejectsMissingUUIDField(t *testing.T) {
	_, _, err := parseFields([]string{"AlreadyHave:0"}, "AlreadyHave:")
	assert.Error(t, err)
}

func TestParseFieldsRejectsDuplicateField(t *testing.T) {
	_, _, err := parseFields([]string{"AlreadyHave:0", "AlreadyHave:1", "UUID:abc"}, "AlreadyHave:")
	assert.Error(t, err)
}

func TestParseFieldsRejectsUnexpectedLine(t *testing.T) {
	_, _, err := parseFields([]string{"AlreadyHave:0", "UUID:abc", "Bogus:1"}, "AlreadyHave:")
	assert.Error(t, err)
}

func TestParseFieldsAcceptsWellFormedReply(t *testing.T) {
	n, uuid, err := parseFields([]string{"Remain:42", "UUID:abc-123"}, "Remain:")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, "abc-123", uuid.String())
}

func TestRoundTripSurfacesRemoteErrorReason(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		srv.Read(buf) // consume the command line
		srv.Write([]byte("ERR something went wrong\n"))
	}()

	p := New(client)
	_, err := p.roundTrip("list /nope", shortReplyBufCap)
	<-done
	require.Error(t, err)
	assert.Equal(t, "something went wrong", err.(*remoteError).reason)
}

func TestRoundTripCollectsLinesUntilBareOK(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		srv.Read(buf)
		srv.Write([]byte("OK a\nOK b\nOK\n"))
	}()

	p := New(client)
	lines, err := p.roundTrip("list /dir", listReplyBufCap)
	<-done
	require.NoError(t, err)
	assert.Equal(t, []string{"OK a", "OK b"}, lines)
}

func TestRoundTripTreatsErrAfterOKPayloadAsProtocolError(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		srv.Read(buf)
		srv.Write([]byte("OK entry1\nOK entry2\nERR disk full\n"))
	}()

	p := New(client)
	_, err := p.roundTrip("list /dir", listReplyBufCap)
	<-done
	var proto *etderrors.ProtocolError
	assert.ErrorAs(t, err, &proto)
}

func TestRoundTripRejectsResidualBytesAfterOK(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		srv.Read(buf)
		srv.Write([]byte("OK\nextra"))
	}()

	p := New(client)
	_, err := p.roundTrip("list /dir", listReplyBufCap)
	<-done
	var proto *etderrors.ProtocolError
	assert.ErrorAs(t, err, &proto)
}
