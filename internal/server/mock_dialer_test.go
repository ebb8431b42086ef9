package server

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"etdc/internal/etdaddr"
	"etdc/internal/etderrors"
	"etdc/internal/transport"
)

// MockDialer is a hand-written stand-in for what mockgen would generate for
// transport.Dialer, used to drive dialAny's fallback-on-failure behavior
// without a real network dial.
type MockDialer struct {
	ctrl     *gomock.Controller
	recorder *MockDialerMockRecorder
}

type MockDialerMockRecorder struct {
	mock *MockDialer
}

func NewMockDialer(ctrl *gomock.Controller) *MockDialer {
	m := &MockDialer{ctrl: ctrl}
	m.recorder = &MockDialerMockRecorder{m}
	return m
}

func (m *MockDialer) EXPECT() *MockDialerMockRecorder { return m.recorder }

func (m *MockDialer) Dial(ctx context.Context, host string, port int) (transport.Conn, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Dial", ctx, host, port)
	conn, _ := ret[0].(transport.Conn)
	err, _ := ret[1].(error)
	return conn, err
}

func (mr *MockDialerMockRecorder) Dial(ctx, host, port interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Dial", reflect.TypeOf((*MockDialer)(nil).Dial), ctx, host, port)
}

type fakeConn struct{}

func (fakeConn) Read([]byte) (int, error)  { return 0, nil }
func (fakeConn) Write([]byte) (int, error) { return 0, nil }
func (fakeConn) Close() error              { return nil }
func (fakeConn) LocalAddr() net.Addr       { return nil }
func (fakeConn) RemoteAddr() net.Addr      { return nil }

func TestDialAnyFallsBackToNextAddressOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	failing := NewMockDialer(ctrl)
	failing.EXPECT().Dial(gomock.Any(), "bad.example.com", 1).Return(nil, errors.New("connection refused"))

	succeeding := NewMockDialer(ctrl)
	want := &fakeConn{}
	succeeding.EXPECT().Dial(gomock.Any(), "good.example.com", 2).Return(want, nil)

	dialers := transport.NewRegistry()
	dialers.Register("fail", failing)
	dialers.Register("ok", succeeding)

	addrs := []etdaddr.SockName{
		{Protocol: "fail", Host: "bad.example.com", Port: 1},
		{Protocol: "ok", Host: "good.example.com", Port: 2},
	}

	conn, err := dialAny(dialers, addrs)
	require.NoError(t, err)
	assert.Same(t, want, conn)
}

func TestDialAnyReturnsAllAddressesFailedWhenEveryDialErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	failing := NewMockDialer(ctrl)
	failing.EXPECT().Dial(gomock.Any(), "bad.example.com", 1).Return(nil, errors.New("refused"))

	dialers := transport.NewRegistry()
	dialers.Register("fail", failing)

	addrs := []etdaddr.SockName{{Protocol: "fail", Host: "bad.example.com", Port: 1}}
	_, err := dialAny(dialers, addrs)

	var allFailed *etderrors.AllAddressesFailed
	assert.ErrorAs(t, err, &allFailed)
}

func TestDialAnyReturnsAllAddressesFailedForUnregisteredProtocol(t *testing.T) {
	dialers := transport.NewRegistry()
	addrs := []etdaddr.SockName{{Protocol: "unknown", Host: "h", Port: 1}}
	_, err := dialAny(dialers, addrs)

	var allFailed *etderrors.AllAddressesFailed
	assert.ErrorAs(t, err, &allFailed)
}
