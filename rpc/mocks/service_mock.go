// Package mocks contains a hand-authored gomock mock for rpc.Handler, in
// the shape mockgen would generate for it (see rpc.Handler's doc comment
// for why the interface form exists rather than mocking Service directly).
package mocks

import (
	"reflect"

	"github.com/golang/mock/gomock"

	"github.com/damianoneill/rpcnet/wire"
)

// MockHandler is a mock of the rpc.Handler interface.
type MockHandler struct {
	ctrl     *gomock.Controller
	recorder *MockHandlerMockRecorder
}

// MockHandlerMockRecorder is the mock recorder for MockHandler.
type MockHandlerMockRecorder struct {
	mock *MockHandler
}

// NewMockHandler creates a new mock instance.
func NewMockHandler(ctrl *gomock.Controller) *MockHandler {
	mock := &MockHandler{ctrl: ctrl}
	mock.recorder = &MockHandlerMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockHandler) EXPECT() *MockHandlerMockRecorder {
	return m.recorder
}

// Handle mocks base method.
func (m *MockHandler) Handle(req []byte, rsp *wire.RspBuf) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Handle", req, rsp)
	ret0, _ := ret[0].(error)
	return ret0
}

// Handle indicates an expected call of Handle.
func (mr *MockHandlerMockRecorder) Handle(req, rsp interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Handle", reflect.TypeOf((*MockHandler)(nil).Handle), req, rsp)
}
