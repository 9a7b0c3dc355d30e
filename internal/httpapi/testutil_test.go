package httpapi

import (
	"context"
	"errors"
	"sync"

	"dispatchd/pkg/types"
)

type mockService struct {
	mu       sync.Mutex
	res      types.DispatchResponse
	events   []types.ProgressEvent
	lastReq  types.DispatchRequest
	status   types.StatusResponse
	ports    types.PortsResponse
	resolve  types.ResolveResponse
	resolveE error
	stopped  []int
	ready    bool
}

func (m *mockService) Dispatch(_ context.Context, req types.DispatchRequest, onEvent func(types.ProgressEvent)) types.DispatchResponse {
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	if onEvent != nil {
		for _, e := range m.events {
			onEvent(e)
		}
	}
	return m.res
}

func (m *mockService) Status() types.StatusResponse                  { return m.status }
func (m *mockService) Ports(context.Context) types.PortsResponse     { return m.ports }
func (m *mockService) Ready(context.Context) bool                    { return m.ready }
func (m *mockService) ResolvePort(context.Context, int) (types.ResolveResponse, error) {
	return m.resolve, m.resolveE
}

func (m *mockService) StopPort(port int) error {
	if port == 9999 {
		return errors.New("no process launched on port 9999")
	}
	m.stopped = append(m.stopped, port)
	return nil
}
