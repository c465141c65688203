package providers

import (
	"context"
	"sync"
)

// MockClient is a scripted VisionClient for tests. Each call pops the
// next queued response; when the queue is empty the Respond function is
// used, and when that is nil a canned success is returned.
type MockClient struct {
	mu sync.Mutex

	ProviderName string
	ModelName    string

	// Respond computes a response when the queue is empty.
	Respond func(req *VisionRequest) (*VisionResult, error)

	queue []mockResponse
	calls []*VisionRequest
}

type mockResponse struct {
	result *VisionResult
	err    error
}

var _ VisionClient = (*MockClient)(nil)

// NewMock creates a mock client.
func NewMock(name string) *MockClient {
	return &MockClient{ProviderName: name, ModelName: "mock-model"}
}

// Enqueue adds a scripted response consumed by the next Vision call.
func (m *MockClient) Enqueue(result *VisionResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResponse{result: result, err: err})
}

// Calls returns every request seen so far.
func (m *MockClient) Calls() []*VisionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]*VisionRequest, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many Vision calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Name returns the configured provider name.
func (m *MockClient) Name() string { return m.ProviderName }

// Model returns the mock model identifier.
func (m *MockClient) Model() string { return m.ModelName }

// Vision records the request and returns the next scripted response.
func (m *MockClient) Vision(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var next *mockResponse
	if len(m.queue) > 0 {
		next = &m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	if next != nil {
		return next.result, next.err
	}
	if m.Respond != nil {
		return m.Respond(req)
	}
	return &VisionResult{
		Content:   "{}",
		Provider:  m.ProviderName,
		ModelUsed: m.ModelName,
		Success:   true,
	}, nil
}
