package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry counts calls so tests can assert on them.
type MockMetricsRegistry struct {
	mu             sync.Mutex
	Requests       map[string]int
	AdRequests     map[string]int
	NoOps          int
	Dispatches     map[string]int
	Pixels         int
	Errors         map[string]int
	VisitorCookies int
	SandboxRecords map[string]int
}

// NewMockMetricsRegistry returns an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests:       make(map[string]int),
		AdRequests:     make(map[string]int),
		Dispatches:     make(map[string]int),
		Errors:         make(map[string]int),
		SandboxRecords: make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[endpoint+" "+method+" "+status]++
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementAdRequests(requestType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdRequests[requestType]++
}

func (m *MockMetricsRegistry) IncrementNoOpRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NoOps++
}

func (m *MockMetricsRegistry) IncrementDispatches(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Dispatches[outcome]++
}

func (m *MockMetricsRegistry) RecordDispatchLatency(duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementPixels() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pixels++
}

func (m *MockMetricsRegistry) IncrementErrors(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[kind]++
}

func (m *MockMetricsRegistry) IncrementVisitorCookies() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VisitorCookies++
}

func (m *MockMetricsRegistry) IncrementSandboxRecords(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SandboxRecords[kind]++
}
