// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Page() config.PageConfig {
	args := m.Called()
	return args.Get(0).(config.PageConfig)
}

func (m *MockConfig) Extractor() config.ExtractorConfig {
	args := m.Called()
	return args.Get(0).(config.ExtractorConfig)
}

func (m *MockConfig) Poll() config.PollConfig {
	args := m.Called()
	return args.Get(0).(config.PollConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)         { m.Called(b) }
func (m *MockConfig) SetBrowserRemoteURL(s string)      { m.Called(s) }
func (m *MockConfig) SetPollMaxAttempts(n int)          { m.Called(n) }
func (m *MockConfig) SetPollRetryDelay(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetMetricsAddr(s string)           { m.Called(s) }

// -- Collaborator Mock --

// MockCollaborator mocks schemas.Collaborator.
type MockCollaborator struct {
	mock.Mock
}

func (m *MockCollaborator) FetchCurrentTable(ctx context.Context) (schemas.Element, error) {
	args := m.Called(ctx)
	var el schemas.Element
	if v := args.Get(0); v != nil {
		el = v.(schemas.Element)
	}
	return el, args.Error(1)
}

func (m *MockCollaborator) RefreshSearch(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCollaborator) Click(ctx context.Context, el schemas.Element, mode schemas.ClickMode) error {
	args := m.Called(ctx, el, mode)
	return args.Error(0)
}

func (m *MockCollaborator) WaitInteractable(ctx context.Context, el schemas.Element) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockCollaborator) ConfirmCommit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Element Mock --

// MockElement mocks schemas.Element.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) Find(ctx context.Context, selector string) ([]schemas.Element, error) {
	args := m.Called(ctx, selector)
	var els []schemas.Element
	if v := args.Get(0); v != nil {
		els = v.([]schemas.Element)
	}
	return els, args.Error(1)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Attr(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockElement) Visible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) String() string {
	return "mock-element"
}
