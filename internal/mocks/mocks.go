// Package mocks holds testify mocks shared by package tests.
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/skjsjhb/LCAP/internal/browser"
)

// -- Browser Host Mock --

// MockHost mocks browser.Host. Hook registration is recorded directly so
// tests don't need expectations for it; the Fire helpers invoke the hooks the
// way a real window would.
type MockHost struct {
	mock.Mock

	mu         sync.Mutex
	onNavigate func(string) bool
	onLoaded   func()
	onClose    func()
}

var _ browser.Host = (*MockHost)(nil)

func (m *MockHost) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockHost) SetVisible(ctx context.Context, visible bool) error {
	args := m.Called(ctx, visible)
	return args.Error(0)
}

func (m *MockHost) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHost) PersistentProfiles() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockHost) OnNavigationAttempt(fn func(url string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNavigate = fn
}

func (m *MockHost) OnPageLoaded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLoaded = fn
}

func (m *MockHost) OnCloseRequested(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// FireNavigation runs the navigation hook and returns its decision. With no
// hook registered every navigation is allowed.
func (m *MockHost) FireNavigation(url string) bool {
	m.mu.Lock()
	fn := m.onNavigate
	m.mu.Unlock()
	if fn == nil {
		return true
	}
	return fn(url)
}

// FirePageLoaded runs the page loaded hook, if any.
func (m *MockHost) FirePageLoaded() {
	m.mu.Lock()
	fn := m.onLoaded
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// FireCloseRequested runs the close hook, if any.
func (m *MockHost) FireCloseRequested() {
	m.mu.Lock()
	fn := m.onClose
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Launcher returns a browser.Launcher that hands out m and records the
// options it was asked to launch with.
func (m *MockHost) Launcher(got *browser.LaunchOptions) browser.Launcher {
	return func(ctx context.Context, opts browser.LaunchOptions) (browser.Host, error) {
		if got != nil {
			*got = opts
		}
		return m, nil
	}
}
