package mocks_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skjsjhb/LCAP/internal/browser"
	"github.com/skjsjhb/LCAP/internal/mocks"
)

func TestMockHost_Hooks(t *testing.T) {
	m := new(mocks.MockHost)

	// No hooks registered yet.
	assert.True(t, m.FireNavigation("https://x/"))
	m.FirePageLoaded()
	m.FireCloseRequested()

	var loaded, closed int
	m.OnNavigationAttempt(func(url string) bool { return url != "https://x/cb?code=1" })
	m.OnPageLoaded(func() { loaded++ })
	m.OnCloseRequested(func() { closed++ })

	assert.True(t, m.FireNavigation("https://x/"))
	assert.False(t, m.FireNavigation("https://x/cb?code=1"))
	m.FirePageLoaded()
	m.FireCloseRequested()
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, closed)
}

func TestMockHost_Launcher(t *testing.T) {
	m := new(mocks.MockHost)
	m.On("PersistentProfiles").Return(true)

	var got browser.LaunchOptions
	host, err := m.Launcher(&got)(context.Background(), browser.LaunchOptions{UserDataDir: "/p", StartHidden: true})
	require.NoError(t, err)

	assert.Same(t, m, host)
	assert.True(t, host.PersistentProfiles())
	assert.Equal(t, browser.LaunchOptions{UserDataDir: "/p", StartHidden: true}, got)

	m.On("Close", mock.Anything).Return(nil).Once()
	require.NoError(t, host.Close(context.Background()))
	m.AssertExpectations(t)
}
