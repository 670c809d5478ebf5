package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/settings"
)

func TestManagerReloadRetargetsIssuedProxies(t *testing.T) {
	store1 := settings.NewStore()
	require.NoError(t, store1.Set("console", "enabled", "true"))
	m := NewManager(store1)

	proxy := m.Register("console", "enabled", false, settings.BoolConverter{})
	v, ok := proxy.Get()
	require.True(t, ok)
	assert.Equal(t, true, v)

	store2 := settings.NewStore()
	require.NoError(t, store2.Set("console", "enabled", "false"))
	m.Reload(store2)

	v, ok = proxy.Get()
	require.True(t, ok)
	assert.Equal(t, false, v)
}

func TestManagerOnChangedFiresAfterReload(t *testing.T) {
	m := NewManager(settings.NewStore())
	fired := false
	m.OnChanged(func() { fired = true })

	m.Reload(settings.NewStore())
	assert.True(t, fired)
}
