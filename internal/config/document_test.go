package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/settings"
)

const sampleDoc = `
stages:
  console:
    enabled: "true"
  textfile:
    path: "/var/log/app.log"
    max_size_bytes: "1048576"
`

func TestParseDecodesNestedStageMap(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "true", doc.Stages["console"]["enabled"])
	assert.Equal(t, "/var/log/app.log", doc.Stages["textfile"]["path"])
}

func TestApplyToPushesRawStringsIntoStore(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	store := settings.NewStore()
	require.NoError(t, doc.ApplyTo(store))

	v, ok := store.Get("textfile", "path")
	require.True(t, ok)
	assert.Equal(t, "/var/log/app.log", v)
}

func TestNewStoreValueIsReconvertedOnceStageRegisters(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	store, err := doc.NewStore()
	require.NoError(t, err)

	proxy := store.Register("textfile", "max_size_bytes", int64(0), settings.IntConverter{})
	v, ok := proxy.Get()
	require.True(t, ok)
	assert.EqualValues(t, 1048576, v)
}
