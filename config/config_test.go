package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuangTung97/remset/heap"
)

func TestDefault(t *testing.T) {
	conf := Default()
	assert.NoError(t, conf.Validate())
	assert.Equal(t, heap.DefaultConfig(), conf.Heap())

	lvl, err := conf.Level()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lvl)
}

func TestParse(t *testing.T) {
	conf, err := Parse(`
use_remembered_set = false
aligned_chunk_size = 65536
reserved_size = 1048576
large_object_threshold = 16384
verify_remembered_set = true
hot_card_limit = 0
log_level = "debug"
`)
	require.NoError(t, err)
	assert.Equal(t, Config{
		UseRememberedSet:     false,
		AlignedChunkSize:     64 << 10,
		ReservedSize:         1 << 20,
		LargeObjectThreshold: 16 << 10,
		VerifyRememberedSet:  true,
		HotCardThreshold:     4,
		LogLevel:             "debug",
	}, conf)
	assert.Equal(t, heap.Config{
		AlignedChunkSize:     64 << 10,
		ReservedSize:         1 << 20,
		LargeObjectThreshold: 16 << 10,
		VerifyRememberedSet:  true,
		HotCardThreshold:     4,
	}, conf.Heap())
}

func TestParse_KeepsDefaults(t *testing.T) {
	conf, err := Parse(`verify_remembered_set = true`)
	require.NoError(t, err)

	expected := Default()
	expected.VerifyRememberedSet = true
	assert.Equal(t, expected, conf)
}

func TestParse_Invalid(t *testing.T) {
	table := []struct {
		name string
		data string
	}{
		{name: "syntax", data: `aligned_chunk_size = `},
		{name: "unknown-key", data: `card_size = 1024`},
		{name: "chunk-size", data: `aligned_chunk_size = 1000`},
		{name: "chunk-size-too-large", data: "aligned_chunk_size = 1048576\nreserved_size = 67108864"},
		{name: "reserved-size", data: "aligned_chunk_size = 65536\nreserved_size = 100000\nlarge_object_threshold = 1024"},
		{name: "threshold", data: `large_object_threshold = 0`},
		{name: "log-level", data: `log_level = "loud"`},
		{name: "hot-card-limit", data: `hot_card_limit = -1`},
		{name: "hot-card-threshold", data: `hot_card_threshold = 16`},
	}
	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			_, err := Parse(e.data)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remset.toml")
	require.NoError(t, os.WriteFile(path, []byte("aligned_chunk_size = 262144\nlog_level = \"warn\"\n"), 0o644))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(256<<10), conf.AlignedChunkSize)
	assert.Equal(t, "warn", conf.LogLevel)
	require.NoError(t, conf.Apply())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
