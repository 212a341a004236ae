package util

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/rtparam/lib/common"
	"github.com/ValentinKolb/rtparam/lib/params"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(engine, dataFile string, vhosts ...string) *common.Config {
	return &common.Config{Mode: ModeLocal, Engine: engine, DataFile: dataFile, VHosts: vhosts, Output: "yaml"}
}

func TestWrapString(t *testing.T) {
	wrapped := WrapString(strings.Repeat("word ", 30))
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestSessionPersists(t *testing.T) {
	for _, engine := range []string{EngineMaple, EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			cfg := localConfig(engine, filepath.Join(t.TempDir(), "params.db"))

			s, err := OpenStore(cfg)
			require.NoError(t, err)
			_, err = s.Params.SetScoped("v1", "policy", "alpha", []byte("10"))
			require.NoError(t, err)
			_, err = s.Params.SetGlobal("timeout", []byte("30s"))
			require.NoError(t, err)
			require.NoError(t, s.Close())

			s, err = OpenStore(cfg)
			require.NoError(t, err)
			defer s.Close()

			rec, ok, err := s.Params.Lookup(params.ScopedKey("v1", "policy", "alpha"))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "10", string(rec.Value))

			// writes continue after the reload
			res, err := s.Params.SetGlobal("timeout", []byte("60s"))
			require.NoError(t, err)
			assert.Equal(t, "30s", string(res.Previous))
		})
	}
}

func TestSessionInMemory(t *testing.T) {
	s, err := OpenStore(localConfig(EngineMaple, ""))
	require.NoError(t, err)
	_, err = s.Params.SetGlobal("k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSessionVHosts(t *testing.T) {
	s, err := OpenStore(localConfig(EngineMaple, "", "v1"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Params.SetScoped("v1", "c", "n", []byte("x"))
	assert.NoError(t, err)
	_, err = s.Params.SetScoped("v2", "c", "n", []byte("x"))
	assert.ErrorIs(t, err, store.ErrScopeNotFound)
}

func TestPrint(t *testing.T) {
	views := RecordViews([]params.Record{
		{Key: params.GlobalKey("timeout"), Value: []byte("30s")},
		{Key: params.ScopedKey("v1", "policy", "alpha"), Value: []byte("10")},
	})

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, &common.Config{Output: "yaml"}, views))
	assert.Contains(t, buf.String(), "global:timeout")
	assert.Contains(t, buf.String(), "v1/policy/alpha")

	buf.Reset()
	require.NoError(t, Print(&buf, &common.Config{Output: "json"}, views))
	assert.Contains(t, buf.String(), `"key": "v1/policy/alpha"`)
}
