package injector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

func TestInitializeApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgcomm.yaml")
	doc := "name: edge\nhost: 10.1.1.1\nport: 9100\nlog_level: error\nstore:\n  kind: memory\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	app, cleanup, err := InitializeApp(Source{Path: path, Port: 9200})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "edge", app.Comm.Name())
	assert.Equal(t, "10.1.1.1:9200", app.Comm.Addr())
	assert.Equal(t, protocol.Disconnected, app.Comm.State())
	assert.NotNil(t, app.Logger)
}

func TestInitializeApp_Defaults(t *testing.T) {
	app, cleanup, err := InitializeApp(Source{LogLevel: "silent"})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "localhost:8888", app.Comm.Addr())
	assert.NotNil(t, app.Events)
}

func TestInitializeApp_Errors(t *testing.T) {
	_, _, err := InitializeApp(Source{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = InitializeApp(Source{LogLevel: "loud"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  kind: carrier-pigeon\n"), 0o600))
	_, _, err = InitializeApp(Source{Path: path})
	assert.Error(t, err)
}
