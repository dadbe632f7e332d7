package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte(`# device
DEVICE_ID=3a5c0e1f
SECRET_KEY="s3cr3t key"
WIFI_SSID=home
WIFI_PASSWORD='p@ss'
`), 0600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, &Secrets{
		DeviceID:     "3a5c0e1f",
		SecretKey:    "s3cr3t key",
		WiFiSSID:     "home",
		WiFiPassword: "p@ss",
	}, s)
}

func TestLoadEmptyPath(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, &Secrets{}, s)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	s := (&Secrets{DeviceID: "env-id"}).Merge(&Secrets{DeviceID: "file-id", SecretKey: "file-key"})
	require.Equal(t, &Secrets{DeviceID: "env-id", SecretKey: "file-key"}, s)
}
