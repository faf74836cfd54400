package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadUserSettings_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	settings := &UserSettings{
		DisplayName:  "Alice",
		DownloadPath: "/tmp/downloads",
		WindowWidth:  1024,
		WindowHeight: 768,
	}
	require.NoError(t, SaveUserSettings(settings))

	got, err := LoadUserSettings()
	require.NoError(t, err)
	require.Equal(t, settings, got)
}

func TestLoadUserSettings_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got, err := LoadUserSettings()
	require.NoError(t, err)
	require.NotEmpty(t, got.DisplayName)
	require.Equal(t, DefaultDownloadPath(), got.DownloadPath)
}

func TestLoadUserSettings_CorruptFileFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := getConfigPath("settings.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	got, err := LoadUserSettings()
	require.NoError(t, err, "a corrupt settings file must never prevent startup")
	require.NotEmpty(t, got.DisplayName)
}

func TestValidateHost(t *testing.T) {
	require.NoError(t, ValidateHost("192.168.1.10"))
	require.NoError(t, ValidateHost("my-host.local"))
	require.Error(t, ValidateHost(""))
	require.Error(t, ValidateHost("not a host!"))
}

func TestValidatePort(t *testing.T) {
	require.NoError(t, ValidatePort("45679"))
	require.Error(t, ValidatePort(""))
	require.Error(t, ValidatePort("not-a-number"))
	require.Error(t, ValidatePort("0"))
	require.Error(t, ValidatePort("70000"))
}

func TestValidateDisplayName(t *testing.T) {
	require.NoError(t, ValidateDisplayName("Alice"))
	require.Error(t, ValidateDisplayName("   "))
	require.Error(t, ValidateDisplayName(stringOfLength(65)))
	require.NoError(t, ValidateDisplayName(stringOfLength(64)))
}

func stringOfLength(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
