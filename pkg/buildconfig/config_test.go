package buildconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigDirectFormat(t *testing.T) {
	parsed, err := ParseConfig(`{"Entrypoint": ["/bin/sh"], "Cmd": ["-c", "echo hi"]}`)
	require.NoError(t, err)

	require.Equal(t, []string{"/bin/sh"}, parsed.Config.Entrypoint)
	require.Equal(t, []string{"-c", "echo hi"}, parsed.Config.Cmd)
	require.Empty(t, parsed.Architecture)
}

func TestParseConfigInspectArrayFormat(t *testing.T) {
	parsed, err := ParseConfig(`[{
		"Config": {
			"Entrypoint": ["/usr/bin/app"],
			"Env": ["PATH=/usr/bin"]
		},
		"Annotations": {
			"org.example.key": "value"
		},
		"Architecture": "arm64"
	}]`)
	require.NoError(t, err)

	require.Equal(t, []string{"/usr/bin/app"}, parsed.Config.Entrypoint)
	require.Equal(t, []string{"PATH=/usr/bin"}, parsed.Config.Env)
	require.Equal(t, "value", parsed.Annotations["org.example.key"])
	require.Equal(t, "arm64", parsed.Architecture)
}

func TestParseConfigInspectArrayUsesLastElement(t *testing.T) {
	parsed, err := ParseConfig(`[
		{"Config": {"Entrypoint": ["/first"]}, "Architecture": "arm64"},
		{"Config": {"Entrypoint": ["/second"]}, "Architecture": "amd64"}
	]`)
	require.NoError(t, err)

	require.Equal(t, []string{"/second"}, parsed.Config.Entrypoint)
	require.Equal(t, "amd64", parsed.Architecture)
}

func TestParseConfigInspectArrayEmpty(t *testing.T) {
	_, err := ParseConfig(`[]`)
	require.ErrorContains(t, err, "empty array")
}

func TestParseConfigInspectSingleObject(t *testing.T) {
	parsed, err := ParseConfig(`{"Config": {"Entrypoint": ["/bin/app"], "WorkingDir": "/data"}, "Architecture": "amd64"}`)
	require.NoError(t, err)

	require.Equal(t, []string{"/bin/app"}, parsed.Config.Entrypoint)
	require.Equal(t, "/data", parsed.Config.WorkingDir)
	require.Equal(t, "amd64", parsed.Architecture)
}

func TestParseConfigMalformed(t *testing.T) {
	_, err := ParseConfig(`not json`)
	require.Error(t, err)
}
