package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/pkg/config"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func withConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	prev := loadConfig
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
}

func localConfig(t *testing.T) *config.Config {
	return &config.Config{
		AppEnv:           "test",
		SQLitePath:       filepath.Join(t.TempDir(), "meridian.db"),
		AutoMigrate:      true,
		HoldTTL:          5 * time.Minute,
		TierGateAllowAll: true,
		MCPAddr:          "127.0.0.1:0",
	}
}

func withBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { readBuildInfo = prev })
}

func TestVersionCommand(t *testing.T) {
	withBuildInfo(t, nil)

	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "meridian "+Version)
	assert.Contains(t, out, "commit: "+Commit)
	assert.NotContains(t, out, "go:")
}

func TestVersionCommand_FallsBackToBuildInfo(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.23.4",
		Main:      debug.Module{Path: "github.com/felixgeelhaar/meridian", Version: "v1.2.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "meridian v1.2.0\n")
	assert.Contains(t, out, "module: github.com/felixgeelhaar/meridian\n")
	assert.Contains(t, out, "commit: abc123 (modified)\n")
	assert.Contains(t, out, "built:  2026-10-01T12:00:00Z\n")
	assert.Contains(t, out, "go:     go1.23.4\n")
}

func TestMigrateCommand_AppliesOnce(t *testing.T) {
	withConfig(t, localConfig(t))

	out, err := execute(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied ")

	out, err = execute(t, "", "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema up to date\n", out)
}

func TestValidateConstraintCommand(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    string
		wantErr string
	}{
		{
			name: "working hours",
			doc:  `{"kind":"working_hours","config_json":{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}}`,
			want: "valid working_hours constraint\n",
		},
		{
			name: "config as string",
			doc:  `{"kind":"buffer","config_json":"{\"type\":\"prep\",\"minutes\":15,\"applies_to\":\"all\"}"}`,
			want: "valid buffer constraint\n",
		},
		{
			name:    "unknown kind",
			doc:     `{"kind":"vacation","config_json":{}}`,
			wantErr: "kind: unknown constraint kind",
		},
		{
			name:    "bad field",
			doc:     `{"kind":"working_hours","config_json":{"days":[],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}}`,
			wantErr: "config_json.days",
		},
		{
			name:    "not json",
			doc:     `kind=trip`,
			wantErr: "decode -",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.doc, "validate-constraint", "-")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestValidateConstraintCommand_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cutoff.json")
	doc := `{"kind":"no_meetings_after","config_json":{"time":"18:30","timezone":"Europe/Berlin"}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := execute(t, "", "validate-constraint", path)
	require.NoError(t, err)
	assert.Equal(t, "valid no_meetings_after constraint\n", out)

	_, err = execute(t, "", "validate-constraint", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestMCPServeCommand_RequiresUser(t *testing.T) {
	withConfig(t, localConfig(t))

	_, err := execute(t, "", "mcp", "serve", "--user=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}
