package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Dir: "/project", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	assert.Equal(t, "/project", cfg.Root)
	assert.Empty(t, cfg.File)
	assert.True(t, cfg.Features.DangerousCodeRemover)
	assert.False(t, cfg.Features.SoftErrors)
	assert.True(t, cfg.TrackDependencies)
	assert.Equal(t, filepath.Join("/project", ".husk", "out"), cfg.OutDir)
	assert.Contains(t, cfg.Globals, "window")
	require.Len(t, cfg.Tags, 1)
	assert.Equal(t, TagConfig{Module: "husk", Import: "css", Processor: "css"}, cfg.Tags[0])
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/husk.yaml", []byte(`
features:
  soft_errors: true
  side_effect_removal: true
globals: ["$*"]
aliases:
  "@/": ./src/
tags:
  - module: "@acme/styles"
    import: css
    processor: css
  - module: "@acme/styles"
    import: keyframes
    processor: ignore
class_name_prefix: acme-
out_dir: dist/css
concurrency: 4
log_level: debug
`), 0o644))

	cfg, err := Load(LoadOptions{Dir: "/project", Fs: fs})
	require.NoError(t, err)

	assert.Equal(t, "/project/husk.yaml", cfg.File)
	assert.True(t, cfg.Features.SoftErrors)
	assert.True(t, cfg.Features.SideEffectRemoval)
	assert.True(t, cfg.Features.DangerousCodeRemover)
	assert.Equal(t, []string{"$*"}, cfg.Globals)
	assert.Equal(t, "./src/", cfg.Aliases["@/"])
	require.Len(t, cfg.Tags, 2)
	assert.Equal(t, "ignore", cfg.Tags[1].Processor)
	assert.Equal(t, "acme-", cfg.ClassNamePrefix)
	assert.Equal(t, "/project/dist/css", cfg.OutDir)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HUSK_FEATURES_SOFT_ERRORS", "true")
	t.Setenv("HUSK_CONCURRENCY", "2")

	cfg, err := Load(LoadOptions{Dir: "/project", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.True(t, cfg.Features.SoftErrors)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(LoadOptions{Dir: "/project", ConfigFile: "/project/other.yaml", Fs: afero.NewMemMapFs()})
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "negative concurrency", mutate: func(c *Config) { c.Concurrency = -1 }, errMsg: "concurrency"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, errMsg: "log_level"},
		{name: "extension without dot", mutate: func(c *Config) { c.Extensions = []string{"ts"} }, errMsg: "must start with a dot"},
		{name: "tag without import", mutate: func(c *Config) { c.Tags = []TagConfig{{Module: "husk", Processor: "css"}} }, errMsg: "module and import"},
		{name: "tag without processor", mutate: func(c *Config) { c.Tags = []TagConfig{{Module: "husk", Import: "css"}} }, errMsg: "processor is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/project")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
