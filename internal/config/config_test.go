package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysarch/internal/store"
)

// chdir moves into a fresh directory so no stray sysarch.toml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testChdir(t, dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "sysarch.db", cfg.Database.Path)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "/", cfg.Query.Separator)
}

func TestLoad_File(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "rig.db"

[log]
level = "debug"
json = true

[query]
separator = "."
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rig.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, ".", cfg.Query.Separator)
	assert.Equal(t, "sqlite", cfg.Database.Driver, "unset keys keep defaults")
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sysarch.toml"), []byte("[database]\npath = \"found.db\"\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "found.db", cfg.Database.Path)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := chdir(t)
	_, err := Load(filepath.Join(dir, "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "sysarch.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \"file.db\"\n"), 0o644))
	t.Setenv("SYSARCH_DATABASE_PATH", "env.db")
	t.Setenv("SYSARCH_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.True(t, cfg.Log.JSON)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Log:      LogConfig{Level: "info"},
			Query:    QueryConfig{Separator: "/"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"uppercase driver", func(c *Config) { c.Database.Driver = "SQLite" }, ""},
		{"postgres with dsn", func(c *Config) { c.Database = DatabaseConfig{Driver: "postgres", DSN: "postgres://h/db"} }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "unknown database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn is required"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"empty separator", func(c *Config) { c.Query.Separator = "" }, "query.separator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStore(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: "Postgres", DSN: "postgres://h/db", Path: "ignored.db"}}
	assert.Equal(t, store.Config{Driver: "postgres", DSN: "postgres://h/db", Path: "ignored.db"}, cfg.Store())
}

func TestRedacted(t *testing.T) {
	tests := []struct {
		name string
		db   DatabaseConfig
		want string
	}{
		{"sqlite path", DatabaseConfig{Driver: "sqlite", Path: "rig.db"}, "rig.db"},
		{"url with password", DatabaseConfig{Driver: "postgres", DSN: "postgres://bob:hunter2@db:5432/rig"}, "postgres://bob:xxxxx@db:5432/rig"},
		{"url without password", DatabaseConfig{Driver: "postgres", DSN: "postgres://bob@db/rig"}, "postgres://bob@db/rig"},
		{"keyword form", DatabaseConfig{Driver: "postgres", DSN: "host=db user=bob password=hunter2 dbname=rig"}, "host=db user=bob password=xxxxx dbname=rig"},
		{"quoted keyword", DatabaseConfig{Driver: "postgres", DSN: "host=db password='a b' dbname=rig"}, "host=db password=xxxxx dbname=rig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.db.Redacted())
		})
	}
}

// testChdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
