package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflare/dyapi/internal/testutil"
	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	cfg, err := Load(testutil.Path("dyapi.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, testutil.Path("dyapi.yaml"), cfg.File)
	assert.Equal(t, ":8081", cfg.Server.ListenAddr)
	assert.Equal(t, "http://localhost:8081", cfg.Server.BaseURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, ":9101", cfg.Metrics.Addr)

	// defaults
	assert.Equal(t, "public", cfg.Storage.Schema)
	assert.True(t, cfg.Storage.CreateTables)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	var want []entity.Config
	require.NoError(t, testutil.LoadJSON("entities.json", &want))
	require.Len(t, cfg.Entities, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(cfg.Entities[i]), "entity %d: %+v", i, cfg.Entities[i])
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("DYAPI_SERVER_LISTENADDR", ":9999")
	t.Setenv("DYAPI_STORAGE_PG_CONNSTRING", "postgres://env")
	t.Setenv("DYAPI_SERVER_CORS_ALLOWEDORIGINS", "http://a,http://b")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("storage.backend", "", "")
	fs.String("metrics.addr", "", "")
	require.NoError(t, fs.Parse([]string{"--metrics.addr=:7000"}))

	cfg, err := Load(testutil.Path("dyapi.yaml"), fs)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "postgres://env", cfg.Storage.PG.ConnString)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, ":7000", cfg.Metrics.Addr)
	// unset flag keeps the file value
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, BackendTable, cfg.Storage.Backend)
	assert.Empty(t, cfg.Entities)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  - name: x\n    fields:\n      - name: a\n        location: query\n"), 0o600))
	_, err = Load(path, nil)
	assert.ErrorContains(t, err, "unknown field location")
}

func TestValidate(t *testing.T) {
	product := entity.Config{Name: "product", Fields: []entity.Field{{Name: "id", Type: entity.Integer, Location: entity.Path}}}

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "memory", cfg: Config{Storage: StorageConfig{Backend: BackendMemory}, Entities: []entity.Config{product}}},
		{name: "table", cfg: Config{Storage: StorageConfig{Backend: BackendTable, PG: PGConfig{ConnString: "postgres://"}}}},
		{name: "table without conn string", cfg: Config{Storage: StorageConfig{Backend: BackendTable}}, want: ErrNoConnString},
		{name: "unknown backend", cfg: Config{Storage: StorageConfig{Backend: "redis"}}, want: ErrUnknownBackend},
		{
			name: "duplicate entity",
			cfg:  Config{Storage: StorageConfig{Backend: BackendMemory}, Entities: []entity.Config{product, product}},
			want: entity.ErrDuplicateName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
