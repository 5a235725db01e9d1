package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paiban/autoshift/internal/config"
	"github.com/paiban/autoshift/internal/metrics"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "version"} {
		require.True(t, names[want], "缺少子命令 %s", want)
	}
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "AutoShift "+Version)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(&rootOptions{ConfigPath: t.TempDir() + "/none.yaml"})
	require.Error(t, err)
}

func TestSystemRoutes_VersionAndMetrics(t *testing.T) {
	v := config.NewViper()
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)

	mux := http.NewServeMux()
	registerSystemRoutes(mux, cfg, nil, metrics.Default())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"git_commit":"unknown"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
