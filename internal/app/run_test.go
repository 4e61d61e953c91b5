package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/formulagrid/internal/testutil"
)

const sequenceHCL = `
container "Imaging" {
  constant "MinAltitude" {
    value = 30
  }
  formula "ready" {
    value = Altitude > MinAltitude
  }
  formula "broken" {
    value = "MinAltitude +"
  }
  formula "missing" {
    value = Focus * 2
  }
}
`

func newTestApp(t *testing.T, out *testutil.SafeBuffer, once bool, settings Settings) *App {
	t.Helper()
	dir := testutil.WriteFiles(t, map[string]string{"sequence.hcl": sequenceHCL})
	cfg, err := NewConfig(Config{
		DocumentPath: filepath.Join(dir, "sequence.hcl"),
		LogFormat:    "text",
		LogLevel:     "error",
		Once:         once,
		Settings:     settings,
	})
	require.NoError(t, err)
	a, err := NewApp(out, cfg)
	require.NoError(t, err)
	return a
}

func TestRun_Once(t *testing.T) {
	t.Setenv("FG_Altitude", "45")
	out := &testutil.SafeBuffer{}
	a := newTestApp(t, out, true, Settings{Env: &EnvSettings{Prefix: "FG_"}})

	require.NoError(t, a.Run(context.Background()))

	report := out.String()
	assert.Contains(t, report, "Sequence/Imaging/ready = 1")
	assert.Contains(t, report, "Sequence/Imaging/broken = -  Syntax Error")
	assert.Contains(t, report, "Sequence/Imaging/missing = -  Undefined: Focus")
	assert.Contains(t, report, "3 formulas, 2 errors, 0 warnings")
	require.NotNil(t, a.Document())
}

func TestRun_UntilCancelled(t *testing.T) {
	out := &testutil.SafeBuffer{}
	a := newTestApp(t, out, false, Settings{ReportInterval: Duration{20 * time.Millisecond}})
	a.Namespace().Publish("Mount", "Altitude", 10.0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Sequence/Imaging/ready = 0")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRun_LoadFailure(t *testing.T) {
	cfg, err := NewConfig(Config{DocumentPath: filepath.Join(t.TempDir(), "missing.hcl"), Once: true})
	require.NoError(t, err)
	a, err := NewApp(&testutil.SafeBuffer{}, cfg)
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load document")
}

func TestHandler(t *testing.T) {
	a := newTestApp(t, &testutil.SafeBuffer{}, true, Settings{})
	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewApp_DuplicateSourceNames(t *testing.T) {
	cfg, err := NewConfig(Config{
		DocumentPath: "a.hcl",
		Settings: Settings{
			Clock: &ClockSettings{Name: "Site"},
			Env:   &EnvSettings{Name: "Site", Prefix: "FG_"},
		},
	})
	require.NoError(t, err)
	_, err = NewApp(&testutil.SafeBuffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to register source "Site"`)
}
