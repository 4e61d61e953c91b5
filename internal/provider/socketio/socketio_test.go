package socketio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{Name: "Weather", URL: "http://localhost:3000/socket.io/"}},
		{name: "missing name", cfg: Config{URL: "http://localhost:3000"}, wantErr: "requires a name"},
		{name: "relative url", cfg: Config{Name: "Weather", URL: "/socket.io"}, wantErr: "must be absolute"},
		{name: "bad url", cfg: Config{Name: "Weather", URL: "http://[::1"}, wantErr: "failed to parse URL"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:3000", s.baseURL)
			assert.Equal(t, "/socket.io/", s.path)
			assert.Equal(t, DefaultEvent, s.cfg.Event)
		})
	}
}

func TestSource_HandlePayloads(t *testing.T) {
	s, err := New(Config{Name: "Weather", URL: "http://localhost:3000"})
	require.NoError(t, err)

	require.NoError(t, s.handle(map[string]any{"Temperature": 21.5, "Raining": false, "Station": "north"}))
	require.NoError(t, s.handle(`{"Humidity": 60}`))

	fields := s.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "Humidity", fields[0].Token)
	assert.Equal(t, "Raining", fields[1].Token)
	assert.Equal(t, "Temperature", fields[2].Token)

	require.NoError(t, s.handle([]byte(`{"Humidity": null}`)))
	assert.Len(t, s.Fields(), 2)

	assert.Error(t, s.handle())
	assert.Error(t, s.handle(42))
	assert.Error(t, s.handle("{not json"))
}

func TestSource_CheckRequiresConnection(t *testing.T) {
	s, err := New(Config{Name: "Weather", URL: "http://localhost:3000"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Check(context.Background()), errNotConnected)

	s.connected.Store(true)
	assert.NoError(t, s.Check(context.Background()))
}
