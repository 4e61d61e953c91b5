package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/formulagrid/internal/extdata"
	"github.com/specialistvlad/formulagrid/internal/metrics"
	"github.com/specialistvlad/formulagrid/internal/testutil"
)

// fakeSource is a source whose fields and health the test controls.
type fakeSource struct {
	name string

	mu     sync.Mutex
	fields []Field
	err    error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fields() []Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Field(nil), f.fields...)
}

func (f *fakeSource) Check(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSource) set(fields []Field, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = fields
	f.err = err
}

type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) Refresh(context.Context) (int, error) {
	r.calls.Add(1)
	return 0, nil
}

func TestPoller_PublishesAndWithdraws(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	ns := extdata.New()
	refresher := &countingRefresher{}
	p, err := NewPoller(ns, WithRefresher(refresher))
	require.NoError(t, err)

	src := &fakeSource{name: "Weather"}
	src.set([]Field{
		staticField("Temperature", 21.5),
		staticField("Humidity", 60),
		{Token: "PixelSize", Hidden: true, Read: func(context.Context) (any, error) { return 3.76, nil }},
	}, nil)
	require.NoError(t, p.Add(src))

	require.NoError(t, p.PollOnce(ctx))
	assert.Len(t, ns.Entries(false), 2)
	assert.Len(t, ns.Entries(true), 3)
	assert.Equal(t, int32(1), refresher.calls.Load())

	// A token the source stops declaring is withdrawn.
	src.set([]Field{staticField("Temperature", 22.0)}, nil)
	require.NoError(t, p.PollOnce(ctx))
	assert.Equal(t, extdata.NotFound, ns.Lookup("Humidity").Status)
	v, ok := ns.Lookup("Temperature").Entry.Float()
	require.True(t, ok)
	assert.Equal(t, 22.0, v)

	// A failing source loses all of its data.
	src.set([]Field{staticField("Temperature", 23.0)}, errors.New("device offline"))
	require.NoError(t, p.PollOnce(ctx))
	assert.Empty(t, ns.Entries(true))
}

func TestPoller_FieldErrors(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	ns := extdata.New()
	m := metrics.New()
	p, err := NewPoller(ns, WithMetrics(m))
	require.NoError(t, err)

	src := &fakeSource{name: "Camera"}
	src.set([]Field{
		{Token: "Temperature", Read: func(context.Context) (any, error) { return nil, ErrUnavailable }},
		{Token: "Gain", Read: func(context.Context) (any, error) { return nil, errors.New("timeout") }},
		staticField("not valid", 1),
		staticField("Dew-Point", 4),
		{Token: "State", Constants: map[int]string{0: "Idle", 1: "Exposing"}, Read: func(context.Context) (any, error) { return 1, nil }},
		{Token: "Mode", Constants: map[int]string{0: "Off"}, Read: func(context.Context) (any, error) { return "Off", nil }},
	}, nil)
	require.NoError(t, p.Add(src))
	require.NoError(t, p.PollOnce(ctx))

	assert.Equal(t, extdata.NotFound, ns.Lookup("Temperature").Status)
	assert.Equal(t, extdata.NotFound, ns.Lookup("Gain").Status)
	assert.Equal(t, extdata.NotFound, ns.Lookup("Mode").Status)
	assert.Equal(t, extdata.NotFound, ns.Lookup("Dew-Point").Status)
	res := ns.Lookup("State")
	require.Equal(t, extdata.Found, res.Status)
	assert.Equal(t, "Exposing", res.Entry.Display())
	assert.Equal(t, extdata.Found, ns.Lookup("Idle").Status)
}

func TestPoller_DuplicateSource(t *testing.T) {
	p, err := NewPoller(extdata.New())
	require.NoError(t, err)
	require.NoError(t, p.Add(&fakeSource{name: "Weather"}))
	err = p.Add(&fakeSource{name: "Weather"})
	assert.ErrorIs(t, err, extdata.ErrDuplicateProvider)
	assert.Equal(t, []string{"Weather"}, p.Sources())
}

func TestValidateSchedule(t *testing.T) {
	testCases := []struct {
		expr    string
		wantErr bool
	}{
		{expr: "@every 2s"},
		{expr: "*/5 * * * *"},
		{expr: "@hourly"},
		{expr: "every two seconds", wantErr: true},
		{expr: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			err := ValidateSchedule(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := NewPoller(extdata.New(), WithSchedule("nonsense"))
	assert.Error(t, err)
}

// runnerSource records that the poller ran it.
type runnerSource struct {
	fakeSource
	started atomic.Bool
}

func (r *runnerSource) Run(ctx context.Context) error {
	r.started.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func TestPoller_Run(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ns := extdata.New()
	refresher := &countingRefresher{}
	p, err := NewPoller(ns, WithSchedule("@every 1s"), WithRefresher(refresher))
	require.NoError(t, err)

	src := &runnerSource{fakeSource: fakeSource{name: "Mount"}}
	src.set([]Field{staticField("Altitude", 45.0)}, nil)
	require.NoError(t, p.Add(src))

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return ns.Lookup("Altitude").Status == extdata.Found && src.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Empty(t, ns.Entries(true), "stopping the poller withdraws its data")
	assert.GreaterOrEqual(t, refresher.calls.Load(), int32(1))
}
