package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navmap/internal/db"
	"github.com/banshee-data/navmap/internal/export"
	"github.com/banshee-data/navmap/internal/fsutil"
	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/mapstate"
	"github.com/banshee-data/navmap/internal/monitoring"
	"github.com/banshee-data/navmap/internal/overlay"
	"github.com/banshee-data/navmap/internal/robot"
	"github.com/banshee-data/navmap/internal/telemetry"
	"github.com/banshee-data/navmap/internal/testutil"
	"github.com/banshee-data/navmap/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type fakeSink struct {
	mu    sync.Mutex
	poses []robot.PoseCommand
	goals []robot.PoseCommand
	grids int
	err   error
}

func (f *fakeSink) PublishInitialPose(ctx context.Context, cmd robot.PoseCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poses = append(f.poses, cmd)
	return f.err
}

func (f *fakeSink) PublishNavGoal(ctx context.Context, cmd robot.PoseCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.goals = append(f.goals, cmd)
	return f.err
}

func (f *fakeSink) PublishGrid(ctx context.Context, g *grid.OccupancyGrid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grids++
	return nil
}

type fixture struct {
	srv     *Server
	handler http.Handler
	maps    *mapstate.Manager
	state   *telemetry.State
	hub     *telemetry.Hub
	sink    *fakeSink
	journal *db.DB
	fs      *fsutil.MemoryFileSystem
	clock   *timeutil.MockClock
}

func newFixture(t *testing.T, hubCfg telemetry.Config) *fixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	fs := fsutil.NewMemoryFileSystem()
	w, err := export.NewWriter(fs, export.Paths{
		Dir:    "/srv/navmap",
		Image:  "/srv/navmap/map.png",
		Bitmap: "/srv/navmap/map.pgm",
	})
	require.NoError(t, err)

	journal, err := db.NewDB(filepath.Join(t.TempDir(), "navmap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	state := telemetry.NewState(clock)
	hub := telemetry.NewHub(state, hubCfg)
	t.Cleanup(hub.Close)
	sink := &fakeSink{}
	maps := mapstate.NewManager(grid.NewStore(), mapstate.Options{
		Thickness: overlay.DefaultThickness,
		Exporter:  w,
		Publisher: sink,
		Notifier:  hub,
	})

	srv := NewServer(Options{
		Maps:    maps,
		State:   state,
		Hub:     hub,
		Sink:    sink,
		Journal: journal,
		Clock:   clock,
	})
	return &fixture{
		srv:     srv,
		handler: srv.Handler(),
		maps:    maps,
		state:   state,
		hub:     hub,
		sink:    sink,
		journal: journal,
		fs:      fs,
		clock:   clock,
	}
}

func (f *fixture) loadMap(t *testing.T) *grid.OccupancyGrid {
	t.Helper()
	g := testutil.FreeGrid(10, 10)
	require.NoError(t, f.maps.OnGridUpdate(g))
	return g
}

func TestSetPose(t *testing.T) {
	f := newFixture(t, telemetry.Config{})

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_pose/", `{"x":1.5,"y":-2,"theta":90}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"message":"Pose set successfully"}`, rec.Body.String())

	require.Len(t, f.sink.poses, 1)
	cmd := f.sink.poses[0]
	assert.Equal(t, robot.MapFrame, cmd.FrameID)
	assert.Equal(t, f.clock.Now(), cmd.Stamp)
	assert.Equal(t, telemetry.Vector3{X: 1.5, Y: -2}, cmd.Position)
	assert.InDelta(t, 0.7071068, cmd.Orientation.Z, 1e-6)
	assert.InDelta(t, 0.7071068, cmd.Orientation.W, 1e-6)

	recs, err := f.journal.RecentCommands(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, db.KindSetPose, recs[0].Kind)
	assert.Equal(t, db.OutcomeOK, recs[0].Outcome)
	assert.JSONEq(t, `{"x":1.5,"y":-2,"theta":90}`, string(recs[0].Payload))
}

func TestSetNavGoal(t *testing.T) {
	f := newFixture(t, telemetry.Config{})

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_nav_goal/", `{"x":3,"y":4,"theta":0}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"message":"Navigation goal set successfully"}`, rec.Body.String())
	require.Len(t, f.sink.goals, 1)
	assert.Equal(t, telemetry.Quaternion{W: 1}, f.sink.goals[0].Orientation)
	assert.Empty(t, f.sink.poses)
}

func TestPoseCommandValidation(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"empty body", http.MethodPost, "", http.StatusBadRequest},
		{"missing theta", http.MethodPost, `{"x":1,"y":2}`, http.StatusBadRequest},
		{"string value", http.MethodPost, `{"x":"1","y":2,"theta":0}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, `{"x":1,"y":2,"theta":0,"z":1}`, http.StatusBadRequest},
		{"overflow", http.MethodPost, `{"x":1e999,"y":2,"theta":0}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Serve(t, f.handler, tt.method, "/set_pose/", tt.body)
			testutil.AssertStatusCode(t, rec.Code, tt.status)
		})
	}
	assert.Empty(t, f.sink.poses)
}

func TestPoseCommandSinkFailure(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	f.sink.err = errors.New("bridge offline")

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_nav_goal/", `{"x":0,"y":0,"theta":45}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadGateway)

	recs, err := f.journal.RecentCommands(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "bridge offline", recs[0].Outcome)
}

func TestWallsBeforeMap(t *testing.T) {
	f := newFixture(t, telemetry.Config{})

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_walls/", `[{"x1":0,"y1":0,"x2":1,"y2":1}]`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	assert.JSONEq(t, `{"error":"map data not available"}`, rec.Body.String())

	rec = testutil.Serve(t, f.handler, http.MethodPost, "/clear_walls/", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	for _, path := range []string{"/map_info", "/map_image", "/map_bitmap"} {
		rec = testutil.Serve(t, f.handler, http.MethodGet, path, "")
		testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	}

	n, err := f.journal.CountCommands(context.Background(), db.KindSetWalls)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetAndClearWalls(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	base := f.loadMap(t)

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_walls/", `[{"x1":2,"y1":2,"x2":7,"y2":2}]`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"message":"Walls set successfully"}`, rec.Body.String())

	working, err := f.maps.Working()
	require.NoError(t, err)
	assert.Equal(t, 18, working.CountValue(grid.CellOccupied))
	assert.Equal(t, 1, f.sink.grids)

	walls := testutil.DecodeBody[[]overlay.WallSegment](t, testutil.Serve(t, f.handler, http.MethodGet, "/walls", ""))
	if diff := cmp.Diff([]overlay.WallSegment{{X1: 2, Y1: 2, X2: 7, Y2: 2}}, walls); diff != "" {
		t.Errorf("walls mismatch (-want +got):\n%s", diff)
	}

	for _, path := range []string{"/srv/navmap/map.png", "/srv/navmap/map.pgm"} {
		_, err := f.fs.ReadFile(path)
		assert.NoError(t, err, path)
	}

	rec = testutil.Serve(t, f.handler, http.MethodPost, "/clear_walls/", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"message":"Walls cleared successfully"}`, rec.Body.String())

	working, err = f.maps.Working()
	require.NoError(t, err)
	assert.True(t, working.Equal(base))
	assert.Equal(t, "[]", strings.TrimSpace(testutil.Serve(t, f.handler, http.MethodGet, "/walls", "").Body.String()))
}

func TestSetWallsValidation(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	f.loadMap(t)
	tests := []struct {
		name string
		body string
	}{
		{"object instead of list", `{"x1":0,"y1":0,"x2":1,"y2":1}`},
		{"missing coordinate", `[{"x1":0,"y1":0,"x2":1}]`},
		{"string coordinate", `[{"x1":"a","y1":0,"x2":1,"y2":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_walls/", tt.body)
			testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
		})
	}
	assert.Empty(t, f.maps.Walls())
}

func TestSetWallsEmptyList(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	base := f.loadMap(t)

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_walls/", `[]`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	working, err := f.maps.Working()
	require.NoError(t, err)
	assert.True(t, working.Equal(base))
}

func TestMapInfoAndImages(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	require.NoError(t, f.maps.OnGridUpdate(testutil.MixedGrid(8, 6, 0.05, grid.Origin{X: -1, Y: 2})))

	rec := testutil.Serve(t, f.handler, http.MethodGet, "/map_info", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	info := testutil.DecodeBody[mapstate.MapInfo](t, rec)
	assert.Equal(t, mapstate.MapInfo{
		Origin:     grid.Origin{X: -1, Y: 2},
		Resolution: 0.05,
		Width:      8,
		Height:     6,
		ImagePath:  "/srv/navmap/map.png",
	}, info)
	_, err := f.fs.ReadFile("/srv/navmap/map.png")
	require.NoError(t, err)

	rec = testutil.Serve(t, f.handler, http.MethodGet, "/map_image", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = testutil.Serve(t, f.handler, http.MethodGet, "/map_bitmap", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/x-portable-graymap", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "P5\n8 6\n255\n"))
	assert.Len(t, rec.Body.Bytes(), len("P5\n8 6\n255\n")+48)

	rec = testutil.Serve(t, f.handler, http.MethodPost, "/map_info", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestGetSimPose(t *testing.T) {
	f := newFixture(t, telemetry.Config{})

	rec := testutil.Serve(t, f.handler, http.MethodGet, "/get_sim_pose", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	f.state.UpdateSimPose(telemetry.SimPose{X: 5.5, Y: 3.25, Theta: 1.2})
	rec = testutil.Serve(t, f.handler, http.MethodGet, "/get_sim_pose", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"x":5.5,"y":3.25,"theta":1.2}`, rec.Body.String())
}

func TestCommandHistory(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	f.loadMap(t)

	testutil.Serve(t, f.handler, http.MethodPost, "/set_pose/", `{"x":0,"y":0,"theta":0}`)
	f.clock.Advance(time.Second)
	testutil.Serve(t, f.handler, http.MethodPost, "/set_walls/", `[{"x1":1,"y1":1,"x2":3,"y2":1}]`)
	f.clock.Advance(time.Second)
	testutil.Serve(t, f.handler, http.MethodPost, "/clear_walls/", "")

	rec := testutil.Serve(t, f.handler, http.MethodGet, "/api/commands", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	recs := testutil.DecodeBody[[]db.CommandRecord](t, rec)
	require.Len(t, recs, 3)
	kinds := []string{recs[0].Kind, recs[1].Kind, recs[2].Kind}
	assert.Equal(t, []string{db.KindClearWalls, db.KindSetWalls, db.KindSetPose}, kinds)

	rec = testutil.Serve(t, f.handler, http.MethodGet, "/api/commands?limit=1", "")
	assert.Len(t, testutil.DecodeBody[[]db.CommandRecord](t, rec), 1)

	rec = testutil.Serve(t, f.handler, http.MethodGet, "/api/commands?limit=zero", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestCommandHistoryWithoutJournal(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	srv := NewServer(Options{Maps: f.maps, State: f.state, Hub: f.hub, Sink: f.sink})

	rec := testutil.Serve(t, srv.Handler(), http.MethodGet, "/api/commands", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = testutil.Serve(t, srv.Handler(), http.MethodPost, "/set_pose/", `{"x":0,"y":0,"theta":0}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, telemetry.Config{})

	rec := testutil.Serve(t, f.handler, http.MethodGet, "/healthz", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	got := testutil.DecodeBody[healthResponse](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.False(t, got.MapLoaded)

	f.loadMap(t)
	got = testutil.DecodeBody[healthResponse](t, testutil.Serve(t, f.handler, http.MethodGet, "/healthz", ""))
	assert.True(t, got.MapLoaded)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, telemetry.Config{})

	rec := testutil.Serve(t, f.handler, http.MethodOptions, "/set_walls/", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = testutil.Serve(t, f.handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusCodeColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	f.loadMap(t)
	require.NoError(t, f.maps.SetWalls(context.Background(), []overlay.WallSegment{{X1: 1, Y1: 1, X2: 8, Y2: 1}}))
	f.state.UpdatePose(telemetry.Pose{X: 4, Y: 4, Orientation: telemetry.Quaternion{W: 1}})
	f.state.UpdateVelocity(telemetry.Velocity{Linear: telemetry.Vector3{X: 0.2}})

	mux := http.NewServeMux()
	f.srv.AttachAdminRoutes(mux)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "127.0.0.1:40000"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/debug/mapstate")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	st := testutil.DecodeBody[mapstate.Status](t, rec)
	assert.Equal(t, 1, st.ActiveWalls)
	assert.True(t, st.HasBaseline)

	rec = get("/debug/telemetry")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	stats := testutil.DecodeBody[telemetry.Stats](t, rec)
	assert.Equal(t, 0, stats.Subscribers["telemetry"])

	rec = get("/debug/velocity")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = get("/debug/walls.png")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestAdminWallsPlotBeforeMap(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	mux := http.NewServeMux()
	f.srv.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/walls.png", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func TestTelemetryStream(t *testing.T) {
	f := newFixture(t, telemetry.Config{Interval: 20 * time.Millisecond})
	f.state.UpdatePose(telemetry.Pose{X: 1, Y: 2, Orientation: telemetry.Quaternion{W: 1}})
	srv := newTestServer(t, f.handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv.URL, "/ws/robot_data"), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"pose":{"x":1,"y":2,"z":0,"orientation":{"x":0,"y":0,"z":0,"w":1}},"velocity":null}`, string(data))

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestNotifyStreamReceivesMapUpdates(t *testing.T) {
	f := newFixture(t, telemetry.Config{Interval: time.Hour})
	f.loadMap(t)
	srv := newTestServer(t, f.handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv.URL, "/ws/notify"), nil)
	require.NoError(t, err)
	defer c.CloseNow()
	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	rec := testutil.Serve(t, f.handler, http.MethodPost, "/set_walls/", `[{"x1":2,"y1":2,"x2":7,"y2":2}]`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"map_updated","walls":1}`, string(data))
}

func TestStreamAfterHubClosed(t *testing.T) {
	f := newFixture(t, telemetry.Config{})
	f.hub.Close()
	srv := newTestServer(t, f.handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv.URL, "/ws/robot_data"), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
