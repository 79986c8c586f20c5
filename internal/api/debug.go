package api

import (
	"errors"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/navmap/internal/debugview"
	"github.com/banshee-data/navmap/internal/httputil"
	"github.com/banshee-data/navmap/internal/mapstate"
	"github.com/banshee-data/navmap/internal/telemetry"
	"github.com/banshee-data/navmap/internal/version"
)

// AttachAdminRoutes registers diagnostic pages under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.Version)
	debug.KV("Git SHA", version.GitSHA)

	debug.HandleFunc("telemetry", "Telemetry hub subscribers and delivery counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.hub.Stats())
	})
	debug.HandleFunc("mapstate", "Baseline, working grid and active wall summary", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.maps.Status())
	})
	debug.HandleFunc("velocity", "Chart of recent velocity reports", func(w http.ResponseWriter, r *http.Request) {
		page, err := debugview.VelocityChart(s.state.VelocityHistory())
		if err != nil {
			logf("velocity chart: %v", err)
			httputil.InternalServerError(w, "failed to render chart")
			return
		}
		writeBytes(w, "text/html; charset=utf-8", page)
	})
	debug.HandleFunc("walls.png", "Plot of active walls over the map extent", func(w http.ResponseWriter, r *http.Request) {
		g, err := s.maps.Working()
		if err != nil && !errors.Is(err, mapstate.ErrMapUnavailable) {
			logf("walls plot: %v", err)
			httputil.InternalServerError(w, "failed to read map")
			return
		}
		// without a map the plot shows walls and robot only
		var pose *telemetry.Pose
		if p, err := s.state.Pose(); err == nil {
			pose = &p
		}
		data, err := debugview.WallsPlot(g, s.maps.Walls(), pose)
		if err != nil {
			logf("walls plot: %v", err)
			httputil.InternalServerError(w, "failed to render plot")
			return
		}
		writeBytes(w, "image/png", data)
	})
}
