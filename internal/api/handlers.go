package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/banshee-data/navmap/internal/config"
	"github.com/banshee-data/navmap/internal/db"
	"github.com/banshee-data/navmap/internal/httputil"
	"github.com/banshee-data/navmap/internal/mapstate"
	"github.com/banshee-data/navmap/internal/overlay"
	"github.com/banshee-data/navmap/internal/robot"
	"github.com/banshee-data/navmap/internal/version"
)

// PoseRequest is the body of /set_pose/ and /set_nav_goal/. Theta is in
// degrees.
type PoseRequest struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta"`
}

func (p PoseRequest) validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{{"x", p.X}, {"y", p.Y}, {"theta", p.Theta}} {
		if f.v == nil {
			return fmt.Errorf("missing field %q", f.name)
		}
		if !finite(*f.v) {
			return fmt.Errorf("field %q must be a finite number", f.name)
		}
	}
	return nil
}

// WallRequest is one element of the /set_walls/ body.
type WallRequest struct {
	X1 *float64 `json:"x1"`
	Y1 *float64 `json:"y1"`
	X2 *float64 `json:"x2"`
	Y2 *float64 `json:"y2"`
}

func (w WallRequest) segment() (overlay.WallSegment, error) {
	if w.X1 == nil || w.Y1 == nil || w.X2 == nil || w.Y2 == nil {
		return overlay.WallSegment{}, errors.New("wall needs x1, y1, x2 and y2")
	}
	seg := overlay.WallSegment{X1: *w.X1, Y1: *w.Y1, X2: *w.X2, Y2: *w.Y2}
	if !seg.Finite() {
		return overlay.WallSegment{}, errors.New("wall coordinates must be finite numbers")
	}
	return seg, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *Server) handleSetPose(w http.ResponseWriter, r *http.Request) {
	s.handlePoseCommand(w, r, db.KindSetPose, s.sink.PublishInitialPose, "Pose set successfully")
}

func (s *Server) handleSetNavGoal(w http.ResponseWriter, r *http.Request) {
	s.handlePoseCommand(w, r, db.KindSetNavGoal, s.sink.PublishNavGoal, "Navigation goal set successfully")
}

func (s *Server) handlePoseCommand(w http.ResponseWriter, r *http.Request, kind string,
	publish func(context.Context, robot.PoseCommand) error, ack string) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req PoseRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	cmd := robot.NewPoseCommand(s.clock, *req.X, *req.Y, robot.Radians(*req.Theta))
	if err := publish(r.Context(), cmd); err != nil {
		logf("%s failed: %v", kind, err)
		s.journalCommand(r.Context(), kind, req, err.Error())
		httputil.BadGateway(w, fmt.Sprintf("failed to publish %s", kind))
		return
	}
	s.journalCommand(r.Context(), kind, req, db.OutcomeOK)
	httputil.WriteMessage(w, ack)
}

func (s *Server) handleSetWalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req []WallRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	walls := make([]overlay.WallSegment, 0, len(req))
	for i, wr := range req {
		seg, err := wr.segment()
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("wall %d: %v", i, err))
			return
		}
		walls = append(walls, seg)
	}

	if err := s.maps.SetWalls(r.Context(), walls); err != nil {
		s.writeMapError(w, err)
		s.journalCommand(r.Context(), db.KindSetWalls, walls, err.Error())
		return
	}
	s.journalCommand(r.Context(), db.KindSetWalls, walls, db.OutcomeOK)
	httputil.WriteMessage(w, "Walls set successfully")
}

func (s *Server) handleClearWalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.maps.ClearWalls(r.Context()); err != nil {
		s.writeMapError(w, err)
		s.journalCommand(r.Context(), db.KindClearWalls, nil, err.Error())
		return
	}
	s.journalCommand(r.Context(), db.KindClearWalls, nil, db.OutcomeOK)
	httputil.WriteMessage(w, "Walls cleared successfully")
}

func (s *Server) handleGetSimPose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p, err := s.state.SimPose()
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, p)
}

func (s *Server) handleMapInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	info, err := s.maps.MapInfo()
	if err != nil {
		s.writeMapError(w, err)
		return
	}
	// refresh the image file the info points at
	if _, err := s.maps.RenderImage(); err != nil {
		logf("regenerating map image: %v", err)
	}
	httputil.WriteJSONOK(w, info)
}

func (s *Server) handleMapImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	data, err := s.maps.RenderImage()
	if err != nil {
		s.writeMapError(w, err)
		return
	}
	writeBytes(w, "image/png", data)
}

func (s *Server) handleMapBitmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	data, err := s.maps.RenderBitmap()
	if err != nil {
		s.writeMapError(w, err)
		return
	}
	writeBytes(w, "image/x-portable-graymap", data)
}

func (s *Server) handleGetWalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.maps.Walls())
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.WriteJSONOK(w, []db.CommandRecord{})
		return
	}
	limit := s.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, config.MaxCommandHistoryLimit)
	}
	recs, err := s.journal.RecentCommands(r.Context(), limit)
	if err != nil {
		logf("listing commands: %v", err)
		httputil.InternalServerError(w, "failed to list commands")
		return
	}
	httputil.WriteJSONOK(w, recs)
}

type healthResponse struct {
	Status      string       `json:"status"`
	Build       version.Info `json:"build"`
	MapLoaded   bool         `json:"map_loaded"`
	Subscribers int          `json:"subscribers"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	_, err := s.maps.Working()
	httputil.WriteJSONOK(w, healthResponse{
		Status:      "ok",
		Build:       version.Current(),
		MapLoaded:   err == nil,
		Subscribers: s.hub.Len(),
	})
}

func (s *Server) writeMapError(w http.ResponseWriter, err error) {
	if errors.Is(err, mapstate.ErrMapUnavailable) {
		httputil.NotFound(w, err.Error())
		return
	}
	logf("map operation failed: %v", err)
	httputil.InternalServerError(w, "map operation failed")
}

func (s *Server) journalCommand(ctx context.Context, kind string, payload any, outcome string) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.RecordCommand(ctx, kind, payload, outcome, s.clock.Now()); err != nil {
		logf("journaling %s: %v", kind, err)
	}
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		logf("writing %s response: %v", contentType, err)
	}
}
