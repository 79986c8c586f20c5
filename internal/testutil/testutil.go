// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/navmap/internal/grid"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// FreeGrid returns a w x h grid of free cells at 1m resolution with the
// origin at (0, 0), so world coordinates equal cell indices.
func FreeGrid(w, h int) *grid.OccupancyGrid {
	return grid.New(w, h, 1.0, grid.Origin{}, grid.CellFree)
}

// MixedGrid returns a grid holding every cell class: an unknown left half,
// a free right half and an occupied centre cell.
func MixedGrid(w, h int, res float64, origin grid.Origin) *grid.OccupancyGrid {
	g := grid.New(w, h, res, origin, grid.CellFree)
	for row := 0; row < h; row++ {
		for col := 0; col < w/2; col++ {
			g.Cells[g.Idx(row, col)] = grid.CellUnknown
		}
	}
	g.Cells[g.Idx(h/2, w/2)] = grid.CellOccupied
	return g
}

// Serve sends a request with an optional body through h and returns the
// recorded response.
func Serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeBody unmarshals the recorded JSON body into a T.
func DecodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}
