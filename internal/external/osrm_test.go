package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coldtrace/internal/types"
)

func newOSRMTestClient(t *testing.T, serverURL string) *OSRMClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"osrm-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"ColdTrace-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewOSRMClientWithBase(base, OSRMClientConfig{
		BaseURL: serverURL,
		Logger:  discardLogger(),
	})
}

func TestOSRMRoute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// OSRM addresses are lon,lat pairs in the path.
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/73.7898,19.9975;73.8567,18.5204") {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("steps"); got != "true" {
			t.Errorf("expected steps=true, got %q", got)
		}
		if got := q.Get("overview"); got != "false" {
			t.Errorf("expected overview=false, got %q", got)
		}
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 182400.0,
				"duration": 9000.0,
				"legs": [{"steps": [
					{"maneuver": {"location": [73.7898, 19.9975]}},
					{"maneuver": {"location": [73.82, 19.2]}},
					{"maneuver": {"location": [73.8567, 18.5204]}}
				]}]
			}]
		}`))
	}))
	defer server.Close()

	client := newOSRMTestClient(t, server.URL)

	origin := types.Location{Lat: 19.9975, Lon: 73.7898, DisplayName: "Nashik"}
	destination := types.Location{Lat: 18.5204, Lon: 73.8567, DisplayName: "Pune"}

	plan, err := client.Route(context.Background(), origin, destination)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if plan.DistanceKm != 182.4 {
		t.Errorf("expected distance 182.4 km, got %v", plan.DistanceKm)
	}
	if plan.DurationHrs != 2.5 {
		t.Errorf("expected duration 2.5h, got %v", plan.DurationHrs)
	}
	if plan.Provider != types.ProviderOSRM {
		t.Errorf("expected provider osrm, got %s", plan.Provider)
	}

	if len(plan.Waypoints) != 3 {
		t.Fatalf("expected 3 waypoints, got %d", len(plan.Waypoints))
	}
	// Maneuver locations arrive as [lon, lat] and must be swapped.
	if plan.Waypoints[1].Lat != 19.2 || plan.Waypoints[1].Lon != 73.82 {
		t.Errorf("middle waypoint not swapped to (lat, lon): %+v", plan.Waypoints[1])
	}
	last := plan.Waypoints[len(plan.Waypoints)-1]
	if last.Lat != destination.Lat || last.Lon != destination.Lon {
		t.Errorf("last waypoint not pinned to destination: %+v", last)
	}
}

func TestOSRMRoute_DownsamplesDenseManeuverLists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type step struct {
			Maneuver struct {
				Location []float64 `json:"location"`
			} `json:"maneuver"`
		}
		steps := make([]step, 30)
		for i := range steps {
			steps[i].Maneuver.Location = []float64{73.0 + float64(i)*0.01, 19.0 + float64(i)*0.01}
		}
		resp := map[string]any{
			"code": "Ok",
			"routes": []map[string]any{{
				"distance": 250000.0,
				"duration": 12600.0,
				"legs":     []map[string]any{{"steps": steps}},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newOSRMTestClient(t, server.URL)

	origin := types.Location{Lat: 19.0, Lon: 73.0}
	destination := types.Location{Lat: 19.3, Lon: 73.3}

	plan, err := client.Route(context.Background(), origin, destination)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// 30 maneuvers with stride 30/10=3 keeps indices 0,3,...,27 -> 10 points.
	if len(plan.Waypoints) != 10 {
		t.Errorf("expected 10 downsampled waypoints, got %d", len(plan.Waypoints))
	}
	last := plan.Waypoints[len(plan.Waypoints)-1]
	if last.Lat != destination.Lat || last.Lon != destination.Lon {
		t.Errorf("last waypoint not pinned to destination after downsampling: %+v", last)
	}
}

func TestOSRMRoute_NoRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer server.Close()

	client := newOSRMTestClient(t, server.URL)

	_, err := client.Route(context.Background(), types.Location{Lat: 1, Lon: 1}, types.Location{Lat: 2, Lon: 2})
	if err == nil {
		t.Fatal("expected error for no routes, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamRouting {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamRouting, appErr.Code)
	}
	if !strings.Contains(appErr.Message, "NoRoute") {
		t.Errorf("expected message to carry OSRM code, got: %s", appErr.Message)
	}
}

func TestOSRMRoute_SkipsMalformedManeuvers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 5000.0,
				"duration": 600.0,
				"legs": [{"steps": [
					{"maneuver": {"location": [73.0, 19.0]}},
					{"maneuver": {"location": [73.5]}},
					{"maneuver": {"location": [74.0, 19.5]}}
				]}]
			}]
		}`))
	}))
	defer server.Close()

	client := newOSRMTestClient(t, server.URL)

	plan, err := client.Route(context.Background(), types.Location{Lat: 19.0, Lon: 73.0}, types.Location{Lat: 19.5, Lon: 74.0})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// The one-element maneuver is dropped, leaving two valid points.
	if len(plan.Waypoints) != 2 {
		t.Errorf("expected 2 waypoints after skipping malformed maneuver, got %d", len(plan.Waypoints))
	}
}
