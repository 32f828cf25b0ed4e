package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stakesim/internal/logging"
	"stakesim/internal/simulation"
	"stakesim/internal/validator"
)

func newTestServer(t *testing.T, rounds int) *Server {
	t.Helper()
	sim := simulation.DefaultConfig()
	sim.NumValidators = 10
	sim.Rounds = rounds
	s, err := New(Config{
		Simulation: sim,
		Seed:       simulation.DefaultSeed,
		AlphaMin:   0,
		AlphaMax:   4,
		Logger:     logging.NewTest(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, 5)
	rr := do(t, s, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestResetReturnsInitialState(t *testing.T) {
	s := newTestServer(t, 5)

	rr := do(t, s, http.MethodPost, "/v1/reset", `{"seed": 7}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body resetResponse
	decode(t, rr, &body)
	if body.EpisodeID == "" {
		t.Fatal("expected episode id")
	}
	if body.Observation.SumOfBalance != 320 || body.Observation.HonestProportion != 0.5 {
		t.Fatalf("unexpected observation: %+v", body.Observation)
	}
	if body.Info.Round != 0 {
		t.Fatalf("unexpected info: %+v", body.Info)
	}

	rr = do(t, s, http.MethodPost, "/v1/reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty reset, got %d", rr.Code)
	}
	var second resetResponse
	decode(t, rr, &second)
	if second.EpisodeID == body.EpisodeID {
		t.Fatal("expected a new episode id per reset")
	}

	rr = do(t, s, http.MethodPost, "/v1/reset", `{"seed": "x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed seed, got %d", rr.Code)
	}
}

func TestStepUntilTerminalThenConflict(t *testing.T) {
	s := newTestServer(t, 3)

	for i := 1; i <= 3; i++ {
		rr := do(t, s, http.MethodPost, "/v1/step", `{"alpha": 1.5}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("step %d: expected 200, got %d: %s", i, rr.Code, rr.Body.String())
		}
		var body map[string]any
		decode(t, rr, &body)
		for _, key := range []string{"episode_id", "observation", "reward", "terminated", "info"} {
			if _, ok := body[key]; !ok {
				t.Fatalf("step %d: missing %q in %v", i, key, body)
			}
		}
		if terminated := body["terminated"].(bool); terminated != (i == 3) {
			t.Fatalf("step %d: terminated=%v", i, terminated)
		}
	}

	rr := do(t, s, http.MethodPost, "/v1/step", `{"alpha": 1}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 after terminal, got %d", rr.Code)
	}

	if rr := do(t, s, http.MethodPost, "/v1/reset", ""); rr.Code != http.StatusOK {
		t.Fatalf("reset: %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/v1/step", `{"alpha": 1}`); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after reset, got %d", rr.Code)
	}
}

func TestStepRejectsInvalidAlpha(t *testing.T) {
	s := newTestServer(t, 5)
	for _, body := range []string{`{}`, `{"alpha": -0.5}`, `{"alpha": 4.01}`, `{"alpha": "high"}`, `not json`} {
		rr := do(t, s, http.MethodPost, "/v1/step", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rr.Code)
		}
	}

	var state stateResponse
	decode(t, do(t, s, http.MethodGet, "/v1/state", ""), &state)
	if state.Info.Round != 0 {
		t.Fatalf("rejected steps must not advance the episode, round=%d", state.Info.Round)
	}
}

func TestStateAndValidators(t *testing.T) {
	s := newTestServer(t, 5)
	if rr := do(t, s, http.MethodPost, "/v1/step", `{"alpha": 2}`); rr.Code != http.StatusOK {
		t.Fatalf("step: %d", rr.Code)
	}

	var state stateResponse
	decode(t, do(t, s, http.MethodGet, "/v1/state", ""), &state)
	if state.Info.Round != 1 || state.Info.Alpha != 2 || state.Rebalancer != simulation.StakeWeightedName {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Seed != simulation.DefaultSeed {
		t.Fatalf("unexpected seed %d", state.Seed)
	}

	var body struct {
		EpisodeID  string             `json:"episode_id"`
		Validators []validator.Record `json:"validators"`
	}
	decode(t, do(t, s, http.MethodGet, "/v1/validators", ""), &body)
	if len(body.Validators) != 10 || body.EpisodeID != state.EpisodeID {
		t.Fatalf("unexpected validators response: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 5)
	do(t, s, http.MethodPost, "/v1/step", `{"alpha": 1}`)
	rr := do(t, s, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "stakesim_http_requests_total") {
		t.Fatal("expected http request counter in exposition")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{Simulation: simulation.DefaultConfig(), AlphaMin: 4, AlphaMax: 0, Logger: logging.NewTest()}); err == nil {
		t.Fatal("expected error for inverted alpha range")
	}
	bad := simulation.DefaultConfig()
	bad.NumValidators = 0
	if _, err := New(Config{Simulation: bad, AlphaMax: 4, Logger: logging.NewTest()}); err == nil {
		t.Fatal("expected error for invalid simulation config")
	}
}

func TestCORSHeadersWhenConfigured(t *testing.T) {
	sim := simulation.DefaultConfig()
	sim.NumValidators = 4
	s, err := New(Config{
		Simulation:  sim,
		AlphaMax:    4,
		CORSOrigins: []string{"http://localhost:3000"},
		Logger:      logging.NewTest(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected CORS header, got %q", got)
	}
}
