package motion_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/akd2g/generichttp/motion"
	"github.com/nasa-jpl/akd2g/motor"
	"github.com/nasa-jpl/akd2g/util"
)

type fakeStage struct {
	pos     map[string]float64
	enabled map[string]bool
	calls   []string
}

func newStage() *fakeStage {
	return &fakeStage{pos: map[string]float64{"1": 10, "2": 0}, enabled: map[string]bool{}}
}

func (s *fakeStage) GetPos(axis string) (float64, error) { return s.pos[axis], nil }
func (s *fakeStage) MoveAbs(axis string, p float64) error {
	s.calls = append(s.calls, "abs "+axis)
	s.pos[axis] = p
	return nil
}
func (s *fakeStage) MoveRel(axis string, d float64) error {
	s.calls = append(s.calls, "rel "+axis)
	s.pos[axis] += d
	return nil
}
func (s *fakeStage) Home(axis string) error {
	s.calls = append(s.calls, "home "+axis)
	return nil
}
func (s *fakeStage) Stop(axis string) error {
	s.calls = append(s.calls, "stop "+axis)
	return nil
}
func (s *fakeStage) Enable(axis string) error  { s.enabled[axis] = true; return nil }
func (s *fakeStage) Disable(axis string) error { s.enabled[axis] = false; return nil }
func (s *fakeStage) GetEnabled(axis string) (bool, error) {
	return s.enabled[axis], nil
}
func (s *fakeStage) GetStatus(axis string) (motor.Status, error) {
	return motor.Status{Position: s.pos[axis], PowerOn: s.enabled[axis], Done: true}, nil
}
func (s *fakeStage) AxisLabels() []string { return []string{"1", "2"} }

func router(s *fakeStage, limits map[string]util.Limiter) chi.Router {
	h := motion.NewHTTPMotionController(s)
	if limits != nil {
		lim := motion.LimitMiddleware{Limits: limits, Mov: s}
		lim.Inject(h)
	}
	r := chi.NewRouter()
	h.RT().Bind(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRoutesFollowCapabilities(t *testing.T) {
	h := motion.NewHTTPMotionController(newStage())
	want := []string{
		"GET /axis/{axis}/enabled",
		"GET /axis/{axis}/pos",
		"GET /axis/{axis}/status",
		"POST /axis/{axis}/enabled",
		"POST /axis/{axis}/home",
		"POST /axis/{axis}/pos",
		"POST /axis/{axis}/stop",
	}
	if diff := cmp.Diff(want, h.RT().Endpoints()); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
}

func TestMoveAbsAndRel(t *testing.T) {
	s := newStage()
	r := router(s, nil)
	if rec := do(r, http.MethodPost, "/axis/1/pos", `{"f64": 5}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodPost, "/axis/1/pos?relative=true", `{"f64": 2}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", rec.Code, rec.Body.String())
	}
	if s.pos["1"] != 7 {
		t.Errorf("expected position 7 after abs 5 and rel 2, got %v", s.pos["1"])
	}
	rec := do(r, http.MethodGet, "/axis/1/pos", "")
	if strings.TrimSpace(rec.Body.String()) != `{"f64":7}` {
		t.Errorf("expected {\"f64\":7} got %s", rec.Body.String())
	}
}

func TestBadInput(t *testing.T) {
	r := router(newStage(), nil)
	if rec := do(r, http.MethodPost, "/axis/1/pos", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed body, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/axis/1/pos?relative=maybe", `{"f64": 1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed relative flag, got %d", rec.Code)
	}
}

func TestUnknownAxis(t *testing.T) {
	s := newStage()
	r := router(s, nil)
	if rec := do(r, http.MethodPost, "/axis/9/home", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for axis 9, got %d", rec.Code)
	}
	if len(s.calls) != 0 {
		t.Errorf("expected the controller not to be called, got %v", s.calls)
	}
}

func TestLimitRejectsMove(t *testing.T) {
	s := newStage()
	r := router(s, map[string]util.Limiter{"1": {Min: 0, Max: 20}})
	if rec := do(r, http.MethodPost, "/axis/1/pos", `{"f64": 25}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a move past the limit, got %d", rec.Code)
	}
	// 10 + 15 is past the limit too
	if rec := do(r, http.MethodPost, "/axis/1/pos?relative=true", `{"f64": 15}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a relative move past the limit, got %d", rec.Code)
	}
	if len(s.calls) != 0 {
		t.Errorf("expected no moves to reach the controller, got %v", s.calls)
	}
	if rec := do(r, http.MethodPost, "/axis/1/pos", `{"f64": 15}`); rec.Code != http.StatusOK {
		t.Errorf("expected a move within limits to pass, got %d %s", rec.Code, rec.Body.String())
	}
	// axis 2 has no limit
	if rec := do(r, http.MethodPost, "/axis/2/pos", `{"f64": 1e9}`); rec.Code != http.StatusOK {
		t.Errorf("expected an unlimited axis to move, got %d", rec.Code)
	}
}

func TestLimitsRoute(t *testing.T) {
	r := router(newStage(), map[string]util.Limiter{"1": {Min: -1, Max: 1}})
	rec := do(r, http.MethodGet, "/axis/1/limits", "")
	lim := util.Limiter{}
	if err := json.NewDecoder(rec.Body).Decode(&lim); err != nil {
		t.Fatal(err)
	}
	if lim.Min != -1 || lim.Max != 1 {
		t.Errorf("expected limits -1..1, got %+v", lim)
	}
	rec = do(r, http.MethodGet, "/axis/2/limits", "")
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Errorf("expected null for an axis without limits, got %s", rec.Body.String())
	}
}

func TestEnableAndStatus(t *testing.T) {
	s := newStage()
	r := router(s, nil)
	if rec := do(r, http.MethodPost, "/axis/2/enabled", `{"bool": true}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	rec := do(r, http.MethodGet, "/axis/2/status", "")
	st := motor.Status{}
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.PowerOn || !st.Done {
		t.Errorf("expected powered and done, got %+v", st)
	}
	rec = do(r, http.MethodGet, "/axis/2/enabled", "")
	if strings.TrimSpace(rec.Body.String()) != `{"bool":true}` {
		t.Errorf("expected {\"bool\":true} got %s", rec.Body.String())
	}
}

func TestStopAndHome(t *testing.T) {
	s := newStage()
	r := router(s, nil)
	do(r, http.MethodPost, "/axis/1/home", "")
	do(r, http.MethodPost, "/axis/2/stop", "")
	if diff := cmp.Diff([]string{"home 1", "stop 2"}, s.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}
