package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
	"github.com/AaronLay10/AdventureEngine/internal/events"
	"github.com/AaronLay10/AdventureEngine/internal/judge"
	"github.com/AaronLay10/AdventureEngine/internal/storage/memory"
	"github.com/AaronLay10/AdventureEngine/internal/storage/postgres"
)

// stubJudge passes "ok", fails anything else and reports the judge as
// unavailable for "down".
type stubJudge struct{}

func (stubJudge) Judge(ctx context.Context, p adventure.Problem, code string) (judge.Verdict, error) {
	if code == "down" {
		return judge.Verdict{}, judge.ErrUnavailable
	}
	return judge.Compare(p.ExpectedOutput, code, ""), nil
}

func problem(id string) adventure.Node {
	return adventure.Node{
		ID: id,
		Data: adventure.Problem{
			Title:          "Problem " + id,
			Description:    "print ok",
			Language:       "python",
			CodeSnippet:    "print()",
			ExpectedOutput: "ok",
			Difficulty:     1,
		},
	}
}

func edge(id, source, target string, c adventure.Condition) adventure.Edge {
	return adventure.Edge{ID: id, Source: source, Target: target, Data: adventure.EdgeData{Condition: c}}
}

// branching is S→M(correct), S→E(incorrect), M→E(correct).
func branching() adventure.Graph {
	return adventure.Graph{
		Nodes: []adventure.Node{problem("S"), problem("M"), problem("E")},
		Edges: []adventure.Edge{
			edge("e1", "S", "M", adventure.ConditionCorrect),
			edge("e2", "S", "E", adventure.ConditionIncorrect),
			edge("e3", "M", "E", adventure.ConditionCorrect),
		},
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, adventure.Adventure) {
	t.Helper()
	store := memory.New()
	svc := attempt.NewService(store, store, stubJudge{})
	adv, err := svc.SaveAdventure(context.Background(), adventure.Draft{
		Name:      "Branches",
		CreatorID: "author-1",
		Graph:     branching(),
	})
	if err != nil {
		t.Fatalf("failed to seed adventure: %v", err)
	}
	return NewServer(svc, opts), adv
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func asUser(id string) http.Header {
	return http.Header{http.CanonicalHeaderKey(devUserHeader): []string{id}}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{Name: "adventure-test"})
	w := do(t, s.Handler(), "GET", "/health", nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "ok" || resp.Service != "adventure-test" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReady(t *testing.T) {
	s, _ := newTestServer(t, Options{Checks: []ReadyCheck{
		{Name: "store", Check: func(context.Context) error { return nil }},
		{Name: "mqtt", Check: func(context.Context) error { return errors.New("not connected") }},
	}})
	w := do(t, s.Handler(), "GET", "/ready", nil, nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	var resp ReadyResponse
	decodeBody(t, w, &resp)
	if resp.Checks["store"] != "ok" || resp.Checks["mqtt"] != "not connected" {
		t.Errorf("unexpected checks %v", resp.Checks)
	}
}

func TestValidateEndpoint(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, "POST", "/api/adventures/validate", branching(), nil)
	var ok ValidateResponse
	decodeBody(t, w, &ok)
	if w.Code != http.StatusOK || !ok.Valid {
		t.Fatalf("expected valid graph, got %d %+v", w.Code, ok)
	}

	g := branching()
	g.Edges = append(g.Edges, edge("loop", "M", "M", adventure.ConditionDefault))
	w = do(t, h, "POST", "/api/adventures/validate", g, nil)
	var bad ValidateResponse
	decodeBody(t, w, &bad)
	if bad.Valid || bad.Kind != string(adventure.KindSelfLoop) {
		t.Errorf("expected self_loop violation, got %+v", bad)
	}
	if !strings.Contains(bad.Message, "Problem M") {
		t.Errorf("expected message to name the node, got %q", bad.Message)
	}
}

func TestSaveAdventure(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, "POST", "/api/adventures", map[string]interface{}{
		"name":       "Second",
		"graph_data": branching(),
	}, asUser("author-2"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var adv adventure.Adventure
	decodeBody(t, w, &adv)
	if adv.CreatorID != "author-2" || len(adv.AccessCode) != adventure.AccessCodeLength {
		t.Errorf("unexpected adventure %+v", adv)
	}

	w = do(t, h, "GET", "/api/adventures/access/"+adv.AccessCode, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var fetched adventure.Adventure
	decodeBody(t, w, &fetched)
	if fetched.ID != adv.ID || fetched.StartNodeID != "S" || fetched.EndNodeID != "E" {
		t.Errorf("unexpected fetched adventure %+v", fetched)
	}
}

func TestSaveAdventureRejects(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, "POST", "/api/adventures", map[string]interface{}{"graph_data": branching()}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without a name, got %d", w.Code)
	}

	g := branching()
	g.Edges = g.Edges[:2]
	w = do(t, h, "POST", "/api/adventures", map[string]interface{}{"name": "Broken", "graph_data": g}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", w.Code)
	}
	var resp errorResponse
	decodeBody(t, w, &resp)
	if resp.Code != "invalid_adventure" || resp.Kind == "" {
		t.Errorf("unexpected error response %+v", resp)
	}
}

func TestUnknownAccessCode(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	w := do(t, s.Handler(), "GET", "/api/adventures/access/nope00", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestAuthenticatedAttemptFlow(t *testing.T) {
	s, adv := newTestServer(t, Options{})
	h := s.Handler()
	solver := asUser("solver-1")

	w := do(t, h, "GET", "/api/adventures/"+adv.ID+"/attempt", nil, solver)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var started AttemptResponse
	decodeBody(t, w, &started)
	if started.Attempt.CurrentNodeID != "S" || started.Status != attempt.StatusInProgress {
		t.Fatalf("unexpected start %+v", started)
	}
	id := started.Attempt.ID

	w = do(t, h, "GET", "/api/adventures/"+adv.ID+"/attempt", nil, solver)
	var again AttemptResponse
	decodeBody(t, w, &again)
	if again.Attempt.ID != id {
		t.Errorf("expected the in-progress attempt to be reused")
	}

	submit := func(node, code string) *httptest.ResponseRecorder {
		return do(t, h, "POST", "/api/attempts/"+id+"/submit", map[string]string{"node_id": node, "code": code}, solver)
	}

	w = submit("S", "ok")
	var res attempt.Result
	decodeBody(t, w, &res)
	if res.Session.CurrentNodeID != "M" || !res.Verdict.IsCorrect {
		t.Fatalf("expected move to M, got %+v", res)
	}

	w = submit("S", "ok")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for stale node, got %d", w.Code)
	}
	var stale errorResponse
	decodeBody(t, w, &stale)
	if stale.CurrentNodeID != "M" {
		t.Errorf("expected current_node_id M, got %q", stale.CurrentNodeID)
	}

	submit("M", "ok")
	w = submit("E", "ok")
	decodeBody(t, w, &res)
	if !res.Session.Completed || !res.Step.Completed {
		t.Fatalf("expected completion, got %+v", res)
	}

	w = submit("E", "ok")
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 after completion, got %d", w.Code)
	}

	w = do(t, h, "GET", "/api/attempts/"+id, nil, asUser("someone-else"))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected other solvers to get 404, got %d", w.Code)
	}

	w = do(t, h, "GET", "/api/adventures/"+adv.ID+"/leaderboard", nil, nil)
	var board []attempt.LeaderboardEntry
	decodeBody(t, w, &board)
	if len(board) != 1 || board[0].SolverID != "solver-1" {
		t.Errorf("unexpected leaderboard %+v", board)
	}
}

func TestSubmitValidation(t *testing.T) {
	s, adv := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, "GET", "/api/adventures/"+adv.ID+"/attempt", nil, asUser("solver-1"))
	var started AttemptResponse
	decodeBody(t, w, &started)

	w = do(t, h, "POST", "/api/attempts/"+started.Attempt.ID+"/submit", map[string]string{"code": "ok"}, asUser("solver-1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without node_id, got %d", w.Code)
	}

	w = do(t, h, "POST", "/api/attempts/"+started.Attempt.ID+"/submit", map[string]string{"node_id": "S", "code": "down"}, asUser("solver-1"))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 when the judge is down, got %d", w.Code)
	}
}

func TestGuestFlow(t *testing.T) {
	s, adv := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, "POST", "/api/adventures/"+adv.ID+"/guest", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	var started AttemptResponse
	decodeBody(t, w, &started)
	if started.Attempt.Kind != attempt.KindGuest {
		t.Fatalf("expected guest attempt, got %q", started.Attempt.Kind)
	}

	w = do(t, h, "POST", "/api/adventures/"+adv.ID+"/guest/submit", map[string]interface{}{
		"attempt": started.Attempt,
		"node_id": "S",
		"code":    "wrong",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var res attempt.Result
	decodeBody(t, w, &res)
	if res.Session.CurrentNodeID != "E" || res.Verdict.IsCorrect {
		t.Errorf("expected incorrect move to E, got %+v", res)
	}

	w = do(t, h, "POST", "/api/adventures/other/guest/submit", map[string]interface{}{
		"attempt": res.Session,
		"node_id": "E",
		"code":    "ok",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for mismatched adventure, got %d", w.Code)
	}

	forged := started.Attempt.Snapshot()
	forged.CurrentNodeID = "E"
	w = do(t, h, "POST", "/api/adventures/"+adv.ID+"/guest/submit", map[string]interface{}{
		"attempt": forged,
		"node_id": "E",
		"code":    "ok",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for a session whose path does not reach E, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	do(t, h, "GET", "/health", nil, nil)
	w := do(t, h, "GET", "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `adventure_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("expected request counter for /health, got:\n%s", w.Body.String())
	}
}

type fakeHistory struct {
	attemptID string
	limit     int
}

func (f *fakeHistory) QueryEvents(ctx context.Context, attemptID string, limit int) ([]postgres.EventRow, error) {
	f.attemptID, f.limit = attemptID, limit
	return []postgres.EventRow{{EventID: 7, Event: "attempt.started"}}, nil
}

func TestEventsHistory(t *testing.T) {
	hist := &fakeHistory{}
	s, _ := newTestServer(t, Options{History: hist})
	h := s.Handler()

	w := do(t, h, "GET", "/events?attempt_id=a-1&limit=5", nil, nil)
	var rows []postgres.EventRow
	decodeBody(t, w, &rows)
	if len(rows) != 1 || rows[0].EventID != 7 {
		t.Fatalf("expected persisted rows, got %+v", rows)
	}
	if hist.attemptID != "a-1" || hist.limit != 5 {
		t.Errorf("unexpected query attempt=%q limit=%d", hist.attemptID, hist.limit)
	}

	w = do(t, h, "GET", "/events", nil, nil)
	var snapshot []events.Event
	decodeBody(t, w, &snapshot)
	if hist.limit != 5 {
		t.Error("plain /events should not hit the event log")
	}
}
