package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/store"
)

func newTestServer(t *testing.T, withHistory bool) http.Handler {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	cfg := model.ServerConfig{
		Lang:        "en",
		CORSOrigins: []string{"http://localhost:3000"},
		History:     withHistory,
	}
	var history History
	if withHistory {
		s, err := store.New(":memory:")
		if err != nil {
			t.Fatalf("store.New: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		history = s
	}

	h, err := New(history, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h.Router()
}

func do(t *testing.T, srv http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t, false)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"empty body", "", http.StatusOK},
		{"empty object", "{}", http.StatusOK},
		{"full request", `{"board":"AQA","level":"GCSE","subject":"Biology","topics":["cells"]}`, http.StatusOK},
		{"extra fields ignored", `{"board":"AQA","difficulty":"hard"}`, http.StatusOK},
		{"malformed json", `{"board":`, http.StatusBadRequest},
		{"wrong field type", `{"topics":"cells"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/generate", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			resp := decode[generateResponse](t, rec)
			if len(resp.Questions) != 3 {
				t.Fatalf("expected 3 questions, got %d", len(resp.Questions))
			}
			ids := []string{resp.Questions[0].ID, resp.Questions[1].ID, resp.Questions[2].ID}
			if strings.Join(ids, ",") != "q1,q2,q3" {
				t.Errorf("unexpected ids %v", ids)
			}

			raw := rec.Body.String()
			for _, secret := range []string{"answer_key", "expected_keywords", "steps_keywords", "final_answer", "model_answer", "29.4 J"} {
				if strings.Contains(raw, secret) {
					t.Errorf("generate response leaks %q", secret)
				}
			}
		})
	}
}

func TestMark(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantAwarded int
	}{
		{
			name:        "all correct",
			body:        `{"answers":{"q1":"A","q2":"Diffusion of water through a partially permeable membrane","q3":"GPE = mgh = 2×9.8×1.5 = 29.4 J"}}`,
			wantCode:    http.StatusOK,
			wantAwarded: 10,
		},
		{
			name:        "partial with request fields",
			body:        `{"board":"OCR","topics":["energy"],"answers":{"q1":"B","q2":"water","q3":"GPE = mgh gives 30 J"}}`,
			wantCode:    http.StatusOK,
			wantAwarded: 0 + 1 + 4,
		},
		{"empty answers", `{"answers":{}}`, http.StatusOK, 0},
		{"positional keys", `{"answers":{"0":"A","2":"29.4 J"}}`, http.StatusOK, 1 + 2},
		{"missing answers", `{"board":"AQA"}`, http.StatusBadRequest, 0},
		{"empty body", ``, http.StatusBadRequest, 0},
		{"non-string answer", `{"answers":{"q1":1}}`, http.StatusBadRequest, 0},
		{"trailing data", `{"answers":{}} {"answers":{}}`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/mark", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				errResp := decode[errorResponse](t, rec)
				if errResp.Error == "" {
					t.Error("expected error message")
				}
				return
			}

			res := decode[model.MarkResult](t, rec)
			if res.TotalAwarded != tt.wantAwarded {
				t.Errorf("expected %d awarded, got %d", tt.wantAwarded, res.TotalAwarded)
			}
			if res.TotalMax != 10 {
				t.Errorf("expected 10 available, got %d", res.TotalMax)
			}
			if res.AttemptID == "" {
				t.Error("expected attempt id with history enabled")
			}
			for _, r := range res.Results {
				if r.Feedback == "" {
					t.Errorf("%s: expected feedback text", r.ID)
				}
			}
		})
	}
}

func TestMarkLocalizedFeedback(t *testing.T) {
	srv := newTestServer(t, false)
	body := `{"answers":{"q1":"A","q3":"29.4 J"}}`

	tests := []struct {
		lang   string
		wantQ1 string
		wantQ2 string
	}{
		{"", "Correct choice.", "No answer given."},
		{"ru", "Верный выбор.", "Ответ не дан."},
		{"fr-FR,fr;q=0.8", "Correct choice.", "No answer given."},
	}

	for _, tt := range tests {
		t.Run("lang="+tt.lang, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.lang == "" {
				rec = do(t, srv, http.MethodPost, "/mark", body)
			} else {
				rec = do(t, srv, http.MethodPost, "/mark", body, "Accept-Language", tt.lang)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			res := decode[model.MarkResult](t, rec)
			if res.AttemptID != "" {
				t.Errorf("expected no attempt id with history disabled, got %q", res.AttemptID)
			}
			if got := res.Results[0].Feedback; got != tt.wantQ1 {
				t.Errorf("q1 feedback %q, want %q", got, tt.wantQ1)
			}
			if got := res.Results[1].Feedback; !strings.HasPrefix(got, tt.wantQ2) {
				t.Errorf("q2 feedback %q, want prefix %q", got, tt.wantQ2)
			}
		})
	}
}

func TestMarkBundle(t *testing.T) {
	srv := newTestServer(t, false)

	legacyPaper := `[
		{"type":"mcq","stem":"Pick one","marks":1,"options":["A. x","B. y"],"answer_key":"A"},
		{"type":"short","stem":"Define osmosis.","marks":3,"expected_keywords":["diffusion","water","partially permeable membrane"]},
		{"type":"calc","stem":"GPE?","marks":6,"steps_keywords":["GPE = mgh"],"final_answer":"29.4 J"}
	]`

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantAwarded int
		wantMax     int
	}{
		{
			name:        "legacy client paper with positional answers",
			body:        `{"paper":` + legacyPaper + `,"answers":{"0":"A","1":"water","2":"29.4 J"}}`,
			wantCode:    http.StatusOK,
			wantAwarded: 1 + 1 + 1,
			wantMax:     10,
		},
		{
			name:        "canonical types with ids",
			body:        `{"paper":[{"id":"x","type":"short_answer","marks":4,"expected_keywords":["a1","b2","c3","d4"]}],"answers":{"x":"a1 b2"}}`,
			wantCode:    http.StatusOK,
			wantAwarded: 2,
			wantMax:     4,
		},
		{"missing paper", `{"answers":{}}`, http.StatusBadRequest, 0, 0},
		{"missing answers", `{"paper":` + legacyPaper + `}`, http.StatusBadRequest, 0, 0},
		{"unknown type", `{"paper":[{"type":"essay","marks":5}],"answers":{}}`, http.StatusBadRequest, 0, 0},
		{"empty paper", `{"paper":[],"answers":{}}`, http.StatusBadRequest, 0, 0},
		{"zero marks", `{"paper":[{"type":"mcq","marks":0,"answer_key":"A"}],"answers":{}}`, http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/mark_bundle", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			res := decode[model.MarkResult](t, rec)
			if res.TotalAwarded != tt.wantAwarded {
				t.Errorf("expected %d awarded, got %d", tt.wantAwarded, res.TotalAwarded)
			}
			if res.TotalMax != tt.wantMax {
				t.Errorf("expected %d available, got %d", tt.wantMax, res.TotalMax)
			}
		})
	}
}

func TestAttempts(t *testing.T) {
	srv := newTestServer(t, true)

	rec := do(t, srv, http.MethodGet, "/attempts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list empty: %d %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("expected empty JSON array, got %s", got)
	}

	var ids []string
	for _, answers := range []string{`{"q1":"A"}`, `{"q1":"B"}`} {
		rec := do(t, srv, http.MethodPost, "/mark", `{"subject":"Physics","answers":`+answers+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("mark: %d %s", rec.Code, rec.Body.String())
		}
		ids = append(ids, decode[model.MarkResult](t, rec).AttemptID)
	}

	rec = do(t, srv, http.MethodGet, "/attempts", "")
	list := decode[[]model.Attempt](t, rec)
	if len(list) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(list))
	}

	rec = do(t, srv, http.MethodGet, "/attempts?limit=1", "")
	if list := decode[[]model.Attempt](t, rec); len(list) != 1 {
		t.Errorf("expected 1 attempt with limit, got %d", len(list))
	}

	rec = do(t, srv, http.MethodGet, "/attempts/"+ids[0], "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get attempt: %d %s", rec.Code, rec.Body.String())
	}
	a := decode[model.Attempt](t, rec)
	if a.Request.Subject != "Physics" || a.Answers["q1"] != "A" || a.Result.TotalAwarded != 1 {
		t.Errorf("unexpected attempt %+v", a)
	}

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"unknown attempt", "/attempts/nope", http.StatusNotFound},
		{"bad limit", "/attempts?limit=abc", http.StatusBadRequest},
		{"zero limit", "/attempts?limit=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestAttemptsDisabled(t *testing.T) {
	srv := newTestServer(t, false)
	for _, path := range []string{"/attempts", "/attempts/abc"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, false)

	rec := do(t, srv, http.MethodOptions, "/mark", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST",
	)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allowed origin: got %q", got)
	}

	rec = do(t, srv, http.MethodOptions, "/mark", "",
		"Origin", "http://evil.example",
		"Access-Control-Request-Method", "POST",
	)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin should not be echoed, got %q", got)
	}
}
