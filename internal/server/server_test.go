package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	eventbus "github.com/hanpama/ccn/internal/eventbus"
	events "github.com/hanpama/ccn/internal/events"
	reqid "github.com/hanpama/ccn/internal/reqid"
	schema "github.com/hanpama/ccn/internal/schema"
	validator "github.com/hanpama/ccn/internal/validator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSDL = `
type Query { me: User }
type User { id: ID! name: String! nickname: String }
`

type testResponse struct {
	Valid  bool `json:"valid"`
	Errors []struct {
		Message    string         `json:"message"`
		Locations  []specLocation `json:"locations"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
	Fields []struct {
		Path        []string `json:"path"`
		ResponseKey string   `json:"responseKey"`
		Declared    string   `json:"declared"`
		Designator  string   `json:"designator"`
		Effective   string   `json:"effective"`
	} `json:"fields"`
}

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	sch, err := schema.Load("schema.graphql", testSDL)
	require.NoError(t, err)
	return New(validator.New(sch), opts...)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/validate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestValidDocument(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `{"query":"{ me! { nickname! name } }"}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[testResponse](t, w)
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)
	require.Len(t, res.Fields, 3)
	require.Equal(t, []string{"me", "nickname"}, res.Fields[1].Path)
	require.Equal(t, "String", res.Fields[1].Declared)
	require.Equal(t, "!", res.Fields[1].Designator)
	require.Equal(t, "String!", res.Fields[1].Effective)
	require.Empty(t, res.Fields[2].Designator)
}

func TestConflictingDocument(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `{"query":"{ me { someValue: nickname someValue: nickname! } }"}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[testResponse](t, w)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, `"someValue"`)
	require.Equal(t, validator.RuleFieldsCanMerge, res.Errors[0].Extensions["rule"])
	require.Equal(t, []specLocation{{Line: 1, Column: 28}}, res.Errors[0].Locations)
	require.Empty(t, res.Fields)
}

func TestBatchAndGet(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `[{"query":"{ me { id } }"},{"query":"{ me { name name? } }"},{"query":"query A { me { id } }","operationName":"B"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[[]testResponse](t, w)
	require.Len(t, res, 3)
	require.True(t, res[0].Valid)
	require.False(t, res[1].Valid)
	require.False(t, res[2].Valid)
	require.Contains(t, res[2].Errors[0].Message, "Unknown operation")

	req := httptest.NewRequest("GET", "/validate?query="+url.QueryEscape("{ me? { id } }"), nil)
	gw := httptest.NewRecorder()
	h.ServeHTTP(gw, req)
	require.Equal(t, http.StatusOK, gw.Code)
	require.True(t, decode[testResponse](t, gw).Valid)
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t, WithMaxBodyBytes(64))
	for _, tc := range []struct {
		name   string
		method string
		ct     string
		body   string
		status int
	}{
		{"invalid json", "POST", "application/json", `{`, http.StatusBadRequest},
		{"missing query", "POST", "application/json", `{}`, http.StatusBadRequest},
		{"empty batch", "POST", "application/json", `[]`, http.StatusBadRequest},
		{"content type", "POST", "text/plain", `{ me { id } }`, http.StatusBadRequest},
		{"too large", "POST", "", `{"query":"` + string(bytes.Repeat([]byte("a"), 100)) + `"}`, http.StatusRequestEntityTooLarge},
		{"method", "PUT", "", ``, http.StatusMethodNotAllowed},
		{"get without query", "GET", "", ``, http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/validate", bytes.NewBufferString(tc.body))
			if tc.ct != "" {
				req.Header.Set("Content-Type", tc.ct)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			res := decode[testResponse](t, w)
			require.False(t, res.Valid)
			require.Len(t, res.Errors, 1)
		})
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, WithCORS("*"))

	req := httptest.NewRequest("POST", "/validate", bytes.NewBufferString(`{"query":"{ me { id } }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest("OPTIONS", "/validate", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))

	only := newTestHandler(t, WithCORS("http://allowed.test"))
	req = httptest.NewRequest("OPTIONS", "/validate", nil)
	req.Header.Set("Origin", "http://other.test")
	w = httptest.NewRecorder()
	only.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDAndEvents(t *testing.T) {
	var starts []events.HTTPStart
	var finishes []events.HTTPFinish
	var validated []string
	defer eventbus.Subscribe(func(_ context.Context, e events.HTTPStart) { starts = append(starts, e) })()
	defer eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) { finishes = append(finishes, e) })()
	defer eventbus.Subscribe(func(ctx context.Context, e events.ValidationFinish) {
		rid, _ := reqid.FromContext(ctx)
		validated = append(validated, rid+" "+e.Document)
	})()

	h := newTestHandler(t)
	req := httptest.NewRequest("POST", "/validate", bytes.NewBufferString(`{"query":"{ me { id } }"}`))
	req.Header.Set(reqid.Header, "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, "abc", w.Header().Get(reqid.Header))
	require.Len(t, starts, 1)
	require.Equal(t, "abc", starts[0].RequestID)
	require.Len(t, finishes, 1)
	require.Equal(t, http.StatusOK, finishes[0].Status)
	require.Equal(t, []string{"abc request"}, validated)

	w = post(t, h, `{"query":"{ me { id } }"}`)
	require.NotEmpty(t, w.Header().Get(reqid.Header))
	require.NotEqual(t, "abc", w.Header().Get(reqid.Header))
}

func TestTimeout(t *testing.T) {
	for _, tc := range []struct {
		name         string
		opts         []Option
		wantDeadline bool
	}{
		{name: "default", wantDeadline: true},
		{name: "zero disables", opts: []Option{WithTimeout(0)}, wantDeadline: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var deadlines []bool
			defer eventbus.Subscribe(func(ctx context.Context, _ events.ValidationStart) {
				_, ok := ctx.Deadline()
				deadlines = append(deadlines, ok)
			})()

			w := post(t, newTestHandler(t, tc.opts...), `{"query":"{ me { id } }"}`)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, []bool{tc.wantDeadline}, deadlines)
		})
	}
}

func TestMuxOverHTTP(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, WithPretty()).Mux())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/validate", "application/json", bytes.NewBufferString(`{"query":"{ me { nickname? } }"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.True(t, res.Valid)

	health, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, health.Body.Close())
	require.Equal(t, http.StatusOK, health.StatusCode)
}
