// Package server exposes the validator over HTTP.
//
// POST /validate accepts {"query": ..., "operationName": ...} or a batch
// array of such objects; GET accepts the same fields as URL parameters. A
// document that fails validation is still a successful request: the
// response carries "valid": false and the violations as GraphQL errors.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"

	eventbus "github.com/hanpama/ccn/internal/eventbus"
	events "github.com/hanpama/ccn/internal/events"
	reqid "github.com/hanpama/ccn/internal/reqid"
	validator "github.com/hanpama/ccn/internal/validator"
)

// Handler is an http.Handler that validates operation documents.
type Handler struct {
	v   *validator.Validator
	opt Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	Logger abstractlogger.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithLogger(l abstractlogger.Logger) Option { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a handler validating documents with v.
func New(v *validator.Validator, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, MaxBodyBytes: 1 << 20}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = abstractlogger.NoopLogger
	}
	return &Handler{v: v, opt: op}
}

// Mux routes /validate to h and answers /healthz.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/validate", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx = reqid.WithID(ctx, r.Header.Get(reqid.Header))
	rid, _ := reqid.FromContext(ctx)
	w.Header().Set(reqid.Header, rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r, RequestID: rid})
	defer func() {
		d := time.Since(start)
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, RequestID: rid, Status: status, Duration: d})
		h.opt.Logger.Debug("validate request",
			abstractlogger.String("request_id", rid),
			abstractlogger.String("method", r.Method),
			abstractlogger.Int("status", status),
			abstractlogger.Any("duration", d),
		)
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, requestError("method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, err := parseRequest(r, h.opt.MaxBodyBytes)
	if err != nil {
		status = http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.opt.Logger.Debug("bad validate request", abstractlogger.String("request_id", rid), abstractlogger.Error(err))
		writeJSON(w, status, requestError(err.Error()), h.opt.Pretty)
		return
	}

	if batch != nil {
		out := make([]validationResponse, len(batch))
		for i := range batch {
			out[i] = h.validateOne(ctx, fmt.Sprintf("request[%d]", i), batch[i])
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	writeJSON(w, status, h.validateOne(ctx, "request", req), h.opt.Pretty)
}

func (h *Handler) validateOne(ctx context.Context, name string, req ValidationRequest) validationResponse {
	res, err := h.v.ValidateSource(ctx, name, req.Query)
	if err != nil {
		var verr validator.ValidationError
		if errors.As(err, &verr) {
			return validationResponse{Errors: toSpecErrors(verr)}
		}
		h.opt.Logger.Error("validate", abstractlogger.String("document", name), abstractlogger.Error(err))
		return validationResponse{Errors: []specError{{Message: err.Error()}}}
	}
	if req.OperationName != "" && res.Document.Operations.ForName(req.OperationName) == nil {
		return validationResponse{Errors: []specError{{Message: fmt.Sprintf("Unknown operation named %q.", req.OperationName)}}}
	}
	return validationResponse{Valid: true, Fields: res.Selections}
}

// ------------------ Request parsing ------------------

type ValidationRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName,omitempty"`
}

var errBodyTooLarge = errors.New("body too large")

func parseRequest(r *http.Request, maxBody int64) (ValidationRequest, []ValidationRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return ValidationRequest{}, nil, errors.New("missing 'query'")
		}
		return ValidationRequest{Query: q, OperationName: r.URL.Query().Get("operationName")}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return ValidationRequest{}, nil, errors.New("unsupported Content-Type")
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return ValidationRequest{}, nil, errors.Wrap(err, "failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return ValidationRequest{}, nil, errBodyTooLarge
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []ValidationRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return ValidationRequest{}, nil, errors.New("invalid JSON")
		}
		if len(arr) == 0 {
			return ValidationRequest{}, nil, errors.New("empty batch")
		}
		return ValidationRequest{}, arr, nil
	}
	var req ValidationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ValidationRequest{}, nil, errors.New("invalid JSON")
	}
	if req.Query == "" {
		return ValidationRequest{}, nil, errors.New("missing 'query'")
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type validationResponse struct {
	Valid  bool                   `json:"valid"`
	Errors []specError            `json:"errors,omitempty"`
	Fields []*validator.Selection `json:"fields,omitempty"`
}

func requestError(msg string) validationResponse {
	return validationResponse{Errors: []specError{{Message: msg}}}
}

func toSpecErrors(verr validator.ValidationError) []specError {
	out := make([]specError, 0, len(verr))
	for _, e := range verr.GQLErrors() {
		se := specError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
		}
		out = append(out, se)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
