package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanpama/ccn/internal/check"
	"github.com/hanpama/ccn/internal/otel"
	"github.com/hanpama/ccn/internal/render"
	"github.com/hanpama/ccn/internal/schema"
	"github.com/hanpama/ccn/internal/server"
	"github.com/hanpama/ccn/internal/source"
	"github.com/hanpama/ccn/internal/validator"
)

const rootUsage = `ccn: client-controlled nullability checks for GraphQL operations

USAGE:
  ccn <command> [flags]

COMMANDS:
  check            Validate operation documents against a schema
  annotate         Print operations with the effective type of every field
  print-schema     Merge & validate schema SDL and print it
  serve            Run the HTTP validation endpoint
  help             Show help for any command
`

const schemaFlagUsage = `  -schema <glob>            Schema SDL files. Repeatable (default: schema.graphql)
`

const checkUsage = `check FLAGS:
` + schemaFlagUsage + `  -ops <glob>               Operation documents. Repeatable (default: **/*.graphql)
  -concurrency N            Documents validated in parallel (default: GOMAXPROCS)
  -relaxed                  Allow conflicts between distinct concrete object types
  -fail-fast                Stop after the first invalid document
  -log.level <level>        debug, info, warn or error (default: info)
  (exits non-zero when any document is invalid)
`

const annotateUsage = `annotate FLAGS:
` + schemaFlagUsage + `  -relaxed                  Allow conflicts between distinct concrete object types
ARGS:
  <file>...                 Operation documents to print
`

const printSchemaUsage = `print-schema FLAGS:
` + schemaFlagUsage + `  -out <file>               Write SDL to file (default: stdout)
`

const serveUsage = `serve FLAGS:
` + schemaFlagUsage + `  -relaxed                  Allow conflicts between distinct concrete object types
  -server.addr <addr>       HTTP listen address (default: :8080)
  -server.pretty            Pretty-print JSON responses
  -server.timeout <dur>     Per-request timeout, e.g. 10s; 0 disables (default: 10s)
  -server.max-body <bytes>  Request body limit (default: 1048576)
  -server.cors <origin>     Allowed CORS origin. Repeatable
  -otel.endpoint <addr>     OTLP collector endpoint
  -otel.service <name>      OpenTelemetry service name (default: ccn)
  -log.level <level>        debug, info, warn or error (default: info)
`

// env is what a command may touch outside its arguments.
type env struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

func main() {
	e := env{fs: afero.NewOsFs(), stdout: os.Stdout, stderr: os.Stderr}
	if err := run(e, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(e env, args []string) error {
	global := flag.NewFlagSet("ccn", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(e.stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(e.stderr, rootUsage)
		return errors.New("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "check":
		return cmdCheck(e, cmdArgs)
	case "annotate":
		return cmdAnnotate(e, cmdArgs)
	case "print-schema":
		return cmdPrintSchema(e, cmdArgs)
	case "serve":
		return cmdServe(e, cmdArgs)
	case "help":
		return cmdHelp(e, cmdArgs)
	default:
		fmt.Fprint(e.stderr, rootUsage)
		return errors.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(e env, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(e.stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "check":
		fmt.Fprint(e.stdout, checkUsage)
	case "annotate":
		fmt.Fprint(e.stdout, annotateUsage)
	case "print-schema":
		fmt.Fprint(e.stdout, printSchemaUsage)
	case "serve":
		fmt.Fprint(e.stdout, serveUsage)
	default:
		return errors.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (s stringListFlag) or(def ...string) []string {
	if len(s) == 0 {
		return def
	}
	return s
}

func newLogger(w io.Writer, level string) (*zap.Logger, abstractlogger.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "-log.level")
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		lvl,
	)
	zl := zap.New(core)
	return zl, abstractlogger.NewZapLogger(zl, abstractlogger.DebugLevel), nil
}

// loadValidator also returns the schema files, which are never operations.
func loadValidator(e env, schemaGlobs []string, relaxed bool) (*validator.Validator, []string, error) {
	schemaPaths, err := source.Glob(e.fs, schemaGlobs...)
	if err != nil {
		return nil, nil, err
	}
	sch, err := source.LoadSchema(e.fs, schemaGlobs...)
	if err != nil {
		return nil, nil, err
	}
	var opts []validator.Option
	if relaxed {
		opts = append(opts, validator.WithRelaxedDisjointParents())
	}
	return validator.New(sch, opts...), schemaPaths, nil
}

func cmdCheck(e env, args []string) error {
	var schemaGlobs, opGlobs stringListFlag
	concurrency := 0
	relaxed := false
	failFast := false
	logLevel := "info"

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemaGlobs, "schema", "Schema SDL files")
	fs.Var(&opGlobs, "ops", "Operation documents")
	fs.IntVar(&concurrency, "concurrency", concurrency, "Documents validated in parallel")
	fs.BoolVar(&relaxed, "relaxed", relaxed, "Allow conflicts between distinct object types")
	fs.BoolVar(&failFast, "fail-fast", failFast, "Stop after the first invalid document")
	fs.StringVar(&logLevel, "log.level", logLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(e.stderr, checkUsage)
		return err
	}

	zl, log, err := newLogger(e.stderr, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	v, schemaPaths, err := loadValidator(e, schemaGlobs.or("schema.graphql"), relaxed)
	if err != nil {
		return err
	}
	paths, err := source.FindOperations(e.fs, opGlobs.or(source.DefaultOperationPattern), schemaPaths...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no operation documents found")
	}
	log.Info("checking documents", abstractlogger.Int("count", len(paths)))

	reports, runErr := check.Run(context.Background(), v, e.fs, paths, check.Options{
		Concurrency: concurrency,
		FailFast:    failFast,
		Logger:      log,
	})
	invalid := 0
	for _, r := range reports {
		if r.Err == nil {
			overrides := 0
			for _, s := range r.Result.Selections {
				if s.Overridden() {
					overrides++
				}
			}
			fmt.Fprintf(e.stdout, "ok   %s (%d fields, %d overridden)\n", r.Path, len(r.Result.Selections), overrides)
			continue
		}
		invalid++
		violations := r.Violations()
		if violations == nil {
			fmt.Fprintf(e.stdout, "FAIL %s: %v\n", r.Path, r.Err)
			continue
		}
		for _, vi := range violations {
			fmt.Fprintf(e.stdout, "FAIL %s:%d:%d: %s [%s]\n", r.Path, vi.Line, vi.Column, vi.Message, vi.Rule)
		}
	}
	if runErr != nil {
		log.Debug("check failed", abstractlogger.Error(runErr))
		return errors.Errorf("%d of %d document(s) invalid", invalid, len(paths))
	}
	return nil
}

func cmdAnnotate(e env, args []string) error {
	var schemaGlobs stringListFlag
	relaxed := false

	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemaGlobs, "schema", "Schema SDL files")
	fs.BoolVar(&relaxed, "relaxed", relaxed, "Allow conflicts between distinct object types")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(e.stderr, annotateUsage)
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprint(e.stderr, annotateUsage)
		return errors.New("at least one operation file is required")
	}

	v, _, err := loadValidator(e, schemaGlobs.or("schema.graphql"), relaxed)
	if err != nil {
		return err
	}
	for i, p := range fs.Args() {
		text, err := source.ReadOperation(e.fs, p)
		if err != nil {
			return err
		}
		res, err := v.ValidateSource(context.Background(), p, text)
		if err != nil {
			return errors.WithMessage(err, p)
		}
		if i > 0 {
			fmt.Fprintln(e.stdout)
		}
		fmt.Fprintf(e.stdout, "# %s\n", p)
		fmt.Fprint(e.stdout, render.Operation(res))
	}
	return nil
}

func cmdPrintSchema(e env, args []string) error {
	var schemaGlobs stringListFlag
	outFile := ""

	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemaGlobs, "schema", "Schema SDL files")
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(e.stderr, printSchemaUsage)
		return err
	}

	sch, err := source.LoadSchema(e.fs, schemaGlobs.or("schema.graphql")...)
	if err != nil {
		return err
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		fmt.Fprint(e.stdout, sdl)
		return nil
	}
	return errors.Wrap(afero.WriteFile(e.fs, outFile, []byte(sdl), 0o644), "write schema")
}

// serveOptions maps the serve flags to handler options. A zero timeout
// disables the per-request timeout.
func serveOptions(log abstractlogger.Logger, timeout time.Duration, maxBody int64, pretty bool, cors []string) []server.Option {
	opts := []server.Option{
		server.WithLogger(log),
		server.WithTimeout(timeout),
		server.WithMaxBodyBytes(maxBody),
	}
	if pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cors) > 0 {
		opts = append(opts, server.WithCORS(cors...))
	}
	return opts
}

func cmdServe(e env, args []string) error {
	var schemaGlobs, corsOrigins stringListFlag
	relaxed := false
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxBody := int64(1 << 20)
	otelEndpoint := ""
	otelService := "ccn"
	logLevel := "info"

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemaGlobs, "schema", "Schema SDL files")
	fs.BoolVar(&relaxed, "relaxed", relaxed, "Allow conflicts between distinct object types")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Request body limit")
	fs.Var(&corsOrigins, "server.cors", "Allowed CORS origin")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	fs.StringVar(&logLevel, "log.level", logLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(e.stderr, serveUsage)
		return err
	}

	zl, log, err := newLogger(e.stderr, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	v, _, err := loadValidator(e, schemaGlobs.or("schema.graphql"), relaxed)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := otel.Setup(ctx, otelEndpoint, otelService)
	if err != nil {
		return errors.Wrap(err, "otel setup")
	}
	defer func() { _ = shutdown(context.Background()) }()

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(v, serveOptions(log, timeout, maxBody, pretty, corsOrigins)...).Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("validation server listening", abstractlogger.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
