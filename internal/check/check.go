// Package check validates many operation documents at once.
package check

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	source "github.com/hanpama/ccn/internal/source"
	validator "github.com/hanpama/ccn/internal/validator"
)

type Options struct {
	// Concurrency bounds the number of documents validated at the same time.
	// 0 uses GOMAXPROCS.
	Concurrency int

	// FailFast stops scheduling new documents after the first failure.
	// Documents interrupted by the stop are left out of the reports.
	FailFast bool

	Logger abstractlogger.Logger
}

// Report is the outcome for one document. Exactly one of Result and Err is
// set.
type Report struct {
	Path     string
	Result   *validator.Result
	Err      error
	Duration time.Duration
}

// Violations returns the validation violations of a failed report, or nil
// when it failed for another reason.
func (r *Report) Violations() validator.ValidationError {
	var verr validator.ValidationError
	if errors.As(r.Err, &verr) {
		return verr
	}
	return nil
}

// Run validates every path read from fsys with v. Reports keep the order of
// paths; documents skipped after a fail-fast stop have no report. The
// returned error aggregates every failure, each prefixed with its path.
func Run(ctx context.Context, v *validator.Validator, fsys afero.Fs, paths []string, opts Options) ([]*Report, error) {
	log := opts.Logger
	if log == nil {
		log = abstractlogger.NoopLogger
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	reports := make([]*Report, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := checkOne(gctx, v, fsys, p)
			if stoppedEarly(ctx, gctx, r.Err) {
				return nil
			}
			reports[i] = r
			if r.Err != nil {
				log.Debug("document failed",
					abstractlogger.String("path", p),
					abstractlogger.Error(r.Err),
				)
				if opts.FailFast {
					return r.Err
				}
				return nil
			}
			log.Debug("document valid",
				abstractlogger.String("path", p),
				abstractlogger.Int("fields", len(r.Result.Selections)),
			)
			return nil
		})
	}
	groupErr := g.Wait()
	if groupErr == nil {
		groupErr = ctx.Err()
	}

	var result *multierror.Error
	out := reports[:0]
	for _, r := range reports {
		if r == nil {
			continue
		}
		out = append(out, r)
		if r.Err != nil {
			result = multierror.Append(result, errors.WithMessage(r.Err, r.Path))
		}
	}
	if result == nil && groupErr != nil {
		return out, groupErr
	}
	if result != nil {
		result.ErrorFormat = formatErrors
	}
	return out, result.ErrorOrNil()
}

func checkOne(ctx context.Context, v *validator.Validator, fsys afero.Fs, p string) *Report {
	start := time.Now()
	r := &Report{Path: p}
	text, err := source.ReadOperation(fsys, p)
	if err == nil {
		r.Result, err = v.ValidateSource(ctx, p, text)
	}
	r.Err = err
	r.Duration = time.Since(start)
	return r
}

// stoppedEarly reports whether err is only the cancellation of gctx after
// another document failed, as opposed to a failure of the document itself or
// of the caller's context.
func stoppedEarly(ctx, gctx context.Context, err error) bool {
	return err != nil && ctx.Err() == nil && gctx.Err() != nil && errors.Is(err, context.Canceled)
}

func formatErrors(errs []error) string {
	msg := fmt.Sprintf("%d document(s) failed validation", len(errs))
	for _, err := range errs {
		msg += "\n* " + err.Error()
	}
	return msg
}
