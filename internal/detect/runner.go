package detect

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

// Outcome records how one strategy fared on one page
type Outcome struct {
	Method     form.DetectionMethod
	Candidates int
	Skipped    bool
	Err        error
	Duration   time.Duration
}

// PageResult is the combined output of every strategy for one page
type PageResult struct {
	Candidates []form.Candidate
	Outcomes   []Outcome
	Errors     []*pdferrors.ProcessingError
}

// Runner executes an ordered strategy list. A failing strategy is recorded
// and the remaining strategies still run.
type Runner struct {
	strategies []Strategy
	logger     *logrus.Entry
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(strategies []Strategy, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Runner{
		strategies: strategies,
		logger:     logger.WithField("component", "detector"),
	}
}

// Strategies returns the configured strategies in run order
func (r *Runner) Strategies() []Strategy {
	return r.strategies
}

// NeedsRaster reports whether any strategy uses the page raster
func (r *Runner) NeedsRaster() bool {
	for _, s := range r.strategies {
		if s.NeedsRaster() {
			return true
		}
	}
	return false
}

// Run detects candidates on one page. Candidate ids are assigned here:
// "<method>_<page>_<n>" for detector output; native widgets keep theirs.
func (r *Runner) Run(ctx context.Context, in *Input) PageResult {
	var res PageResult
	page := in.Page.Index

	for _, s := range r.strategies {
		name := string(s.Method())
		log := r.logger.WithFields(logrus.Fields{"detector": name, "page": page})

		if err := ctx.Err(); err != nil {
			res.Outcomes = append(res.Outcomes, Outcome{Method: s.Method(), Err: err})
			res.Errors = append(res.Errors, pdferrors.NewDetectorError(name, page, err))
			continue
		}
		if s.NeedsRaster() && in.Raster == nil {
			log.Debug("Skipping detector: no raster")
			res.Outcomes = append(res.Outcomes, Outcome{Method: s.Method(), Skipped: true})
			continue
		}

		start := time.Now()
		cands, err := safeDetect(ctx, s, in)
		elapsed := time.Since(start)
		if err != nil {
			log.WithField("error", err.Error()).Warn("Detector failed")
			res.Outcomes = append(res.Outcomes, Outcome{Method: s.Method(), Err: err, Duration: elapsed})
			res.Errors = append(res.Errors, pdferrors.NewDetectorError(name, page, err))
			continue
		}

		for i := range cands {
			cands[i].PageIndex = page
			if cands[i].Method == "" {
				cands[i].Method = s.Method()
			}
			if cands[i].ID == "" {
				cands[i].ID = fmt.Sprintf("%s_%d_%d", name, page, i)
			}
		}
		log.WithFields(logrus.Fields{
			"candidates": len(cands),
			"duration":   elapsed,
		}).Debug("Detector finished")
		res.Outcomes = append(res.Outcomes, Outcome{Method: s.Method(), Candidates: len(cands), Duration: elapsed})
		res.Candidates = append(res.Candidates, cands...)
	}
	return res
}

func safeDetect(ctx context.Context, s Strategy, in *Input) (cands []form.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cands = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Detect(ctx, in)
}
