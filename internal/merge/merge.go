// Package merge resolves overlapping candidates from independent detectors
// into one non-overlapping field list per page.
package merge

import (
	"sort"

	"github.com/tidwall/rtree"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// DefaultThreshold is the overlap ratio above which two fields are the same
const DefaultThreshold = 0.25

// DefaultPriority ranks detection methods; higher wins a conflict
func DefaultPriority() map[form.DetectionMethod]int {
	return map[form.DetectionMethod]int{
		form.MethodNativeWidget: 3,
		form.MethodTextPattern:  2,
		form.MethodUnderline:    2,
		form.MethodDottedLeader: 2,
		form.MethodRectangular:  1,
		form.MethodWhitespace:   1,
	}
}

// Config holds the tunable merge constants
type Config struct {
	Threshold float64
	Priority  map[form.DetectionMethod]int
	// SuppressGeometricWithWidgets drops rectangular and whitespace
	// candidates on any page that has native widgets.
	SuppressGeometricWithWidgets bool
}

// DefaultConfig returns the standard merge configuration
func DefaultConfig() Config {
	return Config{
		Threshold:                    DefaultThreshold,
		Priority:                     DefaultPriority(),
		SuppressGeometricWithWidgets: true,
	}
}

// Drop records why a candidate did not survive
type Drop struct {
	ID        string  `json:"id"`
	PageIndex int     `json:"page_index"`
	KeptID    string  `json:"kept_id,omitempty"`
	Ratio     float64 `json:"ratio,omitempty"`
	Reason    string  `json:"reason"`
}

// Result is the merged field list plus the discarded candidates
type Result struct {
	Fields  []form.Field
	Dropped []Drop
}

// Engine merges reconciled fields
type Engine struct {
	cfg Config
}

// New creates an engine; zero values in cfg fall back to defaults
func New(cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Priority == nil {
		cfg.Priority = DefaultPriority()
	}
	return &Engine{cfg: cfg}
}

// Threshold returns the configured overlap threshold
func (e *Engine) Threshold() float64 {
	return e.cfg.Threshold
}

// Merge groups fields by page and merges each page independently. Output
// is in page order, then reading order within a page.
func (e *Engine) Merge(fields []form.Field) Result {
	byPage := make(map[int][]form.Field)
	pages := make([]int, 0)
	for _, f := range fields {
		if _, seen := byPage[f.PageIndex]; !seen {
			pages = append(pages, f.PageIndex)
		}
		byPage[f.PageIndex] = append(byPage[f.PageIndex], f)
	}
	sort.Ints(pages)

	var out Result
	out.Fields = make([]form.Field, 0, len(fields))
	for _, p := range pages {
		r := e.MergePage(byPage[p])
		out.Fields = append(out.Fields, r.Fields...)
		out.Dropped = append(out.Dropped, r.Dropped...)
	}
	return out
}

// MergePage merges the fields of a single page
func (e *Engine) MergePage(fields []form.Field) Result {
	var result Result

	hasNative := false
	for _, f := range fields {
		if f.Method == form.MethodNativeWidget {
			hasNative = true
			break
		}
	}

	candidates := make([]form.Field, 0, len(fields))
	for _, f := range fields {
		if hasNative && e.cfg.SuppressGeometricWithWidgets && f.Method.IsGeometric() {
			result.Dropped = append(result.Dropped, Drop{
				ID: f.ID, PageIndex: f.PageIndex, Reason: "page has native widgets",
			})
			continue
		}
		candidates = append(candidates, f)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := e.cfg.Priority[candidates[i].Method], e.cfg.Priority[candidates[j].Method]
		if pi != pj {
			return pi > pj
		}
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].ID < candidates[j].ID
	})

	var index rtree.RTreeG[int]
	accepted := make([]form.Field, 0, len(candidates))

	for _, c := range candidates {
		lo, hi := bounds(c.Rect)
		conflict := -1
		ratio := 0.0
		index.Search(lo, hi, func(_, _ [2]float64, i int) bool {
			r := c.Rect.OverlapRatio(accepted[i].Rect)
			if r > e.cfg.Threshold {
				conflict, ratio = i, r
				return false
			}
			return true
		})

		if conflict >= 0 {
			result.Dropped = append(result.Dropped, Drop{
				ID:        c.ID,
				PageIndex: c.PageIndex,
				KeptID:    accepted[conflict].ID,
				Ratio:     ratio,
				Reason:    "overlaps a higher-ranked field",
			})
			continue
		}

		index.Insert(lo, hi, len(accepted))
		accepted = append(accepted, c)
	}

	form.SortFields(accepted)
	result.Fields = accepted
	return result
}

func bounds(r form.PageRect) (lo, hi [2]float64) {
	return [2]float64{r.X, r.Y}, [2]float64{r.Right(), r.Bottom()}
}

// MaxOverlap returns the largest pairwise overlap ratio among fields on
// the same page.
func MaxOverlap(fields []form.Field) float64 {
	worst := 0.0
	for i := range fields {
		for j := i + 1; j < len(fields); j++ {
			if fields[i].PageIndex != fields[j].PageIndex {
				continue
			}
			if r := fields[i].Rect.OverlapRatio(fields[j].Rect); r > worst {
				worst = r
			}
		}
	}
	return worst
}
