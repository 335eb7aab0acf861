package detect

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

var (
	leaderRun = regexp.MustCompile(`\.{3,}|…{2,}|_{2,}|-{3,}`)
	// "20__" and "19__" are year blanks
	yearPrefix = regexp.MustCompile(`(?:^|\W)(?:19|20)$`)
	// "____ day of" and "____th day of"
	dayFollows = regexp.MustCompile(`^\s*(?:st|nd|rd|th)?\s*day\b`)
	// "day of ________"
	monthLead = regexp.MustCompile(`\bday\s+of\s*$`)
)

// Leader geometry
const (
	// minLeaderHeight is in page units
	minLeaderHeight = 10.0
	// raster thresholds at referenceZoom
	dotBridgePx     = 12.0
	minLeaderPx     = 90.0
	maxLeaderPx     = 9.0
	leaderFieldPx   = 30.0
	maxLabelGapPx   = 200.0
	dottedFillRatio = 0.6
)

// DottedLeader finds runs of dots, ellipses, dashes or underscores. When
// the page has a text layer the runs are located exactly from glyph
// positions; scans fall back to bridging dots on the raster.
type DottedLeader struct {
	opts Options
}

// Method implements Strategy
func (*DottedLeader) Method() form.DetectionMethod { return form.MethodDottedLeader }

// NeedsRaster implements Strategy
func (*DottedLeader) NeedsRaster() bool { return false }

// Detect implements Strategy
func (d *DottedLeader) Detect(ctx context.Context, in *Input) ([]form.Candidate, error) {
	if len(in.Page.Spans) > 0 {
		return d.fromSpans(in), nil
	}
	if in.Raster == nil {
		return nil, nil
	}
	return d.fromRaster(ctx, in), nil
}

func (d *DottedLeader) fromSpans(in *Input) []form.Candidate {
	out := make([]form.Candidate, 0)
	for _, sp := range in.Page.Spans {
		runes := []rune(sp.Text)
		if len(runes) == 0 {
			continue
		}
		positioned := sp.HasGlyphPositions()
		per := 0.5 * sp.FontSize
		if sp.Width > 0 {
			per = sp.Width / float64(len(runes))
		}

		prevEnd := 0
		for _, loc := range leaderRun.FindAllStringIndex(sp.Text, -1) {
			start := utf8.RuneCountInString(sp.Text[:loc[0]])
			end := utf8.RuneCountInString(sp.Text[:loc[1]])

			var x0, x1 float64
			if positioned {
				x0 = sp.CharX[start]
				x1 = sp.CharX[end-1] + sp.CharW[end-1]
			} else {
				x0 = sp.X + float64(start)*per
				x1 = sp.X + float64(end)*per
			}

			before := string(runes[max(0, start-maxContextRunes):start])
			after := string(runes[end:min(len(runes), end+maxContextRunes)])
			segment := string(runes[prevEnd:start])
			prevEnd = end

			ft, label := d.leaderType(before, after, segment)
			h := math.Max(sp.Height, minLeaderHeight)
			out = append(out, form.Candidate{
				PageIndex:  in.Page.Index,
				Box:        form.NativeRect{X: x0, Y: sp.Y + sp.Height - h, Width: x1 - x0, Height: h},
				FieldType:  ft,
				Context:    lowerContext(label),
				Confidence: ConfidenceTextLeader,
				Method:     form.MethodDottedLeader,
			})
		}
	}
	return out
}

// leaderType types a blank from the words around it. Legal phrasing such
// as "____ day of ________, 20__" yields day, month and year in turn.
func (d *DottedLeader) leaderType(before, after, segment string) (form.FieldType, string) {
	lb := strings.ToLower(before)
	la := strings.ToLower(after)
	label := cleanLabel(segment)
	switch {
	case yearPrefix.MatchString(strings.TrimRight(lb, " ")):
		return form.FieldTypeYear, "year"
	case dayFollows.MatchString(la):
		return form.FieldTypeDay, "day"
	case monthLead.MatchString(lb):
		return form.FieldTypeMonth, "month"
	}
	if label == "" {
		// "________ (Signature)" carries its label after the blank
		label = cleanLabel(strings.Trim(leaderRun.Split(after, 2)[0], " ()[]"))
	}
	if label == "" {
		return form.FieldTypeText, ""
	}
	return d.opts.Classify(label), label
}

func (d *DottedLeader) fromRaster(ctx context.Context, in *Input) []form.Candidate {
	s := in.scale()
	img := in.Raster
	dark := darkMask(img, otsuLevel(img))
	closed := dark.closeH(max(2, scaled(dotBridgePx, s)))
	words := wordsIn(in, form.SpaceRaster)

	out := make([]form.Candidate, 0)
	for _, c := range closed.components() {
		if ctx.Err() != nil {
			break
		}
		w, h := c.Width(), c.Height()
		if w < scaled(minLeaderPx, s) || h > max(1, scaled(maxLeaderPx, s)) {
			continue
		}
		// solid strokes belong to the underline detector
		fill := float64(dark.countIn(c.Rect())) / float64(w*h)
		if fill >= dottedFillRatio {
			continue
		}
		fh := float64(scaled(leaderFieldPx, s))
		x, y := float64(c.MinX), float64(c.MaxY+1)-fh
		label := labelFor(words, x, y, float64(w), fh, maxLabelGapPx*s)
		ft := form.FieldTypeText
		if label != "" {
			ft = d.opts.Classify(label)
		}
		out = append(out, form.Candidate{
			PageIndex:  in.Page.Index,
			Box:        form.RasterRect{X: x, Y: y, Width: float64(w), Height: fh},
			FieldType:  ft,
			Context:    lowerContext(label),
			Confidence: ConfidenceRasterLeader,
			Method:     form.MethodDottedLeader,
		})
	}
	return out
}
