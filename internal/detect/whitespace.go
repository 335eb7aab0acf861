package detect

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

var spaceRun = regexp.MustCompile(`[ \t]{3,}`)

// whitespacePad keeps a gap field clear of its neighbours, in page units
const whitespacePad = 2.0

// Whitespace finds wide gaps after a label on a text line. Gaps narrower
// than MinWhitespacePx are normal word spacing. A gap only counts when the
// text before it reads like a label: it ends in a colon or names a known
// field type.
type Whitespace struct {
	opts Options
}

// Method implements Strategy
func (*Whitespace) Method() form.DetectionMethod { return form.MethodWhitespace }

// NeedsRaster implements Strategy
func (*Whitespace) NeedsRaster() bool { return false }

// Detect implements Strategy
func (ws *Whitespace) Detect(ctx context.Context, in *Input) ([]form.Candidate, error) {
	minGapPt := ws.opts.MinWhitespacePx / referenceZoom
	positioned := false
	for _, sp := range in.Page.Spans {
		if sp.HasGlyphPositions() {
			positioned = true
			break
		}
	}
	if !positioned && len(in.OCRWords) > 0 {
		return ws.fromWords(in, minGapPt), nil
	}
	return ws.fromSpans(in, minGapPt), nil
}

func (ws *Whitespace) labelled(before string) (form.FieldType, string, bool) {
	label := cleanLabel(before)
	if utf8.RuneCountInString(label) < 2 {
		return "", "", false
	}
	ft := ws.opts.Classify(label)
	if ft == form.FieldTypeText && !strings.HasSuffix(strings.TrimSpace(before), ":") {
		return "", "", false
	}
	return ft, label, true
}

func (ws *Whitespace) fromSpans(in *Input, minGap float64) []form.Candidate {
	out := make([]form.Candidate, 0)
	for _, sp := range in.Page.Spans {
		runes := []rune(sp.Text)
		if len(runes) == 0 {
			continue
		}
		prevEnd := 0
		for _, loc := range spaceRun.FindAllStringIndex(sp.Text, -1) {
			start := utf8.RuneCountInString(sp.Text[:loc[0]])
			end := utf8.RuneCountInString(sp.Text[:loc[1]])
			before := string(runes[prevEnd:start])
			prevEnd = end
			x0, x1 := runEdges(sp, len(runes), start, end)
			if x1-x0 < minGap {
				continue
			}
			ft, label, ok := ws.labelled(lastPhrase(before))
			if !ok {
				continue
			}
			out = append(out, form.Candidate{
				PageIndex:  in.Page.Index,
				Box:        form.NativeRect{X: x0 + whitespacePad, Y: sp.Y, Width: x1 - x0 - 2*whitespacePad, Height: sp.Height},
				FieldType:  ft,
				Context:    lowerContext(label),
				Confidence: ConfidenceWhitespace,
				Method:     form.MethodWhitespace,
			})
		}
	}
	return out
}

func (ws *Whitespace) fromWords(in *Input, minGapPt float64) []form.Candidate {
	z := in.zoom()
	minGap := minGapPt * z
	pad := whitespacePad * z
	out := make([]form.Candidate, 0)
	for _, line := range lines(wordsIn(in, form.SpaceRaster)) {
		phraseStart := 0
		for i := 1; i < len(line); i++ {
			prev, next := line[i-1], line[i]
			gap := next.X - prev.right()
			if gap < minGap {
				continue
			}
			phrase := union(line[phraseStart:i])
			phraseStart = i
			ft, label, ok := ws.labelled(phrase.Text)
			if !ok {
				continue
			}
			top := min(prev.Y, next.Y)
			bottom := max(prev.bottom(), next.bottom())
			out = append(out, form.Candidate{
				PageIndex:  in.Page.Index,
				Box:        form.RasterRect{X: prev.right() + pad, Y: top, Width: gap - 2*pad, Height: bottom - top},
				FieldType:  ft,
				Context:    lowerContext(label),
				Confidence: ConfidenceWhitespace,
				Method:     form.MethodWhitespace,
			})
		}
	}
	return out
}

// runEdges returns the page x range of runes [start, end) of a span. A run
// that reaches the end of the span ends at the last glyph's right edge.
// Without glyph positions the advance is estimated from the span width.
func runEdges(sp form.TextSpan, n, start, end int) (x0, x1 float64) {
	if sp.HasGlyphPositions() {
		x0 = sp.CharX[start]
		if end < n {
			return x0, sp.CharX[end]
		}
		return x0, sp.CharX[n-1] + sp.CharW[n-1]
	}
	per := 0.5 * sp.FontSize
	if sp.Width > 0 {
		per = sp.Width / float64(n)
	}
	return sp.X + float64(start)*per, sp.X + float64(end)*per
}

// lastPhrase drops everything up to the last inner colon, so
// "Name: Ann Age:" yields "Ann Age:" and "Age:" stays "Age:".
func lastPhrase(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(strings.TrimSuffix(s, ":"), ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
