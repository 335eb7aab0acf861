package extraction

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

const (
	// ascentRatio places the top of a line above its baseline
	ascentRatio  = 0.8
	// spaceRatio is the assumed width of a space relative to font size
	spaceRatio   = 0.28
	maxGapSpaces = 40
)

// readTextLayer extracts positioned text lines for every page. Lines are
// in page units with a top-left origin. A page whose content stream cannot
// be decoded yields no spans rather than failing the document.
func readTextLayer(path string, heights []float64) (spans [][]form.TextSpan, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open text layer: %w", err)
	}
	defer f.Close()

	spans = make([][]form.TextSpan, len(heights))
	n := r.NumPage()
	for i := 0; i < len(heights) && i < n; i++ {
		spans[i] = pageSpans(r, i+1, heights[i])
	}
	return spans, nil
}

func pageSpans(r *pdf.Reader, pageNum int, pageHeight float64) (spans []form.TextSpan) {
	defer func() {
		if recover() != nil {
			spans = nil
		}
	}()

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return nil
	}
	return buildSpans(page.Content().Text, pageHeight)
}

// buildSpans groups glyphs into lines and lays out each line's text with
// per-rune positions. Horizontal gaps wider than a space become runs of
// spaces so column gaps stay visible to text matchers.
func buildSpans(glyphs []pdf.Text, pageHeight float64) []form.TextSpan {
	gs := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" {
			gs = append(gs, g)
		}
	}
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Y != gs[j].Y {
			return gs[i].Y > gs[j].Y
		}
		return gs[i].X < gs[j].X
	})

	lines := make([][]pdf.Text, 0)
	for _, g := range gs {
		if n := len(lines); n > 0 {
			base := lines[n-1][0]
			tol := math.Max(1, 0.35*fontSize(base))
			if math.Abs(g.Y-base.Y) <= tol {
				lines[n-1] = append(lines[n-1], g)
				continue
			}
		}
		lines = append(lines, []pdf.Text{g})
	}

	spans := make([]form.TextSpan, 0, len(lines))
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		if span, ok := layoutLine(line, pageHeight); ok {
			spans = append(spans, span)
		}
	}
	return spans
}

func fontSize(g pdf.Text) float64 {
	if g.FontSize <= 0 {
		return 10
	}
	return g.FontSize
}

func layoutLine(line []pdf.Text, pageHeight float64) (form.TextSpan, bool) {
	var (
		text  strings.Builder
		charX []float64
		charW []float64
		size  float64
		end   float64
		last  rune
	)

	for i, g := range line {
		fs := fontSize(g)
		size = math.Max(size, fs)
		runes := []rune(g.S)

		if i > 0 {
			gap := g.X - end
			if gap > 0.15*fs && !unicode.IsSpace(last) && !unicode.IsSpace(runes[0]) {
				n := int(math.Round(gap / (spaceRatio * fs)))
				if n < 1 {
					n = 1
				}
				if n > maxGapSpaces {
					n = maxGapSpaces
				}
				step := gap / float64(n)
				for k := 0; k < n; k++ {
					text.WriteRune(' ')
					charX = append(charX, end+float64(k)*step)
					charW = append(charW, step)
				}
			}
		}

		w := g.W / float64(len(runes))
		for k, r := range runes {
			text.WriteRune(r)
			charX = append(charX, g.X+float64(k)*w)
			charW = append(charW, w)
		}
		end = g.X + g.W
		last = runes[len(runes)-1]
	}

	s := text.String()
	if strings.TrimSpace(s) == "" {
		return form.TextSpan{}, false
	}
	baseline := line[0].Y
	return form.TextSpan{
		Text:     s,
		X:        charX[0],
		Y:        pageHeight - baseline - ascentRatio*size,
		Width:    end - charX[0],
		Height:   size,
		FontSize: size,
		CharX:    charX,
		CharW:    charW,
	}, true
}

// spanWords splits spans into word boxes in native page space
func spanWords(spans []form.TextSpan) []form.WordBox {
	words := make([]form.WordBox, 0)
	for lineIdx, s := range spans {
		runes := []rune(s.Text)
		positioned := s.HasGlyphPositions()
		start := -1
		flush := func(end int) {
			if start < 0 {
				return
			}
			x0, x1 := s.X, s.X+s.Width
			if positioned {
				x0 = s.CharX[start]
				x1 = s.CharX[end-1] + s.CharW[end-1]
			}
			words = append(words, form.WordBox{
				Text:       string(runes[start:end]),
				Box:        form.NativeRect{X: x0, Y: s.Y, Width: x1 - x0, Height: s.Height},
				Confidence: 1,
				Line:       lineIdx,
			})
			start = -1
		}
		for i, r := range runes {
			if unicode.IsSpace(r) {
				flush(i)
				continue
			}
			if start < 0 {
				start = i
			}
		}
		flush(len(runes))
	}
	return words
}

// pageText joins span texts into the plain text of a page
func pageText(spans []form.TextSpan) string {
	lines := make([]string, 0, len(spans))
	for _, s := range spans {
		lines = append(lines, strings.TrimRightFunc(s.Text, unicode.IsSpace))
	}
	return strings.Join(lines, "\n")
}
