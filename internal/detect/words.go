package detect

import (
	"math"
	"sort"
	"strings"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// word is a word box in a single coordinate space
type word struct {
	Text       string
	X, Y, W, H float64
	Line       int
}

func (w word) right() float64   { return w.X + w.W }
func (w word) bottom() float64  { return w.Y + w.H }
func (w word) centerY() float64 { return w.Y + w.H/2 }

// wordsIn returns the page's words converted to space. Text-layer words
// are exact and win over OCR words when both exist.
func wordsIn(in *Input, space form.Space) []word {
	src := in.Page.Words
	if len(src) == 0 {
		src = in.OCRWords
	}
	out := make([]word, 0, len(src))
	for _, wb := range src {
		if wb.Box == nil || strings.TrimSpace(wb.Text) == "" {
			continue
		}
		x, y, w, h := wb.Box.Bounds()
		f := 1.0
		switch {
		case wb.Box.Space() == form.SpaceNative && space == form.SpaceRaster:
			f = in.zoom()
		case wb.Box.Space() == form.SpaceRaster && space == form.SpaceNative:
			f = 1 / in.zoom()
		}
		out = append(out, word{Text: wb.Text, X: x * f, Y: y * f, W: w * f, H: h * f, Line: wb.Line})
	}
	return out
}

// nativeSource reports the space words are natively available in
func nativeSource(in *Input) (form.Space, bool) {
	if len(in.Page.Words) > 0 {
		return form.SpaceNative, true
	}
	if len(in.OCRWords) > 0 {
		return form.SpaceRaster, true
	}
	return form.SpaceNative, false
}

// unitsPerPoint converts page units into the given space
func (in *Input) unitsPerPoint(space form.Space) float64 {
	if space == form.SpaceRaster {
		return in.zoom()
	}
	return 1
}

// lines groups words by line number, each line sorted left to right, lines
// ordered top to bottom.
func lines(words []word) [][]word {
	byLine := make(map[int][]word)
	for _, w := range words {
		byLine[w.Line] = append(byLine[w.Line], w)
	}
	out := make([][]word, 0, len(byLine))
	for _, ws := range byLine {
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].X < ws[j].X })
		out = append(out, ws)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i][0].Y != out[j][0].Y {
			return out[i][0].Y < out[j][0].Y
		}
		return out[i][0].X < out[j][0].X
	})
	return out
}

// union returns the bounding box of ws
func union(ws []word) word {
	if len(ws) == 0 {
		return word{}
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	texts := make([]string, 0, len(ws))
	for _, w := range ws {
		x0 = math.Min(x0, w.X)
		y0 = math.Min(y0, w.Y)
		x1 = math.Max(x1, w.right())
		y1 = math.Max(y1, w.bottom())
		texts = append(texts, w.Text)
	}
	return word{Text: strings.Join(texts, " "), X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Line: ws[0].Line}
}

// labelFor finds the text that labels a box: words on the same row ending
// at most maxGap left of it, or failing that the nearest row of words no
// more than one box height above it.
func labelFor(words []word, x, y, w, h, maxGap float64) string {
	left := make([]word, 0)
	for _, wd := range words {
		if isLeader(wd.Text) {
			continue
		}
		cy := wd.centerY()
		if cy < y-h/2 || cy > y+h*1.5 {
			continue
		}
		if wd.right() <= x+1 && x-wd.right() <= maxGap {
			left = append(left, wd)
		}
	}
	if len(left) > 0 {
		sort.SliceStable(left, func(i, j int) bool { return left[i].X < left[j].X })
		// keep the run of words nearest the box
		run := []word{left[len(left)-1]}
		for i := len(left) - 2; i >= 0; i-- {
			if run[0].X-left[i].right() > 2*math.Max(left[i].H, 1) {
				break
			}
			run = append([]word{left[i]}, run...)
		}
		return cleanLabel(union(run).Text)
	}

	above := make([]word, 0)
	for _, wd := range words {
		if isLeader(wd.Text) {
			continue
		}
		if wd.bottom() <= y+1 && y-wd.bottom() <= h && wd.right() > x && wd.X < x+w {
			above = append(above, wd)
		}
	}
	if len(above) == 0 {
		return ""
	}
	sort.SliceStable(above, func(i, j int) bool {
		if above[i].Line != above[j].Line {
			return above[i].bottom() > above[j].bottom()
		}
		return above[i].X < above[j].X
	})
	nearest := above[0].Line
	row := make([]word, 0, len(above))
	for _, wd := range above {
		if wd.Line == nearest {
			row = append(row, wd)
		}
	}
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
	return cleanLabel(union(row).Text)
}

// cleanLabel strips leader characters and trailing punctuation
func cleanLabel(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '_', '…':
			return ' '
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ":.-\u2013\u2014*# ")
	return strings.Join(strings.Fields(s), " ")
}

// isLeader reports whether a token is nothing but fill characters
func isLeader(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return strings.Trim(s, "._…-") == ""
}

func lowerContext(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if r := []rune(s); len(r) > 2*maxContextRunes {
		s = string(r[:2*maxContextRunes])
	}
	return s
}
