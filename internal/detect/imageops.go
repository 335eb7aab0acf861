package detect

import (
	"image"
	"math"
)

// mask is a binary image. Set pixels are foreground.
type mask struct {
	w, h int
	pix  []bool
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, pix: make([]bool, w*h)}
}

func (m *mask) at(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.pix[y*m.w+x]
}

func (m *mask) set(x, y int) {
	m.pix[y*m.w+x] = true
}

// darkMask marks pixels darker than level
func darkMask(img *image.Gray, level uint8) *mask {
	b := img.Bounds()
	m := newMask(b.Dx(), b.Dy())
	for y := 0; y < m.h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+m.w]
		for x, v := range row {
			if v < level {
				m.pix[y*m.w+x] = true
			}
		}
	}
	return m
}

// otsuLevel picks the threshold that maximizes between-class variance
func otsuLevel(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		for _, v := range img.Pix[off : off+w] {
			hist[v]++
		}
	}
	total := w * h
	if total == 0 {
		return 128
	}
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}
	var (
		sumB, best float64
		wB         int
		level      = 128
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	// foreground is strictly darker than the returned level
	return uint8(level + 1)
}

// forEachRun calls fn with the [start, end) spans of set pixels in row y
func (m *mask) forEachRun(y int, fn func(start, end int)) {
	row := m.pix[y*m.w : (y+1)*m.w]
	start := -1
	for x, on := range row {
		switch {
		case on && start < 0:
			start = x
		case !on && start >= 0:
			fn(start, x)
			start = -1
		}
	}
	if start >= 0 {
		fn(start, m.w)
	}
}

// openH is a morphological opening with a 1xk horizontal kernel: only
// horizontal runs at least k pixels long survive.
func (m *mask) openH(k int) *mask {
	out := newMask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		m.forEachRun(y, func(start, end int) {
			if end-start >= k {
				for x := start; x < end; x++ {
					out.set(x, y)
				}
			}
		})
	}
	return out
}

// closeH is a morphological closing with a 1xk horizontal kernel: gaps
// shorter than k between two runs on a row are filled.
func (m *mask) closeH(k int) *mask {
	out := newMask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		prevEnd := -1
		m.forEachRun(y, func(start, end int) {
			from := start
			if prevEnd >= 0 && start-prevEnd < k {
				from = prevEnd
			}
			for x := from; x < end; x++ {
				out.set(x, y)
			}
			prevEnd = end
		})
	}
	return out
}

// closeV fills vertical gaps shorter than k, column by column
func (m *mask) closeV(k int) *mask {
	out := newMask(m.w, m.h)
	copy(out.pix, m.pix)
	for x := 0; x < m.w; x++ {
		prevEnd := -1
		for y := 0; y < m.h; {
			if !m.pix[y*m.w+x] {
				y++
				continue
			}
			start := y
			for y < m.h && m.pix[y*m.w+x] {
				y++
			}
			if prevEnd >= 0 && start-prevEnd < k {
				for g := prevEnd; g < start; g++ {
					out.pix[g*m.w+x] = true
				}
			}
			prevEnd = y
		}
	}
	return out
}

// component is the bounding box of a connected foreground region
type component struct {
	MinX, MinY, MaxX, MaxY int
	Pixels                 int
}

func (c component) Width() int  { return c.MaxX - c.MinX + 1 }
func (c component) Height() int { return c.MaxY - c.MinY + 1 }

func (c component) Rect() image.Rectangle {
	return image.Rect(c.MinX, c.MinY, c.MaxX+1, c.MaxY+1)
}

// components labels 8-connected foreground regions in raster order
func (m *mask) components() []component {
	seen := make([]bool, len(m.pix))
	out := make([]component, 0)
	stack := make([]int, 0, 1024)

	for i, on := range m.pix {
		if !on || seen[i] {
			continue
		}
		c := component{MinX: i % m.w, MinY: i / m.w, MaxX: i % m.w, MaxY: i / m.w}
		seen[i] = true
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%m.w, p/m.w
			c.Pixels++
			if x < c.MinX {
				c.MinX = x
			}
			if x > c.MaxX {
				c.MaxX = x
			}
			if y < c.MinY {
				c.MinY = y
			}
			if y > c.MaxY {
				c.MaxY = y
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
						continue
					}
					q := ny*m.w + nx
					if m.pix[q] && !seen[q] {
						seen[q] = true
						stack = append(stack, q)
					}
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// countIn returns the number of set pixels inside r
func (m *mask) countIn(r image.Rectangle) int {
	r = r.Intersect(image.Rect(0, 0, m.w, m.h))
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.pix[y*m.w+x] {
				n++
			}
		}
	}
	return n
}

// regionStats summarizes the gray levels inside a rectangle
type regionStats struct {
	Mean      float64
	Std       float64
	DarkRatio float64
	Pixels    int
}

func statsIn(img *image.Gray, r image.Rectangle) regionStats {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return regionStats{}
	}
	var sum, sumSq float64
	dark := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for _, v := range img.Pix[off : off+r.Dx()] {
			f := float64(v)
			sum += f
			sumSq += f * f
			if v < darkPixelLevel {
				dark++
			}
		}
	}
	n := float64(r.Dx() * r.Dy())
	mean := sum / n
	return regionStats{
		Mean:      mean,
		Std:       math.Sqrt(math.Max(0, sumSq/n-mean*mean)),
		DarkRatio: float64(dark) / n,
		Pixels:    r.Dx() * r.Dy(),
	}
}

// isBlank applies the blank-region test: bright, flat and nearly ink free
func (o Options) isBlank(s regionStats) bool {
	return s.Pixels > 0 && s.Mean >= o.BlankMeanMin && s.Std < o.BlankStdMax && s.DarkRatio < o.DarkRatioMax
}

func scaled(v, s float64) int {
	return int(math.Round(v * s))
}
