package detect

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whitePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fill(img *image.Gray, r image.Rectangle, v uint8) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Pix[img.PixOffset(x, y)] = v
		}
	}
}

// outline draws a box border of the given thickness inside r
func outline(img *image.Gray, r image.Rectangle, t int) {
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), 0)
	fill(img, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), 0)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), 0)
	fill(img, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), 0)
}

func maskFromRows(rows ...string) *mask {
	m := newMask(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				m.set(x, y)
			}
		}
	}
	return m
}

func rowString(m *mask, y int) string {
	b := make([]byte, m.w)
	for x := 0; x < m.w; x++ {
		b[x] = '.'
		if m.at(x, y) {
			b[x] = '#'
		}
	}
	return string(b)
}

func TestMask_OpenH(t *testing.T) {
	m := maskFromRows(
		"##..#####.",
		"###.......",
	)
	opened := m.openH(3)
	assert.Equal(t, "....#####.", rowString(opened, 0))
	assert.Equal(t, "###.......", rowString(opened, 1))
}

func TestMask_CloseH(t *testing.T) {
	m := maskFromRows("#.#..#...#")
	assert.Equal(t, "######...#", rowString(m.closeH(3), 0))
}

func TestMask_CloseV(t *testing.T) {
	m := maskFromRows("#", ".", "#", ".", ".", "#")
	closed := m.closeV(2)
	assert.True(t, closed.at(0, 1))
	assert.False(t, closed.at(0, 3))
}

func TestMask_Components(t *testing.T) {
	m := maskFromRows(
		"##....#",
		".#....#",
		"..#....",
		"......#",
	)
	comps := m.components()
	require.Len(t, comps, 3)

	assert.Equal(t, component{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2, Pixels: 4}, comps[0], "diagonal pixels connect")
	assert.Equal(t, 2, comps[1].Height())
	assert.Equal(t, image.Rect(6, 3, 7, 4), comps[2].Rect())
}

func TestOtsuLevel(t *testing.T) {
	img := whitePage(20, 20)
	fill(img, image.Rect(0, 0, 20, 5), 30)

	level := otsuLevel(img)
	assert.Greater(t, level, uint8(30))
	assert.LessOrEqual(t, level, uint8(255))

	dark := darkMask(img, level)
	assert.Equal(t, 100, dark.countIn(image.Rect(0, 0, 20, 20)))
}

func TestStatsIn(t *testing.T) {
	img := whitePage(10, 10)
	fill(img, image.Rect(0, 0, 10, 1), 0)

	s := statsIn(img, img.Bounds())
	assert.InDelta(t, 229.5, s.Mean, 1e-9)
	assert.InDelta(t, 0.1, s.DarkRatio, 1e-9)
	assert.InDelta(t, 76.5, s.Std, 1e-9)

	opts := DefaultOptions()
	assert.False(t, opts.isBlank(s))
	assert.True(t, opts.isBlank(statsIn(img, image.Rect(0, 1, 10, 10))))
	assert.False(t, opts.isBlank(statsIn(img, image.Rect(20, 20, 30, 30))))
}
