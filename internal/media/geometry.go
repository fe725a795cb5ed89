package media

import (
	"math"

	"github.com/rotisserie/eris"
)

// Rect is a pixel rectangle.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Aspect is an output width:height ratio.
type Aspect struct {
	Name string
	W, H int
}

var (
	AspectSquare = Aspect{Name: "square", W: 1, H: 1}
	AspectTall   = Aspect{Name: "tall", W: 4, H: 5}
)

// ParseAspect maps a config name to an Aspect.
func ParseAspect(name string) (Aspect, error) {
	switch name {
	case "", "square", "1:1":
		return AspectSquare, nil
	case "tall", "4:5":
		return AspectTall, nil
	}
	return Aspect{}, eris.Errorf("media: unknown aspect %q", name)
}

// HeightFor returns the even output height for width.
func (a Aspect) HeightFor(width int) int {
	return even(float64(width) * float64(a.H) / float64(a.W))
}

// CropFor returns the source region used for both analysis and encoding.
// It drops margin of the frame height at the top and at the bottom, where
// captions and watermarks usually sit, then trims the width to the target
// aspect if the remaining band is wider than it.
func CropFor(info VideoInfo, a Aspect, margin float64) Rect {
	if margin < 0 || margin >= 0.5 {
		margin = 0
	}
	y := int(math.Round(float64(info.Height) * margin))
	h := info.Height - 2*y
	w := info.Width
	x := 0

	target := float64(a.W) / float64(a.H)
	if h > 0 && float64(w)/float64(h) > target {
		cw := even(float64(h) * target)
		x = (w - cw) / 2
		w = cw
	}
	return Rect{X: x, Y: y, W: w &^ 1, H: h &^ 1}
}

func even(v float64) int {
	n := int(math.Round(v))
	if n%2 != 0 {
		n++
	}
	return n
}
