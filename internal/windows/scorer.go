// Package windows finds stretches of a video free of burned-in text, so
// clips cut from them carry no captions or watermarks.
package windows

import (
	"math"

	"github.com/sells-group/reel-importer/internal/media"
)

// Scorer rates how text-like a region of a frame is, from 0 (clean) to 1.
type Scorer interface {
	Score(frame media.Frame, region media.Rect) float64
}

// PermissiveScorer treats every frame as clean. It is used when frame
// analysis is unavailable.
type PermissiveScorer struct{}

// Score implements Scorer.
func (PermissiveScorer) Score(media.Frame, media.Rect) float64 { return 0 }

// EdgeBlobScorer scores text-likeness from two cues: the density of strong
// edges and the number of small connected edge blobs (glyph-sized marks).
type EdgeBlobScorer struct {
	// EdgeThreshold is the Sobel magnitude above which a pixel is an edge.
	EdgeThreshold float64
	// EdgeSaturation is the edge density mapped to a full edge score.
	EdgeSaturation float64
	// MinBlobArea and MaxBlobArea bound the pixel area of a glyph-sized blob.
	MinBlobArea int
	MaxBlobArea int
	// BlobSaturation is the blob count mapped to a full blob score.
	BlobSaturation float64
	EdgeWeight     float64
	BlobWeight     float64
}

// DefaultEdgeBlobScorer returns weights tuned for ~160px wide analysis
// frames.
func DefaultEdgeBlobScorer() EdgeBlobScorer {
	return EdgeBlobScorer{
		EdgeThreshold:  120,
		EdgeSaturation: 0.15,
		MinBlobArea:    3,
		MaxBlobArea:    60,
		BlobSaturation: 25,
		EdgeWeight:     0.6,
		BlobWeight:     0.4,
	}
}

// Score implements Scorer.
func (s EdgeBlobScorer) Score(frame media.Frame, region media.Rect) float64 {
	region = clip(region, frame)
	if region.W < 3 || region.H < 3 {
		return 0
	}

	edges := s.edgeMap(frame, region)

	var edgeCount int
	for _, e := range edges {
		if e {
			edgeCount++
		}
	}
	density := float64(edgeCount) / float64(len(edges))
	edgeScore := math.Min(density/s.EdgeSaturation, 1)

	blobs := countBlobs(edges, region.W, region.H, s.MinBlobArea, s.MaxBlobArea)
	blobScore := math.Min(float64(blobs)/s.BlobSaturation, 1)

	score := s.EdgeWeight*edgeScore + s.BlobWeight*blobScore
	return math.Max(0, math.Min(1, score))
}

// edgeMap marks pixels whose Sobel gradient magnitude exceeds the
// threshold. The region border is never an edge.
func (s EdgeBlobScorer) edgeMap(f media.Frame, r media.Rect) []bool {
	out := make([]bool, r.W*r.H)
	for y := 1; y < r.H-1; y++ {
		for x := 1; x < r.W-1; x++ {
			px := func(dx, dy int) float64 {
				return float64(f.At(r.X+x+dx, r.Y+y+dy))
			}
			gx := -px(-1, -1) - 2*px(-1, 0) - px(-1, 1) + px(1, -1) + 2*px(1, 0) + px(1, 1)
			gy := -px(-1, -1) - 2*px(0, -1) - px(1, -1) + px(-1, 1) + 2*px(0, 1) + px(1, 1)
			if math.Hypot(gx, gy) > s.EdgeThreshold {
				out[y*r.W+x] = true
			}
		}
	}
	return out
}

// countBlobs counts 4-connected edge components with area in [minArea, maxArea].
func countBlobs(edges []bool, w, h, minArea, maxArea int) int {
	seen := make([]bool, len(edges))
	stack := make([]int, 0, 64)
	count := 0

	for start := range edges {
		if !edges[start] || seen[start] {
			continue
		}
		area := 0
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x, y := i%w, i/w
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if edges[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		if area >= minArea && area <= maxArea {
			count++
		}
	}
	return count
}

func clip(r media.Rect, f media.Frame) media.Rect {
	if r.Empty() {
		return media.Rect{W: f.Width, H: f.Height}
	}
	if r.X < 0 {
		r.W += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.H += r.Y
		r.Y = 0
	}
	if r.X+r.W > f.Width {
		r.W = f.Width - r.X
	}
	if r.Y+r.H > f.Height {
		r.H = f.Height - r.Y
	}
	return r
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(frame media.Frame, region media.Rect) float64

// Score implements Scorer.
func (f ScorerFunc) Score(frame media.Frame, region media.Rect) float64 { return f(frame, region) }
