package windows

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/media"
	"github.com/sells-group/reel-importer/internal/model"
)

const eps = 1e-9

// Sampler decodes analysis frames from a video.
type Sampler interface {
	Sample(ctx context.Context, path string, crop media.Rect, step float64, width int) ([]media.Frame, error)
}

// Policy names how a window selection was produced. It is recorded in the
// product audit trail.
type Policy string

const (
	PolicyScored        Policy = "scored"
	PolicyPermissive    Policy = "permissive_no_analyzer"
	PolicyFixedFallback Policy = "fixed_fallback"
)

// Options tunes detection.
type Options struct {
	MarginFraction float64
	SampleStep     float64
	DurationStep   float64
	CleanThreshold float64
	AdmitRatio     float64
	Spacing        float64
	AnalysisWidth  int
}

// DefaultOptions returns the standard detection settings.
func DefaultOptions() Options {
	return Options{
		MarginFraction: 0.12,
		SampleStep:     0.5,
		DurationStep:   0.5,
		CleanThreshold: 0.35,
		AdmitRatio:     0.9,
		Spacing:        3,
		AnalysisWidth:  160,
	}
}

// Request describes the windows wanted from one video.
type Request struct {
	Aspect      media.Aspect
	MinDuration float64
	MaxDuration float64
	Count       int
}

// Selection is the outcome of Find. Windows may be empty; callers then use
// Fallback.
type Selection struct {
	Windows []model.VideoWindow
	Policy  Policy
}

type sample struct {
	t     float64
	score float64
}

// Detector finds clean windows.
type Detector struct {
	sampler Sampler
	scorer  Scorer
	opts    Options
}

// NewDetector creates a Detector. A nil scorer uses DefaultEdgeBlobScorer.
func NewDetector(s Sampler, scorer Scorer, opts Options) *Detector {
	if scorer == nil {
		scorer = DefaultEdgeBlobScorer()
	}
	def := DefaultOptions()
	if opts.SampleStep <= 0 {
		opts.SampleStep = def.SampleStep
	}
	if opts.DurationStep <= 0 {
		opts.DurationStep = def.DurationStep
	}
	if opts.AdmitRatio <= 0 {
		opts.AdmitRatio = def.AdmitRatio
	}
	if opts.CleanThreshold <= 0 {
		opts.CleanThreshold = def.CleanThreshold
	}
	if opts.AnalysisWidth <= 0 {
		opts.AnalysisWidth = def.AnalysisWidth
	}
	return &Detector{sampler: s, scorer: scorer, opts: opts}
}

// Crop returns the source region analysed and encoded for info.
func (d *Detector) Crop(info media.VideoInfo, aspect media.Aspect) media.Rect {
	return media.CropFor(info, aspect, d.opts.MarginFraction)
}

// Find returns up to req.Count non-overlapping windows ordered by
// cleanliness, then start time. Starts are at least Spacing apart. When
// frames cannot be decoded because the tool is missing, every sample counts
// as clean and the selection is marked permissive.
func (d *Detector) Find(ctx context.Context, path string, info media.VideoInfo, req Request) (Selection, error) {
	if req.MinDuration <= 0 || req.MaxDuration < req.MinDuration || req.Count <= 0 {
		return Selection{}, eris.Errorf("windows: invalid request min=%.2f max=%.2f count=%d", req.MinDuration, req.MaxDuration, req.Count)
	}
	if info.Duration <= 0 {
		return Selection{}, eris.New("windows: video has no duration")
	}

	policy := PolicyScored
	samples, err := d.score(ctx, path, info, req.Aspect)
	if errors.Is(err, media.ErrToolUnavailable) {
		zap.L().Warn("windows: frame analysis unavailable, treating all frames as clean", zap.String("path", path))
		policy = PolicyPermissive
		samples = permissiveSamples(info.Duration, d.opts.SampleStep)
	} else if err != nil {
		return Selection{}, err
	}

	ranked := d.rank(samples, info.Duration, req)
	return Selection{Windows: d.pick(ranked, req.Count), Policy: policy}, nil
}

func (d *Detector) score(ctx context.Context, path string, info media.VideoInfo, aspect media.Aspect) ([]sample, error) {
	frames, err := d.sampler.Sample(ctx, path, d.Crop(info, aspect), d.opts.SampleStep, d.opts.AnalysisWidth)
	if err != nil {
		return nil, err
	}
	samples := make([]sample, len(frames))
	for i, f := range frames {
		samples[i] = sample{t: f.Time, score: d.scorer.Score(f, media.Rect{})}
	}
	return samples, nil
}

func permissiveSamples(duration, step float64) []sample {
	var out []sample
	for t := 0.0; t < duration; t += step {
		out = append(out, sample{t: t})
	}
	return out
}

// rank evaluates the start × duration grid and returns admitted windows
// sorted best first.
func (d *Detector) rank(samples []sample, duration float64, req Request) []model.VideoWindow {
	var out []model.VideoWindow
	for start := 0.0; start+req.MinDuration <= duration+eps; start += d.opts.SampleStep {
		for dur := req.MaxDuration; dur >= req.MinDuration-eps; dur -= d.opts.DurationStep {
			end := start + dur
			if end > duration+eps {
				continue
			}

			var n, clean int
			var sum float64
			for _, s := range samples {
				if s.t < start-eps || s.t >= end-eps {
					continue
				}
				n++
				sum += s.score
				if s.score < d.opts.CleanThreshold {
					clean++
				}
			}
			if n == 0 || float64(clean)/float64(n) < d.opts.AdmitRatio-eps {
				continue
			}

			out = append(out, model.VideoWindow{
				Start:       round3(start),
				End:         round3(end),
				Cleanliness: math.Max(0, math.Min(1, 1-sum/float64(n))),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if math.Abs(a.Cleanliness-b.Cleanliness) > eps {
			return a.Cleanliness > b.Cleanliness
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Duration() > b.Duration()
	})
	return out
}

// pick greedily keeps windows that neither overlap nor start within
// Spacing of an already chosen one.
func (d *Detector) pick(ranked []model.VideoWindow, count int) []model.VideoWindow {
	var chosen []model.VideoWindow
	for _, w := range ranked {
		if len(chosen) == count {
			break
		}
		ok := true
		for _, c := range chosen {
			if w.Overlaps(c) || math.Abs(w.Start-c.Start) < d.opts.Spacing-eps {
				ok = false
				break
			}
		}
		if ok {
			chosen = append(chosen, w)
		}
	}
	return chosen
}

// FallbackDuration is the clip length used for fallback windows: half the
// video, clamped to [lo, hi].
func FallbackDuration(duration, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, duration*0.5))
}

var fallbackPositions = []float64{0.1, 0.5, 0.8}

// Fallback returns up to count fixed windows starting at 10%, 50% and 80%
// of the video. A window running past the end is truncated there, and a
// window identical to an earlier one is dropped.
func Fallback(duration, clipDuration float64, count int) []model.VideoWindow {
	var out []model.VideoWindow
	for _, p := range fallbackPositions {
		if len(out) == count {
			break
		}
		w := model.VideoWindow{
			Start: round3(duration * p),
			End:   round3(math.Min(duration*p+clipDuration, duration)),
		}
		if w.Duration() <= 0 || containsWindow(out, w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func containsWindow(ws []model.VideoWindow, w model.VideoWindow) bool {
	for _, o := range ws {
		if o == w {
			return true
		}
	}
	return false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
