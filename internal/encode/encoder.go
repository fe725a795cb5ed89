// Package encode produces looping GIF clips under a byte budget.
package encode

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/media"
	"github.com/sells-group/reel-importer/internal/model"
)

// Options tunes the encoder search.
type Options struct {
	// Widths are tried in the given order, largest first.
	Widths   []int
	FPSStep  int
	Dither   string
	PadColor string
}

// DefaultOptions returns the standard search settings.
func DefaultOptions() Options {
	return Options{
		Widths:   []int{1080, 720, 540, 480, 360},
		FPSStep:  2,
		Dither:   "sierra2_4a",
		PadColor: "0xF5F5F5",
	}
}

// Request describes one clip.
type Request struct {
	Source    string
	Window    model.VideoWindow
	Aspect    media.Aspect
	Crop      media.Rect
	SizeCap   int64
	FPSTarget int
	FPSFloor  int
	OutPath   string
}

// Attempt is one point of the width × frame-rate search.
type Attempt struct {
	Width int
	FPS   int
}

// Encoder runs the two-pass palette encode through ffmpeg.
type Encoder struct {
	tools *media.Tools
	opts  Options

	// OnAttempt, when set, observes every encode and its resulting size.
	OnAttempt func(a Attempt, size int64)
}

// NewEncoder creates an Encoder.
func NewEncoder(tools *media.Tools, opts Options) *Encoder {
	def := DefaultOptions()
	if len(opts.Widths) == 0 {
		opts.Widths = def.Widths
	}
	if opts.FPSStep <= 0 {
		opts.FPSStep = def.FPSStep
	}
	if opts.Dither == "" {
		opts.Dither = def.Dither
	}
	if opts.PadColor == "" {
		opts.PadColor = def.PadColor
	}
	return &Encoder{tools: tools, opts: opts}
}

// Plan returns the search order: for each width, frame rates from target
// down to floor. Frame rate is exhausted before resolution drops.
func Plan(widths []int, target, floor, step int) []Attempt {
	if step <= 0 {
		step = 1
	}
	var out []Attempt
	for _, w := range widths {
		for fps := target; fps > floor; fps -= step {
			out = append(out, Attempt{Width: w, FPS: fps})
		}
		out = append(out, Attempt{Width: w, FPS: floor})
	}
	return out
}

// Encode returns the first attempt that fits SizeCap. If none fits, the
// smallest attempt is returned with BestEffort set.
func (e *Encoder) Encode(ctx context.Context, req Request) (*model.EncodedClip, error) {
	if err := e.tools.Require(e.tools.FFmpeg); err != nil {
		return nil, err
	}
	if req.SizeCap <= 0 || req.FPSFloor <= 0 || req.FPSTarget < req.FPSFloor {
		return nil, eris.Errorf("encode: invalid budget cap=%d fps=%d..%d", req.SizeCap, req.FPSFloor, req.FPSTarget)
	}
	if req.Window.Duration() <= 0 {
		return nil, eris.Errorf("encode: empty window %+v", req.Window)
	}
	if req.Crop.Empty() {
		return nil, eris.New("encode: empty crop")
	}

	palette := req.OutPath + ".palette.png"
	defer os.Remove(palette) //nolint:errcheck

	log := zap.L().With(zap.String("out", req.OutPath), zap.Float64("start", req.Window.Start))

	var best *model.EncodedClip
	bestPath := ""
	plan := Plan(e.opts.Widths, req.FPSTarget, req.FPSFloor, e.opts.FPSStep)

	for i, a := range plan {
		tryPath := fmt.Sprintf("%s.try%d.gif", req.OutPath, i)
		size, err := e.encodeOnce(ctx, req, a, palette, tryPath)
		if err != nil {
			os.Remove(tryPath) //nolint:errcheck
			if bestPath != "" {
				os.Remove(bestPath) //nolint:errcheck
			}
			return nil, err
		}
		if e.OnAttempt != nil {
			e.OnAttempt(a, size)
		}
		log.Debug("encode: attempt", zap.Int("width", a.Width), zap.Int("fps", a.FPS), zap.Int64("bytes", size))

		clip := &model.EncodedClip{
			Path:      req.OutPath,
			Window:    req.Window,
			Width:     a.Width,
			Height:    req.Aspect.HeightFor(a.Width),
			FPS:       a.FPS,
			SizeBytes: size,
			Attempts:  i + 1,
		}

		if size <= req.SizeCap {
			if bestPath != "" {
				os.Remove(bestPath) //nolint:errcheck
			}
			return clip, finalize(tryPath, req.OutPath)
		}

		if best == nil || size < best.SizeBytes {
			if bestPath != "" {
				os.Remove(bestPath) //nolint:errcheck
			}
			best, bestPath = clip, tryPath
		} else {
			os.Remove(tryPath) //nolint:errcheck
		}
	}

	best.BestEffort = true
	best.Attempts = len(plan)
	log.Warn("encode: size cap not met, keeping smallest attempt",
		zap.Int64("cap", req.SizeCap), zap.Int64("bytes", best.SizeBytes),
		zap.Int("width", best.Width), zap.Int("fps", best.FPS))
	return best, finalize(bestPath, req.OutPath)
}

func finalize(from, to string) error {
	return eris.Wrapf(os.Rename(from, to), "encode: move %s", from)
}

func (e *Encoder) filter(req Request, a Attempt) string {
	w, h := a.Width, req.Aspect.HeightFor(a.Width)
	return fmt.Sprintf("crop=%d:%d:%d:%d,fps=%d,scale=%d:%d:force_original_aspect_ratio=decrease:flags=lanczos,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s",
		req.Crop.W, req.Crop.H, req.Crop.X, req.Crop.Y, a.FPS, w, h, w, h, e.opts.PadColor)
}

// encodeOnce runs palettegen then paletteuse and returns the output size.
func (e *Encoder) encodeOnce(ctx context.Context, req Request, a Attempt, palette, out string) (int64, error) {
	vf := e.filter(req, a)
	start := fmt.Sprintf("%.3f", req.Window.Start)
	dur := fmt.Sprintf("%.3f", req.Window.Duration())
	r := e.tools.Runner()

	if _, err := r.Run(ctx, e.tools.FFmpeg,
		"-y", "-v", "error",
		"-ss", start, "-t", dur,
		"-i", req.Source,
		"-vf", vf+",palettegen=stats_mode=diff",
		palette,
	); err != nil {
		return 0, eris.Wrapf(err, "encode: palettegen %dpx@%dfps", a.Width, a.FPS)
	}

	if _, err := r.Run(ctx, e.tools.FFmpeg,
		"-y", "-v", "error",
		"-ss", start, "-t", dur,
		"-i", req.Source,
		"-i", palette,
		"-lavfi", fmt.Sprintf("%s[x];[x][1:v]paletteuse=dither=%s", vf, e.opts.Dither),
		"-loop", "0",
		out,
	); err != nil {
		return 0, eris.Wrapf(err, "encode: paletteuse %dpx@%dfps", a.Width, a.FPS)
	}

	st, err := os.Stat(out)
	if err != nil {
		return 0, eris.Wrapf(err, "encode: stat %s", out)
	}
	return st.Size(), nil
}
