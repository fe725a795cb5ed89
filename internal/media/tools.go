package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// VideoInfo is the probed metadata of a video file.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
}

// Frame is a grayscale frame sampled at Time seconds.
type Frame struct {
	Time   float64
	Width  int
	Height int
	Pix    []uint8
}

// At returns the luma at (x, y).
func (f Frame) At(x, y int) uint8 { return f.Pix[y*f.Width+x] }

// Tools runs ffmpeg, ffprobe and yt-dlp through a Runner.
type Tools struct {
	FFmpeg  string
	FFprobe string
	YtDLP   string

	runner Runner
}

// NewTools creates Tools. Empty paths default to the binary names.
func NewTools(ffmpeg, ffprobe, ytdlp string, r Runner) *Tools {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if ytdlp == "" {
		ytdlp = "yt-dlp"
	}
	if r == nil {
		r = ExecRunner{}
	}
	return &Tools{FFmpeg: ffmpeg, FFprobe: ffprobe, YtDLP: ytdlp, runner: r}
}

// Runner returns the underlying command runner.
func (t *Tools) Runner() Runner { return t.runner }

// Require returns ErrToolUnavailable if bin cannot be found.
func (t *Tools) Require(bin string) error {
	if _, err := t.runner.LookPath(bin); err != nil {
		return eris.Wrapf(ErrToolUnavailable, "%s", bin)
	}
	return nil
}

// Probe reads duration, size and frame rate of the first video stream.
func (t *Tools) Probe(ctx context.Context, path string) (VideoInfo, error) {
	if err := t.Require(t.FFprobe); err != nil {
		return VideoInfo{}, err
	}
	out, err := t.runner.Run(ctx, t.FFprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return VideoInfo{}, err
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	if !gjson.ValidBytes(out) {
		return VideoInfo{}, eris.New("media: ffprobe returned invalid json")
	}
	res := gjson.ParseBytes(out)
	info := VideoInfo{
		Duration: res.Get("format.duration").Float(),
		Width:    int(res.Get("streams.0.width").Int()),
		Height:   int(res.Get("streams.0.height").Int()),
		FPS:      parseRate(res.Get("streams.0.r_frame_rate").String()),
	}
	if info.Duration <= 0 {
		return info, eris.New("media: video has no duration")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, eris.New("media: video has no picture size")
	}
	return info, nil
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	dn, err := strconv.ParseFloat(den, 64)
	if err != nil || dn == 0 {
		return 0
	}
	return n / dn
}

// Download fetches reelURL as mp4 into dir and returns the file path.
func (t *Tools) Download(ctx context.Context, reelURL, dir string) (string, error) {
	if err := t.Require(t.YtDLP); err != nil {
		return "", err
	}
	out, err := t.runner.Run(ctx, t.YtDLP,
		"-f", "mp4",
		"--no-playlist",
		"--no-simulate",
		"--print", "after_move:filepath",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		reelURL,
	)
	if err != nil {
		return "", eris.Wrapf(err, "media: download %s", reelURL)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if p := strings.TrimSpace(lines[len(lines)-1]); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.mp4"))
	if len(matches) == 0 {
		return "", eris.Errorf("media: no mp4 downloaded for %s", reelURL)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// ExtractStill writes a size×size frame taken at second at, letterboxed on
// the pad colour.
func (t *Tools) ExtractStill(ctx context.Context, video, out string, at float64, size int, padColor string) error {
	if err := t.Require(t.FFmpeg); err != nil {
		return err
	}
	if at < 0 {
		at = 0
	}
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s",
		size, size, size, size, padColor)
	_, err := t.runner.Run(ctx, t.FFmpeg,
		"-y", "-v", "error",
		"-ss", formatSeconds(at),
		"-i", video,
		"-frames:v", "1",
		"-vf", vf,
		out,
	)
	return eris.Wrapf(err, "media: extract still from %s", video)
}

// Sample decodes grayscale frames of the crop region every step seconds,
// scaled to width pixels wide.
func (t *Tools) Sample(ctx context.Context, path string, crop Rect, step float64, width int) ([]Frame, error) {
	if err := t.Require(t.FFmpeg); err != nil {
		return nil, err
	}
	if crop.Empty() || step <= 0 || width <= 0 {
		return nil, eris.New("media: invalid sample request")
	}

	height := even(float64(crop.H) * float64(width) / float64(crop.W))
	vf := fmt.Sprintf("crop=%d:%d:%d:%d,fps=%s,scale=%d:%d,format=gray",
		crop.W, crop.H, crop.X, crop.Y, formatSeconds(1/step), width, height)

	out, err := t.runner.Run(ctx, t.FFmpeg,
		"-v", "error",
		"-i", path,
		"-vf", vf,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"pipe:1",
	)
	if err != nil {
		return nil, eris.Wrapf(err, "media: sample frames from %s", path)
	}

	size := width * height
	n := len(out) / size
	if len(out)%size != 0 {
		zap.L().Debug("media: trailing partial frame dropped", zap.String("path", path), zap.Int("bytes", len(out)%size))
	}
	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, Frame{
			Time:   float64(i) * step,
			Width:  width,
			Height: height,
			Pix:    out[i*size : (i+1)*size],
		})
	}
	return frames, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
