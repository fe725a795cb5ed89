package encode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-importer/internal/media"
	"github.com/sells-group/reel-importer/internal/model"
)

var scaleFPSRe = regexp.MustCompile(`fps=(\d+),scale=(\d+):`)

// sizeRunner fakes ffmpeg: the paletteuse pass writes a GIF whose size is
// given by sizeFor(width, fps).
type sizeRunner struct {
	sizeFor  func(width, fps int) int
	missing  bool
	failOn   string
	lavfi    []string
	palettes int
}

func (r *sizeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	joined := strings.Join(args, " ")
	if r.failOn != "" && strings.Contains(joined, r.failOn) {
		return nil, errors.New("exit status 1")
	}
	if strings.Contains(joined, "palettegen") {
		r.palettes++
		return nil, os.WriteFile(args[len(args)-1], []byte("png"), 0o644)
	}
	for i, a := range args {
		if a == "-lavfi" {
			r.lavfi = append(r.lavfi, args[i+1])
		}
	}
	m := scaleFPSRe.FindStringSubmatch(joined)
	fps, _ := strconv.Atoi(m[1])
	width, _ := strconv.Atoi(m[2])
	return nil, os.WriteFile(args[len(args)-1], make([]byte, r.sizeFor(width, fps)), 0o644)
}

func (r *sizeRunner) LookPath(name string) (string, error) {
	if r.missing {
		return "", errors.New("not found")
	}
	return "/usr/bin/" + name, nil
}

func request(t *testing.T, sizeCap int64) Request {
	return Request{
		Source:    "reel.mp4",
		Window:    model.VideoWindow{Start: 1.5, End: 4.5},
		Aspect:    media.AspectSquare,
		Crop:      media.Rect{X: 0, Y: 230, W: 1080, H: 1460},
		SizeCap:   sizeCap,
		FPSTarget: 15,
		FPSFloor:  8,
		OutPath:   filepath.Join(t.TempDir(), "gif-1.gif"),
	}
}

func linearSize(width, fps int) int { return width * fps }

func TestPlanOrder(t *testing.T) {
	plan := Plan([]int{720, 480}, 15, 8, 3)
	assert.Equal(t, []Attempt{
		{720, 15}, {720, 12}, {720, 9}, {720, 8},
		{480, 15}, {480, 12}, {480, 9}, {480, 8},
	}, plan)

	assert.Equal(t, []Attempt{{360, 10}}, Plan([]int{360}, 10, 10, 2))
}

func TestEncodeFirstFit(t *testing.T) {
	r := &sizeRunner{sizeFor: linearSize}
	enc := NewEncoder(media.NewTools("", "", "", r), Options{Widths: []int{720, 480, 360}, FPSStep: 2})

	var sizes []int64
	enc.OnAttempt = func(a Attempt, size int64) { sizes = append(sizes, size) }

	// Every 720 attempt is at least 5760; 480 fits once fps reaches 9.
	clip, err := enc.Encode(context.Background(), request(t, 5000))
	require.NoError(t, err)

	assert.Equal(t, 480, clip.Width)
	assert.Equal(t, 480, clip.Height)
	assert.Equal(t, 9, clip.FPS)
	assert.False(t, clip.BestEffort)
	assert.Equal(t, int64(4320), clip.SizeBytes)
	assert.Equal(t, 9, clip.Attempts)

	st, err := os.Stat(clip.Path)
	require.NoError(t, err)
	assert.Equal(t, clip.SizeBytes, st.Size())

	// Every attempt before the accepted one exceeded the cap.
	for _, s := range sizes[:len(sizes)-1] {
		assert.Greater(t, s, int64(5000))
	}

	matches, _ := filepath.Glob(clip.Path + ".*")
	assert.Empty(t, matches, "temporary attempts and palette are removed")
}

func TestEncodeLowersFPSBeforeWidth(t *testing.T) {
	r := &sizeRunner{sizeFor: linearSize}
	enc := NewEncoder(media.NewTools("", "", "", r), Options{Widths: []int{720, 480}, FPSStep: 2})

	clip, err := enc.Encode(context.Background(), request(t, 720*11))
	require.NoError(t, err)
	assert.Equal(t, 720, clip.Width)
	assert.Equal(t, 11, clip.FPS)
}

func TestEncodeBestEffort(t *testing.T) {
	r := &sizeRunner{sizeFor: linearSize}
	enc := NewEncoder(media.NewTools("", "", "", r), Options{Widths: []int{720, 480}, FPSStep: 4})

	clip, err := enc.Encode(context.Background(), request(t, 100))
	require.NoError(t, err)

	assert.True(t, clip.BestEffort)
	assert.Equal(t, 480, clip.Width)
	assert.Equal(t, 8, clip.FPS)
	assert.Equal(t, int64(480*8), clip.SizeBytes)
	assert.Equal(t, len(Plan([]int{720, 480}, 15, 8, 4)), clip.Attempts)

	st, err := os.Stat(clip.Path)
	require.NoError(t, err)
	assert.Equal(t, clip.SizeBytes, st.Size())
	matches, _ := filepath.Glob(clip.Path + ".*")
	assert.Empty(t, matches)
}

func TestEncodeFilterChain(t *testing.T) {
	r := &sizeRunner{sizeFor: func(int, int) int { return 10 }}
	enc := NewEncoder(media.NewTools("", "", "", r), DefaultOptions())

	_, err := enc.Encode(context.Background(), request(t, 1000))
	require.NoError(t, err)

	require.Len(t, r.lavfi, 1)
	assert.Equal(t,
		"crop=1080:1460:0:230,fps=15,scale=1080:1080:force_original_aspect_ratio=decrease:flags=lanczos,pad=1080:1080:(ow-iw)/2:(oh-ih)/2:color=0xF5F5F5[x];[x][1:v]paletteuse=dither=sierra2_4a",
		r.lavfi[0])
	assert.Equal(t, 1, r.palettes)
}

func TestEncodeErrors(t *testing.T) {
	enc := NewEncoder(media.NewTools("", "", "", &sizeRunner{missing: true}), DefaultOptions())
	_, err := enc.Encode(context.Background(), request(t, 1000))
	assert.ErrorIs(t, err, media.ErrToolUnavailable)

	enc = NewEncoder(media.NewTools("", "", "", &sizeRunner{sizeFor: linearSize}), DefaultOptions())
	req := request(t, 1000)
	req.FPSFloor = 20
	_, err = enc.Encode(context.Background(), req)
	assert.Error(t, err)

	req = request(t, 1000)
	req.Window = model.VideoWindow{Start: 3, End: 3}
	_, err = enc.Encode(context.Background(), req)
	assert.Error(t, err)

	enc = NewEncoder(media.NewTools("", "", "", &sizeRunner{sizeFor: linearSize, failOn: "paletteuse"}), DefaultOptions())
	_, err = enc.Encode(context.Background(), request(t, 1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paletteuse")
}
