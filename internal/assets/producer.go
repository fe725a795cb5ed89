// Package assets turns a priced candidate into uploadable media and the
// catalog product record.
package assets

import (
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/encode"
	"github.com/sells-group/reel-importer/internal/fetcher"
	"github.com/sells-group/reel-importer/internal/media"
	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/windows"
)

// PolicyPrebuilt marks bundles collected from an existing assets directory.
const PolicyPrebuilt = "prebuilt"

// VideoSource downloads and inspects source videos. *media.Tools implements it.
type VideoSource interface {
	Download(ctx context.Context, reelURL, dir string) (string, error)
	Probe(ctx context.Context, path string) (media.VideoInfo, error)
	ExtractStill(ctx context.Context, video, out string, at float64, size int, padColor string) error
}

// WindowFinder selects clean windows. *windows.Detector implements it.
type WindowFinder interface {
	Crop(info media.VideoInfo, aspect media.Aspect) media.Rect
	Find(ctx context.Context, path string, info media.VideoInfo, req windows.Request) (windows.Selection, error)
}

// ClipEncoder encodes one window. *encode.Encoder implements it.
type ClipEncoder interface {
	Encode(ctx context.Context, req encode.Request) (*model.EncodedClip, error)
}

// Settings controls clip production.
type Settings struct {
	Aspect      media.Aspect
	MinDuration float64
	MaxDuration float64
	Count       int
	SizeCap     int64
	FPSTarget   int
	FPSFloor    int
	StillSize   int
	PadColor    string
	MaxGallery  int
}

// Bundle is the set of local files produced for one candidate.
type Bundle struct {
	Still   string
	Gallery []string
	Clips   []model.EncodedClip
	Videos  []string
	Policy  string
}

// BestEffortClips counts clips that exceed the size cap.
func (b *Bundle) BestEffortClips() int {
	n := 0
	for _, c := range b.Clips {
		if c.BestEffort {
			n++
		}
	}
	return n
}

// Producer builds asset bundles.
type Producer struct {
	video    VideoSource
	finder   WindowFinder
	encoder  ClipEncoder
	download fetcher.Downloader
	settings Settings
}

// NewProducer creates a Producer. download may be nil, which disables gallery
// images.
func NewProducer(video VideoSource, finder WindowFinder, encoder ClipEncoder, download fetcher.Downloader, s Settings) *Producer {
	if s.Count <= 0 {
		s.Count = 3
	}
	if s.StillSize <= 0 {
		s.StillSize = 1080
	}
	if s.MaxGallery <= 0 {
		s.MaxGallery = 6
	}
	return &Producer{video: video, finder: finder, encoder: encoder, download: download, settings: s}
}

// Produce builds the bundle for cand inside workDir. When the candidate has
// no reel but an assets directory, the directory's files are used as is.
// gallery lists retail image URLs to download alongside the clips.
func (p *Producer) Produce(ctx context.Context, cand model.Candidate, workDir string, gallery []string) (*Bundle, error) {
	if cand.ReelURL == "" {
		if cand.AssetsDir == "" {
			return nil, eris.Errorf("assets: %s has neither reel_url nor assets_dir", cand.Label())
		}
		return CollectDir(cand.AssetsDir)
	}

	log := zap.L().With(zap.String("candidate", cand.Label()))

	video, err := p.video.Download(ctx, cand.ReelURL, workDir)
	if err != nil {
		return nil, eris.Wrap(err, "assets: download reel")
	}
	info, err := p.video.Probe(ctx, video)
	if err != nil {
		return nil, eris.Wrap(err, "assets: probe reel")
	}

	wins, policy := p.windows(ctx, video, info)
	log.Info("assets: windows selected",
		zap.String("policy", policy),
		zap.Int("windows", len(wins)),
		zap.Float64("duration", info.Duration),
	)

	b := &Bundle{Policy: policy}
	crop := p.finder.Crop(info, p.settings.Aspect)
	for i, w := range wins {
		clip, err := p.encoder.Encode(ctx, encode.Request{
			Source:    video,
			Window:    w,
			Aspect:    p.settings.Aspect,
			Crop:      crop,
			SizeCap:   p.settings.SizeCap,
			FPSTarget: p.settings.FPSTarget,
			FPSFloor:  p.settings.FPSFloor,
			OutPath:   filepath.Join(workDir, fmt.Sprintf("gif-%d.gif", i+1)),
		})
		if err != nil {
			return nil, eris.Wrapf(err, "assets: encode clip %d", i+1)
		}
		b.Clips = append(b.Clips, *clip)
	}

	still := filepath.Join(workDir, "main.jpg")
	at := math.Max(0, info.Duration/2-0.5)
	if err := p.video.ExtractStill(ctx, video, still, at, p.settings.StillSize, p.settings.PadColor); err != nil {
		log.Warn("assets: still extraction failed", zap.Error(err))
	} else {
		b.Still = still
	}

	b.Gallery = p.fetchGallery(ctx, gallery, workDir)
	return b, nil
}

func (p *Producer) windows(ctx context.Context, video string, info media.VideoInfo) ([]model.VideoWindow, string) {
	sel, err := p.finder.Find(ctx, video, info, windows.Request{
		Aspect:      p.settings.Aspect,
		MinDuration: p.settings.MinDuration,
		MaxDuration: p.settings.MaxDuration,
		Count:       p.settings.Count,
	})
	if err == nil && len(sel.Windows) > 0 {
		return sel.Windows, string(sel.Policy)
	}
	if err != nil {
		zap.L().Warn("assets: window detection failed, using fixed windows", zap.Error(err))
	}
	d := windows.FallbackDuration(info.Duration, p.settings.MinDuration, p.settings.MaxDuration)
	return windows.Fallback(info.Duration, d, p.settings.Count), string(windows.PolicyFixedFallback)
}

func (p *Producer) fetchGallery(ctx context.Context, urls []string, workDir string) []string {
	if p.download == nil {
		return nil
	}
	var out []string
	for i, u := range urls {
		if len(out) == p.settings.MaxGallery {
			break
		}
		ext := strings.ToLower(path.Ext(strings.SplitN(u, "?", 2)[0]))
		if !isImage(ext) {
			ext = ".jpg"
		}
		dst := filepath.Join(workDir, fmt.Sprintf("gallery-%d%s", i+1, ext))
		if _, err := p.download.DownloadToFile(ctx, u, dst); err != nil {
			zap.L().Warn("assets: gallery image skipped", zap.String("url", u), zap.Error(err))
			continue
		}
		out = append(out, dst)
	}
	return out
}

// CollectDir builds a bundle from files already present in dir: main.* is
// the still, other images form the gallery, GIFs are clips and mp4/mov/webm
// files are videos.
func CollectDir(dir string) (*Bundle, error) {
	b := &Bundle{Policy: PolicyPrebuilt}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		ext := filepath.Ext(name)
		switch {
		case ext == ".gif":
			fi, err := d.Info()
			if err != nil {
				return err
			}
			b.Clips = append(b.Clips, model.EncodedClip{Path: p, SizeBytes: fi.Size()})
		case isImage(ext) && strings.TrimSuffix(name, ext) == "main" && b.Still == "":
			b.Still = p
		case isImage(ext):
			b.Gallery = append(b.Gallery, p)
		case ext == ".mp4" || ext == ".mov" || ext == ".webm":
			b.Videos = append(b.Videos, p)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "assets: collect %s", dir)
	}
	sort.Strings(b.Gallery)
	sort.Strings(b.Videos)
	sort.Slice(b.Clips, func(i, j int) bool { return b.Clips[i].Path < b.Clips[j].Path })
	return b, nil
}

func isImage(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
