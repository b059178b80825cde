package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"time"

	u "outfit2pdf/internal/utils"
)

// BackgroundRemover replaces an image's background with transparency. The
// production implementation talks to a segmentation service; implementations
// must be safe for concurrent use since item resolution fans out.
type BackgroundRemover interface {
	Remove(ctx context.Context, img []byte) ([]byte, error)
}

// NewRemover builds the process-wide remover from config. It is constructed
// once at startup and shared read-only across requests.
func NewRemover(cfg u.Config) BackgroundRemover {
	if !cfg.Images.RemoveBackground {
		return nil
	}
	if cfg.Images.SegmentationURL != "" {
		return &SegmentationRemover{
			Endpoint: cfg.Images.SegmentationURL,
			Client:   &http.Client{Timeout: time.Duration(cfg.Images.SegmentationSecs) * time.Second},
			MaxBytes: cfg.Images.MaxFetchBytes,
		}
	}
	u.Warn("No segmentation endpoint configured, using chroma-key background removal")
	return ChromaKeyRemover{}
}

// SegmentationRemover posts the raw image to a rembg-style HTTP endpoint and
// returns the PNG it replies with. MaxBytes bounds how much of the reply is
// accepted; zero means unbounded.
type SegmentationRemover struct {
	Endpoint string
	Client   *http.Client
	MaxBytes int
}

func (r *SegmentationRemover) Remove(ctx context.Context, img []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("segmentation service returned %s", resp.Status)
	}
	if r.MaxBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.MaxBytes)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > r.MaxBytes {
		return nil, fmt.Errorf("segmentation response exceeds %d bytes", r.MaxBytes)
	}
	return data, nil
}

// ChromaKeyRemover is a dependency-free fallback: it samples the image's
// corners and edge midpoints for a dominant background color, clears every
// pixel close to it to transparency, and crops to the opaque bounding box.
// Works well for the flat studio backgrounds typical of product shots.
type ChromaKeyRemover struct{}

const chromaThreshold = 30

func (ChromaKeyRemover) Remove(_ context.Context, data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bg, ok := detectBackground(src)
	if !ok {
		return nil, fmt.Errorf("no uniform background detected")
	}

	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	minX, minY, maxX, maxY := b.Dx(), b.Dy(), -1, -1
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if colorDistance(c, bg) < chromaThreshold {
				continue // leave transparent
			}
			out.SetNRGBA(x, y, c)
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < 0 {
		return nil, fmt.Errorf("image is entirely background")
	}

	cropped := out.SubImage(image.Rect(minX, minY, maxX+1, maxY+1))
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// detectBackground samples the four corners and four edge midpoints and
// reports the most common color among them, requiring at least half the
// samples to agree.
func detectBackground(img image.Image) (color.NRGBA, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	points := [][2]int{
		{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1},
		{w / 2, 0}, {w / 2, h - 1}, {0, h / 2}, {w - 1, h / 2},
	}

	samples := make([]color.NRGBA, 0, len(points))
	for _, p := range points {
		samples = append(samples, color.NRGBAModel.Convert(img.At(b.Min.X+p[0], b.Min.Y+p[1])).(color.NRGBA))
	}

	best, bestCount := color.NRGBA{}, 0
	for _, cand := range samples {
		count := 0
		for _, s := range samples {
			if colorDistance(cand, s) < chromaThreshold {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = cand, count
		}
	}
	return best, bestCount >= len(samples)/2
}

func colorDistance(a, b color.NRGBA) int {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return max(d(a.R, b.R), max(d(a.G, b.G), d(a.B, b.B)))
}
