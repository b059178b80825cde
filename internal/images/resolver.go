// Package images fetches and post-processes product images for embedding.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"outfit2pdf/internal/outfit"
	u "outfit2pdf/internal/utils"
)

// Asset is a ready-to-embed raster image, associated 1:1 with an item for the
// lifetime of one rendering pass.
type Asset struct {
	Bytes         []byte
	ContentType   string
	IsPlaceholder bool
}

// ResolutionFailure describes a per-item image problem. It is never fatal to
// the pipeline; the layout substitutes a placeholder and the failure surfaces
// as a warning.
type ResolutionFailure struct {
	Item  outfit.Item
	Cause error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Item.ID, e.Item.Name, e.Cause)
}

func (e *ResolutionFailure) Unwrap() error { return e.Cause }

// Resolver turns image URLs into embeddable assets.
type Resolver struct {
	client   *http.Client
	maxBytes int
	maxDim   int
	remover  BackgroundRemover
}

// NewResolver builds a resolver from config. The remover may be nil to skip
// background removal entirely.
func NewResolver(cfg u.Config, remover BackgroundRemover) *Resolver {
	return &Resolver{
		client: &http.Client{
			Timeout: time.Duration(cfg.Images.FetchTimeoutSecs) * time.Second,
		},
		maxBytes: cfg.Images.MaxFetchBytes,
		maxDim:   cfg.Images.MaxDimensionPx,
		remover:  remover,
	}
}

// Resolve fetches and processes one item's image. Errors are returned as
// *ResolutionFailure so callers can degrade per item.
func (r *Resolver) Resolve(ctx context.Context, item outfit.Item) (*Asset, error) {
	raw, err := r.fetch(ctx, item.ImageURL)
	if err != nil {
		return nil, &ResolutionFailure{Item: item, Cause: err}
	}

	asset, err := r.process(ctx, raw)
	if err != nil {
		return nil, &ResolutionFailure{Item: item, Cause: err}
	}
	return asset, nil
}

// ResolveAll fans out over all items concurrently, merging results by index.
// Every failed slot receives the shared placeholder; the returned warnings
// follow item order and one warning corresponds to one failed resolution.
func (r *Resolver) ResolveAll(ctx context.Context, items []outfit.Item) ([]*Asset, []string) {
	assets := make([]*Asset, len(items))
	failures := make([]*ResolutionFailure, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item outfit.Item) {
			defer wg.Done()
			asset, err := r.Resolve(ctx, item)
			if err != nil {
				var rf *ResolutionFailure
				if !errors.As(err, &rf) {
					rf = &ResolutionFailure{Item: item, Cause: err}
				}
				failures[i] = rf
				return
			}
			assets[i] = asset
		}(i, item)
	}
	wg.Wait()

	var warnings []string
	for i := range items {
		if failures[i] != nil {
			u.Warn("Image resolution failed", "item_id", items[i].ID, "url", items[i].ImageURL, "error", failures[i].Cause)
			warnings = append(warnings, failures[i].Error())
			assets[i] = Placeholder()
		}
	}
	return assets, warnings
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("not an image: content type %q", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.maxBytes)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > r.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", r.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return data, nil
}

// process decodes, downscales oversized images and re-encodes as JPEG to keep
// the final document small. When background removal succeeds, the removed
// variant (PNG, alpha preserved) wins; removal failure degrades to the plain
// image, never to an error.
func (r *Resolver) process(ctx context.Context, raw []byte) (*Asset, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if b := src.Bounds(); b.Dx() > r.maxDim || b.Dy() > r.maxDim {
		src = downscale(src, r.maxDim)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	asset := &Asset{Bytes: buf.Bytes(), ContentType: "image/jpeg"}

	if r.remover != nil {
		cut, err := r.remover.Remove(ctx, asset.Bytes)
		if err == nil {
			cut, err = r.boundRemoverOutput(cut)
		}
		if err != nil {
			u.Warn("Background removal failed, keeping original image", "error", err)
			return asset, nil
		}
		asset = &Asset{Bytes: cut, ContentType: "image/png"}
	}
	return asset, nil
}

// boundRemoverOutput holds the remover's reply to the same size and dimension
// limits as fetched images before it replaces the asset.
func (r *Resolver) boundRemoverOutput(cut []byte) ([]byte, error) {
	if len(cut) > r.maxBytes {
		return nil, fmt.Errorf("removed image exceeds %d bytes", r.maxBytes)
	}
	img, _, err := image.Decode(bytes.NewReader(cut))
	if err != nil {
		return nil, fmt.Errorf("decode removed image: %w", err)
	}
	if b := img.Bounds(); b.Dx() > r.maxDim || b.Dy() > r.maxDim {
		var buf bytes.Buffer
		if err := png.Encode(&buf, downscale(img, r.maxDim)); err != nil {
			return nil, fmt.Errorf("encode removed image: %w", err)
		}
		return buf.Bytes(), nil
	}
	return cut, nil
}

// downscale shrinks img so its longest side equals maxDim, preserving aspect
// ratio. Nearest-neighbor is plenty for thumbnail-sized catalog cards.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
