package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func encodeProductShot(t *testing.T) []byte {
	t.Helper()
	// White studio background with a solid red product in the middle.
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.NRGBA{R: 200, G: 20, B: 20, A: 255}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetNRGBA(x, y, white)
		}
	}
	for y := 20; y <= 60; y++ {
		for x := 30; x <= 70; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestChromaKeyRemover_CutsAndCrops(t *testing.T) {
	out, err := ChromaKeyRemover{}.Remove(context.Background(), encodeProductShot(t))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 41 || img.Bounds().Dy() != 41 {
		t.Fatalf("expected crop to the 41x41 product box, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	b := img.Bounds()
	c := color.NRGBAModel.Convert(img.At(b.Min.X+20, b.Min.Y+20)).(color.NRGBA)
	if c.A == 0 || c.R < 150 {
		t.Fatalf("expected the product to stay opaque red, got %+v", c)
	}
}

func TestChromaKeyRemover_NoUniformBackground(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8((x*2 + y*2) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := (ChromaKeyRemover{}).Remove(context.Background(), buf.Bytes()); err == nil {
		t.Fatalf("expected error when no background color dominates")
	}
}

func TestChromaKeyRemover_EntirelyBackground(t *testing.T) {
	flat := encodePNG(t, 50, 50, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	if _, err := (ChromaKeyRemover{}).Remove(context.Background(), flat); err == nil {
		t.Fatalf("expected error for an image that is all background")
	}
}

func TestChromaKeyRemover_RejectsGarbage(t *testing.T) {
	if _, err := (ChromaKeyRemover{}).Remove(context.Background(), []byte("nope")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSegmentationRemover_RoundTripAndFailure(t *testing.T) {
	want := []byte("segmented-png")
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_, _ = w.Write(want)
	}))
	defer ok.Close()

	r := &SegmentationRemover{Endpoint: ok.URL, Client: &http.Client{Timeout: time.Second}}
	got, err := r.Remove(context.Background(), []byte("raw"))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected service response passthrough")
	}

	boom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer boom.Close()

	r = &SegmentationRemover{Endpoint: boom.URL, Client: &http.Client{Timeout: time.Second}}
	if _, err := r.Remove(context.Background(), []byte("raw")); err == nil {
		t.Fatalf("expected error on non-2xx segmentation response")
	}
}

func TestSegmentationRemover_BoundsResponseSize(t *testing.T) {
	huge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 128))
	}))
	defer huge.Close()

	r := &SegmentationRemover{Endpoint: huge.URL, Client: &http.Client{Timeout: time.Second}, MaxBytes: 64}
	if _, err := r.Remove(context.Background(), []byte("raw")); err == nil {
		t.Fatalf("expected error for response past the byte limit")
	}

	r.MaxBytes = 256
	got, err := r.Remove(context.Background(), []byte("raw"))
	if err != nil {
		t.Fatalf("remove within limit: %v", err)
	}
	if len(got) != 128 {
		t.Fatalf("expected full 128-byte response, got %d", len(got))
	}
}

func TestNewRemover_Selection(t *testing.T) {
	var cfg = testResolverCfg()
	cfg.Images.RemoveBackground = false
	if r := NewRemover(cfg); r != nil {
		t.Fatalf("expected nil remover when disabled")
	}

	cfg.Images.RemoveBackground = true
	cfg.Images.SegmentationURL = "http://segmenter:7000/remove"
	cfg.Images.SegmentationSecs = 5
	seg, ok := NewRemover(cfg).(*SegmentationRemover)
	if !ok {
		t.Fatalf("expected segmentation remover when endpoint configured")
	}
	if seg.MaxBytes != cfg.Images.MaxFetchBytes {
		t.Fatalf("expected remover byte limit from config, got %d", seg.MaxBytes)
	}

	cfg.Images.SegmentationURL = ""
	if _, ok := NewRemover(cfg).(ChromaKeyRemover); !ok {
		t.Fatalf("expected chroma-key fallback without endpoint")
	}
}
