// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imaging normalizes user-selected images into small,
// bounded-dimension payloads suitable for embedding in a chat request.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"
	"testing"
)

// testImage encodes a solid PNG of the given dimensions.
func testImage(t *testing.T, w, h int) io.Reader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return &buf
}

// decodeDataURI decodes the produced payload back into an image.
func decodeDataURI(t *testing.T, uri string) image.Image {
	t.Helper()
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("payload is not a JPEG data URI: %.40q", uri)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("payload base64 invalid: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("payload is not valid JPEG: %v", err)
	}
	return img
}

// =============================================================================
// DIMENSION TESTS
// =============================================================================

func TestCompress_ClampsLongerEdge(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{name: "wide", w: 2048, h: 1024, wantW: 1024, wantH: 512},
		{name: "tall", w: 1000, h: 2500, wantW: 410, wantH: 1024},
		{name: "square oversized", w: 1300, h: 1300, wantW: 1024, wantH: 1024},
		{name: "just over", w: 1025, h: 100, wantW: 1024, wantH: 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			att, err := Compress(testImage(t, tc.w, tc.h))
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}

			if att.Width != tc.wantW || att.Height != tc.wantH {
				t.Errorf("dimensions = %dx%d, want %dx%d", att.Width, att.Height, tc.wantW, tc.wantH)
			}

			longer := att.Width
			if att.Height > longer {
				longer = att.Height
			}
			if longer != MaxEdge {
				t.Errorf("longer edge = %d, want exactly %d", longer, MaxEdge)
			}

			// Aspect ratio preserved to within one pixel of rounding.
			wantRatio := float64(tc.w) / float64(tc.h)
			gotRatio := float64(att.Width) / float64(att.Height)
			if math.Abs(wantRatio-gotRatio)*float64(att.Height) > 1.0 {
				t.Errorf("aspect ratio drifted: got %f, want %f", gotRatio, wantRatio)
			}

			img := decodeDataURI(t, att.URI)
			if img.Bounds().Dx() != att.Width || img.Bounds().Dy() != att.Height {
				t.Errorf("payload dimensions %dx%d disagree with attachment %dx%d",
					img.Bounds().Dx(), img.Bounds().Dy(), att.Width, att.Height)
			}
		})
	}
}

func TestCompress_SmallImagesPassThrough(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{name: "small", w: 320, h: 240},
		{name: "exactly at limit", w: 1024, h: 768},
		{name: "tiny", w: 1, h: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			att, err := Compress(testImage(t, tc.w, tc.h))
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if att.Width != tc.w || att.Height != tc.h {
				t.Errorf("dimensions = %dx%d, want passthrough %dx%d", att.Width, att.Height, tc.w, tc.h)
			}
			if att.MediaType != MediaType {
				t.Errorf("MediaType = %q, want %q", att.MediaType, MediaType)
			}
		})
	}
}

// =============================================================================
// ERROR TESTS
// =============================================================================

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestCompress_ReadError(t *testing.T) {
	_, err := Compress(failingReader{})
	if !IsReadError(err) {
		t.Errorf("Compress() error = %v, want read error", err)
	}
	if IsDecodeError(err) {
		t.Error("read failure misclassified as decode failure")
	}
}

func TestCompress_DecodeError(t *testing.T) {
	_, err := Compress(strings.NewReader("this is not an image"))
	if !IsDecodeError(err) {
		t.Errorf("Compress() error = %v, want decode error", err)
	}
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestCompressAll_FailuresDoNotAbortSiblings(t *testing.T) {
	sources := []io.Reader{
		testImage(t, 100, 100),
		strings.NewReader("garbage"),
		testImage(t, 2048, 512),
	}

	results := CompressAll(sources)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if results[0].Err != nil {
		t.Errorf("source 0 failed: %v", results[0].Err)
	}
	if !IsDecodeError(results[1].Err) {
		t.Errorf("source 1 error = %v, want decode error", results[1].Err)
	}
	if results[2].Err != nil {
		t.Errorf("source 2 failed: %v", results[2].Err)
	}
	if results[2].Attachment.Width != 1024 || results[2].Attachment.Height != 256 {
		t.Errorf("source 2 dimensions = %dx%d, want 1024x256",
			results[2].Attachment.Width, results[2].Attachment.Height)
	}
}
