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
	"image/jpeg"
	"io"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"

	// Register decoders for the formats users commonly attach.
	_ "image/gif"
	_ "image/png"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxEdge is the maximum length of the output's longer edge in pixels.
	MaxEdge = 1024

	// JPEGQuality is the fixed re-encode quality (the 0.0–1.0 scale's 0.8).
	// This bounds payload size in practice; it is not a hard byte ceiling.
	JPEGQuality = 80

	// MediaType is the media type of every produced payload.
	MediaType = "image/jpeg"

	// dataURIPrefix prefixes every produced payload.
	dataURIPrefix = "data:image/jpeg;base64,"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes preprocessing errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeRead
	ErrTypeDecode
	ErrTypeEncode
)

// Error represents a failure to preprocess one image source.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsDecodeError reports whether err means the source bytes could not be
// parsed as an image.
func IsDecodeError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Type == ErrTypeDecode
}

// IsReadError reports whether err means the underlying byte source could
// not be read.
func IsReadError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Type == ErrTypeRead
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is a preprocessed image ready to be embedded in an outgoing
// user turn as a file part.
type Attachment struct {
	MediaType string
	URI       string
	Width     int
	Height    int
}

// =============================================================================
// COMPRESS
// =============================================================================

// Compress normalizes one raster image: decode, scale the longer edge down
// to MaxEdge when it exceeds it (dimensions pass through otherwise), and
// re-encode as JPEG at JPEGQuality into a base64 data URI.
func Compress(r io.Reader) (Attachment, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Attachment{}, &Error{Type: ErrTypeRead, Message: "failed to read image source", Cause: err}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Attachment{}, &Error{Type: ErrTypeDecode, Message: "failed to decode image", Cause: err}
	}

	bounds := src.Bounds()
	w, h := targetSize(bounds.Dx(), bounds.Dy())

	out := src
	if w != bounds.Dx() || h != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Attachment{}, &Error{Type: ErrTypeEncode, Message: "failed to encode image", Cause: err}
	}

	return Attachment{
		MediaType: MediaType,
		URI:       dataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:     w,
		Height:    h,
	}, nil
}

// targetSize returns the output dimensions: unchanged when the longer edge
// is within MaxEdge, otherwise scaled so the longer edge is exactly MaxEdge
// with the aspect ratio preserved.
func targetSize(w, h int) (int, int) {
	if w <= MaxEdge && h <= MaxEdge {
		return w, h
	}

	if w >= h {
		scaled := int(math.Round(float64(h) * MaxEdge / float64(w)))
		if scaled < 1 {
			scaled = 1
		}
		return MaxEdge, scaled
	}

	scaled := int(math.Round(float64(w) * MaxEdge / float64(h)))
	if scaled < 1 {
		scaled = 1
	}
	return scaled, MaxEdge
}

// =============================================================================
// BATCH COMPRESSION
// =============================================================================

// Result pairs one source's attachment with its error. Exactly one of the
// two is meaningful.
type Result struct {
	Attachment Attachment
	Err        error
}

// CompressAll preprocesses every source concurrently. The returned slice
// is in source order, one Result per source; a failure on one source never
// aborts its siblings.
func CompressAll(sources []io.Reader) []Result {
	results := make([]Result, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src io.Reader) {
			defer wg.Done()
			att, err := Compress(src)
			results[i] = Result{Attachment: att, Err: err}
		}(i, src)
	}
	wg.Wait()

	return results
}
