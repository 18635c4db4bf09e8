package markdown

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageFetcher returns the bytes behind an image URL and a content type
// hint, which may be empty.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// ImagePass inlines remote images. SVG payloads replace the image with an
// HTML block holding the markup verbatim; raster payloads are re-encoded
// as PNG and referenced through a data URI.
type ImagePass struct {
	Fetcher ImageFetcher

	// Observe, when set, is told the outcome of each image: "svg",
	// "raster" or "error".
	Observe func(kind string)
}

func (p *ImagePass) Name() string { return "images" }

func (p *ImagePass) Visit(ctx context.Context, t *Tree, id NodeID) error {
	v := t.Value(id)
	if p.Fetcher == nil || v.Kind != KindImage || !remote(v.Destination) {
		return nil
	}

	data, contentType, err := p.Fetcher.Fetch(ctx, v.Destination)
	if err != nil {
		p.observe("error")
		return fmt.Errorf("fetching image %s: %w", v.Destination, err)
	}

	if IsSVG(data, contentType) {
		t.Replace(id, Value{Kind: KindHTMLBlock, Literal: string(data)})
		p.observe("svg")
		return nil
	}

	uri, err := PNGDataURI(data)
	if err != nil {
		p.observe("error")
		return fmt.Errorf("converting image %s: %w", v.Destination, err)
	}
	t.SetDestination(id, uri)
	p.observe("raster")
	return nil
}

func (p *ImagePass) observe(kind string) {
	if p.Observe != nil {
		p.Observe(kind)
	}
}

func remote(dest string) bool {
	d := strings.ToLower(dest)
	return strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://")
}

// IsSVG reports whether data is SVG markup. Leading whitespace, a byte
// order mark, an XML declaration and a doctype are skipped before looking
// for the opening tag.
func IsSVG(data []byte, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/svg+xml") {
		return true
	}
	b := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	b = bytes.TrimLeft(b, " \t\r\n")
	for _, prolog := range [][2]string{{"<?xml", "?>"}, {"<!DOCTYPE", ">"}, {"<!--", "-->"}} {
		if bytes.HasPrefix(b, []byte(prolog[0])) {
			end := bytes.Index(b, []byte(prolog[1]))
			if end < 0 {
				return false
			}
			b = bytes.TrimLeft(b[end+len(prolog[1]):], " \t\r\n")
		}
	}
	return bytes.HasPrefix(b, []byte("<svg"))
}

// PNGDataURI decodes a raster image and returns it re-encoded as a base64
// PNG data URI.
func PNGDataURI(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
