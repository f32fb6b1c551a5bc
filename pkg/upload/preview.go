package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"regexp"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultPreviewTimeout bounds the read of a single preview.
const DefaultPreviewTimeout = 5 * time.Second

var previewTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var dataURIPattern = regexp.MustCompile(`^data:image/(jpeg|png|gif|webp);base64,[A-Za-z0-9+/]+={0,2}$`)

// Previewable reports whether a preview is generated for typ.
func Previewable(typ string) bool {
	return previewTypes[strings.ToLower(baseType(typ))]
}

// ValidDataURI reports whether uri is a base64 image data URI of a
// previewable type.
func ValidDataURI(uri string) bool {
	return dataURIPattern.MatchString(uri)
}

// Preview is the rendered preview of an entry. Previews backed by a
// BlobStore are revocable and must be released when the entry goes away.
type Preview struct {
	URI     string
	release func()
}

// Empty reports whether there is no preview.
func (p Preview) Empty() bool { return p.URI == "" }

// Revocable reports whether Release frees anything.
func (p Preview) Revocable() bool { return p.release != nil }

// Release frees the resources behind a revocable preview. It is safe to
// call more than once.
func (p Preview) Release() {
	if p.release != nil {
		p.release()
	}
}

// Previewer renders image previews. The zero value produces full-size
// data URIs with the default timeout.
type Previewer struct {
	// Timeout bounds the read. Default: 5s.
	Timeout time.Duration

	// MaxWidth and MaxHeight, when both set, downscale the image before
	// encoding. Images already within bounds are kept as-is.
	MaxWidth  int
	MaxHeight int

	// Blobs, when set, holds preview bytes and yields "blob:" URIs
	// instead of inline data URIs.
	Blobs *BlobStore
}

type readResult struct {
	data []byte
	err  error
}

// Preview reads src and returns its preview. The boolean is false when
// the file is not a previewable image, cannot be opened, fails to read, or
// the read exceeded the timeout. A missing preview never rejects a file.
func (p *Previewer) Preview(ctx context.Context, src Source) (Preview, bool) {
	typ := strings.ToLower(baseType(src.Type()))
	if !previewTypes[typ] || src.Size() > HardMaxBytes {
		return Preview{}, false
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPreviewTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc, err := src.Open()
	if err != nil {
		return Preview{}, false
	}

	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(rc)
		done <- readResult{data: data, err: err}
	}()

	var data []byte
	select {
	case <-ctx.Done():
		// Closing aborts the pending read.
		rc.Close()
		return Preview{}, false
	case r := <-done:
		rc.Close()
		if r.err != nil || len(r.data) == 0 {
			return Preview{}, false
		}
		data = r.data
	}

	data, typ = p.thumbnail(data, typ)

	if p.Blobs != nil {
		id := p.Blobs.Put(typ, data)
		blobs := p.Blobs
		return Preview{URI: BlobScheme + id, release: func() { blobs.Revoke(id) }}, true
	}

	uri := "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(data)
	if !ValidDataURI(uri) {
		return Preview{}, false
	}
	return Preview{URI: uri}, true
}

// thumbnail downscales data when bounds are configured. Any decode or
// encode failure returns the input unchanged.
func (p *Previewer) thumbnail(data []byte, typ string) ([]byte, string) {
	if p.MaxWidth <= 0 || p.MaxHeight <= 0 {
		return data, typ
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, typ
	}
	b := img.Bounds()
	if b.Dx() <= p.MaxWidth && b.Dy() <= p.MaxHeight {
		return data, typ
	}
	resized := resizeToFit(img, p.MaxWidth, p.MaxHeight)

	var buf bytes.Buffer
	outType := typ
	switch typ {
	case "image/png":
		err = png.Encode(&buf, resized)
	case "image/gif":
		err = gif.Encode(&buf, resized, nil)
	default:
		// webp has no encoder in x/image.
		outType = "image/jpeg"
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return data, typ
	}
	return buf.Bytes(), outType
}

// resizeToFit scales img to fit within maxW x maxH preserving aspect ratio.
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}
