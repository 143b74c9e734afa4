package gateway

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Loader resolves image references into bytes. A reference is either a
// data: URL or an http(s) URL.
type Loader struct {
	HTTP        *http.Client
	MaxBytes    int64
	Concurrency int
}

// Load fetches refs concurrently and returns images in input order. Any
// failure fails the whole load.
func (l *Loader) Load(ctx context.Context, refs []string) ([]Image, error) {
	out := make([]Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	limit := l.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i, ref := range refs {
		g.Go(func() error {
			img, err := l.loadOne(gctx, ref)
			if err != nil {
				return eris.Wrapf(err, "gateway: load image %d", i)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) loadOne(ctx context.Context, ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref, l.maxBytes())
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, ref)
	}
	return Image{}, eris.New("unsupported image reference")
}

func (l *Loader) maxBytes() int64 {
	if l.MaxBytes > 0 {
		return l.MaxBytes
	}
	return 5 << 20
}

func (l *Loader) fetch(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, eris.Wrap(err, "build request")
	}
	client := l.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Image{}, eris.Wrap(err, "fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Image{}, eris.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes()+1))
	if err != nil {
		return Image{}, eris.Wrap(err, "read body")
	}
	if int64(len(data)) > l.maxBytes() {
		return Image{}, eris.Errorf("image exceeds %d bytes", l.maxBytes())
	}

	mediaType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, eris.Errorf("not an image: %s", mediaType)
	}
	return Image{MediaType: mediaType, Data: data}, nil
}

// decodeDataURL parses data:<mime>;base64,<payload>.
func decodeDataURL(ref string, limit int64) (Image, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return Image{}, eris.New("data URL must be base64 encoded")
	}
	mediaType := strings.TrimSuffix(header, ";base64")
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, eris.Errorf("not an image: %s", mediaType)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > limit+2 {
		return Image{}, eris.Errorf("image exceeds %d bytes", limit)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, eris.Wrap(err, "decode base64")
	}
	return Image{MediaType: mediaType, Data: data}, nil
}
