package environment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"scene-studio/scene"
)

// ErrLoad is matched by every LoadError.
var ErrLoad = errors.New("load failed")

// LoadError reports a fetch or decode failure for an image or HDRI.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

func asLoadError(source string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Source: source, Err: err}
}

// Source names an image to load: inline bytes from a file picker, or a URL.
type Source struct {
	Name string
	Data []byte
	URL  string
}

func (s Source) label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.URL != "" && strings.HasPrefix(s.URL, "data:"):
		return "data URL"
	}
	return s.URL
}

// Loader fetches and decodes textures.
type Loader interface {
	LoadEquirectangular(ctx context.Context, url string) (*scene.Texture, error)
	LoadImage(ctx context.Context, src Source) (*scene.Texture, error)
}

// HDRType is the Radiance RGBE format, registered with filetype.
var HDRType = filetype.NewType("hdr", "image/vnd.radiance")

func init() {
	filetype.AddMatcher(HDRType, func(buf []byte) bool {
		return bytes.HasPrefix(buf, []byte("#?RADIANCE")) || bytes.HasPrefix(buf, []byte("#?RGBE"))
	})
}

// FileLoader resolves http(s) URLs, data URLs and paths below Root.
type FileLoader struct {
	Client  *http.Client
	Root    string
	MaxSize int64
}

func NewFileLoader(root string, timeout time.Duration) *FileLoader {
	return &FileLoader{
		Client:  &http.Client{Timeout: timeout},
		Root:    root,
		MaxSize: 256 << 20,
	}
}

func (l *FileLoader) LoadEquirectangular(ctx context.Context, u string) (*scene.Texture, error) {
	data, err := l.fetch(ctx, u)
	if err != nil {
		return nil, asLoadError(u, err)
	}
	tex, err := Decode(u, data)
	if err != nil {
		return nil, asLoadError(u, err)
	}
	tex.Mapping = scene.MappingEquirectangular
	return tex, nil
}

func (l *FileLoader) LoadImage(ctx context.Context, src Source) (*scene.Texture, error) {
	data := src.Data
	if data == nil {
		if src.URL == "" {
			return nil, &LoadError{Source: src.label(), Err: errors.New("source has neither data nor url")}
		}
		var err error
		if data, err = l.fetch(ctx, src.URL); err != nil {
			return nil, asLoadError(src.label(), err)
		}
	}
	tex, err := Decode(src.label(), data)
	if err != nil {
		return nil, asLoadError(src.label(), err)
	}
	return tex, nil
}

func (l *FileLoader) fetch(ctx context.Context, u string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(u, "data:"):
		return decodeDataURL(u)
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return l.fetchHTTP(ctx, u)
	}

	p := strings.TrimPrefix(u, "file://")
	if l.Root != "" {
		p = filepath.Join(l.Root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	}
	return os.ReadFile(p)
}

func (l *FileLoader) fetchHTTP(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	limit := l.MaxSize
	if limit <= 0 {
		limit = 256 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("payload exceeds %d bytes", limit)
	}
	return data, nil
}

// decodeDataURL handles "data:[<mime>][;base64],<payload>".
func decodeDataURL(u string) ([]byte, error) {
	comma := strings.IndexByte(u, ',')
	if comma < 0 {
		return nil, errors.New("malformed data URL")
	}
	meta, payload := u[len("data:"):comma], u[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Decode sniffs data and decodes it into a texture. Radiance files become
// float HDR textures, every other image becomes RGBA8.
func Decode(name string, data []byte) (*scene.Texture, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, err
	}
	switch {
	case kind == HDRType:
		return DecodeRGBE(name, data)
	case kind == types.Unknown:
		return nil, errors.New("unrecognized image format")
	case !filetype.IsImage(data):
		return nil, fmt.Errorf("%s is not an image", kind.MIME.Value)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.Extension, err)
	}
	return scene.NewTextureFromImage(name, img), nil
}
