package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// ResourceID names an audio asset relative to the library root.
type ResourceID string

// NoResource is the sentinel meaning "no locator set".
const NoResource ResourceID = ""

var (
	ErrNoResource        = errors.New("no resource")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// PredecodedAudio holds a predecoded audio stream and its format
type PredecodedAudio struct {
	Buffer *beep.Buffer
	Format beep.Format
}

// Library resolves resource ids and urls to audio data and keeps a bounded
// cache of fully decoded effects.
type Library struct {
	root   fs.FS
	client *http.Client
	cache  *lru.Cache[ResourceID, *PredecodedAudio]
	logger *slog.Logger
}

// NewLibrary creates a library reading resources from root.
func NewLibrary(root fs.FS, cacheSize int) (*Library, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[ResourceID, *PredecodedAudio](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create predecoded cache: %w", err)
	}

	return &Library{
		root:   root,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  cache,
		logger: slog.With("component", "assets"),
	}, nil
}

// ReadResource returns the raw bytes of a resource.
func (l *Library) ReadResource(id ResourceID) ([]byte, error) {
	if id == NoResource {
		return nil, ErrNoResource
	}
	data, err := fs.ReadFile(l.root, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", id, err)
	}
	return data, nil
}

// FetchURL downloads the audio behind rawURL. Progress is reported as a
// percentage whenever the total size is known.
func (l *Library) FetchURL(ctx context.Context, rawURL string, progress func(percent int)) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file", "":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", u.Path, err)
		}
		if progress != nil {
			progress(100)
		}
		return data, nil
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}

	var buf bytes.Buffer
	pr := &progressReader{r: resp.Body, total: resp.ContentLength, report: progress}
	if _, err := io.Copy(&buf, pr); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	if progress != nil && pr.last < 100 {
		progress(100)
	}
	return buf.Bytes(), nil
}

// Predecoded returns the fully decoded buffer for id, decoding it on a miss.
func (l *Library) Predecoded(id ResourceID) (*PredecodedAudio, error) {
	if audio, ok := l.cache.Get(id); ok {
		return audio, nil
	}

	data, err := l.ReadResource(id)
	if err != nil {
		return nil, err
	}
	streamer, format, err := Decode(string(id), data)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	// Convert streamer to buffer to store in memory
	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)

	audio := &PredecodedAudio{Buffer: buffer, Format: format}
	l.cache.Add(id, audio)
	l.logger.Debug("Predecoded resource", slog.String("resource", string(id)), slog.Int("samples", buffer.Len()))
	return audio, nil
}

// Preload decodes ids concurrently into the predecoded cache.
func (l *Library) Preload(ctx context.Context, ids ...ResourceID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := l.Predecoded(id); err != nil {
				return fmt.Errorf("failed to preload %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Decode decodes data according to the extension of name.
func Decode(name string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	rc := nopCloser{bytes.NewReader(data)}

	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return mp3.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	case ".ogg", ".oga":
		return vorbis.Decode(rc)
	case ".flac":
		return flac.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

type progressReader struct {
	r      io.Reader
	read   int64
	total  int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.report != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
