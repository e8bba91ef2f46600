package assets

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"testing/fstest"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

func silenceWAV(t *testing.T, n int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "silence.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	format := beep.Format{SampleRate: 8000, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Silence(n), format); err != nil {
		t.Fatal(err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestReadResource(t *testing.T) {
	lib, err := NewLibrary(fstest.MapFS{"sfx/a.wav": {Data: []byte("data")}}, 4)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      ResourceID
		wantErr error
	}{
		{name: "found", id: "sfx/a.wav"},
		{name: "sentinel", id: NoResource, wantErr: ErrNoResource},
		{name: "missing", id: "sfx/b.wav", wantErr: fs.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := lib.ReadResource(tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadResource() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && string(data) != "data" {
				t.Errorf("ReadResource() = %q", data)
			}
		})
	}
}

func TestPredecodedIsCached(t *testing.T) {
	files := fstest.MapFS{"sfx/a.wav": {Data: silenceWAV(t, 300)}}
	lib, err := NewLibrary(files, 4)
	if err != nil {
		t.Fatal(err)
	}

	first, err := lib.Predecoded("sfx/a.wav")
	if err != nil {
		t.Fatalf("Predecoded() error = %v", err)
	}
	if got := first.Buffer.Len(); got != 300 {
		t.Errorf("buffer length = %d, want 300", got)
	}
	if first.Format.SampleRate != 8000 {
		t.Errorf("sample rate = %d, want 8000", first.Format.SampleRate)
	}

	delete(files, "sfx/a.wav")
	second, err := lib.Predecoded("sfx/a.wav")
	if err != nil {
		t.Fatalf("cached Predecoded() error = %v", err)
	}
	if first != second {
		t.Error("second lookup should come from the cache")
	}
}

func TestPreload(t *testing.T) {
	files := fstest.MapFS{
		"sfx/a.wav": {Data: silenceWAV(t, 100)},
		"sfx/b.wav": {Data: silenceWAV(t, 200)},
	}
	lib, err := NewLibrary(files, 4)
	if err != nil {
		t.Fatal(err)
	}

	if err := lib.Preload(context.Background(), "sfx/a.wav", "sfx/b.wav"); err != nil {
		t.Fatalf("Preload() error = %v", err)
	}
	if err := lib.Preload(context.Background(), "sfx/a.wav", "sfx/missing.wav"); err == nil {
		t.Error("Preload() should fail for a missing resource")
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	if _, _, err := Decode("notes.txt", []byte("hello")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFetchURL(t *testing.T) {
	payload := make([]byte, 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	lib, err := NewLibrary(fstest.MapFS{}, 1)
	if err != nil {
		t.Fatal(err)
	}

	var reports []int
	data, err := lib.FetchURL(context.Background(), srv.URL+"/song.mp3", func(p int) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("FetchURL() error = %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("downloaded %d bytes, want %d", len(data), len(payload))
	}
	if len(reports) == 0 || reports[len(reports)-1] != 100 {
		t.Errorf("progress reports = %v, want to end at 100", reports)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] <= reports[i-1] {
			t.Fatalf("progress not increasing: %v", reports)
		}
	}

	if _, err := lib.FetchURL(context.Background(), srv.URL+"/missing.mp3", nil); err == nil {
		t.Error("FetchURL() should fail on 404")
	}
	if _, err := lib.FetchURL(context.Background(), "ftp://example.com/a.mp3", nil); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("FetchURL() error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.wav")
	if err := os.WriteFile(path, []byte("riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	lib, err := NewLibrary(fstest.MapFS{}, 1)
	if err != nil {
		t.Fatal(err)
	}

	done := 0
	data, err := lib.FetchURL(context.Background(), "file://"+path, func(p int) { done = p })
	if err != nil {
		t.Fatalf("FetchURL() error = %v", err)
	}
	if string(data) != "riff" || done != 100 {
		t.Errorf("FetchURL() = %q, progress %d", data, done)
	}
}
