package localai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"

	"github.com/taskpilot/taskpilot/src/aicore"
)

func TestFetchCachedSkipsDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testModelPath, make([]byte, 32), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewModelFetcher(fs, "http://127.0.0.1:0/unreachable", testModelPath, 32, nil)

	var percents []int
	path, err := f.Fetch(context.Background(), func(p int) { percents = append(percents, p) })
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if path != testModelPath {
		t.Errorf("path = %q", path)
	}
	if len(percents) != 1 || percents[0] != 100 {
		t.Errorf("progress = %v, want single 100", percents)
	}
}

func TestFetchDownloadsAndRenames(t *testing.T) {
	payload := make([]byte, 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	f := NewModelFetcher(fs, server.URL, testModelPath, int64(len(payload)), nil)

	var last int
	path, err := f.Fetch(context.Background(), func(p int) { last = p })
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("stat downloaded model: %v", err)
	}
	if info.Size() != int64(len(payload)) {
		t.Errorf("size = %d, want %d", info.Size(), len(payload))
	}
	if _, err := fs.Stat(testModelPath + ".partial"); err == nil {
		t.Error("partial file left behind after successful download")
	}
	if !f.Cached() {
		t.Error("fetcher should report cached after download")
	}
}

func TestFetchSizeMismatchLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 10))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	f := NewModelFetcher(fs, server.URL, testModelPath, 1024, nil)

	_, err := f.Fetch(context.Background(), nil)
	if aicore.KindOf(err) != aicore.KindModelDownloadFailed {
		t.Fatalf("kind = %v, want model_download_failed", aicore.KindOf(err))
	}
	if _, statErr := fs.Stat(testModelPath); statErr == nil {
		t.Error("incomplete model left in cache")
	}
	if _, statErr := fs.Stat(testModelPath + ".partial"); statErr == nil {
		t.Error("partial file left behind after failure")
	}
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	}))
	defer server.Close()

	f := NewModelFetcher(afero.NewMemMapFs(), server.URL, testModelPath, 64, nil)
	_, err := f.Fetch(context.Background(), nil)
	if aicore.KindOf(err) != aicore.KindModelDownloadFailed {
		t.Fatalf("kind = %v, want model_download_failed", aicore.KindOf(err))
	}
}

func TestCachedRejectsWrongSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testModelPath, make([]byte, 16), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewModelFetcher(fs, "", testModelPath, 64, nil)
	if f.Cached() {
		t.Error("truncated file must not count as cached")
	}
}
