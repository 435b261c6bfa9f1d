package localai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/taskpilot/taskpilot/src/aicore"
)

// ProgressFunc receives download progress as a whole percentage, 0-100.
type ProgressFunc func(percent int)

// ModelFetcher downloads model weights into a local cache. The filesystem is
// abstracted so cache behavior is testable in memory.
type ModelFetcher struct {
	fs         afero.Fs
	httpClient *http.Client
	logger     *slog.Logger

	URL          string
	CachePath    string
	ExpectedSize int64
}

// NewModelFetcher creates a fetcher for one model file.
func NewModelFetcher(fs afero.Fs, url, cachePath string, expectedSize int64, logger *slog.Logger) *ModelFetcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelFetcher{
		fs:           fs,
		httpClient:   &http.Client{},
		logger:       logger.With("component", "model_fetcher"),
		URL:          url,
		CachePath:    cachePath,
		ExpectedSize: expectedSize,
	}
}

// Cached reports whether a complete model file is already in the cache.
func (f *ModelFetcher) Cached() bool {
	info, err := f.fs.Stat(f.CachePath)
	if err != nil {
		return false
	}
	if f.ExpectedSize > 0 && info.Size() != f.ExpectedSize {
		return false
	}
	return info.Size() > 0
}

// Fetch ensures the model file is present in the cache, downloading it if
// absent. On failure no partial file is left behind.
func (f *ModelFetcher) Fetch(ctx context.Context, progress ProgressFunc) (string, error) {
	if f.Cached() {
		f.logger.Debug("model already cached", "path", f.CachePath)
		if progress != nil {
			progress(100)
		}
		return f.CachePath, nil
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.CachePath), 0o755); err != nil {
		return "", f.downloadFailed("failed to create cache directory", err)
	}

	partial := f.CachePath + ".partial"
	if err := f.download(ctx, partial, progress); err != nil {
		f.fs.Remove(partial)
		return "", err
	}

	if err := f.verify(partial); err != nil {
		f.fs.Remove(partial)
		return "", err
	}

	if err := f.fs.Rename(partial, f.CachePath); err != nil {
		f.fs.Remove(partial)
		return "", f.downloadFailed("failed to move model into cache", err)
	}

	f.logger.Info("model downloaded", "path", f.CachePath)
	return f.CachePath, nil
}

func (f *ModelFetcher) download(ctx context.Context, dest string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return f.downloadFailed("failed to create download request", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return f.downloadFailed("model download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return f.downloadFailed(fmt.Sprintf("model download returned status %d", resp.StatusCode), nil)
	}

	out, err := f.fs.Create(dest)
	if err != nil {
		return f.downloadFailed("failed to create cache file", err)
	}
	defer out.Close()

	total := resp.ContentLength
	if total <= 0 {
		total = f.ExpectedSize
	}

	var written int64
	lastPercent := -1
	buf := make([]byte, 128*1024)
	for {
		if err := ctx.Err(); err != nil {
			return f.downloadFailed("model download cancelled", err)
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return f.downloadFailed("failed to write model file", writeErr)
			}
			written += int64(n)
			if progress != nil && total > 0 {
				percent := int(written * 100 / total)
				if percent > 100 {
					percent = 100
				}
				if percent != lastPercent {
					lastPercent = percent
					progress(percent)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return f.downloadFailed("model download interrupted", readErr)
		}
	}

	if progress != nil && lastPercent < 100 {
		progress(100)
	}
	return nil
}

// verify checks the downloaded file is complete before it enters the cache.
func (f *ModelFetcher) verify(path string) error {
	info, err := f.fs.Stat(path)
	if err != nil {
		return f.downloadFailed("downloaded model file missing", err)
	}
	if info.Size() == 0 {
		return f.downloadFailed("downloaded model file is empty", nil)
	}
	if f.ExpectedSize > 0 && info.Size() != f.ExpectedSize {
		return f.downloadFailed(
			fmt.Sprintf("downloaded model size %d does not match expected %d", info.Size(), f.ExpectedSize), nil)
	}
	return nil
}

func (f *ModelFetcher) downloadFailed(detail string, err error) error {
	return aicore.WrapError(aicore.KindModelDownloadFailed, detail,
		"The local model could not be downloaded. Check your connection and disk space, then retry.", err)
}
