package IO

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/manningwu07/riffgpt/logger"
)

// ErrDownloadFailure is returned once a required source has exhausted its
// attempts.
var ErrDownloadFailure = errors.New("download failure")

// Source is one named corpus file. Names ending in .zip are extracted into
// the corpus directory and the archive removed.
type Source struct {
	Name string
	URL  string
}

func (s Source) isArchive() bool { return strings.EqualFold(filepath.Ext(s.Name), ".zip") }

var DefaultSources = []Source{
	{Name: "harder_better.mid", URL: "https://www.presetpatch.com/midi/Daft_Punk_Harder_Better_Faster_Stronger.mid"},
	{Name: "da_funk.mid", URL: "https://mididb.com/files/DaftPunk_DaFunk.mid"},
	{Name: "around_the_world.mid", URL: "https://mididb.com/files/DaftPunk_AroundTheWorld.mid"},
	{Name: "daft_pack.zip", URL: "https://archive.org/download/daft_punk_midi_samples/daft_midi_pack.zip"},
}

// Fetcher downloads missing sources one at a time.
type Fetcher struct {
	Client   *http.Client
	Dir      string
	Attempts int
	Backoff  time.Duration // doubled after each failed attempt
}

func NewFetcher(dir string, attempts int) *Fetcher {
	return &Fetcher{
		Client:   &http.Client{Timeout: 2 * time.Minute},
		Dir:      dir,
		Attempts: attempts,
		Backoff:  time.Second,
	}
}

// Fetch ensures every source is present locally. Archives leave a marker
// file after extraction so they are not fetched again.
func (f *Fetcher) Fetch(ctx context.Context, sources []Source) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	for _, src := range sources {
		target := filepath.Join(f.Dir, src.Name)
		marker := target + ".extracted"
		if src.isArchive() {
			// only the marker proves a completed extraction
			if fileExists(marker) {
				continue
			}
		} else if fileExists(target) {
			continue
		}
		if err := f.download(ctx, src, target); err != nil {
			return err
		}
		if src.isArchive() {
			n, err := extractZip(target, f.Dir)
			if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logger.Warn("could not remove corpus archive", logger.Fields{"source": src.Name, "error": rmErr.Error()})
			}
			if err != nil {
				return fmt.Errorf("%w: extract %s: %w", ErrDownloadFailure, src.Name, err)
			}
			if err := os.WriteFile(marker, nil, 0o644); err != nil {
				return err
			}
			logger.Info("extracted corpus archive", logger.Fields{"source": src.Name, "files": n})
		}
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, src Source, target string) error {
	attempts := max(f.Attempts, 1)
	wait := f.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = f.get(ctx, src.URL, target)
		if lastErr == nil {
			logger.Info("downloaded corpus file", logger.Fields{"source": src.Name, "attempt": attempt})
			return nil
		}
		logger.Warn("corpus download failed", logger.Fields{"source": src.Name, "attempt": attempt, "error": lastErr.Error()})
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrDownloadFailure, src.Name, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrDownloadFailure, src.Name, attempts, lastErr)
}

// get streams url into a temp file and renames it over target.
func (f *Fetcher) get(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// extractZip writes the regular files of archive into dir, flattening any
// folder structure. Returns the number of files written.
func extractZip(archive, dir string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	n := 0
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(zf.Name)
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		if err := extractOne(zf, filepath.Join(dir, name)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func extractOne(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CorpusFiles lists .mid/.midi files below dir in lexical order.
func CorpusFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".mid", ".midi":
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
