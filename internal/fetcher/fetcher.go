// Package fetcher implements the conditional-fetch protocol against the
// upstream tile backend (spec.md §4.5): one HTTP GET per tile per
// cycle, honoring ETag/Last-Modified, writing validated tile bytes to
// the cache atomically, and classifying the outcome into the 304/200/
// error dispositions the Checker drives off of.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pixelhawk/hawk/internal/palette"
	"github.com/pixelhawk/hawk/internal/store"
)

// Result is the outcome of one Fetch call. Err is set (non-fatal) for
// TransportError, non-2xx responses, and PaletteViolation; it is nil on
// a clean 200 or 304. UpdatedTile always reflects the fields that
// should be persisted, per the Outcomes table in spec.md §4.5.
type Result struct {
	Changed     bool
	UpdatedTile store.Tile
	Bytes       []byte
	Err         error
}

// TransportError wraps a network-level failure (timeout, reset,
// non-2xx status) distinct from a PaletteViolation.
type TransportError struct {
	Tile store.Tile
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetcher: tile (%d,%d): %v", e.Tile.X, e.Tile.Y, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// Fetcher performs conditional GETs against the upstream tile backend
// and writes successfully fetched, palette-conformant tiles to the
// cache directory.
type Fetcher struct {
	httpClient        *http.Client
	baseURL           string
	tilesDir          string
	log               *slog.Logger
	consecutiveErrors int
}

// New constructs a Fetcher. connectTimeout bounds dialing; totalTimeout
// bounds the whole request (spec.md §4.5 "Timeouts: connect ≤ 10s,
// total ≤ 30s").
func New(baseURL, tilesDir string, connectTimeout, totalTimeout time.Duration, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &Fetcher{
		httpClient: &http.Client{Transport: transport, Timeout: totalTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tilesDir:   tilesDir,
		log:        log,
	}
}

// ConsecutiveErrors returns the Fetcher's own running count of
// transport/HTTP-status failures, reset on a 304 or on a 200 whose body
// is cached (spec.md §4.5 "Increment a consecutive-error counter"). A
// 200 whose body fails the palette check leaves it unchanged.
func (f *Fetcher) ConsecutiveErrors() int { return f.consecutiveErrors }

// Fetch performs one conditional GET for tile, applying the outcome
// table of spec.md §4.5. It does not itself persist anything to the
// Store — the Checker commits Result.UpdatedTile — but it does write
// tile bytes to the cache directory on a successful 200.
func (f *Fetcher) Fetch(ctx context.Context, tile store.Tile) (*Result, error) {
	url := fmt.Sprintf("%s/%d/%d.png", f.baseURL, tile.X, tile.Y)

	resp, err := f.doWithRetry(ctx, url, tile)
	now := time.Now().Unix()
	if err != nil {
		f.consecutiveErrors++
		f.log.Warn("tile fetch transport error", "tile_x", tile.X, "tile_y", tile.Y, "error", err)
		updated := tile
		updated.LastChecked = now
		return &Result{Changed: false, UpdatedTile: updated, Err: &TransportError{Tile: tile, Err: err}}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		f.consecutiveErrors = 0
		updated := tile
		updated.LastChecked = now
		return &Result{Changed: false, UpdatedTile: updated}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return f.handleSuccess(resp, tile, now)

	default:
		f.consecutiveErrors++
		f.log.Warn("tile fetch non-2xx", "tile_x", tile.X, "tile_y", tile.Y, "status", resp.StatusCode)
		updated := tile
		updated.LastChecked = now
		return &Result{Changed: false, UpdatedTile: updated, Err: &TransportError{Tile: tile, Err: fmt.Errorf("status %d", resp.StatusCode)}}, nil
	}
}

func (f *Fetcher) handleSuccess(resp *http.Response, tile store.Tile, now int64) (*Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.consecutiveErrors++
		updated := tile
		updated.LastChecked = now
		return &Result{Changed: false, UpdatedTile: updated, Err: &TransportError{Tile: tile, Err: err}}, nil
	}

	if _, err := palette.Decode(body); err != nil {
		f.log.Warn("tile fetch palette violation", "tile_x", tile.X, "tile_y", tile.Y, "error", err)
		updated := tile
		updated.LastChecked = now
		return &Result{Changed: false, UpdatedTile: updated, Err: err}, nil
	}

	if err := writeAtomic(filepath.Join(f.tilesDir, fmt.Sprintf("tile-%d_%d.png", tile.X, tile.Y)), body); err != nil {
		return nil, fmt.Errorf("fetcher: write cache for tile (%d,%d): %w", tile.X, tile.Y, err)
	}

	f.consecutiveErrors = 0
	updated := tile
	updated.LastChecked = now
	updated.LastUpdate = lastModifiedOrNow(resp, now)
	updated.ETag = resp.Header.Get("ETag")
	return &Result{Changed: true, UpdatedTile: updated, Bytes: body}, nil
}

func lastModifiedOrNow(resp *http.Response, now int64) int64 {
	lm := resp.Header.Get("Last-Modified")
	if lm == "" {
		return now
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return now
	}
	return t.Unix()
}

// doWithRetry issues the conditional GET, retrying exactly once if the
// failure looks like a connection reset (spec.md §4.5 "One retry on
// connection reset only"). Any other failure is permanent and aborts
// the backoff policy on the first attempt.
func (f *Fetcher) doWithRetry(ctx context.Context, url string, tile store.Tile) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if tile.ETag != "" {
			req.Header.Set("If-None-Match", tile.ETag)
		}
		if tile.LastUpdate != 0 {
			req.Header.Set("If-Modified-Since", time.Unix(tile.LastUpdate, 0).UTC().Format(http.TimeFormat))
		}

		r, err := f.httpClient.Do(req)
		if err != nil {
			if isConnectionReset(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func isConnectionReset(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}

// writeAtomic writes data to path via a temp file + rename, so a
// concurrent reader (the Differ) never observes a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tile-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
