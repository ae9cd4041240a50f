package fetcher

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixelhawk/hawk/internal/palette"
	"github.com/pixelhawk/hawk/internal/store"
)

func blankTilePNG(t *testing.T) []byte {
	t.Helper()
	img := palette.NewBlank(10, 10)
	buf, err := palette.Encode(img)
	require.NoError(t, err)
	return buf
}

func TestFetch304ShortCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `"abc"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	tilesDir := t.TempDir()
	f := New(srv.URL, tilesDir, 2*time.Second, 5*time.Second, nil)

	tile := store.Tile{X: 1, Y: 2, ETag: `"abc"`, LastChecked: 10}
	res, err := f.Fetch(t.Context(), tile)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Nil(t, res.Err)
	require.Greater(t, res.UpdatedTile.LastChecked, int64(10))
	require.Equal(t, `"abc"`, res.UpdatedTile.ETag) // unchanged on 304
}

func TestFetch200WritesCacheAndUpdatesETag(t *testing.T) {
	body := blankTilePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"new-etag"`)
		w.Header().Set("Last-Modified", time.Unix(5000, 0).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tilesDir := t.TempDir()
	f := New(srv.URL, tilesDir, 2*time.Second, 5*time.Second, nil)

	tile := store.Tile{X: 3, Y: 4}
	res, err := f.Fetch(t.Context(), tile)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Nil(t, res.Err)
	require.Equal(t, `"new-etag"`, res.UpdatedTile.ETag)
	require.Equal(t, int64(5000), res.UpdatedTile.LastUpdate)

	written, err := os.ReadFile(filepath.Join(tilesDir, "tile-3_4.png"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(body, written))
}

func TestFetchConditionalIdempotentWhenUnchanged(t *testing.T) {
	// Simulates spec.md Property 6: repeating a fetch against an
	// unchanged upstream resource (by echoing back If-None-Match) never
	// mutates the cached tile or resets the consecutive-error counter
	// in a way that differs from a first no-op fetch.
	etag := `"stable"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blankTilePNG(t))
	}))
	defer srv.Close()

	tilesDir := t.TempDir()
	f := New(srv.URL, tilesDir, 2*time.Second, 5*time.Second, nil)

	tile := store.Tile{X: 0, Y: 0}
	first, err := f.Fetch(t.Context(), tile)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := f.Fetch(t.Context(), first.UpdatedTile)
	require.NoError(t, err)
	require.False(t, second.Changed)

	third, err := f.Fetch(t.Context(), second.UpdatedTile)
	require.NoError(t, err)
	require.False(t, third.Changed)
	require.Equal(t, second.UpdatedTile.ETag, third.UpdatedTile.ETag)
}

func TestFetchNon2xxIncrementsConsecutiveErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tilesDir := t.TempDir()
	f := New(srv.URL, tilesDir, 2*time.Second, 5*time.Second, nil)

	res, err := f.Fetch(t.Context(), store.Tile{X: 0, Y: 0})
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Error(t, res.Err)
	require.Equal(t, 1, f.ConsecutiveErrors())
}

func TestFetchPaletteViolationDoesNotWriteCache(t *testing.T) {
	// A true-color PNG containing a non-palette color should be rejected
	// without caching.
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 123, G: 45, B: 67, A: 200})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	tilesDir := t.TempDir()
	f := New(srv.URL, tilesDir, 2*time.Second, 5*time.Second, nil)

	res, err := f.Fetch(t.Context(), store.Tile{X: 7, Y: 7})
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Error(t, res.Err)

	_, statErr := os.Stat(filepath.Join(tilesDir, "tile-7_7.png"))
	require.True(t, os.IsNotExist(statErr))
}
