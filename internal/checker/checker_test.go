package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixelhawk/hawk/internal/differ"
	"github.com/pixelhawk/hawk/internal/fetcher"
	"github.com/pixelhawk/hawk/internal/geometry"
	"github.com/pixelhawk/hawk/internal/palette"
	"github.com/pixelhawk/hawk/internal/queue"
	"github.com/pixelhawk/hawk/internal/store"
)

func newHarness(t *testing.T, srv *httptest.Server) (*Checker, *store.Store, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	nest := t.TempDir()
	tilesDir := filepath.Join(nest, "tiles")
	require.NoError(t, os.MkdirAll(tilesDir, 0o755))

	q := queue.New(s)
	f := fetcher.New(srv.URL, tilesDir, 2*time.Second, 5*time.Second, nil)
	d := differ.New(s, nest, tilesDir, nil)
	c := New(s, q, f, d, nil)
	return c, s, nest
}

func blankTilePNG(t *testing.T) []byte {
	t.Helper()
	buf, err := palette.Encode(palette.NewBlank(geometry.TileSize, geometry.TileSize))
	require.NoError(t, err)
	return buf
}

func TestRunCycleFetchesChangedTileAndRunsDiffer(t *testing.T) {
	body := blankTilePNG(t)
	// Repaint every pixel index 4 so the target can be satisfied.
	img := palette.NewBlank(geometry.TileSize, geometry.TileSize)
	for y := 0; y < geometry.TileSize; y++ {
		for x := 0; x < geometry.TileSize; x++ {
			img.SetColorIndex(x, y, 4)
		}
	}
	var err error
	body, err = palette.Encode(img)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c, s, nest := newHarness(t, srv)
	ctx := context.Background()

	require.NoError(t, s.CreatePerson(ctx, store.Person{ID: 1, DisplayName: "alice"}))
	rect := geometry.NewRectangle(0, 0, geometry.TileSize, geometry.TileSize)
	project, err := s.CreateProject(ctx, store.Project{OwnerID: 1, Name: "p", Rect: rect, FirstSeen: 1})
	require.NoError(t, err)

	tileID := geometry.Tile{X: 0, Y: 0}.ID()
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: tileID, X: 0, Y: 0, Heat: store.BurningHeat}))
	require.NoError(t, s.RegisterTileProject(ctx, tileID, project.ID))

	targetPath := filepath.Join(nest, "projects", "1", "0_0_0_0.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(targetPath), 0o755))
	require.NoError(t, os.WriteFile(targetPath, body, 0o644))

	require.NoError(t, c.RunCycle(ctx))

	updated, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, 1.0, updated.MaxCompletionPercent)
	require.Equal(t, 0, c.ConsecutiveErrors())

	tile, err := s.GetTile(ctx, tileID)
	require.NoError(t, err)
	require.NotEqual(t, store.BurningHeat, tile.Heat) // graduated off burning after a successful fetch
}

func TestRunCycle304OnlyUpdatesLastChecked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, s, _ := newHarness(t, srv)
	ctx := context.Background()

	tileID := geometry.Tile{X: 5, Y: 5}.ID()
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: tileID, X: 5, Y: 5, Heat: 1, ETag: `"abc"`, LastUpdate: 1700000000}))

	require.NoError(t, c.RunCycle(ctx))

	tile, err := s.GetTile(ctx, tileID)
	require.NoError(t, err)
	require.Equal(t, `"abc"`, tile.ETag)
	require.Equal(t, int64(1700000000), tile.LastUpdate)
	require.Greater(t, tile.LastChecked, int64(0))
}

func TestRunCycleNoEligibleTileIsANoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, _, _ := newHarness(t, srv)
	require.NoError(t, c.RunCycle(context.Background()))
	require.Equal(t, 0, c.ConsecutiveErrors())
}

func TestShouldExitAfterThreeConsecutiveCycleFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, s, _ := newHarness(t, srv)
	ctx := context.Background()

	tileID := geometry.Tile{X: 1, Y: 1}.ID()
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: tileID, X: 1, Y: 1, Heat: 1}))
	require.NoError(t, s.Close()) // force every subsequent Store call to fail

	for i := 0; i < MaxConsecutiveErrors; i++ {
		require.Error(t, c.RunCycle(ctx))
	}
	require.True(t, c.ShouldExit())
}
