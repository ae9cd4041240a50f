// Package differ implements per-Project diffing (spec.md §4.6): it
// assembles a Project's current canvas view from cached tile bytes,
// compares it against the Project's target and previous snapshot
// images, and commits the resulting progress/regress deltas to the
// Store in one transaction.
package differ

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pixelhawk/hawk/internal/geometry"
	"github.com/pixelhawk/hawk/internal/palette"
	"github.com/pixelhawk/hawk/internal/store"
)

// Differ owns the nest-root paths it reads tiles, targets, and
// snapshots from, and the Store it commits results to.
type Differ struct {
	store    *store.Store
	tilesDir string
	nestRoot string
	log      *slog.Logger
}

// New constructs a Differ. nestRoot is the configured nest root
// (spec.md §6); targets live at
// <nestRoot>/projects/<owner_id>/... and snapshots at
// <nestRoot>/snapshots/<owner_id>/....
func New(s *store.Store, nestRoot, tilesDir string, log *slog.Logger) *Differ {
	if log == nil {
		log = slog.Default()
	}
	return &Differ{store: s, tilesDir: tilesDir, nestRoot: nestRoot, log: log}
}

func (d *Differ) targetPath(p *store.Project) string {
	tx, ty, px, py := geometry.ToFilenameParts(geometry.Point{X: p.Rect.X, Y: p.Rect.Y})
	return filepath.Join(d.nestRoot, "projects", fmt.Sprint(p.OwnerID), fmt.Sprintf("%d_%d_%d_%d.png", tx, ty, px, py))
}

func (d *Differ) snapshotPath(p *store.Project) string {
	tx, ty, px, py := geometry.ToFilenameParts(geometry.Point{X: p.Rect.X, Y: p.Rect.Y})
	return filepath.Join(d.nestRoot, "snapshots", fmt.Sprint(p.OwnerID), fmt.Sprintf("%d_%d_%d_%d.png", tx, ty, px, py))
}

// Run executes the six-step procedure of spec.md §4.6 for a single
// Project. It is safe to call concurrently for distinct Projects; it
// is not safe to call concurrently for the same Project (spec.md §5).
func (d *Differ) Run(ctx context.Context, project *store.Project) error {
	target, err := d.loadTarget(project)
	if err != nil {
		return fmt.Errorf("differ: load target for project %d: %w", project.ID, err)
	}

	current, err := d.assembleCurrent(project)
	if err != nil {
		return fmt.Errorf("differ: assemble current view for project %d: %w", project.ID, err)
	}

	previous, err := d.loadSnapshot(project)
	if err != nil {
		return fmt.Errorf("differ: load snapshot for project %d: %w", project.ID, err)
	}

	result := compare(target, current, previous)

	if result.DeltaProgress+result.DeltaRegress == 0 {
		return nil
	}

	logMsg := fmt.Sprintf("project %d (owner %d): [+%d/-%d]", project.ID, project.OwnerID, result.DeltaProgress, result.DeltaRegress)

	delta := store.ProjectStatsDelta{
		DeltaProgress:     result.DeltaProgress,
		DeltaRegress:      result.DeltaRegress,
		PixelsRemaining:   result.PixelsRemaining,
		CompletionPercent: result.CompletionPercent,
		Status:            result.Status,
		Timestamp:         time.Now().Unix(),
	}
	if err := d.store.UpdateProjectStats(ctx, project.ID, delta, logMsg); err != nil {
		return fmt.Errorf("differ: commit stats for project %d: %w", project.ID, err)
	}

	if err := writeSnapshot(d.snapshotPath(project), current); err != nil {
		return fmt.Errorf("differ: write snapshot for project %d: %w", project.ID, err)
	}

	return nil
}

// compareResult is the pure computation described in spec.md §4.6
// steps 2-4, separated from persistence so it can be unit tested
// without a Store.
type compareResult struct {
	DeltaProgress     int64
	DeltaRegress      int64
	PixelsRemaining   int64
	CompletionPercent float64
	Status            store.DiffStatus
}

func compare(target, current, previous *image.Paletted) compareResult {
	b := target.Bounds()
	var matched, totalTarget int64
	var deltaProgress, deltaRegress int64

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			targetIdx := target.ColorIndexAt(x, y)
			if targetIdx == palette.TransparentIndex {
				continue
			}
			totalTarget++

			currentIdx := current.ColorIndexAt(x, y)
			previousIdx := previous.ColorIndexAt(x, y)

			nowMatches := palette.MatchesTarget(targetIdx, currentIdx)
			wasMatching := palette.MatchesTarget(targetIdx, previousIdx)

			if nowMatches {
				matched++
			}
			if nowMatches && !wasMatching {
				deltaProgress++
			}
			if wasMatching && !nowMatches {
				deltaRegress++
			}
		}
	}

	var completionPercent float64
	if totalTarget > 0 {
		completionPercent = float64(matched) / float64(totalTarget)
	}

	status := store.InProgress
	switch {
	case matched == 0:
		status = store.NotStarted
	case matched == totalTarget:
		status = store.Complete
	}

	return compareResult{
		DeltaProgress:     deltaProgress,
		DeltaRegress:      deltaRegress,
		PixelsRemaining:   totalTarget - matched,
		CompletionPercent: completionPercent,
		Status:            status,
	}
}

// loadTarget reads the Project's persistent target image. A missing or
// malformed (or non-palette) target is returned as an error, which
// fails Run for this Project only; the Checker logs it and moves on.
func (d *Differ) loadTarget(p *store.Project) (*image.Paletted, error) {
	data, err := os.ReadFile(d.targetPath(p))
	if err != nil {
		return nil, err
	}
	return palette.Decode(data)
}

// loadSnapshot reads the Project's previous-state mirror, synthesizing
// a blank one (spec.md §7 "SnapshotMissing") if this is the first diff.
func (d *Differ) loadSnapshot(p *store.Project) (*image.Paletted, error) {
	data, err := os.ReadFile(d.snapshotPath(p))
	if os.IsNotExist(err) {
		d.log.Debug("snapshot missing, synthesizing blank", "project_id", p.ID)
		return palette.NewBlank(p.Rect.W, p.Rect.H), nil
	}
	if err != nil {
		return nil, err
	}
	return palette.Decode(data)
}

// assembleCurrent pastes cached tile bytes into a rectangle-sized
// image, leaving index-0 pixels wherever a tile is not yet cached
// (spec.md §7 "CacheMiss").
func (d *Differ) assembleCurrent(p *store.Project) (*image.Paletted, error) {
	out := palette.NewBlank(p.Rect.W, p.Rect.H)

	warnedMissing := make(map[geometry.Tile]bool)
	for _, tile := range geometry.TilesForRectangle(p.Rect) {
		clip, ok := geometry.ClipToTile(p.Rect, tile)
		if !ok {
			continue
		}
		tileImg, err := d.loadCachedTile(tile)
		if err != nil {
			if !warnedMissing[tile] {
				d.log.Debug("cache miss assembling current view", "tile_x", tile.X, "tile_y", tile.Y, "project_id", p.ID)
				warnedMissing[tile] = true
			}
			continue // leave index-0 for this tile's pixels
		}

		for y := clip.Y; y < clip.Bottom(); y++ {
			for x := clip.X; x < clip.Right(); x++ {
				dx, dy := x-tile.Origin().X, y-tile.Origin().Y
				idx := tileImg.ColorIndexAt(dx, dy)
				out.SetColorIndex(x-p.Rect.X, y-p.Rect.Y, idx)
			}
		}
	}
	return out, nil
}

func (d *Differ) loadCachedTile(t geometry.Tile) (*image.Paletted, error) {
	data, err := os.ReadFile(filepath.Join(d.tilesDir, fmt.Sprintf("tile-%d_%d.png", t.X, t.Y)))
	if err != nil {
		return nil, err
	}
	return palette.Decode(data)
}

func writeSnapshot(path string, img *image.Paletted) error {
	data, err := palette.Encode(img)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
