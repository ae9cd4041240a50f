package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pixelhawk/hawk/internal/geometry"
)

// maxProjectID bounds the random id space for new Projects (spec.md §9
// "Design Notes": short, human-readable ids, not a performance
// decision).
const maxProjectID = 9999

// ErrIDSpaceExhausted is returned by CreateProject if it cannot find a
// free random id after a bounded number of attempts.
var ErrIDSpaceExhausted = errors.New("store: project id space exhausted")

// CreateProject inserts a new Project, assigning it a uniformly random
// id in 1..9999 and retrying on collision (spec.md §9). p.ID is
// ignored on input and overwritten with the assigned id.
func (s *Store) CreateProject(ctx context.Context, p Project) (*Project, error) {
	const maxAttempts = 50
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := p
		candidate.ID = 1 + rand.IntN(maxProjectID)

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO project (id, owner_id, name, state, rect_x, rect_y, rect_w, rect_h, first_seen,
				max_completion_percent, total_progress, total_regress, largest_regress_pixels,
				largest_regress_at, streak, last_log_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, '', '')`,
			candidate.ID, candidate.OwnerID, candidate.Name, candidate.State,
			candidate.Rect.X, candidate.Rect.Y, candidate.Rect.W, candidate.Rect.H, candidate.FirstSeen)
		if err == nil {
			return &candidate, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, wrapDBError("create project", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrIDSpaceExhausted, ErrConflict)
}

// isUniqueViolation recognizes go-sqlite3's constraint-failure message
// shape ("UNIQUE constraint failed: ..."); there is no typed sentinel
// to compare against in database/sql.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// GetProject loads a single Project by id.
func (s *Store) GetProject(ctx context.Context, id int) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, state, rect_x, rect_y, rect_w, rect_h, first_seen,
		       max_completion_percent, total_progress, total_regress,
		       largest_regress_pixels, largest_regress_at, streak, last_log_message
		FROM project WHERE id = ?`, id)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var x, y, w, h int
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.State, &x, &y, &w, &h, &p.FirstSeen,
		&p.MaxCompletionPercent, &p.TotalProgress, &p.TotalRegress,
		&p.LargestRegressPixels, &p.LargestRegressAt, &p.Streak, &p.LastLogMessage); err != nil {
		return nil, wrapDBError("get project", err)
	}
	p.Rect = geometry.NewRectangle(x, y, w, h)
	return &p, nil
}

// LookupOverlappingProjects returns every Project whose rectangle
// intersects tileID and whose state is not INACTIVE (spec.md §4.3). This
// is the query-driven replacement for any in-memory overlap index; it is
// called once per changed tile by the Checker.
func (s *Store) LookupOverlappingProjects(ctx context.Context, tileID int64) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pr.id, pr.owner_id, pr.name, pr.state, pr.rect_x, pr.rect_y, pr.rect_w, pr.rect_h,
		       pr.first_seen, pr.max_completion_percent, pr.total_progress, pr.total_regress,
		       pr.largest_regress_pixels, pr.largest_regress_at, pr.streak, pr.last_log_message
		FROM project pr
		JOIN tile_project tp ON tp.project_id = pr.id
		WHERE tp.tile_id = ? AND pr.state != ?
		ORDER BY pr.id`, tileID, ProjectInactive)
	if err != nil {
		return nil, wrapDBError("lookup overlapping projects", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var x, y, w, h int
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.State, &x, &y, &w, &h, &p.FirstSeen,
			&p.MaxCompletionPercent, &p.TotalProgress, &p.TotalRegress,
			&p.LargestRegressPixels, &p.LargestRegressAt, &p.Streak, &p.LastLogMessage); err != nil {
			return nil, wrapDBError("scan project", err)
		}
		p.Rect = geometry.NewRectangle(x, y, w, h)
		out = append(out, p)
	}
	return out, wrapDBError("lookup overlapping projects", rows.Err())
}

// UpdateProjectStats applies one Differ commit's delta to a Project's
// lifetime statistics and appends the corresponding HistoryChange row,
// atomically (spec.md §4.6 step 6). total_progress/total_regress,
// max_completion_percent, and largest_regress_pixels are updated
// monotonically: they only ever increase.
func (s *Store) UpdateProjectStats(ctx context.Context, projectID int, delta ProjectStatsDelta, logMessage string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var cur Project
		row := tx.QueryRowContext(ctx, `
			SELECT max_completion_percent, total_progress, total_regress,
			       largest_regress_pixels, largest_regress_at, streak
			FROM project WHERE id = ?`, projectID)
		if err := row.Scan(&cur.MaxCompletionPercent, &cur.TotalProgress, &cur.TotalRegress,
			&cur.LargestRegressPixels, &cur.LargestRegressAt, &cur.Streak); err != nil {
			return wrapDBError("load project for stats update", err)
		}

		newMax := cur.MaxCompletionPercent
		if delta.CompletionPercent > newMax {
			newMax = delta.CompletionPercent
		}
		newLargest := cur.LargestRegressPixels
		newLargestAt := cur.LargestRegressAt
		if delta.DeltaRegress > newLargest {
			newLargest = delta.DeltaRegress
			newLargestAt = delta.Timestamp
		}
		newStreak := nextStreak(cur.Streak, delta.DeltaProgress, delta.DeltaRegress)

		_, err := tx.ExecContext(ctx, `
			UPDATE project SET
				total_progress = total_progress + ?,
				total_regress = total_regress + ?,
				max_completion_percent = ?,
				largest_regress_pixels = ?,
				largest_regress_at = ?,
				streak = ?,
				last_log_message = ?
			WHERE id = ?`,
			delta.DeltaProgress, delta.DeltaRegress, newMax, newLargest, newLargestAt,
			newStreak, logMessage, projectID)
		if err != nil {
			return wrapDBError("update project stats", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO history_change
				(project_id, timestamp, status, pixels_remaining, completion_percent, delta_progress, delta_regress)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			projectID, delta.Timestamp, delta.Status, delta.PixelsRemaining,
			delta.CompletionPercent, delta.DeltaProgress, delta.DeltaRegress)
		return wrapDBError("append history", err)
	})
}

// nextStreak classifies the trend from the current event's signed
// deltas (spec.md §4.6 step 6): a pure-progress event yields progress,
// a pure-regress event yields regress, and an event with both yields
// mixed. The previous streak does not change the result.
func nextStreak(_ Streak, deltaProgress, deltaRegress int64) Streak {
	switch {
	case deltaProgress > 0 && deltaRegress == 0:
		return StreakProgress
	case deltaRegress > 0 && deltaProgress == 0:
		return StreakRegress
	default:
		return StreakMixed
	}
}

// AppendHistory is exposed separately for callers (e.g. synthetic test
// fixtures) that want to append a HistoryChange without going through
// UpdateProjectStats's full accumulation logic.
func (s *Store) AppendHistory(ctx context.Context, projectID int, h HistoryChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history_change
			(project_id, timestamp, status, pixels_remaining, completion_percent, delta_progress, delta_regress)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, h.Timestamp, h.Status, h.PixelsRemaining, h.CompletionPercent, h.DeltaProgress, h.DeltaRegress)
	return wrapDBError("append history", err)
}
