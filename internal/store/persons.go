package store

import (
	"context"
	"database/sql"
)

// CreatePerson inserts a new Person row. Used by the registration flow
// that provisions a Person before their first Project exists.
func (s *Store) CreatePerson(ctx context.Context, p Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO person (id, display_name, chat_identity, access_mask, watched_tiles_count, active_projects_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisplayName, p.ChatIdentity, p.AccessMask, p.WatchedTilesCount, p.ActiveProjectsCount)
	return wrapDBError("create person", err)
}

// ListActivePersons returns every Person who owns at least one
// non-INACTIVE Project. Used by the Engine at startup to know whose
// cached counts need recomputing.
func (s *Store) ListActivePersons(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.display_name, p.chat_identity, p.access_mask,
		       p.watched_tiles_count, p.active_projects_count
		FROM person p
		JOIN project pr ON pr.owner_id = p.id
		WHERE pr.state != ?
		ORDER BY p.id`, ProjectInactive)
	if err != nil {
		return nil, wrapDBError("list active persons", err)
	}
	defer rows.Close()

	var out []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.ChatIdentity, &p.AccessMask,
			&p.WatchedTilesCount, &p.ActiveProjectsCount); err != nil {
			return nil, wrapDBError("scan person", err)
		}
		out = append(out, p)
	}
	return out, wrapDBError("list active persons", rows.Err())
}

// RecomputePersonTotals recomputes and persists watched_tiles_count
// (distinct tiles referenced by the person's ACTIVE projects; per
// spec.md §3 the invariant names only ACTIVE projects, so PASSIVE
// projects are excluded — see DESIGN.md's Open Question decision) and
// active_projects_count (projects with state == ACTIVE).
func (s *Store) RecomputePersonTotals(ctx context.Context, personID int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var activeCount int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM project WHERE owner_id = ? AND state = ?`,
			personID, ProjectActive).Scan(&activeCount); err != nil {
			return wrapDBError("count active projects", err)
		}

		var watchedCount int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT tp.tile_id)
			FROM tile_project tp
			JOIN project pr ON pr.id = tp.project_id
			WHERE pr.owner_id = ? AND pr.state = ?`,
			personID, ProjectActive).Scan(&watchedCount); err != nil {
			return wrapDBError("count watched tiles", err)
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE person SET active_projects_count = ?, watched_tiles_count = ?
			WHERE id = ?`, activeCount, watchedCount, personID)
		return wrapDBError("update person totals", err)
	})
}
