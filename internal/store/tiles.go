package store

import (
	"context"
	"database/sql"
)

// UpsertTile inserts or fully replaces a Tile row by (x, y). Used by the
// Checker to commit the Fetcher's result after each fetch, and by registration
// flows (out of scope) when a new Project references a never-seen tile.
func (s *Store) UpsertTile(ctx context.Context, t Tile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tile (id, x, y, heat, last_checked, last_update, etag)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			heat = excluded.heat,
			last_checked = excluded.last_checked,
			last_update = excluded.last_update,
			etag = excluded.etag`,
		t.ID, t.X, t.Y, t.Heat, t.LastChecked, t.LastUpdate, t.ETag)
	return wrapDBError("upsert tile", err)
}

// GetTile loads a single Tile by id.
func (s *Store) GetTile(ctx context.Context, id int64) (*Tile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, x, y, heat, last_checked, last_update, etag FROM tile WHERE id = ?`, id)
	var t Tile
	if err := row.Scan(&t.ID, &t.X, &t.Y, &t.Heat, &t.LastChecked, &t.LastUpdate, &t.ETag); err != nil {
		return nil, wrapDBError("get tile", err)
	}
	return &t, nil
}

// SetTileHeat updates only a tile's heat bucket assignment.
func (s *Store) SetTileHeat(ctx context.Context, tileID int64, heat int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tile SET heat = ? WHERE id = ?`, heat, tileID)
	return wrapDBError("set tile heat", err)
}

// SetTileHeats applies the optimistic batched update from queue
// redistribution: only tiles whose computed heat differs from the
// stored value are written (spec.md §4.4 "Redistribution policy").
func (s *Store) SetTileHeats(ctx context.Context, updates map[int64]int) error {
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE tile SET heat = ? WHERE id = ?`)
		if err != nil {
			return wrapDBError("prepare set tile heats", err)
		}
		defer stmt.Close()
		for id, heat := range updates {
			if _, err := stmt.ExecContext(ctx, heat, id); err != nil {
				return wrapDBError("set tile heat", err)
			}
		}
		return nil
	})
}

// QueueScan is the §4.4 "Selection" query for one bucket: given a heat
// value, it returns the single Tile the scheduler should visit next from
// that bucket, applying the bucket's tie-break rule. It returns
// ErrNotFound if the bucket is currently empty.
//
// For the burning bucket (heat == BurningHeat) selection picks the tile
// belonging to the oldest non-INACTIVE project (min first_seen across
// that tile's ACTIVE/PASSIVE projects), tie-broken by smallest tile id;
// burning tiles with no ACTIVE/PASSIVE project come after all others.
// HeatCounts counts tiles by heat alone, so every burning tile it
// counts is selectable here and this query never returns ErrNotFound
// for a bucket HeatCounts reports as non-empty. For a temperature
// bucket it picks the tile with the smallest last_checked, tie-broken
// by smallest tile id.
func (s *Store) QueueScan(ctx context.Context, heat int) (*Tile, error) {
	var row *sql.Row
	if heat == BurningHeat {
		row = s.db.QueryRowContext(ctx, `
			SELECT t.id, t.x, t.y, t.heat, t.last_checked, t.last_update, t.etag
			FROM tile t
			LEFT JOIN tile_project tp ON tp.tile_id = t.id
			LEFT JOIN project pr ON pr.id = tp.project_id AND pr.state != ?
			WHERE t.heat = ?
			GROUP BY t.id
			ORDER BY MIN(pr.first_seen) IS NULL, MIN(pr.first_seen) ASC, t.id ASC
			LIMIT 1`, ProjectInactive, heat)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT id, x, y, heat, last_checked, last_update, etag
			FROM tile
			WHERE heat = ?
			ORDER BY last_checked ASC, id ASC
			LIMIT 1`, heat)
	}

	var t Tile
	if err := row.Scan(&t.ID, &t.X, &t.Y, &t.Heat, &t.LastChecked, &t.LastUpdate, &t.ETag); err != nil {
		return nil, wrapDBError("queue scan", err)
	}
	return &t, nil
}

// HeatCounts returns the number of tiles currently assigned to each
// distinct non-inactive heat value, used by the Queue to know which
// buckets are non-empty for round-robin iteration.
func (s *Store) HeatCounts(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT heat, COUNT(*) FROM tile WHERE heat != ? GROUP BY heat`, InactiveHeat)
	if err != nil {
		return nil, wrapDBError("heat counts", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var heat, count int
		if err := rows.Scan(&heat, &count); err != nil {
			return nil, wrapDBError("scan heat count", err)
		}
		counts[heat] = count
	}
	return counts, wrapDBError("heat counts", rows.Err())
}

// ActiveTilesByLastUpdateDesc returns every non-burning, non-inactive
// tile sorted by last_update descending, for the Zipf bucket-sizing
// redistribution pass (spec.md §4.4 "Sizing").
func (s *Store) ActiveTilesByLastUpdateDesc(ctx context.Context) ([]Tile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, x, y, heat, last_checked, last_update, etag
		FROM tile
		WHERE heat != ? AND heat != ?
		ORDER BY last_update DESC, id ASC`, BurningHeat, InactiveHeat)
	if err != nil {
		return nil, wrapDBError("active tiles by last update", err)
	}
	defer rows.Close()

	var out []Tile
	for rows.Next() {
		var t Tile
		if err := rows.Scan(&t.ID, &t.X, &t.Y, &t.Heat, &t.LastChecked, &t.LastUpdate, &t.ETag); err != nil {
			return nil, wrapDBError("scan tile", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("active tiles by last update", rows.Err())
}
