package store

import "context"

// RegisterTileProject records that Project projectID now references
// tileID. This is used by out-of-scope administration flows (project
// registration); the engine only reads the junction table, but the
// operation lives in Store per spec.md §4.3.
func (s *Store) RegisterTileProject(ctx context.Context, tileID int64, projectID int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tile_project (tile_id, project_id) VALUES (?, ?)`, tileID, projectID)
	return wrapDBError("register tile project", err)
}

// UnregisterTileProject removes a Project's reference to a tile.
func (s *Store) UnregisterTileProject(ctx context.Context, tileID int64, projectID int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM tile_project WHERE tile_id = ? AND project_id = ?`, tileID, projectID)
	return wrapDBError("unregister tile project", err)
}
