package store

import "github.com/pixelhawk/hawk/internal/geometry"

// ProjectState is an ordered finite set stored as a small integer and
// compared by identity (spec.md §9 "Sum types").
type ProjectState int

const (
	ProjectActive ProjectState = iota
	ProjectPassive
	ProjectInactive
)

func (s ProjectState) String() string {
	switch s {
	case ProjectActive:
		return "ACTIVE"
	case ProjectPassive:
		return "PASSIVE"
	case ProjectInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// DiffStatus is the per-event completion classification recorded on a
// HistoryChange row.
type DiffStatus int

const (
	NotStarted DiffStatus = iota
	InProgress
	Complete
)

func (s DiffStatus) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case InProgress:
		return "IN_PROGRESS"
	case Complete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Streak classifies the recent trend of a Project's diff events.
type Streak string

const (
	StreakNone     Streak = ""
	StreakProgress Streak = "progress"
	StreakRegress  Streak = "regress"
	StreakMixed    Streak = "mixed"
)

// BurningHeat is the sentinel heat value for a tile that has never been
// successfully fetched (spec.md §4.4).
const BurningHeat = 999

// InactiveHeat means no ACTIVE project references the tile.
const InactiveHeat = 0

// Person is a registered user of the tracker. Created by out-of-scope
// administration; the engine only reads and recomputes its cached counts.
type Person struct {
	ID                  int
	DisplayName         string
	ChatIdentity        string // empty if none
	AccessMask          int64
	WatchedTilesCount   int
	ActiveProjectsCount int
}

// Project is a target image a Person wants painted at a canvas
// rectangle, along with its accumulated completion statistics.
type Project struct {
	ID       int
	OwnerID  int
	Name     string
	State    ProjectState
	Rect     geometry.Rectangle
	FirstSeen int64 // epoch seconds

	MaxCompletionPercent float64
	TotalProgress        int64
	TotalRegress         int64
	LargestRegressPixels int64
	LargestRegressAt     int64 // epoch seconds, 0 if never
	Streak               Streak
	LastLogMessage       string
}

// ProjectStatsDelta carries the mutations a single Differ commit applies
// to a Project's accumulated statistics (spec.md §4.6 step 6).
type ProjectStatsDelta struct {
	DeltaProgress     int64
	DeltaRegress      int64
	CompletionPercent float64
	Status            DiffStatus
	Timestamp         int64
	PixelsRemaining   int64
}

// Tile is one cell of the canvas grid's scheduling and cache metadata.
type Tile struct {
	ID          int64 // x·10000 + y
	X, Y        int
	Heat        int
	LastChecked int64 // epoch seconds, 0 = never checked
	LastUpdate  int64 // epoch seconds, from upstream Last-Modified
	ETag        string
}

// HistoryChange is one append-only diff event for a Project.
type HistoryChange struct {
	ID                int64
	ProjectID         int
	Timestamp         int64
	Status            DiffStatus
	PixelsRemaining   int64
	CompletionPercent float64
	DeltaProgress     int64
	DeltaRegress      int64
}
