/*
store.go - Collaborators the engine reads from and writes to

PURPOSE:
  Defines the interface between the sheet orchestration and persistence.
  The engine consumes read snapshots (timetable, holidays, absences,
  teacher) and writes sheets with their extra days.

KEY INTERFACES:
  TimetableProvider, HolidayProvider, AbsenceProvider, TeacherProvider:
                 Read snapshots
  SheetStore:    Sheet and extra-day persistence
  Repository:    Everything above
  TxRepository:  Repository with atomic multi-write support

ATOMICITY:
  Creating a sheet writes the sheet row and its days; recalculating deletes
  and re-inserts days and rewrites totals. Both run inside WithTx so a crash
  between the delete and the inserts leaves the previous state intact.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/memory/memory.go: In-memory for tests

SEE ALSO:
  - sheet.go: SheetService, the only writer
*/
package extrahours

import (
	"context"

	"github.com/warp/extra-hours/generic"
)

// TimetableProvider returns a teacher's weekly sessions for one academic
// year and semester.
type TimetableProvider interface {
	WeeklySessions(ctx context.Context, teacherID generic.TeacherID, academicYear string, semester Semester) ([]WeeklySession, error)
}

// HolidayProvider returns every holiday of an academic year.
type HolidayProvider interface {
	Holidays(ctx context.Context, academicYear string) ([]Holiday, error)
}

// AbsenceProvider returns every absence of a teacher, regardless of date.
type AbsenceProvider interface {
	Absences(ctx context.Context, teacherID generic.TeacherID) ([]Absence, error)
}

// TeacherProvider returns a teacher, or a *generic.NotFoundError.
type TeacherProvider interface {
	Teacher(ctx context.Context, id generic.TeacherID) (*Teacher, error)
}

// SheetStore persists sheets and their extra days.
type SheetStore interface {
	// FindSheet returns the sheet for (teacher, period), or nil when none exists.
	FindSheet(ctx context.Context, teacherID generic.TeacherID, period generic.Period) (*Sheet, error)

	// GetSheet returns a sheet by id, or a *generic.NotFoundError.
	GetSheet(ctx context.Context, id generic.SheetID) (*Sheet, error)

	// Days returns the extra days of a sheet ordered by date.
	Days(ctx context.Context, sheetID generic.SheetID) ([]ExtraDay, error)

	// CreateSheet inserts a sheet and returns it with its id set.
	CreateSheet(ctx context.Context, sheet Sheet) (Sheet, error)

	// ReplaceDays deletes every day of the sheet and inserts days, returning
	// them with ids and sheet id set.
	ReplaceDays(ctx context.Context, sheetID generic.SheetID, days []ExtraDay) ([]ExtraDay, error)

	// UpdateSheetTotals rewrites the computed columns of a sheet.
	UpdateSheetTotals(ctx context.Context, sheetID generic.SheetID, totals SheetTotals) error
}

// Repository is every collaborator the engine needs.
type Repository interface {
	TimetableProvider
	HolidayProvider
	AbsenceProvider
	TeacherProvider
	SheetStore
}

// TxRepository wraps Repository with transaction support.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
