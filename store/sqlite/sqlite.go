/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements extrahours.TxRepository (the engine's collaborators) plus the
  admin-facing CRUD used by the HTTP layer: teachers, weekly sessions,
  holidays, absences, ranks, rank history, academic periods and sheets.

INTERFACES IMPLEMENTED:
  extrahours.TimetableProvider, HolidayProvider, AbsenceProvider,
  TeacherProvider, SheetStore, TxRepository

KEY TABLES:
  teachers:      Teachers with type and contractual hours outside
  sessions:      Weekly timetable slots, tagged by academic year + semester
  holidays:      Inclusive date ranges per academic year
  absences:      Missed session occurrences (caught_up flag)
  ranks:         Pay grades with hourly price
  rank_changes:  Rank history per teacher
  periods:       Payroll periods
  sheets:        Extra-hours sheets, unique per (teacher_id, date_from, date_to)
  extra_days:    Per-date totals of a sheet (ON DELETE CASCADE)

TYPES ON DISK:
  Dates are TEXT "YYYY-MM-DD", decimals are TEXT (exact), clock times are
  TEXT "HH:MM", weekdays are English names.

CONCURRENCY:
  The pool is pinned to one connection: ":memory:" databases are
  per-connection in go-sqlite3, and SQLite only has one writer anyway.
  WithTx additionally holds a mutex so transactional writes never
  interleave.

USAGE:
  store, err := sqlite.New("./data/extrahours.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := extrahours.NewSheetService(store, logger)

SEE ALSO:
  - extrahours/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// Compile-time check that Store implements extrahours.TxRepository
var _ extrahours.TxRepository = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewFromDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an already opened database without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{queries: queries{db: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teachers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		admin_id INTEGER NOT NULL,
		first_name TEXT NOT NULL,
		family_name TEXT NOT NULL,
		email TEXT NOT NULL,
		type TEXT NOT NULL,
		hours_outside TEXT,
		account_number TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_teachers_admin ON teachers(admin_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		admin_id INTEGER NOT NULL,
		teacher_id INTEGER NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		day_of_week TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		type TEXT NOT NULL,
		module TEXT NOT NULL DEFAULT '',
		classroom TEXT NOT NULL DEFAULT '',
		group_number TEXT NOT NULL DEFAULT '',
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Timetable snapshot lookups (hot path of every sheet computation)
	CREATE INDEX IF NOT EXISTS idx_sessions_teacher_year_semester
		ON sessions(teacher_id, academic_year, semester);

	CREATE TABLE IF NOT EXISTS holidays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique ON holidays(date_from, date_to);
	CREATE INDEX IF NOT EXISTS idx_holidays_year ON holidays(academic_year);

	CREATE TABLE IF NOT EXISTS absences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		caught_up BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_absences_teacher ON absences(teacher_id);

	CREATE TABLE IF NOT EXISTS ranks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		fiscal_year TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ranks_unique ON ranks(name, fiscal_year, price);

	CREATE TABLE IF NOT EXISTS rank_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		rank TEXT NOT NULL,
		starting_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rank_changes_teacher ON rank_changes(teacher_id, starting_date);

	CREATE TABLE IF NOT EXISTS periods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_unique ON periods(date_from, date_to);

	CREATE TABLE IF NOT EXISTS sheets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		rank TEXT NOT NULL,
		rank_price TEXT NOT NULL,
		extra_hours_number TEXT NOT NULL,
		amount_of_money TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One sheet per teacher and range
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sheets_unique ON sheets(teacher_id, date_from, date_to);

	CREATE TABLE IF NOT EXISTS extra_days (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sheet_id INTEGER NOT NULL REFERENCES sheets(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		day TEXT NOT NULL,
		number_of_hours TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_extra_days_sheet ON extra_days(sheet_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(extrahours.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements extrahours.Repository against a querier.
type queries struct {
	db querier
}

// =============================================================================
// ENGINE READS (extrahours.Repository)
// =============================================================================

const teacherColumns = `id, admin_id, first_name, family_name, email, type, hours_outside, account_number, created_at`

// Teacher returns a teacher by id.
func (q *queries) Teacher(ctx context.Context, id generic.TeacherID) (*extrahours.Teacher, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+teacherColumns+" FROM teachers WHERE id = ?", id)
	t, err := scanTeacher(row)
	if err == sql.ErrNoRows {
		return nil, &generic.NotFoundError{Kind: "teacher", ID: int64(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load teacher: %w", err)
	}
	return &t, nil
}

const sessionColumns = `id, admin_id, teacher_id, day_of_week, start_time, end_time, type, module, classroom, group_number, academic_year, semester`

// WeeklySessions returns the timetable snapshot of a teacher.
func (q *queries) WeeklySessions(ctx context.Context, teacherID generic.TeacherID, academicYear string, semester extrahours.Semester) ([]extrahours.WeeklySession, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE teacher_id = ? AND academic_year = ? AND semester = ? ORDER BY id",
		teacherID, academicYear, string(semester))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []extrahours.WeeklySession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Holidays returns every holiday of an academic year.
func (q *queries) Holidays(ctx context.Context, academicYear string) ([]extrahours.Holiday, error) {
	return q.queryHolidays(ctx,
		"SELECT id, description, date_from, date_to, academic_year FROM holidays WHERE academic_year = ? ORDER BY date_from",
		academicYear)
}

func (q *queries) queryHolidays(ctx context.Context, query string, args ...any) ([]extrahours.Holiday, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []extrahours.Holiday
	for rows.Next() {
		var h extrahours.Holiday
		var from, to string
		if err := rows.Scan(&h.ID, &h.Description, &from, &to, &h.AcademicYear); err != nil {
			return nil, err
		}
		if h.Period, err = parsePeriod(from, to); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// Absences returns every absence of a teacher.
func (q *queries) Absences(ctx context.Context, teacherID generic.TeacherID) ([]extrahours.Absence, error) {
	return q.queryAbsences(ctx,
		"SELECT id, teacher_id, session_id, date, caught_up, reason, notes FROM absences WHERE teacher_id = ? ORDER BY date",
		teacherID)
}

func (q *queries) queryAbsences(ctx context.Context, query string, args ...any) ([]extrahours.Absence, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var absences []extrahours.Absence
	for rows.Next() {
		var a extrahours.Absence
		var date string
		if err := rows.Scan(&a.ID, &a.TeacherID, &a.SessionID, &date, &a.CaughtUp, &a.Reason, &a.Notes); err != nil {
			return nil, err
		}
		if a.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		absences = append(absences, a)
	}
	return absences, rows.Err()
}

// =============================================================================
// SHEETS (extrahours.SheetStore)
// =============================================================================

const sheetColumns = `id, teacher_id, date_from, date_to, rank, rank_price, extra_hours_number, amount_of_money, created_at`

// FindSheet returns the sheet for (teacher, period), or nil.
func (q *queries) FindSheet(ctx context.Context, teacherID generic.TeacherID, period generic.Period) (*extrahours.Sheet, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+sheetColumns+" FROM sheets WHERE teacher_id = ? AND date_from = ? AND date_to = ?",
		teacherID, period.Start.String(), period.End.String())
	sheet, err := scanSheet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// GetSheet returns a sheet by id.
func (q *queries) GetSheet(ctx context.Context, id generic.SheetID) (*extrahours.Sheet, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+sheetColumns+" FROM sheets WHERE id = ?", id)
	sheet, err := scanSheet(row)
	if err == sql.ErrNoRows {
		return nil, &generic.NotFoundError{Kind: "sheet", ID: int64(id)}
	}
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// Days returns the extra days of a sheet ordered by date.
func (q *queries) Days(ctx context.Context, sheetID generic.SheetID) ([]extrahours.ExtraDay, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, sheet_id, date, day, number_of_hours FROM extra_days WHERE sheet_id = ? ORDER BY date",
		sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := []extrahours.ExtraDay{}
	for rows.Next() {
		var d extrahours.ExtraDay
		var date, day, hours string
		if err := rows.Scan(&d.ID, &d.SheetID, &date, &day, &hours); err != nil {
			return nil, err
		}
		if d.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		if d.DayOfWeek, err = extrahours.ParseWeekday(day); err != nil {
			return nil, err
		}
		if d.TotalDuration, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("extra day %d: %w", d.ID, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// CreateSheet inserts a sheet.
func (q *queries) CreateSheet(ctx context.Context, sheet extrahours.Sheet) (extrahours.Sheet, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO sheets
		(teacher_id, date_from, date_to, rank, rank_price, extra_hours_number, amount_of_money, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sheet.TeacherID,
		sheet.Period.Start.String(),
		sheet.Period.End.String(),
		sheet.Rank,
		sheet.RankPrice.String(),
		sheet.ExtraHoursNumber.String(),
		sheet.AmountOfMoney.String(),
		sheet.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return extrahours.Sheet{}, fmt.Errorf("sheet for teacher %d %s: %w", sheet.TeacherID, sheet.Period, generic.ErrConflict)
		}
		return extrahours.Sheet{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.Sheet{}, err
	}
	sheet.ID = generic.SheetID(id)
	return sheet, nil
}

// ReplaceDays deletes a sheet's days and inserts the new ones. Callers run it
// inside WithTx so both steps commit together.
func (q *queries) ReplaceDays(ctx context.Context, sheetID generic.SheetID, days []extrahours.ExtraDay) ([]extrahours.ExtraDay, error) {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM extra_days WHERE sheet_id = ?", sheetID); err != nil {
		return nil, fmt.Errorf("failed to delete extra days: %w", err)
	}

	stored := make([]extrahours.ExtraDay, 0, len(days))
	for _, d := range days {
		res, err := q.db.ExecContext(ctx,
			"INSERT INTO extra_days (sheet_id, date, day, number_of_hours) VALUES (?, ?, ?, ?)",
			sheetID, d.Date.String(), d.DayOfWeek.String(), d.TotalDuration.String())
		if err != nil {
			return nil, fmt.Errorf("failed to insert extra day %s: %w", d.Date, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		d.ID = generic.ExtraDayID(id)
		d.SheetID = sheetID
		stored = append(stored, d)
	}
	return stored, nil
}

// UpdateSheetTotals rewrites the computed columns of a sheet.
func (q *queries) UpdateSheetTotals(ctx context.Context, sheetID generic.SheetID, t extrahours.SheetTotals) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sheets SET date_from = ?, date_to = ?, rank = ?, rank_price = ?,
			extra_hours_number = ?, amount_of_money = ?
		WHERE id = ?
	`,
		t.Period.Start.String(),
		t.Period.End.String(),
		t.Rank,
		t.RankPrice.String(),
		t.ExtraHoursNumber.String(),
		t.AmountOfMoney.String(),
		sheetID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("sheet range %s already used: %w", t.Period, generic.ErrConflict)
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{Kind: "sheet", ID: int64(sheetID)}
	}
	return nil
}

// =============================================================================
// TEACHERS
// =============================================================================

// SaveTeacher inserts a teacher and returns it with its id.
func (s *Store) SaveTeacher(ctx context.Context, t extrahours.Teacher) (extrahours.Teacher, error) {
	var hoursOutside sql.NullString
	if t.HoursOutside != nil {
		hoursOutside = sql.NullString{String: t.HoursOutside.String(), Valid: true}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO teachers (admin_id, first_name, family_name, email, type, hours_outside, account_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.AdminID, t.FirstName, t.FamilyName, t.Email, string(t.Type), hoursOutside, t.AccountNumber,
		t.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return extrahours.Teacher{}, fmt.Errorf("failed to save teacher: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.Teacher{}, err
	}
	t.ID = generic.TeacherID(id)
	return t, nil
}

// ListTeachers returns the teachers of an admin.
func (s *Store) ListTeachers(ctx context.Context, adminID generic.AdminID) ([]extrahours.Teacher, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+teacherColumns+" FROM teachers WHERE admin_id = ? ORDER BY family_name, first_name", adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teachers := []extrahours.Teacher{}
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

// AllTeachers returns every teacher of every admin.
func (s *Store) AllTeachers(ctx context.Context) ([]extrahours.Teacher, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+teacherColumns+" FROM teachers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []extrahours.Teacher
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

// =============================================================================
// SESSIONS
// =============================================================================

// SaveSession inserts a weekly session.
func (s *Store) SaveSession(ctx context.Context, ws extrahours.WeeklySession) (extrahours.WeeklySession, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (admin_id, teacher_id, day_of_week, start_time, end_time, type, module,
			classroom, group_number, academic_year, semester, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ws.AdminID, ws.TeacherID, ws.DayOfWeek.String(), ws.Start.String(), ws.End.String(),
		string(ws.Type), ws.Module, ws.Classroom, ws.Group, ws.AcademicYear, string(ws.Semester),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return extrahours.WeeklySession{}, fmt.Errorf("failed to save session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.WeeklySession{}, err
	}
	ws.ID = generic.SessionID(id)
	return ws, nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id generic.SessionID) (*extrahours.WeeklySession, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &generic.NotFoundError{Kind: "session", ID: int64(id)}
	}
	ws, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// DeleteSession removes a session and, by cascade, its absences.
func (s *Store) DeleteSession(ctx context.Context, id generic.SessionID) error {
	return s.deleteByID(ctx, "sessions", "session", int64(id))
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday inserts a holiday. The same range can't be stored twice.
func (s *Store) SaveHoliday(ctx context.Context, h extrahours.Holiday) (extrahours.Holiday, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (description, date_from, date_to, academic_year, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, h.Description, h.Period.Start.String(), h.Period.End.String(), h.AcademicYear,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return extrahours.Holiday{}, fmt.Errorf("holiday %s: %w", h.Period, generic.ErrConflict)
		}
		return extrahours.Holiday{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.Holiday{}, err
	}
	h.ID = generic.HolidayID(id)
	return h, nil
}

// ListHolidays returns the holidays of an academic year, or all of them when
// academicYear is empty.
func (s *Store) ListHolidays(ctx context.Context, academicYear string) ([]extrahours.Holiday, error) {
	if academicYear != "" {
		return s.Holidays(ctx, academicYear)
	}
	return s.queryHolidays(ctx,
		"SELECT id, description, date_from, date_to, academic_year FROM holidays ORDER BY date_from")
}

func (s *Store) DeleteHoliday(ctx context.Context, id generic.HolidayID) error {
	return s.deleteByID(ctx, "holidays", "holiday", int64(id))
}

// =============================================================================
// ABSENCES
// =============================================================================

// SaveAbsence inserts an absence (not caught up).
func (s *Store) SaveAbsence(ctx context.Context, a extrahours.Absence) (extrahours.Absence, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO absences (teacher_id, session_id, date, caught_up, reason, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.TeacherID, a.SessionID, a.Date.String(), a.CaughtUp, a.Reason, a.Notes,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return extrahours.Absence{}, fmt.Errorf("failed to save absence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.Absence{}, err
	}
	a.ID = generic.AbsenceID(id)
	return a, nil
}

// ListAdminAbsences returns the absences of every teacher of an admin.
func (s *Store) ListAdminAbsences(ctx context.Context, adminID generic.AdminID) ([]extrahours.Absence, error) {
	return s.queryAbsences(ctx, `
		SELECT a.id, a.teacher_id, a.session_id, a.date, a.caught_up, a.reason, a.notes
		FROM absences a JOIN teachers t ON a.teacher_id = t.id
		WHERE t.admin_id = ?
		ORDER BY a.date
	`, adminID)
}

// ToggleCatchUp flips the caught_up flag of an absence and returns the new value.
func (s *Store) ToggleCatchUp(ctx context.Context, id generic.AbsenceID) (bool, error) {
	var caughtUp bool
	err := s.WithTx(ctx, func(repo extrahours.Repository) error {
		q := repo.(*queries)
		err := q.db.QueryRowContext(ctx, "SELECT caught_up FROM absences WHERE id = ?", id).Scan(&caughtUp)
		if err == sql.ErrNoRows {
			return &generic.NotFoundError{Kind: "absence", ID: int64(id)}
		}
		if err != nil {
			return err
		}
		caughtUp = !caughtUp
		_, err = q.db.ExecContext(ctx, "UPDATE absences SET caught_up = ?, updated_at = ? WHERE id = ?",
			caughtUp, time.Now().UTC().Format(time.RFC3339), id)
		return err
	})
	return caughtUp, err
}

// =============================================================================
// RANKS
// =============================================================================

// SaveRank inserts a rank. The same (name, fiscal year, price) can't be
// stored twice.
func (s *Store) SaveRank(ctx context.Context, r extrahours.Rank) (extrahours.Rank, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO ranks (name, price, fiscal_year) VALUES (?, ?, ?)",
		r.Name, r.Price.String(), r.FiscalYear)
	if err != nil {
		if isUniqueConstraintError(err) {
			return extrahours.Rank{}, fmt.Errorf("rank %s: %w", r.Name, generic.ErrConflict)
		}
		return extrahours.Rank{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.Rank{}, err
	}
	r.ID = generic.RankID(id)
	return r, nil
}

// ListRanks returns the rank catalogue.
func (s *Store) ListRanks(ctx context.Context) ([]extrahours.Rank, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, price, fiscal_year FROM ranks ORDER BY fiscal_year, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranks := []extrahours.Rank{}
	for rows.Next() {
		var r extrahours.Rank
		var price string
		if err := rows.Scan(&r.ID, &r.Name, &price, &r.FiscalYear); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("rank %d price: %w", r.ID, err)
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}

// SaveRankChange records a teacher's new rank.
func (s *Store) SaveRankChange(ctx context.Context, c extrahours.RankChange) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rank_changes (teacher_id, rank, starting_date, created_at) VALUES (?, ?, ?, ?)",
		c.TeacherID, c.Rank, c.StartingDate.String(), time.Now().UTC().Format(time.RFC3339))
	return err
}

// RankHistory returns a teacher's rank changes ordered by starting date.
func (s *Store) RankHistory(ctx context.Context, teacherID generic.TeacherID) ([]extrahours.RankChange, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT teacher_id, rank, starting_date FROM rank_changes WHERE teacher_id = ? ORDER BY starting_date",
		teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []extrahours.RankChange{}
	for rows.Next() {
		var c extrahours.RankChange
		var starting string
		if err := rows.Scan(&c.TeacherID, &c.Rank, &starting); err != nil {
			return nil, err
		}
		if c.StartingDate, err = generic.ParseDate(starting); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

// =============================================================================
// PERIODS
// =============================================================================

// SavePeriod inserts a payroll period. The same range can't be stored twice.
func (s *Store) SavePeriod(ctx context.Context, p extrahours.AcademicPeriod) (extrahours.AcademicPeriod, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO periods (name, date_from, date_to) VALUES (?, ?, ?)",
		p.Name, p.Period.Start.String(), p.Period.End.String())
	if err != nil {
		if isUniqueConstraintError(err) {
			return extrahours.AcademicPeriod{}, fmt.Errorf("period %s: %w", p.Period, generic.ErrConflict)
		}
		return extrahours.AcademicPeriod{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return extrahours.AcademicPeriod{}, err
	}
	p.ID = generic.PeriodID(id)
	return p, nil
}

// ListPeriods returns every payroll period ordered by start.
func (s *Store) ListPeriods(ctx context.Context) ([]extrahours.AcademicPeriod, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, date_from, date_to FROM periods ORDER BY date_from")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	periods := []extrahours.AcademicPeriod{}
	for rows.Next() {
		var p extrahours.AcademicPeriod
		var from, to string
		if err := rows.Scan(&p.ID, &p.Name, &from, &to); err != nil {
			return nil, err
		}
		if p.Period, err = parsePeriod(from, to); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// SHEET LISTING
// =============================================================================

// ListAdminSheets returns the sheets of every teacher of an admin.
func (s *Store) ListAdminSheets(ctx context.Context, adminID generic.AdminID) ([]extrahours.Sheet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.teacher_id, s.date_from, s.date_to, s.rank, s.rank_price,
		       s.extra_hours_number, s.amount_of_money, s.created_at
		FROM sheets s JOIN teachers t ON s.teacher_id = t.id
		WHERE t.admin_id = ?
		ORDER BY s.date_from, s.id
	`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := []extrahours.Sheet{}
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

// =============================================================================
// STATISTICS
// =============================================================================

// Statistics summarizes an admin's teachers, sheets and absences over window.
// Holidays are shared, so the next holiday is the same for every admin.
func (s *Store) Statistics(ctx context.Context, adminID generic.AdminID, window generic.Period, today generic.TimePoint) (extrahours.Statistics, error) {
	stats := extrahours.Statistics{TotalAmount: decimal.Zero}

	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM teachers WHERE admin_id = ? GROUP BY type", adminID)
	if err != nil {
		return stats, fmt.Errorf("failed to count teachers: %w", err)
	}
	for rows.Next() {
		var teacherType string
		var n int
		if err := rows.Scan(&teacherType, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.Teachers.Total += n
		switch extrahours.TeacherType(teacherType) {
		case extrahours.TeacherPermanent:
			stats.Teachers.Permanent = n
		case extrahours.TeacherTemporary:
			stats.Teachers.Temporary = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	// Amounts are stored as decimal text, summed here rather than in SQL.
	rows, err = s.db.QueryContext(ctx, `
		SELECT s.id, s.amount_of_money
		FROM sheets s JOIN teachers t ON s.teacher_id = t.id
		WHERE t.admin_id = ? AND s.date_from >= ? AND s.date_to <= ?
	`, adminID, window.Start.String(), window.End.String())
	if err != nil {
		return stats, fmt.Errorf("failed to sum sheets: %w", err)
	}
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return stats, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			rows.Close()
			return stats, fmt.Errorf("sheet %d amount_of_money: %w", id, err)
		}
		stats.TotalAmount = stats.TotalAmount.Add(amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT rc.rank, COUNT(DISTINCT rc.teacher_id) AS teachers
		FROM rank_changes rc
		JOIN teachers t ON rc.teacher_id = t.id
		JOIN (
			SELECT teacher_id, MAX(starting_date) AS latest
			FROM rank_changes
			WHERE starting_date <= ?
			GROUP BY teacher_id
		) l ON l.teacher_id = rc.teacher_id AND l.latest = rc.starting_date
		WHERE t.admin_id = ?
		GROUP BY rc.rank
		ORDER BY teachers DESC, rc.rank
	`, today.String(), adminID)
	if err != nil {
		return stats, fmt.Errorf("failed to count ranks: %w", err)
	}
	stats.TeachersByRank = []extrahours.RankCount{}
	for rows.Next() {
		var rc extrahours.RankCount
		if err := rows.Scan(&rc.Rank, &rc.Teachers); err != nil {
			rows.Close()
			return stats, err
		}
		stats.TeachersByRank = append(stats.TeachersByRank, rc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', a.date) AS month, COUNT(*)
		FROM absences a JOIN teachers t ON a.teacher_id = t.id
		WHERE t.admin_id = ? AND a.date BETWEEN ? AND ?
		GROUP BY month
		ORDER BY month
	`, adminID, window.Start.String(), window.End.String())
	if err != nil {
		return stats, fmt.Errorf("failed to count absences: %w", err)
	}
	stats.AbsencesByMonth = []extrahours.MonthCount{}
	for rows.Next() {
		var mc extrahours.MonthCount
		if err := rows.Scan(&mc.Month, &mc.Absences); err != nil {
			rows.Close()
			return stats, err
		}
		stats.AbsencesByMonth = append(stats.AbsencesByMonth, mc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	next, err := s.queryHolidays(ctx,
		"SELECT id, description, date_from, date_to, academic_year FROM holidays WHERE date_from > ? ORDER BY date_from LIMIT 1",
		today.String())
	if err != nil {
		return stats, fmt.Errorf("failed to find next holiday: %w", err)
	}
	if len(next) > 0 {
		stats.NextHoliday = &next[0]
	}
	return stats, nil
}

// =============================================================================
// OWNERSHIP
// =============================================================================

// ResourceKind names an admin-owned resource.
type ResourceKind string

const (
	KindTeacher ResourceKind = "teacher"
	KindSession ResourceKind = "session"
	KindAbsence ResourceKind = "absence"
	KindSheet   ResourceKind = "sheet"
)

var ownerQueries = map[ResourceKind]string{
	KindTeacher: "SELECT admin_id FROM teachers WHERE id = ?",
	KindSession: "SELECT admin_id FROM sessions WHERE id = ?",
	KindAbsence: "SELECT t.admin_id FROM absences a JOIN teachers t ON a.teacher_id = t.id WHERE a.id = ?",
	KindSheet:   "SELECT t.admin_id FROM sheets s JOIN teachers t ON s.teacher_id = t.id WHERE s.id = ?",
}

// OwnerOf returns the admin owning a resource.
func (s *Store) OwnerOf(ctx context.Context, kind ResourceKind, id int64) (generic.AdminID, error) {
	query, ok := ownerQueries[kind]
	if !ok {
		return 0, fmt.Errorf("unknown resource kind %q", kind)
	}
	var owner generic.AdminID
	err := s.db.QueryRowContext(ctx, query, id).Scan(&owner)
	if err == sql.ErrNoRows {
		return 0, &generic.NotFoundError{Kind: string(kind), ID: id}
	}
	return owner, err
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(repo extrahours.Repository) error {
		q := repo.(*queries)
		for _, table := range []string{"extra_days", "sheets", "absences", "rank_changes", "sessions", "teachers", "holidays", "ranks", "periods"} {
			if _, err := q.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Store) deleteByID(ctx context.Context, table, kind string, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanTeacher(row scanner) (extrahours.Teacher, error) {
	var t extrahours.Teacher
	var teacherType, createdAt string
	var hoursOutside sql.NullString
	if err := row.Scan(&t.ID, &t.AdminID, &t.FirstName, &t.FamilyName, &t.Email, &teacherType,
		&hoursOutside, &t.AccountNumber, &createdAt); err != nil {
		return t, err
	}
	t.Type = extrahours.TeacherType(teacherType)
	if hoursOutside.Valid {
		h, err := decimal.NewFromString(hoursOutside.String)
		if err != nil {
			return t, fmt.Errorf("teacher %d hours_outside: %w", t.ID, err)
		}
		t.HoursOutside = &h
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return t, nil
}

func scanSession(row scanner) (extrahours.WeeklySession, error) {
	var ws extrahours.WeeklySession
	var day, start, end, sessionType, semester string
	if err := row.Scan(&ws.ID, &ws.AdminID, &ws.TeacherID, &day, &start, &end, &sessionType,
		&ws.Module, &ws.Classroom, &ws.Group, &ws.AcademicYear, &semester); err != nil {
		return ws, err
	}
	var err error
	if ws.DayOfWeek, err = extrahours.ParseWeekday(day); err != nil {
		return ws, err
	}
	if ws.Start, err = extrahours.ParseClock(start); err != nil {
		return ws, err
	}
	if ws.End, err = extrahours.ParseClock(end); err != nil {
		return ws, err
	}
	ws.Type = extrahours.SessionType(sessionType)
	ws.Semester = extrahours.Semester(semester)
	return ws, nil
}

func scanSheet(row scanner) (extrahours.Sheet, error) {
	var sh extrahours.Sheet
	var from, to, price, hours, amount, createdAt string
	if err := row.Scan(&sh.ID, &sh.TeacherID, &from, &to, &sh.Rank, &price, &hours, &amount, &createdAt); err != nil {
		return sh, err
	}
	var err error
	if sh.Period, err = parsePeriod(from, to); err != nil {
		return sh, err
	}
	if sh.RankPrice, err = decimal.NewFromString(price); err != nil {
		return sh, fmt.Errorf("sheet %d rank_price: %w", sh.ID, err)
	}
	if sh.ExtraHoursNumber, err = decimal.NewFromString(hours); err != nil {
		return sh, fmt.Errorf("sheet %d extra_hours_number: %w", sh.ID, err)
	}
	if sh.AmountOfMoney, err = decimal.NewFromString(amount); err != nil {
		return sh, fmt.Errorf("sheet %d amount_of_money: %w", sh.ID, err)
	}
	sh.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return sh, nil
}

func parsePeriod(from, to string) (generic.Period, error) {
	start, err := generic.ParseDate(from)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := generic.ParseDate(to)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.Period{Start: start, End: end}, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
