package sqlite_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
	"github.com/warp/extra-hours/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTeacher(t *testing.T, store *sqlite.Store, admin generic.AdminID, teacherType extrahours.TeacherType) extrahours.Teacher {
	t.Helper()
	teacher, err := store.SaveTeacher(context.Background(), extrahours.Teacher{
		AdminID:       admin,
		FirstName:     "Amina",
		FamilyName:    "Belkacem",
		Email:         "amina@univ.dz",
		Type:          teacherType,
		AccountNumber: "0123456789 12",
	})
	require.NoError(t, err)
	return teacher
}

func seedMondayTD(t *testing.T, store *sqlite.Store, teacher extrahours.Teacher) extrahours.WeeklySession {
	t.Helper()
	ws, err := store.SaveSession(context.Background(), extrahours.WeeklySession{
		AdminID:      teacher.AdminID,
		TeacherID:    teacher.ID,
		DayOfWeek:    time.Monday,
		Start:        extrahours.MustClock("08:00"),
		End:          extrahours.MustClock("10:00"),
		Type:         extrahours.SessionTD,
		Module:       "Algorithms",
		Group:        "G2",
		AcademicYear: "2024/2025",
		Semester:     extrahours.SemesterOne,
	})
	require.NoError(t, err)
	return ws
}

func january() generic.Period {
	return generic.Period{
		Start: generic.NewTimePoint(2025, time.January, 6),
		End:   generic.NewTimePoint(2025, time.January, 20),
	}
}

func sheetRequest(teacherID generic.TeacherID) extrahours.SheetRequest {
	return extrahours.SheetRequest{
		TeacherID:    teacherID,
		Period:       january(),
		AcademicYear: "2024/2025",
		Rank:         "MAA",
		RankPrice:    generic.Hours(400),
	}
}

// =============================================================================
// CRUD
// =============================================================================

func TestStore_TeacherRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	hours := generic.Hours(4.5)
	saved, err := store.SaveTeacher(ctx, extrahours.Teacher{
		AdminID: 1, FirstName: "Karim", FamilyName: "Haddad", Type: extrahours.TeacherPermanent, HoursOutside: &hours,
	})
	require.NoError(t, err)

	loaded, err := store.Teacher(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Karim Haddad", loaded.FullName())
	require.NotNil(t, loaded.HoursOutside)
	assert.True(t, loaded.HoursOutside.Equal(hours))

	temp := seedTeacher(t, store, 2, extrahours.TeacherTemporary)
	loaded, err = store.Teacher(ctx, temp.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.HoursOutside)

	_, err = store.Teacher(ctx, 999)
	assert.True(t, generic.IsNotFound(err))

	mine, err := store.ListTeachers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, saved.ID, mine[0].ID)
}

func TestStore_SessionsBySnapshot(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 1, extrahours.TeacherTemporary)
	ws := seedMondayTD(t, store, teacher)

	sessions, err := store.WeeklySessions(ctx, teacher.ID, "2024/2025", extrahours.SemesterOne)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, time.Monday, sessions[0].DayOfWeek)
	assert.Equal(t, "08:00", sessions[0].Start.String())
	assertDecimal(t, "2", sessions[0].Duration().String())

	other, err := store.WeeklySessions(ctx, teacher.ID, "2024/2025", extrahours.SemesterTwo)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.DeleteSession(ctx, ws.ID))
	_, err = store.GetSession(ctx, ws.ID)
	assert.True(t, generic.IsNotFound(err))
	assert.True(t, generic.IsNotFound(store.DeleteSession(ctx, ws.ID)))
}

func TestStore_DuplicatesConflict(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	holiday := extrahours.Holiday{
		Description:  "Winter break",
		Period:       generic.Period{Start: generic.NewTimePoint(2024, time.December, 22), End: generic.NewTimePoint(2025, time.January, 4)},
		AcademicYear: "2024/2025",
	}
	_, err := store.SaveHoliday(ctx, holiday)
	require.NoError(t, err)
	_, err = store.SaveHoliday(ctx, holiday)
	assert.ErrorIs(t, err, generic.ErrConflict)

	rank := extrahours.Rank{Name: "MAA", Price: generic.Hours(400), FiscalYear: "2025"}
	_, err = store.SaveRank(ctx, rank)
	require.NoError(t, err)
	_, err = store.SaveRank(ctx, rank)
	assert.ErrorIs(t, err, generic.ErrConflict)

	p := extrahours.AcademicPeriod{Name: "January", Period: january()}
	_, err = store.SavePeriod(ctx, p)
	require.NoError(t, err)
	_, err = store.SavePeriod(ctx, p)
	assert.ErrorIs(t, err, generic.ErrConflict)

	holidays, err := store.ListHolidays(ctx, "2024/2025")
	require.NoError(t, err)
	assert.Len(t, holidays, 1)
	holidays, err = store.ListHolidays(ctx, "2025/2026")
	require.NoError(t, err)
	assert.Empty(t, holidays)
}

func TestStore_ToggleCatchUp(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 1, extrahours.TeacherTemporary)
	ws := seedMondayTD(t, store, teacher)

	absence, err := store.SaveAbsence(ctx, extrahours.Absence{
		TeacherID: teacher.ID, SessionID: ws.ID, Date: generic.NewTimePoint(2025, time.January, 13), Reason: "sick",
	})
	require.NoError(t, err)

	caughtUp, err := store.ToggleCatchUp(ctx, absence.ID)
	require.NoError(t, err)
	assert.True(t, caughtUp)

	caughtUp, err = store.ToggleCatchUp(ctx, absence.ID)
	require.NoError(t, err)
	assert.False(t, caughtUp)

	_, err = store.ToggleCatchUp(ctx, 999)
	assert.True(t, generic.IsNotFound(err))

	absences, err := store.ListAdminAbsences(ctx, 1)
	require.NoError(t, err)
	require.Len(t, absences, 1)
	assert.Equal(t, "sick", absences[0].Reason)
}

func TestStore_RankHistoryOrdered(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 1, extrahours.TeacherTemporary)

	require.NoError(t, store.SaveRankChange(ctx, extrahours.RankChange{TeacherID: teacher.ID, Rank: "MCB", StartingDate: generic.NewTimePoint(2025, time.February, 1)}))
	require.NoError(t, store.SaveRankChange(ctx, extrahours.RankChange{TeacherID: teacher.ID, Rank: "MAA", StartingDate: generic.NewTimePoint(2024, time.September, 1)}))

	history, err := store.RankHistory(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "MAA", history[0].Rank)

	rank, ok := extrahours.RankAt(history, january().Start)
	assert.True(t, ok)
	assert.Equal(t, "MAA", rank)
}

func TestStore_OwnerOf(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 7, extrahours.TeacherTemporary)
	ws := seedMondayTD(t, store, teacher)

	owner, err := store.OwnerOf(ctx, sqlite.KindTeacher, int64(teacher.ID))
	require.NoError(t, err)
	assert.Equal(t, generic.AdminID(7), owner)

	owner, err = store.OwnerOf(ctx, sqlite.KindSession, int64(ws.ID))
	require.NoError(t, err)
	assert.Equal(t, generic.AdminID(7), owner)

	_, err = store.OwnerOf(ctx, sqlite.KindSheet, 1)
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// SHEETS
// =============================================================================

func TestStore_SheetLifecycle(t *testing.T) {
	// GIVEN: A temporary teacher teaching 2h TD every Monday
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 1, extrahours.TeacherTemporary)
	ws := seedMondayTD(t, store, teacher)
	svc := extrahours.NewSheetService(store, nil)

	// WHEN: Creating the January sheet twice
	created, err := svc.CreateOrFetch(ctx, sheetRequest(teacher.ID))
	require.NoError(t, err)
	fetched, err := svc.CreateOrFetch(ctx, sheetRequest(teacher.ID))
	require.NoError(t, err)

	// THEN: One sheet, three days
	assert.Equal(t, extrahours.StatusCreated, created.Status)
	assert.Equal(t, extrahours.StatusExists, fetched.Status)
	assert.Equal(t, created.Sheet.ID, fetched.Sheet.ID)
	require.Len(t, fetched.Days, 3)
	assertDecimal(t, "6", fetched.Sheet.ExtraHoursNumber.String())
	assertDecimal(t, "2400", fetched.Sheet.AmountOfMoney.String())

	// WHEN: An absence is recorded and the sheet recalculated
	_, err = store.SaveAbsence(ctx, extrahours.Absence{TeacherID: teacher.ID, SessionID: ws.ID, Date: generic.NewTimePoint(2025, time.January, 13)})
	require.NoError(t, err)
	recalculated, err := svc.Recalculate(ctx, created.Sheet.ID, sheetRequest(0))
	require.NoError(t, err)

	// THEN: The stored days and totals are replaced together
	days, err := store.Days(ctx, created.Sheet.ID)
	require.NoError(t, err)
	assert.Len(t, days, 2)
	assertDecimal(t, "4", recalculated.Sheet.ExtraHoursNumber.String())

	stored, err := store.GetSheet(ctx, created.Sheet.ID)
	require.NoError(t, err)
	assertDecimal(t, "4", stored.ExtraHoursNumber.String())
	assertDecimal(t, "1600", stored.AmountOfMoney.String())

	sheets, err := store.ListAdminSheets(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, sheets, 1)
	sheets, err = store.ListAdminSheets(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, sheets)
}

func TestStore_CreateSheetUniquePerRange(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 1, extrahours.TeacherTemporary)

	sheet := extrahours.Sheet{TeacherID: teacher.ID, Period: january(), Rank: "MAA", CreatedAt: time.Now()}
	_, err := store.CreateSheet(ctx, sheet)
	require.NoError(t, err)

	_, err = store.CreateSheet(ctx, sheet)
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestStore_ResetClearsEverything(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	teacher := seedTeacher(t, store, 1, extrahours.TeacherTemporary)
	seedMondayTD(t, store, teacher)

	require.NoError(t, store.Reset(ctx))

	teachers, err := store.AllTeachers(ctx)
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

// =============================================================================
// TRANSACTION ROLLBACK
// =============================================================================

func TestRecalculate_RollsBackWhenDayInsertFails(t *testing.T) {
	// GIVEN: A database that fails on the first extra day insert
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := sqlite.NewFromDB(db)
	svc := extrahours.NewSheetService(store, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM sheets WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "date_from", "date_to", "rank", "rank_price", "extra_hours_number", "amount_of_money", "created_at"}).
			AddRow(1, 1, "2025-01-06", "2025-01-20", "MAA", "400", "6", "2400", "2025-01-21T00:00:00Z"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "admin_id", "first_name", "family_name", "email", "type", "hours_outside", "account_number", "created_at"}).
			AddRow(1, 1, "Amina", "Belkacem", "amina@univ.dz", "Temporary", nil, "", "2024-09-01T00:00:00Z"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE teacher_id = ? AND academic_year = ? AND semester = ? ORDER BY id")).
		WithArgs(int64(1), "2024/2025", "S1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "admin_id", "teacher_id", "day_of_week", "start_time", "end_time", "type", "module", "classroom", "group_number", "academic_year", "semester"}).
			AddRow(1, 1, 1, "Monday", "08:00", "10:00", "TD", "Algorithms", "", "G2", "2024/2025", "S1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM holidays WHERE academic_year = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "description", "date_from", "date_to", "academic_year"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM absences WHERE teacher_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "session_id", "date", "caught_up", "reason", "notes"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM extra_days WHERE sheet_id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO extra_days (sheet_id, date, day, number_of_hours)")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	// WHEN: Recalculating
	_, err = svc.Recalculate(context.Background(), 1, sheetRequest(0))

	// THEN: The error surfaces and the transaction is rolled back, never committed
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSheet_CorruptAmountIsAnError(t *testing.T) {
	// GIVEN: A sheet row whose amount is not a number
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := sqlite.NewFromDB(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sheets WHERE id = ?")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "date_from", "date_to", "rank", "rank_price", "extra_hours_number", "amount_of_money", "created_at"}).
			AddRow(4, 1, "2025-01-06", "2025-01-20", "MAA", "400", "6", "n/a", "2025-01-21T00:00:00Z"))

	// WHEN: Loading it
	sheet, err := store.GetSheet(context.Background(), 4)

	// THEN: The column is reported instead of read as zero
	require.Error(t, err)
	assert.Nil(t, sheet)
	assert.Contains(t, err.Error(), "amount_of_money")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func assertDecimal(t *testing.T, want, got string) {
	t.Helper()
	if !decimal.RequireFromString(want).Equal(decimal.RequireFromString(got)) {
		t.Errorf("expected %s, got %s", want, got)
	}
}
