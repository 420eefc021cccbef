/*
handlers.go - HTTP API handlers for the extra-hours payroll service

PURPOSE:
  Exposes the extra-hours engine via REST API. Handles HTTP request/response,
  JSON serialization, ownership checks, and delegates to the engine.

ENDPOINTS:
  Teachers:
    GET    /api/teachers                      List the admin's teachers
    POST   /api/teachers                      Create teacher
    GET    /api/teachers/{id}                 Get teacher
    GET    /api/teachers/{id}/timetable       Weekly sessions (?academic_year=&semester=)
    GET    /api/teachers/{id}/ranks           Rank history
    POST   /api/teachers/{id}/ranks           Record a rank change

  Timetable:
    POST   /api/sessions                      Add weekly session
    DELETE /api/sessions/{id}                 Remove weekly session

  Calendar:
    GET    /api/holidays                      List holidays (?academic_year=)
    POST   /api/holidays                      Create holiday (409 on same range)
    DELETE /api/holidays/{id}                 Delete holiday
    GET    /api/absences                      List absences (?teacher_id=)
    POST   /api/absences                      Record absence
    PATCH  /api/absences/{id}/catch-up        Toggle caught_up

  Catalogue:
    GET    /api/ranks, POST /api/ranks        Rank catalogue (409 on duplicate)
    GET    /api/periods, POST /api/periods    Payroll periods (409 on duplicate)

  Sheets:
    POST   /api/sheets                        Create-or-fetch (201 CREATED / 200 EXISTS)
    GET    /api/sheets/{id}                   Get sheet with days
    PUT    /api/sheets/{id}                   Recalculate
    POST   /api/sheets/preview                Compute without persisting
    GET    /api/sheets/totals                 Payroll deductions (?type=&category=&from=&to=)

OWNERSHIP:
  Every route under /api requires X-Admin-ID (401 when missing). Teachers,
  sessions, absences and sheets belong to an admin; touching another admin's
  resource is 403, an unknown one 404. Holidays, ranks and periods are shared.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Resource belongs to another admin
  - 404: Resource not found
  - 409: Conflict (duplicate holiday, rank, period)
  - 500: Internal errors, engine invariant violations

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - extrahours/sheet.go: SheetService
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
	"github.com/warp/extra-hours/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Sheets  *extrahours.SheetService
	Metrics *Metrics
	logger  *zap.Logger
	today   func() generic.TimePoint

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. A nil metrics gets unregistered
// collectors and a nil logger a no-op one.
func NewHandler(store *sqlite.Store, sheets *extrahours.SheetService, metrics *Metrics, logger *zap.Logger) *Handler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Store: store, Sheets: sheets, Metrics: metrics, logger: logger, today: generic.Today}
}

// =============================================================================
// ADMIN IDENTITY AND OWNERSHIP
// =============================================================================

type ctxKey int

const adminKey ctxKey = iota

// AdminHeader carries the authenticated admin id set by the upstream gateway.
const AdminHeader = "X-Admin-ID"

// RequireAdmin rejects requests without a valid X-Admin-ID header.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(AdminHeader), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "Missing or invalid "+AdminHeader+" header", nil)
			return
		}
		ctx := context.WithValue(r.Context(), adminKey, generic.AdminID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFrom(ctx context.Context) generic.AdminID {
	id, _ := ctx.Value(adminKey).(generic.AdminID)
	return id
}

// authorize checks that the resource exists and belongs to the calling admin.
func (h *Handler) authorize(ctx context.Context, kind sqlite.ResourceKind, id int64) error {
	owner, err := h.Store.OwnerOf(ctx, kind, id)
	if err != nil {
		return err
	}
	if owner != adminFrom(ctx) {
		return fmt.Errorf("%s %d: %w", kind, id, generic.ErrForbidden)
	}
	return nil
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

// ListTeachers returns the admin's teachers.
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context(), adminFrom(r.Context()))
	if err != nil {
		h.fail(w, r, "Failed to list teachers", err)
		return
	}

	dtos := make([]TeacherDTO, len(teachers))
	for i, t := range teachers {
		dtos[i] = toTeacherDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTeacher adds a teacher to the admin's institution.
// POST /api/teachers
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	teacher := extrahours.Teacher{
		AdminID:       adminFrom(r.Context()),
		FirstName:     req.FirstName,
		FamilyName:    req.FamilyName,
		Email:         req.Email,
		Type:          extrahours.TeacherType(req.Type),
		AccountNumber: req.AccountNumber,
	}
	if req.HoursOutside != nil {
		hours := decimal.NewFromFloat(*req.HoursOutside)
		teacher.HoursOutside = &hours
	}

	saved, err := h.Store.SaveTeacher(r.Context(), teacher)
	if err != nil {
		h.fail(w, r, "Failed to create teacher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeacherDTO(saved))
}

// GetTeacher returns a single teacher.
// GET /api/teachers/{id}
func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindTeacher)
	if !ok {
		return
	}

	teacher, err := h.Store.Teacher(r.Context(), generic.TeacherID(id))
	if err != nil {
		h.fail(w, r, "Failed to load teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, toTeacherDTO(*teacher))
}

// GetTimetable returns a teacher's weekly sessions for one academic year and
// semester. The semester defaults to the one containing today.
// GET /api/teachers/{id}/timetable?academic_year=2024/2025&semester=S1
func (h *Handler) GetTimetable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindTeacher)
	if !ok {
		return
	}

	today := generic.Today()
	year := r.URL.Query().Get("academic_year")
	if year == "" {
		year = extrahours.AcademicYearOf(today)
	}
	semester := extrahours.Semester(r.URL.Query().Get("semester"))
	switch semester {
	case "":
		semester = extrahours.SemesterFor(today)
	case extrahours.SemesterOne, extrahours.SemesterTwo:
	default:
		h.fail(w, r, "Invalid semester", generic.NewValidationError("semester", "must be S1 or S2"))
		return
	}

	sessions, err := h.Store.WeeklySessions(r.Context(), generic.TeacherID(id), year, semester)
	if err != nil {
		h.fail(w, r, "Failed to load timetable", err)
		return
	}
	ordered, err := extrahours.SortSessions(sessions)
	if err != nil {
		h.fail(w, r, "Failed to order timetable", err)
		return
	}

	dtos := make([]SessionDTO, len(ordered))
	for i, s := range ordered {
		dtos[i] = toSessionDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"academic_year": year,
		"semester":      semester,
		"sessions":      dtos,
	})
}

// ListTeacherRanks returns a teacher's rank history.
// GET /api/teachers/{id}/ranks
func (h *Handler) ListTeacherRanks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindTeacher)
	if !ok {
		return
	}

	history, err := h.Store.RankHistory(r.Context(), generic.TeacherID(id))
	if err != nil {
		h.fail(w, r, "Failed to load rank history", err)
		return
	}

	dtos := make([]RankChangeDTO, len(history))
	for i, c := range history {
		dtos[i] = RankChangeDTO{TeacherID: int64(c.TeacherID), Rank: c.Rank, StartingDate: c.StartingDate.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTeacherRank records that a teacher holds a rank from a date on.
// POST /api/teachers/{id}/ranks
func (h *Handler) CreateTeacherRank(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindTeacher)
	if !ok {
		return
	}

	var req CreateRankChangeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	starting, err := parseDate("starting_date", req.StartingDate)
	if err != nil {
		h.fail(w, r, "Invalid starting date", err)
		return
	}

	change := extrahours.RankChange{TeacherID: generic.TeacherID(id), Rank: req.Rank, StartingDate: starting}
	if err := h.Store.SaveRankChange(r.Context(), change); err != nil {
		h.fail(w, r, "Failed to record rank change", err)
		return
	}
	writeJSON(w, http.StatusCreated, RankChangeDTO{TeacherID: id, Rank: change.Rank, StartingDate: starting.String()})
}

// ListTeacherPeriods returns the ended payroll periods of an academic year,
// cut at the teacher's rank changes.
// GET /api/teachers/{id}/periods?academic_year=2024/2025
func (h *Handler) ListTeacherPeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindTeacher)
	if !ok {
		return
	}
	ctx := r.Context()

	year, err := extrahours.AcademicYearPeriod(r.URL.Query().Get("academic_year"))
	if err != nil {
		h.fail(w, r, "Invalid academic year", err)
		return
	}
	periods, err := h.Store.ListPeriods(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list periods", err)
		return
	}
	history, err := h.Store.RankHistory(ctx, generic.TeacherID(id))
	if err != nil {
		h.fail(w, r, "Failed to load rank history", err)
		return
	}

	today := h.today()
	dtos := []TeacherPeriodDTO{}
	for _, p := range periods {
		if !year.Contains(p.Period.Start) || !year.Contains(p.Period.End) {
			continue
		}
		for _, piece := range extrahours.SplitByRank(p.Period, history) {
			if piece.Period.End.Before(today) {
				dtos = append(dtos, toTeacherPeriodDTO(piece))
			}
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TIMETABLE HANDLERS
// =============================================================================

// CreateSession adds a weekly session to a teacher's timetable.
// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if err := h.authorize(ctx, sqlite.KindTeacher, req.TeacherID); err != nil {
		h.fail(w, r, "Teacher not accessible", err)
		return
	}

	session, err := sessionFromRequest(req)
	if err != nil {
		h.fail(w, r, "Invalid session", err)
		return
	}
	session.AdminID = adminFrom(ctx)

	saved, err := h.Store.SaveSession(ctx, session)
	if err != nil {
		h.fail(w, r, "Failed to create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(saved))
}

func sessionFromRequest(req CreateSessionRequest) (extrahours.WeeklySession, error) {
	day, err := extrahours.ParseWeekday(req.DayOfWeek)
	if err != nil {
		return extrahours.WeeklySession{}, generic.NewValidationError("day_of_week", err.Error())
	}
	start, err := extrahours.ParseClock(req.StartTime)
	if err != nil {
		return extrahours.WeeklySession{}, generic.NewValidationError("start_time", err.Error())
	}
	end, err := extrahours.ParseClock(req.EndTime)
	if err != nil {
		return extrahours.WeeklySession{}, generic.NewValidationError("end_time", err.Error())
	}
	if end <= start {
		return extrahours.WeeklySession{}, generic.NewValidationError("end_time", "must be after start_time")
	}
	return extrahours.WeeklySession{
		TeacherID:    generic.TeacherID(req.TeacherID),
		DayOfWeek:    day,
		Start:        start,
		End:          end,
		Type:         extrahours.SessionType(req.Type),
		Module:       req.Module,
		Classroom:    req.Classroom,
		Group:        req.Group,
		AcademicYear: req.AcademicYear,
		Semester:     extrahours.Semester(req.Semester),
	}, nil
}

// DeleteSession removes a weekly session.
// DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindSession)
	if !ok {
		return
	}

	if err := h.Store.DeleteSession(r.Context(), generic.SessionID(id)); err != nil {
		h.fail(w, r, "Failed to delete session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays, optionally for one academic year.
// GET /api/holidays?academic_year=2024/2025
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context(), r.URL.Query().Get("academic_year"))
	if err != nil {
		h.fail(w, r, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a holiday range. The range must lie inside its
// academic year.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	period, err := parsePeriod(req.From, req.To)
	if err != nil {
		h.fail(w, r, "Invalid holiday range", err)
		return
	}
	year, err := extrahours.AcademicYearPeriod(req.AcademicYear)
	if err != nil {
		h.fail(w, r, "Invalid academic year", err)
		return
	}
	if !year.Contains(period.Start) || !year.Contains(period.End) {
		h.fail(w, r, "Invalid holiday range", generic.NewValidationError("from",
			fmt.Sprintf("%s is outside academic year %s", period, req.AcademicYear)))
		return
	}

	saved, err := h.Store.SaveHoliday(r.Context(), extrahours.Holiday{
		Description:  req.Description,
		Period:       period,
		AcademicYear: req.AcademicYear,
	})
	if err != nil {
		h.fail(w, r, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(saved))
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid holiday id", err)
		return
	}

	if err := h.Store.DeleteHoliday(r.Context(), generic.HolidayID(id)); err != nil {
		h.fail(w, r, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

// ListAbsences returns the absences of one teacher, or of all the admin's
// teachers when teacher_id is omitted.
// GET /api/absences?teacher_id=7
func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		absences []extrahours.Absence
		err      error
	)
	if raw := r.URL.Query().Get("teacher_id"); raw != "" {
		teacherID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			h.fail(w, r, "Invalid teacher id", generic.NewValidationError("teacher_id", "must be an integer"))
			return
		}
		if err := h.authorize(ctx, sqlite.KindTeacher, teacherID); err != nil {
			h.fail(w, r, "Teacher not accessible", err)
			return
		}
		absences, err = h.Store.Absences(ctx, generic.TeacherID(teacherID))
	} else {
		absences, err = h.Store.ListAdminAbsences(ctx, adminFrom(ctx))
	}
	if err != nil {
		h.fail(w, r, "Failed to list absences", err)
		return
	}

	dtos := make([]AbsenceDTO, len(absences))
	for i, a := range absences {
		dtos[i] = toAbsenceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAbsence records a missed session occurrence. The date must fall on
// the session's weekday.
// POST /api/absences
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAbsenceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if err := h.authorize(ctx, sqlite.KindSession, req.SessionID); err != nil {
		h.fail(w, r, "Session not accessible", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid date", err)
		return
	}

	session, err := h.Store.GetSession(ctx, generic.SessionID(req.SessionID))
	if err != nil {
		h.fail(w, r, "Failed to load session", err)
		return
	}
	if date.Weekday() != session.DayOfWeek {
		h.fail(w, r, "Invalid date", generic.NewValidationError("date",
			fmt.Sprintf("%s is a %s, session %d is on %s", date, date.Weekday(), session.ID, session.DayOfWeek)))
		return
	}

	saved, err := h.Store.SaveAbsence(ctx, extrahours.Absence{
		TeacherID: session.TeacherID,
		SessionID: session.ID,
		Date:      date,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, r, "Failed to record absence", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAbsenceDTO(saved))
}

// ToggleCatchUp flips an absence's caught_up flag.
// PATCH /api/absences/{id}/catch-up
func (h *Handler) ToggleCatchUp(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindAbsence)
	if !ok {
		return
	}

	caughtUp, err := h.Store.ToggleCatchUp(r.Context(), generic.AbsenceID(id))
	if err != nil {
		h.fail(w, r, "Failed to update absence", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "caught_up": caughtUp})
}

// =============================================================================
// RANK AND PERIOD HANDLERS
// =============================================================================

// ListRanks returns the rank catalogue.
func (h *Handler) ListRanks(w http.ResponseWriter, r *http.Request) {
	ranks, err := h.Store.ListRanks(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list ranks", err)
		return
	}

	dtos := make([]RankDTO, len(ranks))
	for i, rk := range ranks {
		dtos[i] = RankDTO{ID: int64(rk.ID), Name: rk.Name, Price: generic.Float(rk.Price), FiscalYear: rk.FiscalYear}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRank adds a rank to the catalogue.
// POST /api/ranks
func (h *Handler) CreateRank(w http.ResponseWriter, r *http.Request) {
	var req CreateRankRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	saved, err := h.Store.SaveRank(r.Context(), extrahours.Rank{
		Name:       req.Name,
		Price:      decimal.NewFromFloat(req.Price),
		FiscalYear: req.FiscalYear,
	})
	if err != nil {
		h.fail(w, r, "Failed to create rank", err)
		return
	}
	writeJSON(w, http.StatusCreated, RankDTO{
		ID: int64(saved.ID), Name: saved.Name, Price: generic.Float(saved.Price), FiscalYear: saved.FiscalYear,
	})
}

// ListPeriods returns the payroll periods.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListPeriods(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = PeriodDTO{ID: int64(p.ID), Name: p.Name, From: p.Period.Start.String(), To: p.Period.End.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriod adds a payroll period.
// POST /api/periods
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	period, err := parsePeriod(req.From, req.To)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}

	saved, err := h.Store.SavePeriod(r.Context(), extrahours.AcademicPeriod{Name: req.Name, Period: period})
	if err != nil {
		h.fail(w, r, "Failed to create period", err)
		return
	}
	writeJSON(w, http.StatusCreated, PeriodDTO{
		ID: int64(saved.ID), Name: saved.Name, From: period.Start.String(), To: period.End.String(),
	})
}

// =============================================================================
// SHEET HANDLERS
// =============================================================================

// CreateSheet returns the sheet for (teacher, from, to), creating it when
// needed: 201 with status CREATED, or 200 with status EXISTS.
// POST /api/sheets
func (h *Handler) CreateSheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := h.sheetRequest(w, r)
	if !ok {
		return
	}

	res, err := h.Sheets.CreateOrFetch(ctx, req)
	h.Metrics.observe(start, statusOf(res), err)
	if err != nil {
		h.fail(w, r, "Failed to create sheet", err)
		return
	}

	status := http.StatusOK
	if res.Status == extrahours.StatusCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSheetDTO(res))
}

// GetSheet returns a sheet with its extra days.
// GET /api/sheets/{id}
func (h *Handler) GetSheet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedID(w, r, sqlite.KindSheet)
	if !ok {
		return
	}

	res, err := h.Sheets.Get(r.Context(), generic.SheetID(id))
	if err != nil {
		h.fail(w, r, "Failed to load sheet", err)
		return
	}
	res.Status = ""
	writeJSON(w, http.StatusOK, toSheetDTO(res))
}

// RecalculateSheet recomputes a sheet and replaces its days.
// PUT /api/sheets/{id}
func (h *Handler) RecalculateSheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	id, ok := h.ownedID(w, r, sqlite.KindSheet)
	if !ok {
		return
	}

	var body RecalculateRequestDTO
	if err := decodeAndValidate(r, &body); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	req, err := body.toSheetRequest()
	if err != nil {
		h.fail(w, r, "Invalid sheet range", err)
		return
	}

	res, err := h.Sheets.Recalculate(ctx, generic.SheetID(id), req)
	h.Metrics.observe(start, statusOf(res), err)
	if err != nil {
		h.fail(w, r, "Failed to recalculate sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(res))
}

// PreviewSheet computes a sheet without storing it.
// POST /api/sheets/preview
func (h *Handler) PreviewSheet(w http.ResponseWriter, r *http.Request) {
	req, ok := h.sheetRequest(w, r)
	if !ok {
		return
	}

	comp, err := h.Sheets.Preview(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to compute sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(comp))
}

// SheetTotals returns the payroll deductions of the admin's sheets.
// GET /api/sheets/totals?type=Temporary&category=CCP&from=2025-01-01&to=2025-01-31
func (h *Handler) SheetTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := extrahours.PayrollFilter{
		TeacherType: extrahours.TeacherType(q.Get("type")),
		Category:    extrahours.PaymentCategory(q.Get("category")),
	}
	if filter.TeacherType != "" && !filter.TeacherType.Valid() {
		h.fail(w, r, "Invalid teacher type", generic.NewValidationError("type", "must be Permanent or Temporary"))
		return
	}
	if filter.Category != "" && filter.Category != extrahours.CategoryCCP && filter.Category != extrahours.CategoryBank {
		h.fail(w, r, "Invalid payment category", generic.NewValidationError("category", "must be CCP or BANK"))
		return
	}
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		window, err := parsePeriod(from, to)
		if err != nil {
			h.fail(w, r, "Invalid window", err)
			return
		}
		filter.Window = &window
	}

	admin := adminFrom(ctx)
	sheets, err := h.Store.ListAdminSheets(ctx, admin)
	if err != nil {
		h.fail(w, r, "Failed to list sheets", err)
		return
	}
	teachers, err := h.Store.ListTeachers(ctx, admin)
	if err != nil {
		h.fail(w, r, "Failed to list teachers", err)
		return
	}
	byID := make(map[generic.TeacherID]extrahours.Teacher, len(teachers))
	for _, t := range teachers {
		byID[t.ID] = t
	}

	writeJSON(w, http.StatusOK, toPayrollReportDTO(extrahours.BuildPayroll(sheets, byID, filter)))
}

// Statistics returns the dashboard summary of the calling admin.
// GET /api/statistics?from=2025-01-01&to=2025-06-30
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := parsePeriod(q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, "Invalid window", err)
		return
	}

	ctx := r.Context()
	stats, err := h.Store.Statistics(ctx, adminFrom(ctx), window, h.today())
	if err != nil {
		h.fail(w, r, "Failed to compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsDTO(stats))
}

// sheetRequest decodes a SheetRequestDTO and checks the teacher's owner.
func (h *Handler) sheetRequest(w http.ResponseWriter, r *http.Request) (extrahours.SheetRequest, bool) {
	var body SheetRequestDTO
	if err := decodeAndValidate(r, &body); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return extrahours.SheetRequest{}, false
	}
	req, err := body.toSheetRequest()
	if err != nil {
		h.fail(w, r, "Invalid sheet range", err)
		return extrahours.SheetRequest{}, false
	}
	if err := h.authorize(r.Context(), sqlite.KindTeacher, body.TeacherID); err != nil {
		h.fail(w, r, "Teacher not accessible", err)
		return extrahours.SheetRequest{}, false
	}
	return req, true
}

func statusOf(res *extrahours.SheetResult) extrahours.SheetStatus {
	if res == nil {
		return ""
	}
	return res.Status
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

// Healthz pings the database.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps an engine or store error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrConflict):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, message, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, generic.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// ownedID parses {id} and authorizes it. On failure the response is written
// and ok is false.
func (h *Handler) ownedID(w http.ResponseWriter, r *http.Request, kind sqlite.ResourceKind) (int64, bool) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid "+string(kind)+" id", err)
		return 0, false
	}
	if err := h.authorize(r.Context(), kind, id); err != nil {
		h.fail(w, r, "Cannot access "+string(kind), err)
		return 0, false
	}
	return id, true
}
