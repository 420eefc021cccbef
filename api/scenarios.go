/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos of the admin frontend. Each scenario creates teachers,
	timetables, ranks, holidays and absences for the calling admin.

AVAILABLE SCENARIOS:

	temporary-teacher:     Every hour is extra, clipped at 12h per week
	permanent-overload:    Baseline crossing with Cours/TD/TP coefficients
	holidays-and-absences: Winter break plus caught-up and missed sessions

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the rank catalogue and the January payroll period
 3. Create teachers with their 2024/2025 S1 timetable
 4. Record rank history, holidays and absences

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "permanent-overload"}

NOTE:

	Scenarios reset the database. Routes are only mounted outside production.

SEE ALSO:
  - handlers.go: ResetDatabase
  - server.go: Options.AllowReset
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "temporary-teacher",
		Name:        "Temporary Teacher",
		Description: "Every session is paid as extra, up to 12 hours per week",
	},
	{
		ID:          "permanent-overload",
		Name:        "Permanent Overload",
		Description: "Permanent teacher with 6h outside; extra starts once the weighted baseline is reached",
	},
	{
		ID:          "holidays-and-absences",
		Name:        "Holidays & Absences",
		Description: "Winter break and absences, one of them caught up",
	},
}

const scenarioYear = "2024/2025"

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario owned by
// the calling admin.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	var load func(context.Context, generic.AdminID) error
	switch req.ScenarioID {
	case "temporary-teacher":
		load = h.loadTemporaryTeacherScenario
	case "permanent-overload":
		load = h.loadPermanentOverloadScenario
	case "holidays-and-absences":
		load = h.loadHolidaysAndAbsencesScenario
	default:
		h.fail(w, r, "Unknown scenario", generic.NewValidationError("scenario_id", fmt.Sprintf("unknown scenario %q", req.ScenarioID)))
		return
	}

	ctx := r.Context()
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := h.seedCatalogue(ctx); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	if err := load(ctx, adminFrom(ctx)); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedCatalogue stores the rank catalogue and the January payroll period.
func (h *Handler) seedCatalogue(ctx context.Context) error {
	for _, rank := range []extrahours.Rank{
		{Name: "MAB", Price: generic.Hours(300), FiscalYear: "2024"},
		{Name: "MAA", Price: generic.Hours(400), FiscalYear: "2024"},
		{Name: "MCB", Price: generic.Hours(550), FiscalYear: "2024"},
		{Name: "Professeur", Price: generic.Hours(700), FiscalYear: "2024"},
	} {
		if _, err := h.Store.SaveRank(ctx, rank); err != nil {
			return err
		}
	}
	_, err := h.Store.SavePeriod(ctx, extrahours.AcademicPeriod{
		Name: "January 2025",
		Period: generic.Period{
			Start: generic.NewTimePoint(2025, time.January, 1),
			End:   generic.NewTimePoint(2025, time.January, 31),
		},
	})
	return err
}

func (h *Handler) loadTemporaryTeacherScenario(ctx context.Context, admin generic.AdminID) error {
	teacher, err := h.Store.SaveTeacher(ctx, extrahours.Teacher{
		AdminID:       admin,
		FirstName:     "Yacine",
		FamilyName:    "Meziane",
		Email:         "y.meziane@univ.dz",
		Type:          extrahours.TeacherTemporary,
		AccountNumber: "0012345678 91",
	})
	if err != nil {
		return err
	}

	// 14h per week: the last TP is clipped at the weekly cap
	_, err = h.seedTimetable(ctx, teacher, []slot{
		{time.Sunday, "08:00", "11:00", extrahours.SessionCours, "Analysis 1"},
		{time.Monday, "08:00", "11:00", extrahours.SessionTD, "Analysis 1"},
		{time.Tuesday, "13:00", "16:00", extrahours.SessionTD, "Algebra 1"},
		{time.Wednesday, "08:00", "10:00", extrahours.SessionTP, "Programming"},
		{time.Thursday, "08:00", "11:00", extrahours.SessionTP, "Programming"},
	})
	if err != nil {
		return err
	}
	return h.Store.SaveRankChange(ctx, extrahours.RankChange{
		TeacherID: teacher.ID, Rank: "MAB", StartingDate: generic.NewTimePoint(2024, time.September, 1),
	})
}

func (h *Handler) loadPermanentOverloadScenario(ctx context.Context, admin generic.AdminID) error {
	outside := generic.Hours(6)
	teacher, err := h.Store.SaveTeacher(ctx, extrahours.Teacher{
		AdminID:       admin,
		FirstName:     "Nadia",
		FamilyName:    "Ouali",
		Email:         "n.ouali@univ.dz",
		Type:          extrahours.TeacherPermanent,
		HoursOutside:  &outside,
		AccountNumber: "00799999000123456789",
	})
	if err != nil {
		return err
	}

	_, err = h.seedTimetable(ctx, teacher, []slot{
		{time.Sunday, "08:00", "09:30", extrahours.SessionCours, "Databases"},
		{time.Sunday, "09:30", "11:00", extrahours.SessionCours, "Operating Systems"},
		{time.Monday, "08:00", "11:00", extrahours.SessionTD, "Databases"},
		{time.Tuesday, "13:00", "16:00", extrahours.SessionTP, "Operating Systems"},
	})
	if err != nil {
		return err
	}
	for _, change := range []extrahours.RankChange{
		{TeacherID: teacher.ID, Rank: "MAA", StartingDate: generic.NewTimePoint(2023, time.September, 1)},
		{TeacherID: teacher.ID, Rank: "MCB", StartingDate: generic.NewTimePoint(2025, time.February, 1)},
	} {
		if err := h.Store.SaveRankChange(ctx, change); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadHolidaysAndAbsencesScenario(ctx context.Context, admin generic.AdminID) error {
	teacher, err := h.Store.SaveTeacher(ctx, extrahours.Teacher{
		AdminID:    admin,
		FirstName:  "Samir",
		FamilyName: "Benali",
		Email:      "s.benali@univ.dz",
		Type:       extrahours.TeacherTemporary,
	})
	if err != nil {
		return err
	}
	sessions, err := h.seedTimetable(ctx, teacher, []slot{
		{time.Sunday, "08:00", "10:00", extrahours.SessionTD, "Physics 1"},
		{time.Monday, "10:00", "12:00", extrahours.SessionTP, "Physics 1"},
	})
	if err != nil {
		return err
	}
	if err := h.Store.SaveRankChange(ctx, extrahours.RankChange{
		TeacherID: teacher.ID, Rank: "MAA", StartingDate: generic.NewTimePoint(2024, time.September, 1),
	}); err != nil {
		return err
	}

	if _, err := h.Store.SaveHoliday(ctx, extrahours.Holiday{
		Description: "Winter break",
		Period: generic.Period{
			Start: generic.NewTimePoint(2024, time.December, 22),
			End:   generic.NewTimePoint(2025, time.January, 4),
		},
		AcademicYear: scenarioYear,
	}); err != nil {
		return err
	}

	if _, err := h.Store.SaveAbsence(ctx, extrahours.Absence{
		TeacherID: teacher.ID, SessionID: sessions[0].ID,
		Date: generic.NewTimePoint(2025, time.January, 12), Reason: "Sick leave",
	}); err != nil {
		return err
	}
	caughtUp, err := h.Store.SaveAbsence(ctx, extrahours.Absence{
		TeacherID: teacher.ID, SessionID: sessions[1].ID,
		Date: generic.NewTimePoint(2025, time.January, 13), Reason: "Strike", Notes: "Made up on Saturday",
	})
	if err != nil {
		return err
	}
	_, err = h.Store.ToggleCatchUp(ctx, caughtUp.ID)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

type slot struct {
	day        time.Weekday
	start, end string
	typ        extrahours.SessionType
	module     string
}

// seedTimetable stores the first-semester timetable of a teacher.
func (h *Handler) seedTimetable(ctx context.Context, teacher extrahours.Teacher, slots []slot) ([]extrahours.WeeklySession, error) {
	saved := make([]extrahours.WeeklySession, 0, len(slots))
	for i, s := range slots {
		ws, err := h.Store.SaveSession(ctx, extrahours.WeeklySession{
			AdminID:      teacher.AdminID,
			TeacherID:    teacher.ID,
			DayOfWeek:    s.day,
			Start:        extrahours.MustClock(s.start),
			End:          extrahours.MustClock(s.end),
			Type:         s.typ,
			Module:       s.module,
			Classroom:    fmt.Sprintf("A%d", 101+i),
			Group:        fmt.Sprintf("G%d", 1+i%3),
			AcademicYear: scenarioYear,
			Semester:     extrahours.SemesterOne,
		})
		if err != nil {
			return nil, err
		}
		saved = append(saved, ws)
	}
	return saved, nil
}
