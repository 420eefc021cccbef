/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's decimal/TimePoint model from the external API contract:
  dates are "YYYY-MM-DD" strings, hours and money are JSON numbers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. decodeAndValidate turns
  the first failing field into a *generic.ValidationError named after its
  JSON tag. Cross-field rules (from <= to, known weekday, clock order) are
  checked in handlers or by the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// TEACHERS
// =============================================================================

type TeacherDTO struct {
	ID              int64    `json:"id"`
	FirstName       string   `json:"first_name"`
	FamilyName      string   `json:"family_name"`
	Email           string   `json:"email"`
	Type            string   `json:"type"`
	HoursOutside    *float64 `json:"hours_outside"`
	AccountNumber   string   `json:"account_number"`
	PaymentCategory string   `json:"payment_category"`
	CreatedAt       string   `json:"created_at"`
}

type CreateTeacherRequest struct {
	FirstName     string   `json:"first_name" validate:"required"`
	FamilyName    string   `json:"family_name" validate:"required"`
	Email         string   `json:"email" validate:"required,email"`
	Type          string   `json:"type" validate:"required,oneof=Permanent Temporary"`
	HoursOutside  *float64 `json:"hours_outside" validate:"omitempty,gte=0"`
	AccountNumber string   `json:"account_number"`
}

func toTeacherDTO(t extrahours.Teacher) TeacherDTO {
	dto := TeacherDTO{
		ID:              int64(t.ID),
		FirstName:       t.FirstName,
		FamilyName:      t.FamilyName,
		Email:           t.Email,
		Type:            string(t.Type),
		AccountNumber:   t.AccountNumber,
		PaymentCategory: string(extrahours.CategoryOf(t.AccountNumber)),
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
	if t.HoursOutside != nil {
		h := generic.Float(*t.HoursOutside)
		dto.HoursOutside = &h
	}
	return dto
}

// =============================================================================
// TIMETABLE
// =============================================================================

type SessionDTO struct {
	ID           int64   `json:"id"`
	TeacherID    int64   `json:"teacher_id"`
	DayOfWeek    string  `json:"day_of_week"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Duration     float64 `json:"duration"`
	Type         string  `json:"type"`
	Module       string  `json:"module"`
	Classroom    string  `json:"classroom"`
	Group        string  `json:"group"`
	AcademicYear string  `json:"academic_year"`
	Semester     string  `json:"semester"`
}

type CreateSessionRequest struct {
	TeacherID    int64  `json:"teacher_id" validate:"required,gt=0"`
	DayOfWeek    string `json:"day_of_week" validate:"required"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	Type         string `json:"type" validate:"required,oneof=Cours TD TP"`
	Module       string `json:"module"`
	Classroom    string `json:"classroom"`
	Group        string `json:"group"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Semester     string `json:"semester" validate:"required,oneof=S1 S2"`
}

func toSessionDTO(s extrahours.WeeklySession) SessionDTO {
	return SessionDTO{
		ID:           int64(s.ID),
		TeacherID:    int64(s.TeacherID),
		DayOfWeek:    s.DayOfWeek.String(),
		StartTime:    s.Start.String(),
		EndTime:      s.End.String(),
		Duration:     generic.Float(s.Duration()),
		Type:         string(s.Type),
		Module:       s.Module,
		Classroom:    s.Classroom,
		Group:        s.Group,
		AcademicYear: s.AcademicYear,
		Semester:     string(s.Semester),
	}
}

// =============================================================================
// HOLIDAYS AND ABSENCES
// =============================================================================

type HolidayDTO struct {
	ID           int64  `json:"id"`
	Description  string `json:"description"`
	From         string `json:"from"`
	To           string `json:"to"`
	AcademicYear string `json:"academic_year"`
}

type CreateHolidayRequest struct {
	Description  string `json:"description" validate:"required"`
	From         string `json:"from" validate:"required"`
	To           string `json:"to" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
}

func toHolidayDTO(h extrahours.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:           int64(h.ID),
		Description:  h.Description,
		From:         h.Period.Start.String(),
		To:           h.Period.End.String(),
		AcademicYear: h.AcademicYear,
	}
}

type AbsenceDTO struct {
	ID        int64  `json:"id"`
	TeacherID int64  `json:"teacher_id"`
	SessionID int64  `json:"session_id"`
	Date      string `json:"date"`
	CaughtUp  bool   `json:"caught_up"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

type CreateAbsenceRequest struct {
	SessionID int64  `json:"session_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

func toAbsenceDTO(a extrahours.Absence) AbsenceDTO {
	return AbsenceDTO{
		ID:        int64(a.ID),
		TeacherID: int64(a.TeacherID),
		SessionID: int64(a.SessionID),
		Date:      a.Date.String(),
		CaughtUp:  a.CaughtUp,
		Reason:    a.Reason,
		Notes:     a.Notes,
	}
}

// =============================================================================
// RANKS AND PERIODS
// =============================================================================

type RankDTO struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	FiscalYear string  `json:"fiscal_year"`
}

type CreateRankRequest struct {
	Name       string  `json:"name" validate:"required"`
	Price      float64 `json:"price" validate:"gte=0"`
	FiscalYear string  `json:"fiscal_year"`
}

type RankChangeDTO struct {
	TeacherID    int64  `json:"teacher_id"`
	Rank         string `json:"rank"`
	StartingDate string `json:"starting_date"`
}

type CreateRankChangeRequest struct {
	Rank         string `json:"rank" validate:"required"`
	StartingDate string `json:"starting_date" validate:"required"`
}

type PeriodDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

type CreatePeriodRequest struct {
	Name string `json:"name"`
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// TeacherPeriodDTO is a payroll period piece with a single rank. Rank is
// null when the teacher had no rank yet.
type TeacherPeriodDTO struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rank *string `json:"rank"`
}

func toTeacherPeriodDTO(p extrahours.RankedPeriod) TeacherPeriodDTO {
	dto := TeacherPeriodDTO{From: p.Period.Start.String(), To: p.Period.End.String()}
	if p.Rank != "" {
		rank := p.Rank
		dto.Rank = &rank
	}
	return dto
}

// =============================================================================
// SHEETS
// =============================================================================

// SheetRequestDTO is the body of POST /api/sheets and POST /api/sheets/preview.
type SheetRequestDTO struct {
	TeacherID    int64   `json:"teacher_id" validate:"required,gt=0"`
	From         string  `json:"from" validate:"required"`
	To           string  `json:"to" validate:"required"`
	AcademicYear string  `json:"academic_year" validate:"required"`
	Rank         string  `json:"rank" validate:"required"`
	RankPrice    float64 `json:"rank_price" validate:"gte=0"`
}

// RecalculateRequestDTO is the body of PUT /api/sheets/{id}. The teacher
// defaults to the sheet's own.
type RecalculateRequestDTO struct {
	TeacherID    int64   `json:"teacher_id" validate:"omitempty,gt=0"`
	From         string  `json:"from" validate:"required"`
	To           string  `json:"to" validate:"required"`
	AcademicYear string  `json:"academic_year" validate:"required"`
	Rank         string  `json:"rank" validate:"required"`
	RankPrice    float64 `json:"rank_price" validate:"gte=0"`
}

func (r RecalculateRequestDTO) toSheetRequest() (extrahours.SheetRequest, error) {
	return SheetRequestDTO{
		TeacherID:    r.TeacherID,
		From:         r.From,
		To:           r.To,
		AcademicYear: r.AcademicYear,
		Rank:         r.Rank,
		RankPrice:    r.RankPrice,
	}.toSheetRequest()
}

func (r SheetRequestDTO) toSheetRequest() (extrahours.SheetRequest, error) {
	period, err := parsePeriod(r.From, r.To)
	if err != nil {
		return extrahours.SheetRequest{}, err
	}
	return extrahours.SheetRequest{
		TeacherID:    generic.TeacherID(r.TeacherID),
		Period:       period,
		AcademicYear: r.AcademicYear,
		Rank:         r.Rank,
		RankPrice:    decimal.NewFromFloat(r.RankPrice),
	}, nil
}

type ExtraDayDTO struct {
	ID            int64   `json:"id,omitempty"`
	Date          string  `json:"date"`
	Day           string  `json:"day"`
	NumberOfHours float64 `json:"number_of_hours"`
}

type SheetDTO struct {
	ID               int64         `json:"id"`
	Status           string        `json:"status,omitempty"`
	TeacherID        int64         `json:"teacher_id"`
	From             string        `json:"from"`
	To               string        `json:"to"`
	Rank             string        `json:"rank"`
	RankPrice        float64       `json:"rank_price"`
	ExtraHoursNumber float64       `json:"extra_hours_number"`
	AmountOfMoney    float64       `json:"amount_of_money"`
	CreatedAt        string        `json:"created_at"`
	Days             []ExtraDayDTO `json:"days"`
}

func toExtraDayDTOs(days []extrahours.ExtraDay) []ExtraDayDTO {
	dtos := make([]ExtraDayDTO, len(days))
	for i, d := range days {
		dtos[i] = ExtraDayDTO{
			ID:            int64(d.ID),
			Date:          d.Date.String(),
			Day:           d.DayOfWeek.String(),
			NumberOfHours: generic.Float(d.TotalDuration),
		}
	}
	return dtos
}

func toSheetDTO(res *extrahours.SheetResult) SheetDTO {
	s := res.Sheet
	return SheetDTO{
		ID:               int64(s.ID),
		Status:           string(res.Status),
		TeacherID:        int64(s.TeacherID),
		From:             s.Period.Start.String(),
		To:               s.Period.End.String(),
		Rank:             s.Rank,
		RankPrice:        generic.Float(s.RankPrice),
		ExtraHoursNumber: generic.Float(s.ExtraHoursNumber),
		AmountOfMoney:    generic.Float(s.AmountOfMoney),
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
		Days:             toExtraDayDTOs(res.Days),
	}
}

type AllocationDTO struct {
	SessionID int64   `json:"session_id"`
	DayOfWeek string  `json:"day_of_week"`
	Duration  float64 `json:"duration"`
}

// PreviewDTO is a computation that was not persisted.
type PreviewDTO struct {
	Semester         string          `json:"semester"`
	ExtraHoursNumber float64         `json:"extra_hours_number"`
	AmountOfMoney    float64         `json:"amount_of_money"`
	Allocations      []AllocationDTO `json:"allocations"`
	Days             []ExtraDayDTO   `json:"days"`
}

func toPreviewDTO(c *extrahours.Computation) PreviewDTO {
	allocations := make([]AllocationDTO, len(c.Allocations))
	for i, a := range c.Allocations {
		allocations[i] = AllocationDTO{
			SessionID: int64(a.SessionID),
			DayOfWeek: a.DayOfWeek.String(),
			Duration:  generic.Float(a.Duration),
		}
	}
	return PreviewDTO{
		Semester:         string(c.Semester),
		ExtraHoursNumber: generic.Float(c.ExtraHours),
		AmountOfMoney:    generic.Float(c.Amount),
		Allocations:      allocations,
		Days:             toExtraDayDTOs(c.Days),
	}
}

// =============================================================================
// PAYROLL
// =============================================================================

type DeductionsDTO struct {
	Gross          float64 `json:"gross"`
	SocialSecurity float64 `json:"social_security"`
	IncomeTax      float64 `json:"irg"`
	Debited        float64 `json:"debited"`
	Net            float64 `json:"net"`
}

type PayrollLineDTO struct {
	SheetID          int64   `json:"sheet_id"`
	TeacherID        int64   `json:"teacher_id"`
	FullName         string  `json:"full_name"`
	AccountNumber    string  `json:"account_number"`
	Rank             string  `json:"rank"`
	RankPrice        float64 `json:"rank_price"`
	ExtraHoursNumber float64 `json:"extra_hours_number"`
	From             string  `json:"from"`
	To               string  `json:"to"`
	DeductionsDTO
}

type PayrollReportDTO struct {
	Lines  []PayrollLineDTO `json:"lines"`
	Totals DeductionsDTO    `json:"totals"`
}

func toDeductionsDTO(d extrahours.Deductions) DeductionsDTO {
	return DeductionsDTO{
		Gross:          generic.Float(d.Gross),
		SocialSecurity: generic.Float(d.SocialSecurity),
		IncomeTax:      generic.Float(d.IncomeTax),
		Debited:        generic.Float(d.Debited),
		Net:            generic.Float(d.Net),
	}
}

func toPayrollReportDTO(r extrahours.PayrollReport) PayrollReportDTO {
	lines := make([]PayrollLineDTO, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = PayrollLineDTO{
			SheetID:          int64(l.SheetID),
			TeacherID:        int64(l.TeacherID),
			FullName:         l.FullName,
			AccountNumber:    l.AccountNumber,
			Rank:             l.Rank,
			RankPrice:        generic.Float(l.RankPrice),
			ExtraHoursNumber: generic.Float(l.ExtraHoursNumber),
			From:             l.Period.Start.String(),
			To:               l.Period.End.String(),
			DeductionsDTO:    toDeductionsDTO(l.Deductions),
		}
	}
	return PayrollReportDTO{Lines: lines, Totals: toDeductionsDTO(r.Totals)}
}

// =============================================================================
// STATISTICS
// =============================================================================

type StatisticsDTO struct {
	TotalTeachers     int             `json:"total_teachers"`
	PermanentTeachers int             `json:"permanent_teachers"`
	TemporaryTeachers int             `json:"temporary_teachers"`
	TotalAmount       float64         `json:"total_amount"`
	TeachersByRank    []RankCountDTO  `json:"teachers_by_rank"`
	AbsencesByMonth   []MonthCountDTO `json:"absences_by_month"`
	NextHoliday       *HolidayDTO     `json:"next_holiday"`
}

type RankCountDTO struct {
	Rank     string `json:"rank"`
	Teachers int    `json:"teachers"`
}

type MonthCountDTO struct {
	Month    string `json:"month"`
	Absences int    `json:"absences"`
}

func toStatisticsDTO(s extrahours.Statistics) StatisticsDTO {
	dto := StatisticsDTO{
		TotalTeachers:     s.Teachers.Total,
		PermanentTeachers: s.Teachers.Permanent,
		TemporaryTeachers: s.Teachers.Temporary,
		TotalAmount:       generic.Float(s.TotalAmount),
		TeachersByRank:    make([]RankCountDTO, len(s.TeachersByRank)),
		AbsencesByMonth:   make([]MonthCountDTO, len(s.AbsencesByMonth)),
	}
	for i, rc := range s.TeachersByRank {
		dto.TeachersByRank[i] = RankCountDTO{Rank: rc.Rank, Teachers: rc.Teachers}
	}
	for i, mc := range s.AbsencesByMonth {
		dto.AbsencesByMonth[i] = MonthCountDTO{Month: mc.Month, Absences: mc.Absences}
	}
	if s.NextHoliday != nil {
		h := toHolidayDTO(*s.NextHoliday)
		dto.NextHoliday = &h
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DECODING
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return generic.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			e := errs[0]
			return generic.NewValidationError(e.Field(), validationMessage(e))
		}
		return generic.NewValidationError("body", err.Error())
	}
	return nil
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gt", "gte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gt": ">", "gte": ">="}[e.Tag()], e.Param())
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}

func parseDate(field, s string) (generic.TimePoint, error) {
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, generic.NewValidationError(field, err.Error())
	}
	return tp, nil
}

func parsePeriod(from, to string) (generic.Period, error) {
	start, err := parseDate("from", from)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := parseDate("to", to)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.NewPeriod(start, end)
}
