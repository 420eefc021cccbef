// Package memory provides an in-memory extrahours.TxRepository.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state state
}

type state struct {
	teachers  map[generic.TeacherID]extrahours.Teacher
	sessions  []extrahours.WeeklySession
	holidays  []extrahours.Holiday
	absences  []extrahours.Absence
	sheets    map[generic.SheetID]extrahours.Sheet
	days      map[generic.SheetID][]extrahours.ExtraDay
	nextSheet generic.SheetID
	nextDay   generic.ExtraDayID
}

// Compile-time check that Memory implements extrahours.TxRepository
var _ extrahours.TxRepository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: state{
		teachers: make(map[generic.TeacherID]extrahours.Teacher),
		sheets:   make(map[generic.SheetID]extrahours.Sheet),
		days:     make(map[generic.SheetID][]extrahours.ExtraDay),
	}}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) AddTeacher(t extrahours.Teacher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.teachers[t.ID] = t
}

func (m *Memory) AddSession(s extrahours.WeeklySession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.sessions = append(m.state.sessions, s)
}

func (m *Memory) AddHoliday(h extrahours.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.holidays = append(m.state.holidays, h)
}

func (m *Memory) AddAbsence(a extrahours.Absence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.absences = append(m.state.absences, a)
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) WeeklySessions(_ context.Context, teacherID generic.TeacherID, academicYear string, semester extrahours.Semester) ([]extrahours.WeeklySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.weeklySessions(teacherID, academicYear, semester), nil
}

func (m *Memory) Holidays(_ context.Context, academicYear string) ([]extrahours.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.holidaysOf(academicYear), nil
}

func (m *Memory) Absences(_ context.Context, teacherID generic.TeacherID) ([]extrahours.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.absencesOf(teacherID), nil
}

func (m *Memory) Teacher(_ context.Context, id generic.TeacherID) (*extrahours.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.teacher(id)
}

func (m *Memory) FindSheet(_ context.Context, teacherID generic.TeacherID, period generic.Period) (*extrahours.Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.findSheet(teacherID, period), nil
}

func (m *Memory) GetSheet(_ context.Context, id generic.SheetID) (*extrahours.Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getSheet(id)
}

func (m *Memory) Days(_ context.Context, sheetID generic.SheetID) ([]extrahours.ExtraDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.daysOf(sheetID), nil
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) CreateSheet(_ context.Context, sheet extrahours.Sheet) (extrahours.Sheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createSheet(sheet)
}

func (m *Memory) ReplaceDays(_ context.Context, sheetID generic.SheetID, days []extrahours.ExtraDay) ([]extrahours.ExtraDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.replaceDays(sheetID, days)
}

func (m *Memory) UpdateSheetTotals(_ context.Context, sheetID generic.SheetID, totals extrahours.SheetTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateTotals(sheetID, totals)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(extrahours.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txView runs against the already-locked state.
type txView struct {
	s *state
}

func (v *txView) WeeklySessions(_ context.Context, teacherID generic.TeacherID, academicYear string, semester extrahours.Semester) ([]extrahours.WeeklySession, error) {
	return v.s.weeklySessions(teacherID, academicYear, semester), nil
}

func (v *txView) Holidays(_ context.Context, academicYear string) ([]extrahours.Holiday, error) {
	return v.s.holidaysOf(academicYear), nil
}

func (v *txView) Absences(_ context.Context, teacherID generic.TeacherID) ([]extrahours.Absence, error) {
	return v.s.absencesOf(teacherID), nil
}

func (v *txView) Teacher(_ context.Context, id generic.TeacherID) (*extrahours.Teacher, error) {
	return v.s.teacher(id)
}

func (v *txView) FindSheet(_ context.Context, teacherID generic.TeacherID, period generic.Period) (*extrahours.Sheet, error) {
	return v.s.findSheet(teacherID, period), nil
}

func (v *txView) GetSheet(_ context.Context, id generic.SheetID) (*extrahours.Sheet, error) {
	return v.s.getSheet(id)
}

func (v *txView) Days(_ context.Context, sheetID generic.SheetID) ([]extrahours.ExtraDay, error) {
	return v.s.daysOf(sheetID), nil
}

func (v *txView) CreateSheet(_ context.Context, sheet extrahours.Sheet) (extrahours.Sheet, error) {
	return v.s.createSheet(sheet)
}

func (v *txView) ReplaceDays(_ context.Context, sheetID generic.SheetID, days []extrahours.ExtraDay) ([]extrahours.ExtraDay, error) {
	return v.s.replaceDays(sheetID, days)
}

func (v *txView) UpdateSheetTotals(_ context.Context, sheetID generic.SheetID, totals extrahours.SheetTotals) error {
	return v.s.updateTotals(sheetID, totals)
}

// =============================================================================
// STATE (callers hold the lock)
// =============================================================================

func (s *state) weeklySessions(teacherID generic.TeacherID, academicYear string, semester extrahours.Semester) []extrahours.WeeklySession {
	var out []extrahours.WeeklySession
	for _, ws := range s.sessions {
		if ws.TeacherID == teacherID && ws.AcademicYear == academicYear && ws.Semester == semester {
			out = append(out, ws)
		}
	}
	return out
}

func (s *state) holidaysOf(academicYear string) []extrahours.Holiday {
	var out []extrahours.Holiday
	for _, h := range s.holidays {
		if h.AcademicYear == academicYear {
			out = append(out, h)
		}
	}
	return out
}

func (s *state) absencesOf(teacherID generic.TeacherID) []extrahours.Absence {
	var out []extrahours.Absence
	for _, a := range s.absences {
		if a.TeacherID == teacherID {
			out = append(out, a)
		}
	}
	return out
}

func (s *state) teacher(id generic.TeacherID) (*extrahours.Teacher, error) {
	t, ok := s.teachers[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "teacher", ID: int64(id)}
	}
	return &t, nil
}

func (s *state) findSheet(teacherID generic.TeacherID, period generic.Period) *extrahours.Sheet {
	for _, sh := range s.sheets {
		if sh.TeacherID == teacherID && sh.Period.Start.Equal(period.Start) && sh.Period.End.Equal(period.End) {
			found := sh
			return &found
		}
	}
	return nil
}

func (s *state) getSheet(id generic.SheetID) (*extrahours.Sheet, error) {
	sh, ok := s.sheets[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "sheet", ID: int64(id)}
	}
	return &sh, nil
}

func (s *state) daysOf(sheetID generic.SheetID) []extrahours.ExtraDay {
	out := append([]extrahours.ExtraDay{}, s.days[sheetID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *state) createSheet(sheet extrahours.Sheet) (extrahours.Sheet, error) {
	if s.findSheet(sheet.TeacherID, sheet.Period) != nil {
		return extrahours.Sheet{}, generic.ErrConflict
	}
	s.nextSheet++
	sheet.ID = s.nextSheet
	s.sheets[sheet.ID] = sheet
	return sheet, nil
}

func (s *state) replaceDays(sheetID generic.SheetID, days []extrahours.ExtraDay) ([]extrahours.ExtraDay, error) {
	if _, ok := s.sheets[sheetID]; !ok {
		return nil, &generic.NotFoundError{Kind: "sheet", ID: int64(sheetID)}
	}
	stored := make([]extrahours.ExtraDay, len(days))
	for i, d := range days {
		s.nextDay++
		d.ID = s.nextDay
		d.SheetID = sheetID
		stored[i] = d
	}
	s.days[sheetID] = stored
	return append([]extrahours.ExtraDay{}, stored...), nil
}

func (s *state) updateTotals(sheetID generic.SheetID, totals extrahours.SheetTotals) error {
	sh, ok := s.sheets[sheetID]
	if !ok {
		return &generic.NotFoundError{Kind: "sheet", ID: int64(sheetID)}
	}
	sh.Period = totals.Period
	sh.Rank = totals.Rank
	sh.RankPrice = totals.RankPrice
	sh.ExtraHoursNumber = totals.ExtraHoursNumber
	sh.AmountOfMoney = totals.AmountOfMoney
	s.sheets[sheetID] = sh
	return nil
}

func (s *state) clone() state {
	c := state{
		teachers:  make(map[generic.TeacherID]extrahours.Teacher, len(s.teachers)),
		sessions:  append([]extrahours.WeeklySession{}, s.sessions...),
		holidays:  append([]extrahours.Holiday{}, s.holidays...),
		absences:  append([]extrahours.Absence{}, s.absences...),
		sheets:    make(map[generic.SheetID]extrahours.Sheet, len(s.sheets)),
		days:      make(map[generic.SheetID][]extrahours.ExtraDay, len(s.days)),
		nextSheet: s.nextSheet,
		nextDay:   s.nextDay,
	}
	for k, v := range s.teachers {
		c.teachers[k] = v
	}
	for k, v := range s.sheets {
		c.sheets[k] = v
	}
	for k, v := range s.days {
		c.days[k] = append([]extrahours.ExtraDay{}, v...)
	}
	return c
}
