/*
sheet.go - Extra-hours sheet orchestration

PURPOSE:
  Ties the engine together: loads a teacher's timetable, holidays and
  absences, runs Allocate -> Expand -> Aggregate, prices the hours with the
  rank price and persists the sheet with its extra days.

OPERATIONS:
  CreateOrFetch:  Returns the existing sheet for (teacher, from, to) with
                  status EXISTS, otherwise computes and stores a new one
                  (status CREATED). Never recomputes an existing sheet.
  Recalculate:    Recomputes an existing sheet unconditionally, replaces all
                  its days and rewrites its totals in place.
  Preview:        Computes without writing anything.

SEMESTER:
  The timetable snapshot is chosen from the month of `to`: September to
  January is S1, February to August is S2.

CONCURRENCY:
  - Identical concurrent creates are collapsed with singleflight; the SQL
    store additionally has a unique index on (teacher_id, from, to).
  - Recalculations of the same sheet are serialized with a per-sheet mutex.
  - Every write path runs inside TxRepository.WithTx.

SEE ALSO:
  - allocator.go, calendar.go: The pure pipeline
  - store.go: Collaborator interfaces
*/
package extrahours

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/generic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// REQUESTS AND RESULTS
// =============================================================================

type SheetStatus string

const (
	StatusCreated      SheetStatus = "CREATED"
	StatusExists       SheetStatus = "EXISTS"
	StatusRecalculated SheetStatus = "RECALCULATED"
)

// SheetRequest holds the inputs of a sheet computation.
type SheetRequest struct {
	TeacherID    generic.TeacherID
	Period       generic.Period
	AcademicYear string
	Rank         string
	RankPrice    decimal.Decimal
}

// Validate rejects requests the engine can't compute.
func (r SheetRequest) Validate() error {
	if r.TeacherID <= 0 {
		return generic.NewValidationError("teacher_id", "required")
	}
	if r.AcademicYear == "" {
		return generic.NewValidationError("academic_year", "required")
	}
	if r.Rank == "" {
		return generic.NewValidationError("rank", "required")
	}
	if r.RankPrice.IsNegative() {
		return generic.NewValidationError("rank_price", "must not be negative")
	}
	return r.Period.Validate()
}

// Computation is the output of the pure pipeline for one request.
type Computation struct {
	Semester    Semester
	Allocations []Allocation
	Dated       []DatedExtraSession
	Days        []ExtraDay
	ExtraHours  decimal.Decimal
	Amount      decimal.Decimal
}

// SheetResult is a persisted sheet with its days.
type SheetResult struct {
	Status SheetStatus
	Sheet  Sheet
	Days   []ExtraDay
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute loads the inputs of req from repo and runs the pipeline.
func Compute(ctx context.Context, repo Repository, req SheetRequest) (*Computation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	teacher, err := repo.Teacher(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}

	semester := SemesterFor(req.Period.End)
	sessions, err := repo.WeeklySessions(ctx, req.TeacherID, req.AcademicYear, semester)
	if err != nil {
		return nil, fmt.Errorf("load timetable: %w", err)
	}
	holidays, err := repo.Holidays(ctx, req.AcademicYear)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	absences, err := repo.Absences(ctx, req.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("load absences: %w", err)
	}

	allocations, err := Allocate(sessions, teacher.Type, teacher.HoursOutside)
	if err != nil {
		return nil, err
	}
	dated, err := Expand(req.Period, allocations, holidays, absences)
	if err != nil {
		return nil, err
	}
	days := Aggregate(dated)
	hours := TotalHours(days)

	return &Computation{
		Semester:    semester,
		Allocations: allocations,
		Dated:       dated,
		Days:        days,
		ExtraHours:  hours,
		Amount:      hours.Mul(req.RankPrice),
	}, nil
}

// =============================================================================
// SHEET SERVICE
// =============================================================================

// SheetService is the only writer of sheets and extra days.
type SheetService struct {
	repo   TxRepository
	logger *zap.Logger
	sf     singleflight.Group
	locks  sheetLocks
	now    func() time.Time
}

func NewSheetService(repo TxRepository, logger *zap.Logger) *SheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetService{
		repo:   repo,
		logger: logger,
		locks:  sheetLocks{held: make(map[generic.SheetID]*sheetLock)},
		now:    time.Now,
	}
}

// Preview computes req without persisting anything.
func (s *SheetService) Preview(ctx context.Context, req SheetRequest) (*Computation, error) {
	return Compute(ctx, s.repo, req)
}

// Get returns a stored sheet with its days.
func (s *SheetService) Get(ctx context.Context, id generic.SheetID) (*SheetResult, error) {
	sheet, err := s.repo.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	days, err := s.repo.Days(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load extra days: %w", err)
	}
	return &SheetResult{Status: StatusExists, Sheet: *sheet, Days: days}, nil
}

// CreateOrFetch returns the sheet for (teacher, period), creating it when it
// doesn't exist yet. Identical concurrent requests share one computation:
// only the caller that ran it sees CREATED, the others see EXISTS. The shared
// work is not tied to any single caller's cancellation; a cancelled caller
// returns its context error and leaves the work running for the rest.
func (s *SheetService) CreateOrFetch(ctx context.Context, req SheetRequest) (*SheetResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%d|%s|%s", req.TeacherID, req.Period.Start, req.Period.End)
	leader := false
	ch := s.sf.DoChan(key, func() (any, error) {
		leader = true
		return s.createOrFetch(context.WithoutCancel(ctx), req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Val.(*SheetResult)
		if !leader && res.Status == StatusCreated {
			s.logger.Debug("sheet request collapsed", zap.String("key", key))
			joined := *res
			joined.Status = StatusExists
			return &joined, nil
		}
		return res, nil
	}
}

func (s *SheetService) createOrFetch(ctx context.Context, req SheetRequest) (*SheetResult, error) {
	var result *SheetResult
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		existing, err := repo.FindSheet(ctx, req.TeacherID, req.Period)
		if err != nil {
			return fmt.Errorf("find sheet: %w", err)
		}
		if existing != nil {
			days, err := repo.Days(ctx, existing.ID)
			if err != nil {
				return fmt.Errorf("load extra days: %w", err)
			}
			result = &SheetResult{Status: StatusExists, Sheet: *existing, Days: days}
			return nil
		}

		comp, err := Compute(ctx, repo, req)
		if err != nil {
			return err
		}
		sheet, err := repo.CreateSheet(ctx, Sheet{
			TeacherID:        req.TeacherID,
			Period:           req.Period,
			Rank:             req.Rank,
			RankPrice:        req.RankPrice,
			ExtraHoursNumber: comp.ExtraHours,
			AmountOfMoney:    comp.Amount,
			CreatedAt:        s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		days, err := repo.ReplaceDays(ctx, sheet.ID, comp.Days)
		if err != nil {
			return fmt.Errorf("store extra days: %w", err)
		}
		result = &SheetResult{Status: StatusCreated, Sheet: sheet, Days: days}
		return nil
	})
	if err != nil {
		s.logger.Warn("sheet creation failed",
			zap.Int64("teacher_id", int64(req.TeacherID)),
			zap.String("period", req.Period.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("sheet resolved",
		zap.String("status", string(result.Status)),
		zap.Int64("sheet_id", int64(result.Sheet.ID)),
		zap.Int64("teacher_id", int64(req.TeacherID)),
		zap.String("extra_hours", result.Sheet.ExtraHoursNumber.String()),
		zap.Int("days", len(result.Days)))
	return result, nil
}

// Recalculate recomputes sheet id from req and replaces its days and totals.
// A zero req.TeacherID means the sheet's own teacher.
func (s *SheetService) Recalculate(ctx context.Context, id generic.SheetID, req SheetRequest) (*SheetResult, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	var result *SheetResult
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		sheet, err := repo.GetSheet(ctx, id)
		if err != nil {
			return err
		}
		if req.TeacherID == 0 {
			req.TeacherID = sheet.TeacherID
		}
		if req.TeacherID != sheet.TeacherID {
			return generic.NewValidationError("teacher_id",
				fmt.Sprintf("sheet %d belongs to teacher %d", id, sheet.TeacherID))
		}

		comp, err := Compute(ctx, repo, req)
		if err != nil {
			return err
		}
		days, err := repo.ReplaceDays(ctx, id, comp.Days)
		if err != nil {
			return fmt.Errorf("replace extra days: %w", err)
		}
		totals := SheetTotals{
			Period:           req.Period,
			Rank:             req.Rank,
			RankPrice:        req.RankPrice,
			ExtraHoursNumber: comp.ExtraHours,
			AmountOfMoney:    comp.Amount,
		}
		if err := repo.UpdateSheetTotals(ctx, id, totals); err != nil {
			return fmt.Errorf("update sheet totals: %w", err)
		}

		sheet.Period = totals.Period
		sheet.Rank = totals.Rank
		sheet.RankPrice = totals.RankPrice
		sheet.ExtraHoursNumber = totals.ExtraHoursNumber
		sheet.AmountOfMoney = totals.AmountOfMoney
		result = &SheetResult{Status: StatusRecalculated, Sheet: *sheet, Days: days}
		return nil
	})
	if err != nil {
		s.logger.Warn("sheet recalculation failed", zap.Int64("sheet_id", int64(id)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("sheet recalculated",
		zap.Int64("sheet_id", int64(id)),
		zap.String("extra_hours", result.Sheet.ExtraHoursNumber.String()),
		zap.Int("days", len(result.Days)))
	return result, nil
}

// =============================================================================
// PER-SHEET LOCKS
// =============================================================================

type sheetLocks struct {
	mu   sync.Mutex
	held map[generic.SheetID]*sheetLock
}

type sheetLock struct {
	sync.Mutex
	refs int
}

// lock blocks until id is free and returns its release function.
func (l *sheetLocks) lock(id generic.SheetID) func() {
	l.mu.Lock()
	sl, ok := l.held[id]
	if !ok {
		sl = &sheetLock{}
		l.held[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.held, id)
		}
		l.mu.Unlock()
	}
}
