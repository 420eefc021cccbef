/*
scheduler.go - Automated period sheet scheduler

PURPOSE:
  Periodically creates the extra-hours sheet of every teacher for every
  payroll period that has ended, so admins find them ready instead of
  requesting each one.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Detects periods whose end date is before today
  - Splits each period at the teacher's rank changes (SplitByRank) and
    creates one sheet per piece, priced from the catalogue; pieces without
    a rank are skipped
  - Uses SheetService.CreateOrFetch, so sheets that already exist are
    reported as EXISTS and never recomputed

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPeriodScheduler(store, sheets, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - extrahours/ranks.go: SplitByRank, FindRank
  - extrahours/sheet.go: SheetService
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
	"github.com/warp/extra-hours/store/sqlite"
	"go.uber.org/zap"
)

// PeriodScheduler creates sheets for ended payroll periods.
type PeriodScheduler struct {
	Store         *sqlite.Store
	Sheets        *extrahours.SheetService
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	today  func() generic.TimePoint
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunSummary counts what one pass did.
type RunSummary struct {
	RunID   string
	Created int
	Existed int
	Skipped int
	Failed  int
}

// NewPeriodScheduler creates a new scheduler.
func NewPeriodScheduler(store *sqlite.Store, sheets *extrahours.SheetService, logger *zap.Logger) *PeriodScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodScheduler{
		Store:         store,
		Sheets:        sheets,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.Named("scheduler"),
		today:         generic.Today,
	}
}

// Start begins the scheduler.
func (ps *PeriodScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.logger.Info("disabled, not starting")
		return
	}

	if ps.ticker != nil {
		return
	}

	// A fresh channel per run, so Start works again after Stop.
	ps.stop = make(chan struct{})
	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run(ps.ticker, ps.stop)

	ps.logger.Info("started", zap.Duration("interval", ps.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (ps *PeriodScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.logger.Info("stopped")
	}
}

func (ps *PeriodScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			ps.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass over ended periods and returns its summary.
func (ps *PeriodScheduler) RunNow(ctx context.Context) RunSummary {
	summary := RunSummary{RunID: uuid.NewString()}
	log := ps.logger.With(zap.String("run_id", summary.RunID))
	today := ps.today()

	periods, err := ps.Store.ListPeriods(ctx)
	if err != nil {
		log.Error("listing periods", zap.Error(err))
		return summary
	}
	teachers, err := ps.Store.AllTeachers(ctx)
	if err != nil {
		log.Error("listing teachers", zap.Error(err))
		return summary
	}
	catalogue, err := ps.Store.ListRanks(ctx)
	if err != nil {
		log.Error("listing ranks", zap.Error(err))
		return summary
	}

	for _, t := range teachers {
		history, err := ps.Store.RankHistory(ctx, t.ID)
		if err != nil {
			summary.Failed++
			log.Warn("loading rank history", zap.Int64("teacher_id", int64(t.ID)), zap.Error(err))
			continue
		}
		for _, p := range periods {
			if !p.Period.End.Before(today) {
				// Period not ended yet
				continue
			}
			for _, piece := range extrahours.SplitByRank(p.Period, history) {
				switch status, err := ps.processPiece(ctx, t, piece, catalogue); {
				case err != nil:
					summary.Failed++
					log.Warn("sheet not created",
						zap.Int64("teacher_id", int64(t.ID)),
						zap.String("period", piece.Period.String()),
						zap.Error(err))
				case status == "":
					summary.Skipped++
				case status == extrahours.StatusCreated:
					summary.Created++
				default:
					summary.Existed++
				}
			}
		}
	}

	if summary.Created > 0 || summary.Failed > 0 {
		log.Info("completed",
			zap.Int("created", summary.Created),
			zap.Int("existed", summary.Existed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed))
	}
	return summary
}

// processPiece returns an empty status when no rank applies to the piece.
func (ps *PeriodScheduler) processPiece(ctx context.Context, t extrahours.Teacher, piece extrahours.RankedPeriod, catalogue []extrahours.Rank) (extrahours.SheetStatus, error) {
	if piece.Rank == "" {
		return "", nil
	}
	rank, ok := extrahours.FindRank(catalogue, piece.Rank)
	if !ok {
		return "", &generic.NotFoundError{Kind: "rank " + piece.Rank}
	}

	res, err := ps.Sheets.CreateOrFetch(ctx, extrahours.SheetRequest{
		TeacherID:    t.ID,
		Period:       piece.Period,
		AcademicYear: extrahours.AcademicYearOf(piece.Period.Start),
		Rank:         rank.Name,
		RankPrice:    rank.Price,
	})
	if err != nil {
		return "", err
	}
	return res.Status, nil
}
