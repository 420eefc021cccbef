package extrahours

import (
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// PAYROLL DEDUCTIONS
// =============================================================================

// PaymentCategory is how a teacher is paid, derived from the account number.
type PaymentCategory string

const (
	CategoryCCP  PaymentCategory = "CCP"  // postal cheque account: "0123456789 12"
	CategoryBank PaymentCategory = "BANK" // anything else
)

var ccpAccount = regexp.MustCompile(`^[0-9]{10} [0-9]{2}$`)

// CategoryOf classifies an account number.
func CategoryOf(accountNumber string) PaymentCategory {
	if ccpAccount.MatchString(accountNumber) {
		return CategoryCCP
	}
	return CategoryBank
}

var (
	socialSecurityRate = decimal.RequireFromString("0.09")
	incomeTaxRate      = decimal.RequireFromString("0.10")
)

// Deductions splits a gross sheet amount. Income tax (IRG) is levied on the
// amount left after social security.
type Deductions struct {
	Gross          decimal.Decimal
	SocialSecurity decimal.Decimal
	IncomeTax      decimal.Decimal
	Debited        decimal.Decimal
	Net            decimal.Decimal
}

func ComputeDeductions(gross decimal.Decimal) Deductions {
	ss := gross.Mul(socialSecurityRate)
	irg := gross.Sub(ss).Mul(incomeTaxRate)
	debited := ss.Add(irg)
	return Deductions{
		Gross:          gross,
		SocialSecurity: ss,
		IncomeTax:      irg,
		Debited:        debited,
		Net:            gross.Sub(debited),
	}
}

// PayrollLine is one sheet in the payroll report.
type PayrollLine struct {
	SheetID          generic.SheetID
	TeacherID        generic.TeacherID
	FullName         string
	AccountNumber    string
	Rank             string
	RankPrice        decimal.Decimal
	ExtraHoursNumber decimal.Decimal
	Period           generic.Period
	Deductions
}

// PayrollFilter selects sheets for the report.
type PayrollFilter struct {
	TeacherType TeacherType
	Category    PaymentCategory
	Window      *generic.Period // sheets fully inside the window; nil = all
}

// PayrollReport is the list of lines plus their column sums.
type PayrollReport struct {
	Lines  []PayrollLine
	Totals Deductions
}

// BuildPayroll joins sheets with their teachers and keeps the ones matching
// filter. Sheets whose teacher is missing from teachers are skipped.
func BuildPayroll(sheets []Sheet, teachers map[generic.TeacherID]Teacher, filter PayrollFilter) PayrollReport {
	report := PayrollReport{Lines: []PayrollLine{}, Totals: ComputeDeductions(decimal.Zero)}
	for _, s := range sheets {
		t, ok := teachers[s.TeacherID]
		if !ok {
			continue
		}
		if filter.TeacherType != "" && t.Type != filter.TeacherType {
			continue
		}
		if filter.Category != "" && CategoryOf(t.AccountNumber) != filter.Category {
			continue
		}
		if w := filter.Window; w != nil && (s.Period.Start.Before(w.Start) || s.Period.End.After(w.End)) {
			continue
		}

		d := ComputeDeductions(s.AmountOfMoney)
		report.Lines = append(report.Lines, PayrollLine{
			SheetID:          s.ID,
			TeacherID:        t.ID,
			FullName:         t.FullName(),
			AccountNumber:    t.AccountNumber,
			Rank:             s.Rank,
			RankPrice:        s.RankPrice,
			ExtraHoursNumber: s.ExtraHoursNumber,
			Period:           s.Period,
			Deductions:       d,
		})
		report.Totals = Deductions{
			Gross:          report.Totals.Gross.Add(d.Gross),
			SocialSecurity: report.Totals.SocialSecurity.Add(d.SocialSecurity),
			IncomeTax:      report.Totals.IncomeTax.Add(d.IncomeTax),
			Debited:        report.Totals.Debited.Add(d.Debited),
			Net:            report.Totals.Net.Add(d.Net),
		}
	}
	return report
}

// =============================================================================
// STATISTICS
// =============================================================================

// Statistics is the dashboard summary of one admin's data.
type Statistics struct {
	Teachers        TeacherCounts
	TotalAmount     decimal.Decimal // sheets fully inside the window
	TeachersByRank  []RankCount     // by the rank in force today, most held first
	AbsencesByMonth []MonthCount    // inside the window, chronological
	NextHoliday     *Holiday        // first holiday starting after today
}

type TeacherCounts struct {
	Total     int
	Permanent int
	Temporary int
}

type RankCount struct {
	Rank     string
	Teachers int
}

// MonthCount counts absences of one calendar month, Month being "2025-01".
type MonthCount struct {
	Month    string
	Absences int
}
