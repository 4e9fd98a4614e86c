package payroll

import (
	"fmt"
	"io"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const registerSheet = "Register"

var registerHeadings = []interface{}{
	"Employee Code", "Employee Name", "Status",
	"Working Days", "LOP Days", "Payable Days",
	"Basic", "Housing", "Special", "Bonus", "Other Allowance",
	"Gross", "PF", "Tax", "Other Deduction", "Total Deductions", "Net",
	"Payment Method", "Payment Reference", "Error",
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// writeRegister renders the payroll register as an XLSX workbook.
func writeRegister(w io.Writer, header payroll.HeaderResponse, lines []payroll.Line) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return fmt.Errorf("failed to name register sheet: %w", err)
	}

	title := fmt.Sprintf("Payroll register %s (%s)", header.Period, header.Status)
	if header.Locked {
		title += " - locked"
	}
	if err := f.SetCellValue(registerSheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(registerSheet, "A3", &registerHeadings); err != nil {
		return err
	}

	row := 4
	for _, l := range lines {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []interface{}{
			deref(l.EmployeeCode), deref(l.EmployeeName), string(l.Status),
			l.WorkingDays.InexactFloat64(), l.LOPDays.InexactFloat64(), l.PayableDays.InexactFloat64(),
			money(l.BasicEarned), money(l.HousingEarned), money(l.SpecialEarned), money(l.BonusEarned), money(l.OtherEarned),
			money(l.GrossSalary), money(l.Structure.PFDeduction), money(l.Structure.TaxDeduction), money(l.Structure.OtherDeduction),
			money(l.TotalDeductions), money(l.NetSalary),
			deref(l.PaymentMethod), deref(l.PaymentReference), deref(l.ErrorMessage),
		}
		if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
			return err
		}
		row++
	}

	totalCell, err := excelize.CoordinatesToCellName(1, row+1)
	if err != nil {
		return err
	}
	totals := []interface{}{
		"Total", "", fmt.Sprintf("%d lines", header.TotalLines),
		"", "", "", "", "", "", "", "",
		money(header.GrossSalary), "", "", "", money(header.TotalDeductions), money(header.NetSalary),
	}
	if err := f.SetSheetRow(registerSheet, totalCell, &totals); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write register: %w", err)
	}
	return nil
}
