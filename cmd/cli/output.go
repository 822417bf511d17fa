package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/report"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	flagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func heading(s string) {
	fmt.Println(headingStyle.Render(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printExpenses(expenses []domain.Expense) error {
	if jsonOutput {
		return printJSON(expenses)
	}
	heading(fmt.Sprintf("Expenses (%d)", len(expenses)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tVENDOR\tAMOUNT\tCATEGORY\tSTATUS")
	for _, e := range expenses {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\n",
			e.Date, truncate(e.VendorName, 30), e.Amount.StringFixed(2), e.Currency, e.Category, e.Status)
	}
	return w.Flush()
}

func printRecurring(recurring []domain.RecurringCost) error {
	if jsonOutput {
		return printJSON(recurring)
	}
	heading(fmt.Sprintf("Recurring costs (%d)", len(recurring)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VENDOR\tMONTHLY\tRENEWS\tSTATUS\tNOTE")
	for _, r := range recurring {
		note := r.Reason
		if r.Flagged {
			note = flagStyle.Render("flagged") + " " + note
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(r.VendorName, 30), r.MonthlyCost.StringFixed(2), r.RenewalDate, r.Status, truncate(note, 60))
	}
	return w.Flush()
}

func printRecommendations(recs []domain.Recommendation) error {
	if jsonOutput {
		return printJSON(recs)
	}
	heading(fmt.Sprintf("Recommendations (%d)", len(recs)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VENDOR\tSAVING\tACTION\tREASON")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncate(r.VendorName, 30), r.EstimatedSaving.StringFixed(2), r.Action, truncate(r.Reason, 60))
	}
	return w.Flush()
}

func printTasks(tasks []domain.OptimizationTask) error {
	if jsonOutput {
		return printJSON(tasks)
	}
	heading(fmt.Sprintf("Optimization tasks (%d)", len(tasks)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VENDOR\tACTION\tSAVING\tSTATUS")
	for _, t := range tasks {
		status := string(t.Status)
		if t.Error != "" {
			status += ": " + t.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncate(t.VendorName, 30), t.Action, t.EstimatedSaving.StringFixed(2), status)
	}
	return w.Flush()
}

func printSummary(s report.Summary) error {
	if jsonOutput {
		return printJSON(s)
	}
	heading("Summary")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total spend\t%s\n", s.TotalSpend.StringFixed(2))
	fmt.Fprintf(w, "Expenses\t%d (%d approved, %d pending)\n", s.ExpenseCount, s.ApprovedCount, s.PendingCount)
	fmt.Fprintf(w, "Recurring costs\t%d (%d flagged, %s/month)\n", s.RecurringCount, s.FlaggedCount, s.FlaggedMonthlyTotal.StringFixed(2))
	fmt.Fprintf(w, "Realised savings\t%s\n", s.RealisedSavings.StringFixed(2))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(s.Months) == 0 {
		return nil
	}
	fmt.Println()
	heading("By month")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tTOTAL")
	for _, m := range s.Months {
		fmt.Fprintf(w, "%s\t%s\n", m.Label, m.Total.StringFixed(2))
	}
	return w.Flush()
}
