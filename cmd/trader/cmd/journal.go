package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttdog1020/Cryptobot-sub000/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and verify the ledger",
	Long: `Inspect and verify the append-only ledger written by a session.

The ledger may be a CSV file or a SQLite database; the format is picked
from the file extension (.csv, otherwise SQLite).

Subcommands:
  verify - Replay the ledger and check every balance
  show   - List ledger rows, optionally for one symbol or day

Examples:
  trader journal verify -l ledger.csv --start-balance 10000
  trader journal show -l ledger.sqlite --symbol BTCUSDT
  trader journal show -l ledger.sqlite --day 2024-01-15`,
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay the ledger and check every balance",
	Args:  cobra.NoArgs,
	RunE:  runJournalVerify,
}

var journalShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List ledger rows",
	Args:  cobra.NoArgs,
	RunE:  runJournalShow,
}

var (
	journalPath         string
	journalStartBalance float64
	journalSymbol       string
	journalDay          string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalVerifyCmd)
	journalCmd.AddCommand(journalShowCmd)

	journalCmd.PersistentFlags().StringVarP(&journalPath, "ledger", "l", "./ledger.csv", "path to the ledger (CSV or SQLite)")
	journalVerifyCmd.Flags().Float64Var(&journalStartBalance, "start-balance", 10000, "account balance before the first row")
	journalShowCmd.Flags().StringVar(&journalSymbol, "symbol", "", "only rows for this symbol")
	journalShowCmd.Flags().StringVar(&journalDay, "day", "", "only rows on this day (YYYY-MM-DD, local time)")
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func loadRows(path string) ([]journal.LedgerRow, error) {
	if isCSV(path) {
		return journal.ReadCSV(path)
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer j.Close()
	return j.Rows()
}

func runJournalVerify(cmd *cobra.Command, args []string) error {
	rows, err := loadRows(journalPath)
	if err != nil {
		return err
	}

	rep, err := journal.Replay(journalStartBalance, rows)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Ledger consistent: %s\n", journalPath)
	fmt.Fprintf(out, "  Rows: %d (%d open, %d close)\n", rep.Rows, rep.Opens, rep.Closes)
	fmt.Fprintf(out, "  Final balance: $%.2f\n", rep.FinalBalance)
	fmt.Fprintf(out, "  Net realized: $%.2f\n", rep.RealizedPnL)
	if len(rep.StillOpen) > 0 {
		fmt.Fprintf(out, "  Still open: %s\n", strings.Join(rep.StillOpen, ", "))
	}
	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	var start, end time.Time
	if journalDay != "" {
		var err error
		if start, end, err = dayBounds(time.Local, journalDay); err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}

	rows, err := queryRows(start, end)
	if err != nil {
		return err
	}
	writeRows(cmd.OutOrStdout(), rows)
	return nil
}

// queryRows pushes filters down to SQLite when it can and filters in memory
// for CSV ledgers.
func queryRows(start, end time.Time) ([]journal.LedgerRow, error) {
	byDay := !start.IsZero()

	if isCSV(journalPath) {
		rows, err := journal.ReadCSV(journalPath)
		if err != nil {
			return nil, err
		}
		return filterRows(rows, journalSymbol, start, end), nil
	}

	j, err := journal.NewSQLite(journalPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	switch {
	case byDay:
		rows, err := j.RowsBetween(start, end)
		if err != nil {
			return nil, fmt.Errorf("query rows: %w", err)
		}
		return filterRows(rows, journalSymbol, time.Time{}, time.Time{}), nil
	case journalSymbol != "":
		return j.RowsForSymbol(journalSymbol)
	default:
		return j.Rows()
	}
}

func filterRows(rows []journal.LedgerRow, symbol string, start, end time.Time) []journal.LedgerRow {
	out := rows[:0:0]
	for _, r := range rows {
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		if !start.IsZero() && (r.Time.Before(start) || !r.Time.Before(end)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func writeRows(w io.Writer, rows []journal.LedgerRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tSYMBOL\tACTION\tSIDE\tQTY\tPRICE\tPNL\tBALANCE\tEQUITY\tREASON")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.6f\t%.4f\t%.2f\t%.2f\t%.2f\t%s\n",
			r.Seq, r.Time.Local().Format(time.DateTime), r.Symbol, r.Action, r.Side,
			r.Quantity, r.FillPrice, r.RealizedPnL, r.Balance, r.Equity, r.Reason)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d rows\n", len(rows))
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
