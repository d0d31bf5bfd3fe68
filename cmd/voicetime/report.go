package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/voicetime/internal/config"
	"github.com/goodtune/voicetime/internal/session"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	reportUser     string
	reportUsername string
	reportDate     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show a user's recorded voice time for one day",
	Long:  `Read the stored daily total, latest join and toggle log for a user.`,
	Example: `  voicetime -c config.yaml report --user 80351110224678912
  voicetime report --user 80351110224678912 --date 2024-01-01 --username alice`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportUser, "user", "", "Discord user ID (required)")
	reportCmd.Flags().StringVar(&reportUsername, "username", "", "Username, to include the toggle log")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Day as YYYY-MM-DD in the tracking timezone (defaults to today)")
	_ = reportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(reportCmd)
}

// userReport is everything stored for a user on one day.
type userReport struct {
	UserID   string
	Day      time.Time
	Total    *storage.DailyTotal
	LastJoin *storage.JoinRecord
	Toggles  []storage.ToggleEvent
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	day := session.Day(time.Now(), loc)
	if reportDate != "" {
		day, err = time.ParseInLocation("2006-01-02", reportDate, loc)
		if err != nil {
			return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", reportDate)
		}
	}

	// Quiet logger for report mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	report, err := loadReport(ctx, store, reportUser, reportUsername, day)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report, loc)
	return nil
}

// loadReport gathers the stored records. Missing records are left empty.
func loadReport(ctx context.Context, store storage.Store, userID, username string, day time.Time) (*userReport, error) {
	report := &userReport{UserID: userID, Day: day}

	total, err := store.Totals().Find(ctx, userID, day)
	switch {
	case err == nil:
		report.Total = total
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to read daily total: %w", err)
	}

	join, err := store.Joins().FindLatest(ctx, userID)
	switch {
	case err == nil:
		report.LastJoin = join
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to read last join: %w", err)
	}

	if username != "" {
		toggles, err := store.Toggles().List(ctx, userID, username)
		switch {
		case err == nil:
			report.Toggles = toggles
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to read toggle log: %w", err)
		}
	}

	return report, nil
}

// printReport renders the report with color
func printReport(out io.Writer, report *userReport, loc *time.Location) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	_, _ = fmt.Fprintln(out)
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Fprintf(out, "Voice time for %s on %s\n", report.UserID, report.Day.Format("2006-01-02"))
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if report.Total == nil {
		_, _ = yellow.Fprintln(out, "No sessions recorded")
	} else {
		_, _ = fmt.Fprintf(out, "Name:       %s\n", report.Total.DiscordName)
		_, _ = fmt.Fprintf(out, "Server:     %s\n", report.Total.ServerName)
		_, _ = fmt.Fprintf(out, "Sessions:   %d\n", len(report.Total.Sessions))

		var sum time.Duration
		for i, entry := range report.Total.Sessions {
			sum += session.Offset(entry.Total)
			_, _ = fmt.Fprintf(out, "  #%-3d %2dh %2dm %2ds  [%s]\n",
				i+1, entry.Total.Hours, entry.Total.Minutes, entry.Total.Seconds, entry.Devices.String())
		}

		total := session.Breakdown(sum)
		_, _ = green.Fprintf(out, "Total:      %d hours, %d minutes, %d seconds\n", total.Hours, total.Minutes, total.Seconds)
	}

	if report.LastJoin != nil {
		_, _ = fmt.Fprintf(out, "Last join:  %s using %s\n",
			report.LastJoin.Timestamp.In(loc).Format(time.RFC3339), report.LastJoin.Devices.String())
	}

	if len(report.Toggles) > 0 {
		_, _ = cyan.Fprintln(out, "\nToggles:")
		for _, e := range report.Toggles {
			_, _ = fmt.Fprintf(out, "  %s  %s\n", e.Timestamp.In(loc).Format(time.RFC3339), e.Event)
		}
	}

	_, _ = fmt.Fprintln(out)
}
