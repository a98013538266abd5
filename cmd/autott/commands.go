package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autott/autott/internal/config"
)

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Google Calendar access",
}

var authStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Print the Google authorization URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/calendar-auth", nil)
		if err != nil {
			return err
		}

		var result struct {
			AuthURL string `json:"authUrl"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStep("Open this URL, approve access, then run: autott auth complete <code>")
		fmt.Println(result.AuthURL)
		return nil
	},
}

var authCompleteCmd = &cobra.Command{
	Use:   "complete <code>",
	Short: "Submit the authorization code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/calendar-auth", map[string]string{"code": args[0]})
		if err != nil {
			return err
		}

		var result authResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return reportAuth(result)
	},
}

type authResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email"`
	Error   string `json:"error"`
}

func reportAuth(r authResult) error {
	if !r.Success {
		return fmt.Errorf("authorization rejected: %s", r.Error)
	}
	if r.Email != "" {
		printSuccess("%s (%s)", r.Message, r.Email)
		return nil
	}
	printSuccess("%s", r.Message)
	return nil
}

func init() {
	authCmd.AddCommand(authStartCmd)
	authCmd.AddCommand(authCompleteCmd)
}

// --- logout ---

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of Google Calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/calendar-user", map[string]string{"action": "logout"})
		if err != nil {
			return err
		}

		var result struct {
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result.Message)
		return nil
	},
}

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract a timetable and optionally sync it",
	Long: `Extract a timetable from a photo and optionally sync it to Google Calendar.

Examples:
  autott process --image ./timetable.jpg --csv ./courses.csv
  autott process --image ./timetable.jpg --csv ./courses.csv --sync --days MON,WED --recurring`,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		csv, _ := cmd.Flags().GetString("csv")
		sync, _ := cmd.Flags().GetBool("sync")
		days, _ := cmd.Flags().GetString("days")
		recurring, _ := cmd.Flags().GetBool("recurring")
		startDate, _ := cmd.Flags().GetString("start-date")

		if image == "" || csv == "" {
			return fmt.Errorf("--image and --csv are required")
		}

		fields, err := processFields(sync, days, recurring, startDate)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s", image)
		resp, err := client.postFiles(cmd.Context(), "/process",
			map[string]string{"image": image, "csv_file": csv}, fields)
		if err != nil {
			return err
		}

		var result processResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return reportProcess(result, sync)
	},
}

type processResult struct {
	Schedule      map[string]any    `json:"schedule"`
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	EventsCreated int               `json:"events_created"`
	NeedsAuth     bool              `json:"needs_auth"`
	AuthURL       string            `json:"auth_url"`
	WindowOpened  bool              `json:"auth_window_opened"`
	Warnings      []string          `json:"warnings"`
	FirstDates    map[string]string `json:"first_dates"`
	Error         string            `json:"error"`
}

func processFields(sync bool, days string, recurring bool, startDate string) (map[string]string, error) {
	if !sync {
		return nil, nil
	}
	if strings.TrimSpace(days) == "" {
		return nil, fmt.Errorf("--days is required with --sync")
	}
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			return nil, fmt.Errorf("--start-date must be YYYY-MM-DD: %w", err)
		}
	}
	fields := map[string]string{
		"sync_to_calendar": "true",
		"selected_days":    strings.ToUpper(days),
		"is_recurring":     strconv.FormatBool(recurring),
	}
	if startDate != "" {
		fields["start_date"] = startDate
	}
	return fields, nil
}

func reportProcess(r processResult, sync bool) error {
	if !sync {
		return printJSON(os.Stdout, r.Schedule)
	}

	for _, w := range r.Warnings {
		printWarning("%s", w)
	}
	switch {
	case r.NeedsAuth && r.WindowOpened:
		printWarning("Calendar authorization needed; finish it in the window that just opened")
		return nil
	case r.NeedsAuth:
		printWarning("Calendar authorization needed")
		if r.AuthURL != "" {
			printStatus("Auth URL", "%s", r.AuthURL)
		}
		printStep("Run: autott auth complete <code>")
		return nil
	case !r.Success:
		msg := r.Error
		if msg == "" {
			msg = r.Message
		}
		return fmt.Errorf("sync failed: %s", msg)
	}

	printSuccess("Created %d events", r.EventsCreated)
	for day, date := range r.FirstDates {
		printStatus(day, "first on %s", date)
	}
	return nil
}

func init() {
	processCmd.Flags().String("image", "", "timetable image path")
	processCmd.Flags().String("csv", "", "course CSV path")
	processCmd.Flags().Bool("sync", false, "sync extracted classes to Google Calendar")
	processCmd.Flags().String("days", "", "comma-separated days to sync (e.g. MON,WED)")
	processCmd.Flags().Bool("recurring", false, "create weekly recurring events")
	processCmd.Flags().String("start-date", "", "first date to consider, YYYY-MM-DD (default today)")
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent process and sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/runs?limit=%d", limit))
		if err != nil {
			return err
		}

		var runs []struct {
			ID            string `json:"id"`
			CreatedAt     string `json:"created_at"`
			Mode          string `json:"mode"`
			Status        string `json:"status"`
			Days          string `json:"days"`
			EventsCreated int    `json:"events_created"`
			Error         string `json:"error"`
		}
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		for _, r := range runs {
			id := r.ID
			if len(id) > 8 {
				id = id[:8]
			}
			line := fmt.Sprintf("%s  %s  %-7s %s", colorize(colorCyan, id), r.CreatedAt, r.Mode, statusLabel(r.Status))
			if r.Days != "" {
				line += "  " + r.Days
			}
			if r.EventsCreated > 0 {
				line += fmt.Sprintf("  %d events", r.EventsCreated)
			}
			if r.Error != "" {
				line += "  " + r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func statusLabel(s string) string {
	switch s {
	case "ok":
		return colorize(colorGreen, s)
	case "failed":
		return colorize(colorRed, s)
	default:
		return colorize(colorYellow, s)
	}
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a secret such as google.client_secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}

		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
