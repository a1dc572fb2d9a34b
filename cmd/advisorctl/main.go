// Package main provides the operator CLI for the AgriMitra advisory gateway.
// It wires the same advisors as the server and calls them in-process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agrimitra/advisor/internal/config"
	"github.com/agrimitra/advisor/internal/conversation"
	"github.com/agrimitra/advisor/internal/prompts"
	"github.com/agrimitra/advisor/internal/schedule"
	"github.com/agrimitra/advisor/pkg/server"
)

var (
	version = "dev"

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#16A34A"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	priorityStyles = map[schedule.Priority]lipgloss.Style{
		schedule.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		schedule.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		schedule.PriorityLow:    dimStyle,
	}
)

func main() {
	var (
		configPath string
		verbose    bool
		timeout    time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "advisorctl",
		Short: "AgriMitra operator CLI",
		Long: titleStyle.Render("AgriMitra advisorctl") + `

Talk to the domain advisors and generate farming calendars without
running the HTTP server. API keys come from GOOGLE_API_KEY_<n> or
AGRIMITRA_API_KEYS, exactly as for the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			if configPath != "" {
				os.Setenv("AGRIMITRA_CONFIG", configPath)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides AGRIMITRA_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (default from config)")

	withServer := func(fn func(ctx context.Context, srv *server.Server) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		d := cfg.Gateway.RequestTimeout
		if timeout > 0 {
			d = timeout
		}
		ctx, cancel := context.WithCancel(context.Background())
		if d > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), d)
		}
		defer cancel()

		srv, err := server.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer srv.ShutdownFunc(context.Background())
		return fn(ctx, srv)
	}

	// chat command - one question to a domain advisor
	var (
		contextVars map[string]string
		historyPath string
	)
	chatCmd := &cobra.Command{
		Use:   "chat [domain] [message...]",
		Short: "Ask a domain advisor (crop, disease, soil, calendar)",
		Example: `  advisorctl chat crop "Why is rice suitable?" --set recommended_crop=rice --set confidence=88%
  advisorctl chat disease "How do I treat this?" --set prediction="Tomato Early Blight"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			message := strings.Join(args[1:], " ")

			history, err := readHistory(historyPath)
			if err != nil {
				return err
			}

			return withServer(func(ctx context.Context, srv *server.Server) error {
				adv, ok := srv.Advisors[domain]
				if !ok {
					return fmt.Errorf("%w: %s", prompts.ErrUnknownDomain, domain)
				}
				dctx := prompts.DomainContext{}
				for k, v := range contextVars {
					dctx[k] = v
				}
				fmt.Println(adv.GenerateResponse(ctx, message, dctx, history))
				return nil
			})
		},
	}
	chatCmd.Flags().StringToStringVar(&contextVars, "set", nil, "Domain context value (key=value, repeatable)")
	chatCmd.Flags().StringVar(&historyPath, "history", "", "JSON file with prior turns ([{\"role\":..., \"content\":...}])")

	// schedule command - generate a farming calendar
	var crop, location, plantingDate string
	var asJSON bool
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate a farming calendar for a crop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(func(ctx context.Context, srv *server.Server) error {
				tasks, err := srv.Planner.GenerateSchedule(ctx, crop, location, plantingDate)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(tasks)
				}
				printTasks(crop, location, tasks)
				return nil
			})
		},
	}
	scheduleCmd.Flags().StringVar(&crop, "crop", "", "Crop name")
	scheduleCmd.Flags().StringVar(&location, "location", "", "Farm location")
	scheduleCmd.Flags().StringVar(&plantingDate, "planting-date", time.Now().Format(prompts.DateLayout), "Planting date (YYYY-MM-DD)")
	scheduleCmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	scheduleCmd.MarkFlagRequired("crop")
	scheduleCmd.MarkFlagRequired("location")

	// status command - show credential pools
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show each advisor's credential pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(func(ctx context.Context, srv *server.Server) error {
				domains := make([]string, 0, len(srv.Advisors))
				for d := range srv.Advisors {
					domains = append(domains, d)
				}
				sort.Strings(domains)

				fmt.Println(titleStyle.Render("Advisors"))
				for _, d := range domains {
					snap := srv.Advisors[d].Status()
					state := successStyle.Render("active")
					if snap.Disabled {
						state = errorStyle.Render("inactive")
					}
					fmt.Printf("  %-10s %s  %s\n", d, state,
						dimStyle.Render(fmt.Sprintf("keys=%d index=%d", snap.Size, snap.Index)))
				}
				return nil
			})
		},
	}

	rootCmd.AddCommand(chatCmd, scheduleCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func readHistory(path string) ([]conversation.Turn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return conversation.Normalize(raw), nil
}

func printTasks(crop, location string, tasks []schedule.Task) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s in %s: %d tasks", crop, location, len(tasks))))
	fmt.Println()
	for _, t := range tasks {
		style, ok := priorityStyles[t.Priority]
		if !ok {
			style = dimStyle
		}
		fmt.Printf("  %s  %-14s %s %s\n",
			t.Date,
			string(t.Category),
			t.Title,
			style.Render("["+string(t.Priority)+"]"))
		if t.Description != "" {
			fmt.Printf("  %s\n", dimStyle.Render(strings.Repeat(" ", 12)+t.Description))
		}
	}
}
