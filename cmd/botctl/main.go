package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/extractor"
	"github.com/fortytwo/review-notifier/internal/monitoring"
	"github.com/fortytwo/review-notifier/internal/notifications"
	"github.com/fortytwo/review-notifier/internal/sources"
	"github.com/fortytwo/review-notifier/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var debug bool

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	rootCmd := &cobra.Command{
		Use:   "botctl",
		Short: "Operate the review notifier by hand",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(checkDataCmd())
	rootCmd.AddCommand(clearDataCmd())
	rootCmd.AddCommand(testNotificationCmd())
	rootCmd.AddCommand(extractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newService(ctx context.Context) (*monitoring.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	backend, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	return monitoring.NewService(cfg, backend, sources.NewGmailSource(cfg), notifications.NewService(cfg)), nil
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one poll cycle: fetch new booking emails, confirm and schedule reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			if err := service.RunPollCycle(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(service.GetMetrics())
			return nil
		},
	}
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder cycle: send every reminder that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			if err := service.RunReminderCycle(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(service.GetMetrics())
			return nil
		},
	}
}

func checkDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-data",
		Short: "Print the stored keys, processed message ids and pending reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(cmd.Context())
			if err != nil {
				return err
			}

			ids, err := service.Store().LoadProcessedIDs(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := service.Store().LoadReminders(cmd.Context())
			if err != nil {
				return err
			}
			keys, err := service.Store().Keys(cmd.Context())
			if err != nil {
				return err
			}

			out := map[string]interface{}{
				"keys":          keys,
				"processed_ids": ids,
				"reminders":     pending,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func clearDataCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear-data",
		Short: "Delete all persisted processed ids and reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear data without --yes")
			}

			service, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			return service.Store().Clear(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func testNotificationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-notification",
		Short: "Post a setup-check message to the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			if err := service.SendTestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("✅ Test notification sent")
			return nil
		},
	}
}

func extractCmd() *cobra.Command {
	var timezone string

	cmd := &cobra.Command{
		Use:   "extract [text]",
		Short: "Show the appointment time found in text (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("load timezone: %w", err)
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}

			eventTime, ok := extractor.New(loc).Extract(text, time.Now())
			if !ok {
				fmt.Println("No date found")
				return nil
			}

			fmt.Printf("📅 %s\n", eventTime.Format(notifications.DisplayLayout))
			if duration, ok := notifications.ExtractDuration(text); ok {
				fmt.Printf("⏱️ %s\n", duration)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&timezone, "timezone", "Asia/Tokyo", "location used to interpret the extracted time")
	return cmd
}
