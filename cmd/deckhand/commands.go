package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/session"
	"github.com/framelight/deckhand/pkg/tui"
	"github.com/framelight/deckhand/pkg/workflow"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run <steps.yaml>",
	Short: "Queue a workflow run and follow its progress",
	Long: `Queue a workflow run described by a YAML step file.

Example step file:
  projectUrl: https://tracker.example.com/projects/42
  steps:
    - action: upload_asset
      enabled: true
      params:
        folder: Q3 Campaign
        assetZipPath: ./assets.zip
    - action: log_hours
      enabled: true
      params:
        hours: 2.5
        note: asset delivery`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading step file: %w", err)
		}

		var req workflow.Request
		if err := yaml.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("parsing step file: %w", err)
		}

		if project, _ := cmd.Flags().GetString("project"); project != "" {
			req.ProjectURL = project
		}
		if cmd.Flags().Changed("stop-on-error") {
			req.StopOnError, _ = cmd.Flags().GetBool("stop-on-error")
		}
		if headed, _ := cmd.Flags().GetBool("headed"); headed {
			headless := false
			req.Headless = &headless
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/workflow/execute", req)
		if err != nil {
			return err
		}
		var result struct {
			RunID  string `json:"runId"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		follow, _ := cmd.Flags().GetBool("follow")
		if !follow {
			fmt.Println(result.RunID)
			return nil
		}
		return followRun(cmd.Context(), client, result.RunID)
	},
}

func init() {
	runCmd.Flags().String("project", "", "override the project URL from the step file")
	runCmd.Flags().Bool("follow", true, "render live progress until the run finishes")
	runCmd.Flags().Bool("headed", false, "run with a visible browser window")
	runCmd.Flags().Bool("stop-on-error", false, "stop the run at the first failed step")
}

// followRun streams run progress into the follow view. The stream opens
// before the snapshot is fetched so no event falls between the two;
// replayed transitions the snapshot already reflects are harmless.
func followRun(ctx context.Context, client *apiClient, runID string) error {
	events, stopStream, err := client.streamEvents(ctx, runID)
	if err != nil {
		return err
	}
	defer stopStream()

	resp, err := client.get(ctx, "/workflow/runs/"+runID)
	if err != nil {
		return err
	}
	var snapshot workflow.Run
	if err := decodeJSON(resp, &snapshot); err != nil {
		return err
	}

	cancelRun := func() {
		resp, err := client.post(context.Background(), "/workflow/runs/"+runID+"/cancel", nil)
		if err != nil {
			return
		}
		resp.Body.Close()
	}
	return tui.Follow(ctx, &snapshot, events, cancelRun)
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List live and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/workflow/runs?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Runs    []*workflow.Run `json:"runs"`
			History []struct {
				ID         string    `json:"id"`
				ProjectURL string    `json:"projectUrl"`
				Status     string    `json:"status"`
				Summary    string    `json:"summary"`
				QueuedAt   time.Time `json:"queuedAt"`
			} `json:"history"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Runs) == 0 && len(result.History) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		for _, run := range result.Runs {
			fmt.Printf("%s  %-9s  %3.0f%%  %s\n",
				stepStyle.Render(shortRunID(run.ID)), run.Status, run.Progress, run.ProjectURL)
		}
		for _, rec := range result.History {
			fmt.Printf("%s  %-9s  %s  %s",
				stepStyle.Render(shortRunID(rec.ID)), rec.Status,
				rec.QueuedAt.Local().Format("2006-01-02 15:04"), rec.ProjectURL)
			if rec.Summary != "" {
				fmt.Printf("  (%s)", rec.Summary)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of archived runs to list")
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a queued or running workflow run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/workflow/runs/"+args[0]+"/cancel", nil)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cancellation requested for run %s", args[0])
		return nil
	},
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract <folder> [folder...]",
	Short: "List the files in vault folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/extract", map[string]any{"folders": args})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// --- archive ---

var archiveCmd = &cobra.Command{
	Use:   "archive <folder>",
	Short: "Download matching vault files, mirroring them to object storage",
	Long: `Download files from a vault folder whose names match the given
selection patterns, extract text from PDFs, and mirror the files to the
configured object-storage bucket.

Examples:
  deckhand archive "Q3 Campaign" --select brief --select "*.pdf"
  deckhand archive Renders --select "*" --dest ./exports`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns, _ := cmd.Flags().GetStringArray("select")
		if len(patterns) == 0 {
			return fmt.Errorf("at least one --select pattern is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"folder": args[0], "patterns": patterns}
		if dest, _ := cmd.Flags().GetString("dest"); dest != "" {
			body["destDir"] = dest
		}

		resp, err := client.post(cmd.Context(), "/archive", body)
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	archiveCmd.Flags().StringArray("select", nil, "file selection pattern, repeatable (substring or glob)")
	archiveCmd.Flags().String("dest", "", "destination directory under the server's download root")
}

// --- login / logout ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the vault portal and capture a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logging.SetDirectory(cfg.Logging.Dir)
		logging.SetLevel(cfg.Logging.Level)

		sessions, err := session.NewStore(cfg.Session.Path, cfg.Session.TTL())
		if err != nil {
			return err
		}

		mgr := browser.NewManager(cfg.Browser, cfg.Vault, sessions)
		printStep("Starting browser...")
		if err := mgr.Initialize(); err != nil {
			return err
		}
		defer mgr.Shutdown()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printStep("Complete the sign-in in the browser window (%s allowed)", cfg.Browser.LoginTimeout())
		sess, err := mgr.Login(ctx)
		if err != nil {
			var timeoutErr *browser.LoginTimeoutError
			if errors.As(err, &timeoutErr) {
				printError("Login window expired after %s", timeoutErr.Timeout)
			}
			return err
		}

		printSuccess("Session captured, valid until %s", sess.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the captured portal session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		sessions, err := session.NewStore(cfg.Session.Path, cfg.Session.TTL())
		if err != nil {
			return err
		}
		if err := sessions.Clear(); err != nil {
			return err
		}

		printSuccess("Session cleared")
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deckhand system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			var health struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Server", "running on port %d (version %s)", cfg.Server.Port, health.Version)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		sessions, err := session.NewStore(cfg.Session.Path, cfg.Session.TTL())
		if err == nil {
			sess, loadErr := sessions.Load()
			switch {
			case loadErr != nil:
				printStatus("Session", "error: %v", loadErr)
			case sess == nil:
				printStatus("Session", "none (run 'deckhand login')")
			case sess.Valid(time.Now()):
				printStatus("Session", "valid until %s", sess.ExpiresAt.Format(time.RFC3339))
			default:
				printStatus("Session", "expired %s", sess.ExpiresAt.Format(time.RFC3339))
			}
		}

		if cfg.Storage.Enabled() {
			printStatus("Storage", "s3://%s/%s", cfg.Storage.Bucket, cfg.Storage.Prefix)
		} else {
			printStatus("Storage", "disabled")
		}
		printStatus("History", "%s", cfg.History.Path)
		printStatus("Downloads", "%s", cfg.Browser.DownloadDir)
		printStatus("Logs", "%s", cfg.Logging.Dir)
		return nil
	},
}
