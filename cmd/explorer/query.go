package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/OpenExplorer/internal/output"
	"github.com/PentesterFlow/OpenExplorer/internal/shutdown"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Run flags
var (
	runMethod    string
	runPath      string
	runBody      string
	runBodyFile  string
	runParams    []string
	runCommands  []string
	runTimeoutMs int
)

// Other command flags
var (
	testAll       bool
	historyLimit  int
	watchInterval time.Duration
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <endpoint-id> [definition-id]",
		Short: "Dispatch an API call to an endpoint",
		Long: `Dispatch an API call and record it in the endpoint's query history.

Name a catalog definition, or give --method and --path for an ad-hoc call.
Path placeholders such as {id} are filled from --param values.`,
		Example: `  openexplorer run ep_1 show-version
  openexplorer run ep_1 run-cmds --cmd "show version" --cmd "show interfaces"
  openexplorer run ep_2 --method GET --path /api/resources/inventory/v1/Device
  openexplorer run ep_3 interface-state --param name=Ethernet1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runRun,
	}

	runCmd.Flags().StringVarP(&runMethod, "method", "X", "", "HTTP verb or eAPI method")
	runCmd.Flags().StringVar(&runPath, "path", "", "Request path")
	runCmd.Flags().StringVarP(&runBody, "body", "d", "", "Request body as JSON or YAML")
	runCmd.Flags().StringVar(&runBodyFile, "body-file", "", "Read the request body from a file")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Body parameter as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runCommands, "cmd", nil, "eAPI command to run (repeatable)")
	runCmd.Flags().IntVar(&runTimeoutMs, "timeout", 0, "Timeout in milliseconds")
	return runCmd
}

func runRun(cmd *cobra.Command, args []string) error {
	body, err := buildBody(runBody, runBodyFile, runParams, runCommands)
	if err != nil {
		return err
	}

	req := model.ExplorerRequest{
		EndpointID: args[0],
		Method:     runMethod,
		Path:       runPath,
		Body:       body,
		TimeoutMs:  runTimeoutMs,
	}
	if len(args) > 1 {
		req.DefinitionID = args[1]
	}

	resp, err := app.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	if err := out.Write(output.Response(resp)); err != nil {
		return err
	}
	if resp.Failed() {
		return fmt.Errorf("request %s failed: %s", resp.LogID, resp.Error)
	}
	return nil
}

// buildBody merges the body text, the body file, key=value params and eAPI
// commands into one request body. Later sources win on key clashes.
func buildBody(text, file string, params, commands []string) (map[string]any, error) {
	body := make(map[string]any)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		if err := mergeDocument(body, data); err != nil {
			return nil, fmt.Errorf("invalid body file %s: %w", file, err)
		}
	}
	if text != "" {
		if err := mergeDocument(body, []byte(text)); err != nil {
			return nil, fmt.Errorf("invalid body: %w", err)
		}
	}

	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid param %q: expected key=value", p)
		}
		body[strings.TrimSpace(key)] = value
	}

	if len(commands) > 0 {
		var cmds []any
		if existing, ok := body["cmds"].([]any); ok {
			cmds = existing
		}
		for _, c := range commands {
			cmds = append(cmds, c)
		}
		body["cmds"] = cmds
	}

	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// mergeDocument decodes a YAML (and so also JSON) mapping into body.
func mergeDocument(body map[string]any, data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil && len(strings.TrimSpace(string(data))) > 0 {
		return fmt.Errorf("body must be a mapping")
	}
	for k, v := range doc {
		body[k] = v
	}
	return nil
}

func newTestCmd() *cobra.Command {
	testCmd := &cobra.Command{
		Use:   "test [endpoint-id]",
		Short: "Run connection tests and update the inventory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case testAll:
				results, err := app.TestAll(cmd.Context())
				if err != nil {
					return err
				}
				return out.Write(output.TestResults(results))
			case len(args) == 1:
				res, err := app.Test(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := out.Write(output.TestResults{args[0]: res}); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("connection test failed: %s", res.Message)
				}
				return nil
			default:
				return fmt.Errorf("an endpoint id or --all is required")
			}
		},
	}
	testCmd.Flags().BoolVarP(&testAll, "all", "a", false, "Test every registered endpoint")
	return testCmd
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history [endpoint-id]",
		Short: "Show the query history of an endpoint, or of all endpoints",
		Example: `  openexplorer history
  openexplorer history ep_1a2b3c -n 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var endpointID string
			if len(args) == 1 {
				endpointID = args[0]
			}
			records, err := app.History(cmd.Context(), endpointID, historyLimit)
			if err != nil {
				return err
			}
			return out.Write(output.Records(records))
		},
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Most recent records to show (0 for all)")
	return historyCmd
}

func newInventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Show the device health scorecards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return out.Write(output.Inventory(app.Inventory()))
		},
	}
}

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Test every endpoint on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Minute, "Time between sweeps")
	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	h := shutdown.New(cmd.Context(), shutdown.Config{Logger: app.Logger()})
	h.Register("output", func(ctx context.Context) error { return out.Flush() })

	sweeps := app.Watch(h.Context(), func(results map[string]model.ConnectionTestResult) {
		if err := out.WriteEvent("sweep", output.TestResults(results)); err != nil {
			app.Logger().WithError(err).Warn("Failed to write sweep")
		}
	})

	h.Shutdown()
	<-h.Done()

	app.Logger().Infof("Watch stopped after %d sweeps", sweeps)
	return out.Write(output.Stats(*app.Stats()))
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the recorded query history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := app.LedgerStats(cmd.Context())
			if err != nil {
				return err
			}
			return out.Write(output.Stats(*snap))
		},
	}
}
