package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/warechat/warechat/internal/schema"
)

var version = "dev"

var (
	serverAddr string
	askTimeout time.Duration
	rawOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "warechatctl",
	Short: "Operator CLI for the warechat API",
	Long:  "warechatctl talks to a running warechat API instance and validates schema catalog documents offline.",
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the warehouse a question in plain language",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Work with schema catalog documents",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a schema catalog document",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaValidate,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the prompt text a schema document produces",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaShow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the warechatctl version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	askCmd.Flags().StringVar(&serverAddr, "server", "http://localhost:8080", "Base URL of the warechat API")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "How long to wait for an answer")
	askCmd.Flags().BoolVar(&rawOutput, "json", false, "Print the raw JSON response")

	schemaCmd.AddCommand(schemaValidateCmd, schemaShowCmd)
	rootCmd.AddCommand(askCmd, schemaCmd, versionCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(map[string]any{"question": args[0]})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: askTimeout}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, serverAddr+"/v1/ask", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverAddr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if rawOutput {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			ErrorCode string `json:"error_code"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorCode != "" {
			return fmt.Errorf("%s: %s", apiErr.ErrorCode, apiErr.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var answer struct {
		DisplaySQL string `json:"display_sql"`
		Summary    string `json:"summary"`
		Result     *struct {
			Columns      []string         `json:"columns"`
			Rows         []map[string]any `json:"rows"`
			RowCount     int              `json:"row_count"`
			DisplayCount int              `json:"display_count"`
			Truncated    bool             `json:"truncated"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &answer); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.DisplaySQL)
	fmt.Fprintln(out)
	if answer.Result != nil {
		printRows(out, answer.Result.Columns, answer.Result.Rows)
		if answer.Result.Truncated {
			fmt.Fprintf(out, "(showing %d of %d rows)\n", answer.Result.DisplayCount, answer.Result.RowCount)
		}
	}
	if answer.Summary != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, answer.Summary)
	}
	return nil
}

func printRows(out io.Writer, columns []string, rows []map[string]any) {
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(out, "\t")
		}
		fmt.Fprint(out, col)
	}
	fmt.Fprintln(out)
	for _, row := range rows {
		for i, col := range columns {
			if i > 0 {
				fmt.Fprint(out, "\t")
			}
			fmt.Fprintf(out, "%v", row[col])
		}
		fmt.Fprintln(out)
	}
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tables, %d columns\n", args[0], catalog.TableCount(), catalog.ColumnCount())

	summary := catalog.Summarize()
	names := make([]string, 0, len(summary.Tables))
	for name := range summary.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d columns)\n", name, summary.Tables[name].ColumnCount)
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), catalog.PromptText())
	return nil
}

func loadCatalog(path string) (*schema.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	catalog, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid schema document: %w", path, err)
	}
	return catalog, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
