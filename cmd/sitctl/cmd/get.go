package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	listStatus  string
	listBackend string
	listPage    int
	listPerPage int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (PENDING, EXTRACTING, ANALYZING, COMPLETED, FAILED)")
	listCmd.Flags().StringVar(&listBackend, "backend", "", "Filter by backend (classic, bridged)")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	listCmd.Flags().IntVar(&listPerPage, "per-page", 50, "Items per page")
}

func runList(_ *cobra.Command, _ []string) error {
	q := url.Values{}
	if listStatus != "" {
		q.Set("status", listStatus)
	}
	if listBackend != "" {
		q.Set("backend", listBackend)
	}
	q.Set("page", strconv.Itoa(listPage))
	q.Set("per_page", strconv.Itoa(listPerPage))

	body, err := newClientFromFlags().Get("/api/v1/scans?" + q.Encode())
	if err != nil {
		return err
	}

	if flagOutput == "json" {
		printJSON(body)
		return nil
	}

	var resp struct {
		Data []scanRow `json:"data"`
		Total int64    `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printScanTable(resp.Data, resp.Total)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status <scan-id>",
	Short: "Show the progress snapshot of a scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		body, err := newClientFromFlags().Get("/api/v1/scans/" + args[0] + "/progress")
		if err != nil {
			return err
		}
		if flagOutput == "json" {
			printJSON(body)
			return nil
		}
		var view progressRow
		if err := json.Unmarshal(body, &view); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		printProgress(view)
		return nil
	},
}

var (
	candType     string
	candMinScore float64
	candPage     int
	candPerPage  int
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates <scan-id>",
	Short: "List the aggregated candidates of a scan",
	Long: `List the aggregated candidate results of a scan.

Results are deduplicated across files and ranked by score. The listing
is available mid-scan with whatever has been gathered so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runCandidates,
}

func init() {
	candidatesCmd.Flags().StringVar(&candType, "type", "", "Filter by candidate type (PATTERN, KEYWORD, ENTITY)")
	candidatesCmd.Flags().Float64Var(&candMinScore, "min-score", 0, "Only show candidates at or above this score")
	candidatesCmd.Flags().IntVar(&candPage, "page", 1, "Page number")
	candidatesCmd.Flags().IntVar(&candPerPage, "per-page", 50, "Items per page")
}

func runCandidates(_ *cobra.Command, args []string) error {
	q := url.Values{}
	if candType != "" {
		q.Set("type", candType)
	}
	if candMinScore > 0 {
		q.Set("min_score", strconv.FormatFloat(candMinScore, 'f', -1, 64))
	}
	q.Set("page", strconv.Itoa(candPage))
	q.Set("per_page", strconv.Itoa(candPerPage))

	body, err := newClientFromFlags().Get("/api/v1/scans/" + args[0] + "/candidates?" + q.Encode())
	if err != nil {
		return err
	}

	if flagOutput == "json" {
		printJSON(body)
		return nil
	}

	var resp struct {
		Data  []candidateRow `json:"data"`
		Total int64          `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printCandidateTable(resp.Data, resp.Total)
	return nil
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <scan-id>",
	Short: "Request cancellation of a running scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if _, err := newClientFromFlags().Post("/api/v1/scans/"+args[0]+"/cancel", nil); err != nil {
			return err
		}
		fmt.Printf("Cancellation requested for scan %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <scan-id>",
	Short: "Delete a scan and its staged files",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := newClientFromFlags().Delete("/api/v1/scans/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Scan %s deleted\n", args[0])
		return nil
	},
}
