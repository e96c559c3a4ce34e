package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// scanRow is the subset of the scan response the table output uses.
type scanRow struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Backend    string    `json:"backend"`
	Status     string    `json:"status"`
	Category   string    `json:"category"`
	FilesTotal int       `json:"files_total"`
	CreatedAt  time.Time `json:"created_at"`
}

// progressRow mirrors the progress snapshot payload.
type progressRow struct {
	ScanID          string  `json:"scan_id"`
	Status          string  `json:"status"`
	Phase           string  `json:"phase"`
	Percent         float64 `json:"percent"`
	FilesCompleted  int     `json:"files_completed"`
	FilesTotal      int     `json:"files_total"`
	CurrentFile     string  `json:"current_file"`
	Error           string  `json:"error"`
	AggregatedCount *int    `json:"aggregated_count"`
}

// candidateRow is the subset of an aggregated candidate the table shows.
type candidateRow struct {
	Key struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"key"`
	Value      string   `json:"value"`
	Score      *float64 `json:"score"`
	Confidence float64  `json:"confidence"`
	Frequency  int      `json:"frequency"`
	Files      []string `json:"files"`
	OCR        string   `json:"ocr"`
	Category   string   `json:"category"`
}

func printJSON(body []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

func printScanTable(rows []scanRow, total int64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBACKEND\tSTATUS\tCATEGORY\tFILES\tCREATED")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, orDash(r.Name), r.Backend, r.Status, r.Category, r.FilesTotal,
			r.CreatedAt.Local().Format(time.RFC3339))
	}
	w.Flush()
	fmt.Printf("\n%d scan(s) total\n", total)
}

func printCandidateTable(rows []candidateRow, total int64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tVALUE\tSCORE\tCONF\tFREQ\tFILES\tOCR\tCATEGORY")
	for _, r := range rows {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%.0f", *r.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%d\t%s\t%s\n",
			r.Key.Type, truncate(r.Value, 48), score, r.Confidence,
			r.Frequency, len(r.Files), r.OCR, r.Category)
	}
	w.Flush()
	fmt.Printf("\n%d candidate(s) total\n", total)
}

func printProgress(v progressRow) {
	fmt.Printf("Scan:    %s\n", v.ScanID)
	fmt.Printf("Status:  %s (%s)\n", v.Status, v.Phase)
	fmt.Printf("Percent: %.1f%% (%d/%d files)\n", v.Percent, v.FilesCompleted, v.FilesTotal)
	if v.CurrentFile != "" {
		fmt.Printf("Current: %s\n", v.CurrentFile)
	}
	if v.AggregatedCount != nil {
		fmt.Printf("Candidates so far: %d\n", *v.AggregatedCount)
	}
	if v.Error != "" {
		fmt.Printf("Error:   %s\n", v.Error)
	}
}

func printProgressLine(v progressRow) {
	line := fmt.Sprintf("[%5.1f%%] %s %d/%d",
		v.Percent, v.Status, v.FilesCompleted, v.FilesTotal)
	if v.CurrentFile != "" {
		line += "  " + truncate(v.CurrentFile, 60)
	}
	if v.AggregatedCount != nil {
		line += fmt.Sprintf("  (%d candidates)", *v.AggregatedCount)
	}
	fmt.Println(line)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
