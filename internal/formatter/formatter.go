// package formatter renders batch results, tasks and batch history as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
)

// Format is an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat accepts a format name or a file extension ("md", ".csv").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Summary is the one-line outcome of a batch, e.g. "成功 2, 失败 1, 共 3".
func Summary(result *models.BatchResult) string {
	s := fmt.Sprintf("成功 %d, 失败 %d, 共 %d", result.SuccessCount, result.FailedCount, result.Total)
	if result.Cancelled {
		s += " (已取消)"
	}
	return s
}

// ResultToCSV writes one row per failed item with columns: Key, Label, Error
func ResultToCSV(result *models.BatchResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Key", "Label", "Error"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range result.FailedItems {
		if err := writer.Write([]string{item.ItemKey, item.Label, item.Error}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ResultToMarkdown renders a batch result under the given title with a table of failures
func ResultToMarkdown(title string, result *models.BatchResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)
	if result.TaskID > 0 {
		fmt.Fprintf(&buf, "**Task**: #%d\n", result.TaskID)
	}
	fmt.Fprintf(&buf, "**Result**: %s\n\n", Summary(result))

	if len(result.FailedItems) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("## Failed\n\n")
	buf.WriteString("| Key | Label | Error |\n")
	buf.WriteString("| --- | --- | --- |\n")
	for _, item := range result.FailedItems {
		fmt.Fprintf(&buf, "| %s | %s | %s |\n", escapeCell(item.ItemKey), escapeCell(item.Label), escapeCell(item.Error))
	}
	return buf.Bytes(), nil
}

// ResultToText renders a batch result as plain text
func ResultToText(title string, result *models.BatchResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s: %s\n", title, Summary(result))
	for i, item := range result.FailedItems {
		label := item.Label
		if label == "" {
			label = item.ItemKey
		}
		fmt.Fprintf(&buf, "%d. %s: %s\n", i+1, label, item.Error)
	}
	return buf.Bytes(), nil
}

// Result renders a batch result in the given format.
func Result(format Format, title string, result *models.BatchResult) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ResultToCSV(result)
	case FormatMarkdown:
		return ResultToMarkdown(title, result)
	default:
		return ResultToText(title, result)
	}
}

// TasksToText renders tasks one per line: id, status, progress, name and detail
func TasksToText(tasks []models.Task) []byte {
	var buf bytes.Buffer
	for _, t := range tasks {
		fmt.Fprintf(&buf, "#%-4d %-9s %3d%% %d/%d  %s", t.ID, t.Status, t.Progress, t.Current, t.Total, t.Name)
		if t.Detail != "" {
			fmt.Fprintf(&buf, "  (%s)", t.Detail)
		}
		if t.Error != "" {
			fmt.Fprintf(&buf, "  error: %s", t.Error)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RunsToCSV writes batch history with columns: ID, Task, Name, Type, Status, Total, Success, Failed, Cancelled, CreatedAt
func RunsToCSV(runs []*models.BatchRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Task", "Name", "Type", "Status", "Total", "Success", "Failed", "Cancelled", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		record := []string{
			run.ID(),
			strconv.FormatInt(run.TaskID(), 10),
			run.Name(),
			string(run.Type()),
			string(run.Status()),
			strconv.Itoa(run.Total()),
			strconv.Itoa(run.SuccessCount()),
			strconv.Itoa(run.FailedCount()),
			strconv.FormatBool(run.Cancelled()),
			run.CreatedAt().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// RunsToMarkdown renders batch history as a Markdown table
func RunsToMarkdown(runs []*models.BatchRun) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Batch History\n\n")
	buf.WriteString("| When | Name | Type | Status | Success | Failed | Total |\n")
	buf.WriteString("| --- | --- | --- | --- | --- | --- | --- |\n")
	for _, run := range runs {
		fmt.Fprintf(&buf, "| %s | %s | %s | %s | %d | %d | %d |\n",
			run.CreatedAt().Format("2006-01-02 15:04"), escapeCell(run.Name()), run.Type(), run.Status(),
			run.SuccessCount(), run.FailedCount(), run.Total())
	}
	return buf.Bytes()
}

// RunsToText renders batch history one run per line
func RunsToText(runs []*models.BatchRun) []byte {
	var buf bytes.Buffer
	for _, run := range runs {
		fmt.Fprintf(&buf, "%s  %-9s %-8s %s  成功 %d, 失败 %d, 共 %d\n",
			run.CreatedAt().Format("2006-01-02 15:04"), run.Status(), run.Type(), run.Name(),
			run.SuccessCount(), run.FailedCount(), run.Total())
	}
	return buf.Bytes()
}

// Runs renders batch history in the given format.
func Runs(format Format, runs []*models.BatchRun) ([]byte, error) {
	switch format {
	case FormatCSV:
		return RunsToCSV(runs)
	case FormatMarkdown:
		return RunsToMarkdown(runs), nil
	default:
		return RunsToText(runs), nil
	}
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FormatForPath picks the export format from a file extension, defaulting to text.
func FormatForPath(path string) Format {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return FormatText
	}
	return f
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
