package formatter

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	th "github.com/desertthunder/mpsync/internal/testing"
)

func sampleResult() *models.BatchResult {
	return &models.BatchResult{
		Total:        3,
		SuccessCount: 1,
		FailedCount:  2,
		TaskID:       4,
		FailedItems: []models.FailedItem{
			{ItemKey: "200", Label: "删除《Second》失败", Error: "已被他人声明原创"},
			{ItemKey: "300", Label: "", Error: "a|b\nc"},
		},
	}
}

func sampleRuns() []*models.BatchRun {
	created := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	a := models.NewBatchRun(
		models.Task{ID: 1, Name: "批量删除草稿", Type: models.TaskTypeDelete, Status: models.TaskCompleted},
		models.BatchResult{Total: 3, SuccessCount: 3},
	)
	a.SetID("run-a")
	a.SetCreatedAt(created)
	b := models.NewBatchRun(
		models.Task{ID: 2, Name: "同步草稿", Type: models.TaskTypeSync, Status: models.TaskCancelled},
		models.BatchResult{Total: 2, SuccessCount: 1, Cancelled: true},
	)
	b.SetID("run-b")
	b.SetCreatedAt(created.Add(time.Hour))
	return []*models.BatchRun{a, b}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"txt", FormatText, false},
		{"md", FormatMarkdown, false},
		{".MD", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{".csv", FormatCSV, false},
		{"xlsx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if FormatForPath("out/report.csv") != FormatCSV {
		t.Error("expected csv from extension")
	}
	if FormatForPath("report.xlsx") != FormatText {
		t.Error("expected text for unknown extension")
	}
}

func TestResultExporters(t *testing.T) {
	t.Run("Summary", func(t *testing.T) {
		r := sampleResult()
		if got := Summary(r); got != "成功 1, 失败 2, 共 3" {
			t.Errorf("unexpected summary %q", got)
		}
		r.Cancelled = true
		if got := Summary(r); !strings.HasSuffix(got, "(已取消)") {
			t.Errorf("expected cancelled marker, got %q", got)
		}
	})

	t.Run("CSV", func(t *testing.T) {
		data, err := ResultToCSV(sampleResult())
		if err != nil {
			t.Fatalf("ResultToCSV failed: %v", err)
		}
		output := string(data)
		if !strings.HasPrefix(output, "Key,Label,Error\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "200,删除《Second》失败,已被他人声明原创") {
			t.Errorf("CSV missing first failure, got: %s", output)
		}
		if !strings.Contains(output, "\"a|b\nc\"") {
			t.Errorf("CSV should quote multi-line errors, got: %s", output)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := ResultToMarkdown("批量删除草稿", sampleResult())
		if err != nil {
			t.Fatalf("ResultToMarkdown failed: %v", err)
		}
		output := string(data)
		for _, want := range []string{
			"# 批量删除草稿",
			"**Task**: #4",
			"**Result**: 成功 1, 失败 2, 共 3",
			"## Failed",
			"| 200 | 删除《Second》失败 | 已被他人声明原创 |",
			"| 300 |  | a\\|b c |",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("MarkdownWithoutFailures", func(t *testing.T) {
		data, _ := ResultToMarkdown("ok", &models.BatchResult{Success: true, Total: 1, SuccessCount: 1})
		if strings.Contains(string(data), "## Failed") {
			t.Errorf("unexpected failure section:\n%s", data)
		}
	})

	t.Run("Text", func(t *testing.T) {
		data, err := Result(FormatText, "批量删除草稿", sampleResult())
		if err != nil {
			t.Fatalf("Result failed: %v", err)
		}
		want := "批量删除草稿: 成功 1, 失败 2, 共 3\n1. 删除《Second》失败: 已被他人声明原创\n2. 300: a|b\nc\n"
		if string(data) != want {
			t.Errorf("unexpected text:\n%q\nwant\n%q", data, want)
		}
	})
}

func TestTasksToText(t *testing.T) {
	output := string(TasksToText([]models.Task{
		{ID: 1, Name: "同步草稿", Status: models.TaskRunning, Current: 1, Total: 2, Progress: 50, Detail: "正在同步到《B》"},
		{ID: 2, Name: "批量发布", Status: models.TaskFailed, Total: 1, Error: "全部发布失败"},
	}))

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), output)
	}
	if !strings.Contains(lines[0], "running") || !strings.Contains(lines[0], " 50% 1/2") || !strings.Contains(lines[0], "(正在同步到《B》)") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "error: 全部发布失败") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestRunExporters(t *testing.T) {
	t.Run("CSV", func(t *testing.T) {
		data, err := Runs(FormatCSV, sampleRuns())
		if err != nil {
			t.Fatalf("RunsToCSV failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "ID,Task,Name,Type,Status,Total,Success,Failed,Cancelled,CreatedAt") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "run-b,2,同步草稿,sync,cancelled,2,1,0,true,2026-10-01T10:30:00Z") {
			t.Errorf("CSV missing second run, got: %s", output)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, _ := Runs(FormatMarkdown, sampleRuns())
		if !strings.Contains(string(data), "| 2026-10-01 09:30 | 批量删除草稿 | delete | completed | 3 | 0 | 3 |") {
			t.Errorf("unexpected markdown:\n%s", data)
		}
	})

	t.Run("Text", func(t *testing.T) {
		data, _ := Runs(FormatText, sampleRuns())
		if !strings.Contains(string(data), "同步草稿  成功 1, 失败 0, 共 2") {
			t.Errorf("unexpected text:\n%s", data)
		}
	})
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "delete.md")
	data, _ := ResultToMarkdown("批量删除草稿", sampleResult())

	if err := WriteFile(path, data); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	th.AssertFileExists(t, path)
	if got := th.MustReadFile(t, path); got != string(data) {
		t.Errorf("file content mismatch:\n%s", got)
	}
}
