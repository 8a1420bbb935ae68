package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"learnpulse/internal/scheduler"
	"learnpulse/internal/types"
)

func TestParseArgs(t *testing.T) {
	ref := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		args      []string
		want      options
		wantUsage bool
		wantCode  types.ErrorCode
	}{
		{name: "task", args: []string{"--task=risk_alerts"}, want: options{Task: scheduler.TaskRiskAlerts}},
		{
			name: "reference time normalized to UTC",
			args: []string{"--task=daily_risk_snapshot", "--reference-time=2026-03-10T11:00:00+09:00"},
			want: options{Task: scheduler.TaskDailyRiskSnapshot, Reference: &ref},
		},
		{name: "dry run", args: []string{"--task=daily_motivation", "--dry-run"}, want: options{Task: scheduler.TaskDailyMotivation, DryRun: true}},
		{name: "list ignores missing task", args: []string{"--list"}, want: options{List: true}},
		{name: "recompute", args: []string{"--recompute"}, want: options{Recompute: true}},
		{name: "missing task", args: nil, wantUsage: true},
		{name: "unknown task", args: []string{"--task=cleanup"}, wantCode: types.ErrCodeValidationUnknownTask},
		{name: "bad reference time", args: []string{"--task=risk_alerts", "--reference-time=yesterday"}, wantUsage: true},
		{name: "recompute with task", args: []string{"--recompute", "--task=risk_alerts"}, wantUsage: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args, io.Discard)
			switch {
			case tt.wantUsage:
				if !errors.Is(err, errUsage) {
					t.Fatalf("error = %v, want usage error", err)
				}
				return
			case tt.wantCode != "":
				if !types.HasCode(err, tt.wantCode) {
					t.Fatalf("error = %v, want code %s", err, tt.wantCode)
				}
				return
			case err != nil:
				t.Fatalf("parseArgs() error = %v", err)
			}

			if got.Task != tt.want.Task || got.List != tt.want.List || got.DryRun != tt.want.DryRun || got.Recompute != tt.want.Recompute {
				t.Errorf("parseArgs() = %+v, want %+v", got, tt.want)
			}
			if (got.Reference == nil) != (tt.want.Reference == nil) {
				t.Fatalf("Reference = %v, want %v", got.Reference, tt.want.Reference)
			}
			if got.Reference != nil && !got.Reference.Equal(*tt.want.Reference) {
				t.Errorf("Reference = %v, want %v", got.Reference, tt.want.Reference)
			}
			if got.Reference != nil && got.Reference.Location() != time.UTC {
				t.Errorf("Reference location = %v, want UTC", got.Reference.Location())
			}
		})
	}
}

func TestParseArgsHelp(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs([]string{"-h"}, &stderr)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(stderr.String(), "--list") {
		t.Errorf("usage output missing --list hint: %s", stderr.String())
	}
}

func TestPrintPayload(t *testing.T) {
	ref := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	opts := options{Task: scheduler.TaskDailyRiskSnapshot, Reference: &ref}

	var out, info bytes.Buffer
	if err := printPayload(&out, &info, opts.payload()); err != nil {
		t.Fatalf("printPayload() error = %v", err)
	}

	var decoded scheduler.JobPayload
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not a JobPayload: %v\n%s", err, out.String())
	}
	if decoded.Task != scheduler.TaskDailyRiskSnapshot {
		t.Errorf("task = %s", decoded.Task)
	}
	if decoded.ReferenceTime == nil || !decoded.ReferenceTime.Equal(ref) {
		t.Errorf("reference_time = %v, want %v", decoded.ReferenceTime, ref)
	}
	if !strings.Contains(info.String(), "2026-03-10T02:00:00Z") {
		t.Errorf("info output missing reference time: %s", info.String())
	}
}

func TestPrintPayloadOmitsReferenceTime(t *testing.T) {
	var out bytes.Buffer
	if err := printPayload(&out, io.Discard, scheduler.JobPayload{Task: scheduler.TaskRiskAlerts}); err != nil {
		t.Fatalf("printPayload() error = %v", err)
	}
	if strings.Contains(out.String(), "reference_time") {
		t.Errorf("payload should omit reference_time: %s", out.String())
	}
}

func TestPrintAvailableTasks(t *testing.T) {
	var buf bytes.Buffer
	printAvailableTasks(&buf)

	out := buf.String()
	for _, task := range scheduler.AllTasks {
		if !strings.Contains(out, string(task)) {
			t.Errorf("task list missing %s", task)
		}
		if taskDescriptions[task] == "" {
			t.Errorf("task %s has no description", task)
		}
	}
	if strings.Index(out, string(scheduler.TaskEngagementRecompute)) > strings.Index(out, string(scheduler.TaskDailyMotivation)) {
		t.Error("tasks should be listed in pipeline order")
	}
}
