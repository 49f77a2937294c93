package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	attendance "axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SweepEvent struct {
	Servers   []string  `json:"servers"`
	Databases *[]string `json:"databases"`
	DryRun    bool      `json:"dryRun"`
	Env       string    `json:"env"`
}

// SchemaReport is the outcome of one tenant schema.
type SchemaReport struct {
	Server  string                  `json:"server"`
	Schema  string                  `json:"schema"`
	Skipped bool                    `json:"skipped,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Result  *attendance.SweepResult `json:"result,omitempty"`
}

type SweepReport struct {
	Env        string         `json:"env"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	DryRun     bool           `json:"dryRun"`
	Schemas    []SchemaReport `json:"schemas"`
}

// Totals adds up the per-schema results.
func (r *SweepReport) Totals() (swept, executed, started, cancelled, errors int) {
	for _, schema := range r.Schemas {
		if schema.Error != "" {
			errors++
		}
		if schema.Result == nil {
			continue
		}
		swept++
		executed += schema.Result.CheckoutsExecuted
		started += schema.Result.CountdownsStarted
		cancelled += schema.Result.CountdownsCancelled
		errors += schema.Result.Errors
	}
	return
}

// Summary is the one-line notification text; failed reports whether it belongs
// on the error channel.
func (r *SweepReport) Summary() (message string, failed bool) {
	swept, executed, started, cancelled, errs := r.Totals()
	message = fmt.Sprintf("[%s] auto checkout: %d schema(s) swept, %d checkout(s) executed, %d countdown(s) started, %d cancelled, %d error(s)",
		r.Env, swept, executed, started, cancelled, errs)
	if r.DryRun {
		message += " (dry run)"
	}

	var broken []string
	for _, schema := range r.Schemas {
		if schema.Error != "" {
			broken = append(broken, fmt.Sprintf("%s/%s: %s", schema.Server, schema.Schema, schema.Error))
		}
	}
	if len(broken) > 0 {
		message += "\n" + strings.Join(broken, "\n")
	}
	return message, errs > 0
}

// Sweeper runs the enforcer over one schema at a time.
type Sweeper struct {
	Workers int
	Locker  attendance.Locker
	DryRun  bool
	Logger  *logrus.Logger
	Now     func() time.Time
}

func (s *Sweeper) SweepSchema(ctx context.Context, server, schema string, db *gorm.DB) SchemaReport {
	report := SchemaReport{Server: server, Schema: schema}
	if !store.Provisioned(db) {
		s.Logger.WithField("schema", schema).Debug("attendance tables not found, skipping")
		report.Skipped = true
		return report
	}

	st := store.NewGormStore(db)
	enforcer := attendance.NewEnforcer(st)
	enforcer.Workers = s.Workers
	enforcer.Locker = s.Locker
	enforcer.LockPrefix = schema + ":"
	enforcer.DryRun = s.DryRun
	enforcer.Logger = s.Logger

	result, err := enforcer.Run(ctx, st, s.Now())
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Result = &result
	return report
}

func resolveEnv(event string) string {
	env := strings.ToLower(strings.TrimSpace(event))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(os.Getenv("ATTENDANCE_ENV")))
	}
	if env == "" {
		env = "dev"
	}
	return env
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
