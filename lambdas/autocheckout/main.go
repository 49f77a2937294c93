package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"axiapac.com/attendance/config"
	"axiapac.com/attendance/core"
	"axiapac.com/attendance/infrastructure/communication"
	"axiapac.com/attendance/infrastructure/devops"
	"axiapac.com/attendance/infrastructure/filesystem"
	"axiapac.com/attendance/infrastructure/locking"
	"axiapac.com/attendance/infrastructure/logging"
	"github.com/aws/aws-lambda-go/lambda"
)

const module = "autocheckout"

var logger = logging.GetLogger()

func Sweep(ctx context.Context, cfg *config.Config, event SweepEvent) (*SweepReport, error) {
	env := resolveEnv(event.Env)
	servers, err := devops.LoadDatabases(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("failed to load databases: %w", err)
	}

	sweeper := &Sweeper{Workers: cfg.SweepWorkers, DryRun: event.DryRun, Logger: logger, Now: time.Now}
	if cfg.RedisAddress != "" {
		rdb, err := locking.Connect(ctx, cfg.RedisAddress)
		if err != nil {
			logging.LogError(logger, module, "Sweep", "connect redis, sweeping without company leases", cfg.RedisAddress, err)
		} else {
			defer rdb.Close()
			sweeper.Locker = locking.NewRedisLocker(rdb)
		}
	}

	report := &SweepReport{Env: env, StartedAt: time.Now().UTC(), DryRun: event.DryRun}

	names := event.Servers
	if len(names) == 0 {
		names = sortedKeys(servers)
	}
	for _, name := range names {
		entry, ok := servers[strings.ToLower(name)]
		if !ok {
			report.Schemas = append(report.Schemas, SchemaReport{Server: name, Error: "server not found in parameter store"})
			continue
		}
		report.Schemas = append(report.Schemas, sweepServer(ctx, sweeper, entry, event.Databases)...)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func sweepServer(ctx context.Context, sweeper *Sweeper, entry devops.DBEntry, databases *[]string) []SchemaReport {
	schemas := entry.Schemas
	if databases != nil {
		schemas = *databases
	}
	if len(schemas) == 0 {
		dm, err := core.New(entry.GetDSN(""), 2)
		if err != nil {
			return []SchemaReport{{Server: entry.Name, Error: err.Error()}}
		}
		schemas, err = dm.ListSchemas(ctx)
		dm.Close()
		if err != nil {
			return []SchemaReport{{Server: entry.Name, Error: err.Error()}}
		}
	}

	reports := make([]SchemaReport, 0, len(schemas))
	for _, schema := range schemas {
		db, err := core.OpenSchema(entry.GetDSN(schema), sweeper.Workers+1, core.LogLevelError)
		if err != nil {
			logging.LogError(logger, module, "sweepServer", "open schema", schema, err)
			reports = append(reports, SchemaReport{Server: entry.Name, Schema: schema, Error: err.Error()})
			continue
		}
		reports = append(reports, sweeper.SweepSchema(ctx, entry.Name, schema, db))
		core.CloseDB(db)
	}
	return reports
}

// publish archives the report and notifies Slack. Failures here never fail the run.
func publish(ctx context.Context, cfg *config.Config, report *SweepReport, notifier communication.Notifier) {
	if cfg.ReportBucket != "" {
		archive, err := filesystem.NewArchive(ctx, cfg.ReportBucket)
		if err == nil {
			key := filesystem.ReportKey("autocheckout", report.Env, report.StartedAt, report.StartedAt.Format("20060102T150405Z"))
			err = archive.PutJSON(ctx, key, report)
		}
		if err != nil {
			logging.LogError(logger, module, "publish", "archive report", cfg.ReportBucket, err)
		}
	}

	message, failed := report.Summary()
	logger.WithField("env", report.Env).Info(message)
	if notifier == nil {
		return
	}
	var err error
	if failed {
		err = notifier.Error(ctx, message)
	} else {
		err = notifier.Info(ctx, message)
	}
	if err != nil {
		logging.LogError(logger, module, "publish", "notify slack", nil, err)
	}
}

func HandleRequest(ctx context.Context, event SweepEvent) (*SweepReport, error) {
	eventJson, _ := json.Marshal(event)
	logger.WithField("event", string(eventJson)).Info("auto checkout sweep requested")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	report, err := Sweep(ctx, cfg, event)
	if err != nil {
		logging.LogError(logger, module, "HandleRequest", "sweep", event, err)
		if slack := communication.ConnectSlack(); slack != nil {
			_ = slack.Error(ctx, fmt.Sprintf("auto checkout sweep failed: %v", err))
		}
		return nil, err
	}

	var notifier communication.Notifier
	if slack := communication.ConnectSlack(); slack != nil {
		notifier = slack
	}
	publish(ctx, cfg, report, notifier)
	return report, nil
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(HandleRequest)
		return
	}

	// local run: a dry run against the dev servers
	report, err := HandleRequest(context.Background(), SweepEvent{DryRun: true})
	if err != nil {
		logger.WithError(err).Error("auto checkout sweep failed")
		os.Exit(1)
	}
	resJson, _ := json.MarshalIndent(report, "", "  ")
	fmt.Printf("%s\n", resJson)
}
