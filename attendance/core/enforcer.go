package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"axiapac.com/attendance/attendance/model"
	"axiapac.com/attendance/infrastructure/logging"
	"axiapac.com/attendance/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	DefaultSweepWorkers = 8
	companyLeaseTTL     = 2 * time.Minute
)

// SessionDetail is what the sweep did with one open session.
type SessionDetail struct {
	SessionID  int64                `json:"sessionId"`
	EmployeeID int64                `json:"employeeId"`
	CompanyID  int64                `json:"companyId"`
	From       StateName            `json:"from"`
	To         StateName            `json:"to"`
	Action     Action               `json:"action"`
	Reason     model.CheckoutReason `json:"reason,omitempty"`
	Deadline   *time.Time           `json:"deadline,omitempty"`
	Error      string               `json:"error,omitempty"`
}

type SweepResult struct {
	RunID               string          `json:"runId"`
	StartedAt           time.Time       `json:"startedAt"`
	DryRun              bool            `json:"dryRun"`
	CompaniesSwept      int             `json:"companiesSwept"`
	CompaniesSkipped    int             `json:"companiesSkipped"`
	SessionsProcessed   int             `json:"sessionsProcessed"`
	CountdownsStarted   int             `json:"countdownsStarted"`
	CheckoutsExecuted   int             `json:"checkoutsExecuted"`
	CountdownsCancelled int             `json:"countdownsCancelled"`
	Errors              int             `json:"errors"`
	Details             []SessionDetail `json:"perSessionDetails"`
}

func (r *SweepResult) add(detail SessionDetail) {
	r.SessionsProcessed++
	switch detail.Action {
	case ActionCountdownStarted:
		r.CountdownsStarted++
	case ActionCheckoutExecuted:
		r.CheckoutsExecuted++
	case ActionCountdownCancelled:
		r.CountdownsCancelled++
	}
	if detail.Error != "" {
		r.Errors++
	}
	r.Details = append(r.Details, detail)
}

// Enforcer is the auto-checkout sweep. It is driven by an external scheduler and
// may run concurrently with itself and with manual check-outs.
type Enforcer struct {
	store SweepStore

	Workers    int
	Locker     Locker
	LockPrefix string
	DryRun     bool
	Logger     *logrus.Logger
	NewID      func() string
}

func NewEnforcer(store SweepStore) *Enforcer {
	return &Enforcer{
		store:   store,
		Workers: DefaultSweepWorkers,
		Logger:  logging.GetLogger(),
		NewID:   uuid.NewString,
	}
}

// Run loads the company settings once and sweeps with them.
func (e *Enforcer) Run(ctx context.Context, settings SettingsSource, now time.Time) (SweepResult, error) {
	list, err := settings.ListSettings(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load auto checkout settings: %w", err)
	}
	return e.Sweep(ctx, now, list), nil
}

// Sweep evaluates every open session of every enforced company. Failures are
// recorded in the result and never stop the sweep.
func (e *Enforcer) Sweep(ctx context.Context, now time.Time, settings []model.AutoCheckoutSettings) SweepResult {
	now = now.UTC()
	result := SweepResult{RunID: e.NewID(), StartedAt: now, DryRun: e.DryRun, Details: []SessionDetail{}}

	for _, companySettings := range settings {
		if !companySettings.Enforced() {
			continue
		}

		unlock, ok := e.lease(ctx, companySettings.CompanyID)
		if !ok {
			result.CompaniesSkipped++
			continue
		}
		e.sweepCompany(ctx, now, companySettings, &result)
		unlock()
		result.CompaniesSwept++
	}

	sort.SliceStable(result.Details, func(i, j int) bool {
		return result.Details[i].SessionID < result.Details[j].SessionID
	})

	e.Logger.WithFields(logrus.Fields{
		"run_id":               result.RunID,
		"dry_run":              result.DryRun,
		"companies_swept":      result.CompaniesSwept,
		"companies_skipped":    result.CompaniesSkipped,
		"sessions_processed":   result.SessionsProcessed,
		"countdowns_started":   result.CountdownsStarted,
		"checkouts_executed":   result.CheckoutsExecuted,
		"countdowns_cancelled": result.CountdownsCancelled,
		"errors":               result.Errors,
	}).Info("auto checkout sweep finished")

	return result
}

func (e *Enforcer) lease(ctx context.Context, companyID int64) (func(), bool) {
	if e.Locker == nil {
		return func() {}, true
	}
	key := fmt.Sprintf("%sautocheckout:company:%d", e.LockPrefix, companyID)
	unlock, ok, err := e.Locker.TryLock(ctx, key, companyLeaseTTL)
	if err != nil {
		// the lease only saves duplicate work, conditional writes keep the sweep correct
		logging.LogError(e.Logger, module, "lease", "obtain company lease", key, err)
		return func() {}, true
	}
	if !ok {
		e.Logger.WithField("company_id", companyID).Info("company is being swept by another run, skipping")
		return nil, false
	}
	return unlock, true
}

func (e *Enforcer) sweepCompany(ctx context.Context, now time.Time, settings model.AutoCheckoutSettings, result *SweepResult) {
	sessions, err := e.store.ListOpenSessions(ctx, settings.CompanyID)
	if err != nil {
		logging.LogError(e.Logger, module, "sweepCompany", "list open sessions", settings.CompanyID, err)
		sweepErrors.Inc()
		result.Errors++
		return
	}

	workers := e.Workers
	if workers <= 0 {
		workers = DefaultSweepWorkers
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)
	for _, session := range sessions {
		g.Go(func() error {
			detail := e.processSession(ctx, now, settings, session)
			mu.Lock()
			result.add(detail)
			mu.Unlock()
			return nil
		})
	}
	// workers never fail; their errors are recorded in the details
	g.Wait()
}

func (e *Enforcer) processSession(ctx context.Context, now time.Time, settings model.AutoCheckoutSettings, session model.AttendanceLog) (detail SessionDetail) {
	detail = SessionDetail{
		SessionID:  session.ID,
		EmployeeID: session.EmployeeID,
		CompanyID:  session.CompanyID,
		Action:     ActionNone,
	}
	defer func() {
		sweepSessions.Inc()
		if detail.Error != "" {
			sweepErrors.Inc()
			return
		}
		if detail.Action != ActionNone && detail.Action != ActionCountdownRunning {
			sweepActions.WithLabelValues(string(detail.Action), string(detail.Reason)).Inc()
		}
	}()

	fail := func(step string, err error) SessionDetail {
		logging.LogError(e.Logger, module, "processSession", step, detail, err)
		detail.Error = fmt.Sprintf("%s: %v", step, err)
		return detail
	}

	heartbeat, err := e.store.LatestHeartbeat(ctx, session.EmployeeID)
	if err != nil {
		return fail("latest heartbeat", err)
	}
	pending, err := e.store.FindPending(ctx, session.ID)
	if err != nil {
		return fail("find pending", err)
	}

	trigger := EvaluateTrigger(session, heartbeat, settings, now)
	decision := Decide(StateOf(session, pending), trigger, settings, now)
	detail.From = decision.From
	detail.To = decision.To
	detail.Action = decision.Action
	detail.Reason = decision.Reason
	if !decision.Deadline.IsZero() {
		detail.Deadline = utils.Ptr(decision.Deadline)
	}

	if e.DryRun {
		return detail
	}

	switch decision.Action {
	case ActionCountdownStarted:
		record := &model.AutoCheckoutPending{
			ID:              e.NewID(),
			AttendanceLogID: session.ID,
			EmployeeID:      session.EmployeeID,
			CompanyID:       session.CompanyID,
			Reason:          decision.Reason,
			Status:          model.PendingStatusPending,
			DeadlineAt:      decision.Deadline,
			Active:          utils.Ptr(true),
			Snapshot:        triggerSnapshot(heartbeat, now),
		}
		created, err := e.store.CreatePending(ctx, record)
		if err != nil {
			return fail("create pending", err)
		}
		if !created {
			// another run armed the countdown first
			detail.Action = ActionStale
		}

	case ActionCheckoutExecuted:
		outcome, err := e.store.ForceCheckout(ctx, ForcedCheckout{
			PendingID: pending.ID,
			Close:     forcedClose(session, decision.Reason, now),
		})
		if err != nil {
			return fail("force checkout", err)
		}
		if outcome != ForceExecuted {
			detail.Action = ActionStale
		}

	case ActionCountdownCancelled:
		resolved, err := e.store.ResolvePending(ctx, PendingResolution{
			PendingID: pending.ID,
			Status:    model.PendingStatusCancelled,
			Note:      model.ResolutionConditionsResolved,
			At:        now,
		})
		if err != nil {
			return fail("cancel pending", err)
		}
		if !resolved {
			detail.Action = ActionStale
		}
	}

	if detail.Action != ActionNone && detail.Action != ActionCountdownRunning {
		e.Logger.WithFields(logrus.Fields{
			"company_id":  detail.CompanyID,
			"employee_id": detail.EmployeeID,
			"session_id":  detail.SessionID,
			"action":      detail.Action,
			"reason":      detail.Reason,
			"from":        detail.From,
			"to":          detail.To,
		}).Info("auto checkout transition")
	}
	return detail
}

func forcedClose(session model.AttendanceLog, reason model.CheckoutReason, now time.Time) SessionClose {
	closing := SessionClose{
		SessionID:    session.ID,
		EmployeeID:   session.EmployeeID,
		At:           now,
		WorkingHours: WorkingHours(session.CheckInTime, now),
		Reason:       reason,
	}
	if loc, err := time.LoadLocation(session.Timezone); err == nil && session.Timezone != "" {
		closing.LocalTime = utils.Ptr(LocalTime(now, loc))
	}
	return closing
}

func triggerSnapshot(heartbeat *model.Heartbeat, now time.Time) datatypes.JSON {
	snapshot := map[string]any{"evaluatedAt": now}
	if heartbeat != nil {
		snapshot["heartbeat"] = heartbeat
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
