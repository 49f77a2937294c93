package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/model"
	"axiapac.com/attendance/utils"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process. It honours the same conditional
// write rules as GormStore and is safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     int64
	employees  map[int64]model.Employee
	branches   map[int64]model.Branch
	sessions   map[int64]*model.AttendanceLog
	heartbeats map[int64]*model.Heartbeat
	pending    map[string]*model.AutoCheckoutPending
	settings   map[int64]model.AutoCheckoutSettings

	// Fail, when set, is returned by every operation except seeding.
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees:  map[int64]model.Employee{},
		branches:   map[int64]model.Branch{},
		sessions:   map[int64]*model.AttendanceLog{},
		heartbeats: map[int64]*model.Heartbeat{},
		pending:    map[string]*model.AutoCheckoutPending{},
		settings:   map[int64]model.AutoCheckoutSettings{},
	}
}

func (s *MemoryStore) AddEmployee(emp model.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[emp.ID] = emp
}

func (s *MemoryStore) RemoveEmployee(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.employees, id)
}

func (s *MemoryStore) AddBranch(branch model.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[branch.ID] = branch
}

func (s *MemoryStore) PutSettings(settings model.AutoCheckoutSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.CompanyID] = settings
}

// Session returns a copy of a stored session.
func (s *MemoryStore) Session(id int64) (model.AttendanceLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return model.AttendanceLog{}, false
	}
	return *session, true
}

// PendingFor returns copies of every countdown recorded for a session, oldest first.
func (s *MemoryStore) PendingFor(sessionID int64) []model.AutoCheckoutPending {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AutoCheckoutPending
	for _, p := range s.pending {
		if p.AttendanceLogID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) FindEmployee(ctx context.Context, employeeID int64) (*model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	emp, ok := s.employees[employeeID]
	if !ok {
		return nil, nil
	}
	return &emp, nil
}

func (s *MemoryStore) FindBranch(ctx context.Context, branchID int64) (*model.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	branch, ok := s.branches[branchID]
	if !ok {
		return nil, nil
	}
	return &branch, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session *model.AttendanceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if s.openSessionLocked(session.EmployeeID) != nil {
		return core.ErrSessionAlreadyOpen
	}
	s.nextID++
	session.ID = s.nextID
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	stored := *session
	s.sessions[stored.ID] = &stored
	return nil
}

func (s *MemoryStore) FindOpenSession(ctx context.Context, employeeID int64) (*model.AttendanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	session := s.openSessionLocked(employeeID)
	if session == nil {
		return nil, nil
	}
	found := *session
	return &found, nil
}

func (s *MemoryStore) ListOpenSessions(ctx context.Context, companyID int64) ([]model.AttendanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	var out []model.AttendanceLog
	for _, session := range s.sessions {
		if session.CompanyID == companyID && session.IsOpen() {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CloseSession(ctx context.Context, closing core.SessionClose) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}
	if !s.closeLocked(closing) {
		return false, nil
	}
	for _, p := range s.pending {
		if p.AttendanceLogID == closing.SessionID && p.Status == model.PendingStatusPending {
			resolveLocked(p, model.PendingStatusCancelled, model.ResolutionSessionClosedManually, closing.At)
		}
	}
	s.deleteHeartbeatLocked(closing)
	return true, nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, sessionID int64, at time.Time, located bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsOpen() {
		return nil
	}
	session.LastHeartbeatAt = utils.Ptr(at)
	if located {
		session.LastLocationAt = utils.Ptr(at)
	}
	return nil
}

func (s *MemoryStore) LatestHeartbeat(ctx context.Context, employeeID int64) (*model.Heartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	heartbeat, ok := s.heartbeats[employeeID]
	if !ok {
		return nil, nil
	}
	found := *heartbeat
	return &found, nil
}

func (s *MemoryStore) UpsertHeartbeat(ctx context.Context, heartbeat *model.Heartbeat) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}
	session, ok := s.sessions[heartbeat.AttendanceLogID]
	if !ok || !session.IsOpen() {
		return false, nil
	}
	stored := *heartbeat
	stored.UpdatedAt = time.Now()
	s.heartbeats[stored.EmployeeID] = &stored
	return true, nil
}

// PutHeartbeat stores a heartbeat as is, whatever state its session is in.
func (s *MemoryStore) PutHeartbeat(heartbeat model.Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heartbeat.UpdatedAt = time.Now()
	s.heartbeats[heartbeat.EmployeeID] = &heartbeat
}

func (s *MemoryStore) FindPending(ctx context.Context, sessionID int64) (*model.AutoCheckoutPending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	for _, p := range s.pending {
		if p.AttendanceLogID == sessionID && p.Status == model.PendingStatusPending {
			found := *p
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreatePending(ctx context.Context, pending *model.AutoCheckoutPending) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}
	if session, ok := s.sessions[pending.AttendanceLogID]; !ok || !session.IsOpen() {
		return false, nil
	}
	for _, p := range s.pending {
		if p.AttendanceLogID == pending.AttendanceLogID && p.Status == model.PendingStatusPending {
			return false, nil
		}
	}
	stored := *pending
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.pending[stored.ID] = &stored
	return true, nil
}

func (s *MemoryStore) ResolvePending(ctx context.Context, resolution core.PendingResolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}
	p, ok := s.pending[resolution.PendingID]
	if !ok || p.Status != model.PendingStatusPending {
		return false, nil
	}
	resolveLocked(p, resolution.Status, resolution.Note, resolution.At)
	return true, nil
}

func (s *MemoryStore) ForceCheckout(ctx context.Context, forced core.ForcedCheckout) (core.ForceOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return 0, s.Fail
	}
	p, ok := s.pending[forced.PendingID]
	if !ok || p.Status != model.PendingStatusPending {
		return core.ForcePendingResolved, nil
	}
	if !s.closeLocked(forced.Close) {
		resolveLocked(p, model.PendingStatusDone, model.ResolutionSessionAlreadyClosed, forced.Close.At)
		return core.ForceSessionAlreadyClosed, nil
	}
	resolveLocked(p, model.PendingStatusDone, model.ResolutionCheckoutExecuted, forced.Close.At)
	s.deleteHeartbeatLocked(forced.Close)
	return core.ForceExecuted, nil
}

func (s *MemoryStore) ListSettings(ctx context.Context) ([]model.AutoCheckoutSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	out := make([]model.AutoCheckoutSettings, 0, len(s.settings))
	for _, settings := range s.settings {
		out = append(out, settings)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (s *MemoryStore) openSessionLocked(employeeID int64) *model.AttendanceLog {
	for _, session := range s.sessions {
		if session.EmployeeID == employeeID && session.IsOpen() {
			return session
		}
	}
	return nil
}

func (s *MemoryStore) closeLocked(closing core.SessionClose) bool {
	session, ok := s.sessions[closing.SessionID]
	if !ok || !session.IsOpen() {
		return false
	}
	session.CheckOutTime = utils.Ptr(closing.At)
	session.CheckOutLocalTime = closing.LocalTime
	session.CheckOutLatitude = closing.Latitude
	session.CheckOutLongitude = closing.Longitude
	session.CheckOutAccuracy = closing.Accuracy
	session.TotalWorkingHours = decimal.NullDecimal{Decimal: closing.WorkingHours, Valid: true}
	session.EarlyLeaveMinutes = closing.EarlyLeaveMinutes
	session.CheckoutReason = utils.Ptr(closing.Reason)
	session.OpenMarker = nil
	session.UpdatedAt = time.Now()
	return true
}

func (s *MemoryStore) deleteHeartbeatLocked(closing core.SessionClose) {
	if heartbeat, ok := s.heartbeats[closing.EmployeeID]; ok && heartbeat.AttendanceLogID == closing.SessionID {
		delete(s.heartbeats, closing.EmployeeID)
	}
}

func resolveLocked(p *model.AutoCheckoutPending, status model.PendingStatus, note string, at time.Time) {
	p.Status = status
	p.Active = nil
	p.ResolvedAt = utils.Ptr(at)
	p.ResolutionNote = utils.Ptr(note)
	p.UpdatedAt = time.Now()
}
