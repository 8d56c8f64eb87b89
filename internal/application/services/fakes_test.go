package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// fakeClock pins time for deterministic assertions
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeBus records published envelopes per group
type fakeBus struct {
	mu        sync.Mutex
	published map[string][]*entities.Envelope
	failing   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][]*entities.Envelope)}
}

func (b *fakeBus) Publish(ctx context.Context, group string, event *entities.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return fmt.Errorf("bus unavailable")
	}
	b.published[group] = append(b.published[group], event)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, group string) (<-chan *entities.Envelope, error) {
	ch := make(chan *entities.Envelope)
	close(ch)
	return ch, nil
}

func (b *fakeBus) Unsubscribe(ctx context.Context, group string) error { return nil }
func (b *fakeBus) Close() error                                        { return nil }

func (b *fakeBus) events(group string) []*entities.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*entities.Envelope(nil), b.published[group]...)
}

func (b *fakeBus) eventsOfType(group, eventType string) []*entities.Envelope {
	var out []*entities.Envelope
	for _, e := range b.events(group) {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeNotificationRepo is an in-memory NotificationRepository
type fakeNotificationRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*entities.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{rows: make(map[int64]*entities.Notification)}
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n *entities.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	if n.DeliveryStatus == "" {
		n.DeliveryStatus = entities.DeliveryPending
	}
	copied := *n
	r.rows[n.ID] = &copied
	return nil
}

func (r *fakeNotificationRepo) GetByID(ctx context.Context, id int64) (*entities.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("notification %d not found", id))
	}
	copied := *n
	return &copied, nil
}

func (r *fakeNotificationRepo) Update(ctx context.Context, n *entities.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[n.ID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("notification %d not found", n.ID))
	}
	copied := *n
	r.rows[n.ID] = &copied
	return nil
}

func (r *fakeNotificationRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]*entities.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Notification
	for _, n := range r.rows {
		if n.UserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeNotificationRepo) ListRetryable(ctx context.Context, limit int) ([]*entities.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Notification
	for _, n := range r.rows {
		if n.DeliveryStatus == entities.DeliveryFailed && n.Attempts < entities.MaxDeliveryAttempts {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeNotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.rows {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) byUser(userID int64) []*entities.Notification {
	out, _ := r.ListForUser(context.Background(), userID, 0)
	return out
}

// fakeDirectory is an in-memory UserDirectory
type fakeDirectory struct {
	users map[int64]*entities.User
}

func newFakeDirectory(users ...*entities.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[int64]*entities.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) Lookup(ctx context.Context, id int64) (*entities.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %d not found", id))
	}
	return u, nil
}

func (d *fakeDirectory) IteratePatients(ctx context.Context, batchSize int, fn func(ids []int64) error) error {
	var ids []int64
	for id, u := range d.users {
		if u.Role == entities.RolePatient && u.Verified {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *fakeDirectory) ListAvailableNurses(ctx context.Context) ([]*entities.User, error) {
	return d.listRole(entities.RoleNurse), nil
}

func (d *fakeDirectory) ListAvailableDoctors(ctx context.Context) ([]*entities.User, error) {
	return d.listRole(entities.RoleDoctor), nil
}

func (d *fakeDirectory) listRole(role entities.UserRole) []*entities.User {
	var out []*entities.User
	for _, u := range d.users {
		if u.Role == role && u.Verified {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fakeQueueStore is an in-memory QueueStore good enough for service logic
type fakeQueueStore struct {
	mu        sync.Mutex
	counter   int64
	nextID    int64
	statuses  map[entities.Department]*entities.QueueStatus
	schedules map[int64]*entities.QueueSchedule
	normal    []*entities.QueueEntry
	priority  []*entities.PriorityEntry
	logs      []*entities.QueueStatusLog
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{
		statuses:  make(map[entities.Department]*entities.QueueStatus),
		schedules: make(map[int64]*entities.QueueSchedule),
	}
}

func (s *fakeQueueStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeQueueStore) WithDepartmentLock(ctx context.Context, department entities.Department, fn func(ctx context.Context, tx repositories.QueueTx) error) error {
	if !department.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown department %q", department), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.statuses[department]
	if !existed {
		s.statuses[department] = &entities.QueueStatus{
			ID:            s.id(),
			Department:    department,
			StatusMessage: "Queue Closed",
		}
	}
	err := fn(ctx, &fakeQueueTx{store: s, department: department, created: !existed})
	if err != nil && !existed {
		// an error rolls back the row the lock created
		delete(s.statuses, department)
	}
	return err
}

func (s *fakeQueueStore) CreateSchedule(ctx context.Context, schedule *entities.QueueSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.schedules {
		if existing.Department == schedule.Department && existing.NurseID == schedule.NurseID {
			return apperrors.NewConflictError("nurse already has a schedule for this department")
		}
	}
	schedule.ID = s.id()
	if schedule.OverrideStatus == "" {
		schedule.OverrideStatus = entities.OverrideAuto
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *fakeQueueStore) UpdateSchedule(ctx context.Context, schedule *entities.QueueSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return apperrors.NewNotFoundError("schedule not found")
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *fakeQueueStore) DeleteSchedule(ctx context.Context, id int64) (*entities.QueueSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("schedule not found")
	}
	delete(s.schedules, id)
	return schedule, nil
}

func (s *fakeQueueStore) GetSchedule(ctx context.Context, id int64) (*entities.QueueSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("schedule not found")
	}
	return schedule, nil
}

func (s *fakeQueueStore) ListSchedules(ctx context.Context, department *entities.Department) ([]*entities.QueueSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.QueueSchedule
	for _, schedule := range s.schedules {
		if department == nil || schedule.Department == *department {
			out = append(out, schedule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeQueueStore) GetStatus(ctx context.Context, department entities.Department) (*entities.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[department]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no queue status for department %s", department))
	}
	copied := *status
	return &copied, nil
}

func (s *fakeQueueStore) ListStatuses(ctx context.Context) ([]*entities.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.QueueStatus
	for _, status := range s.statuses {
		copied := *status
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })
	return out, nil
}

func (s *fakeQueueStore) ListStatusLogs(ctx context.Context, department *entities.Department, limit int) ([]*entities.QueueStatusLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.QueueStatusLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if department == nil || s.logs[i].Department == *department {
			out = append(out, s.logs[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeQueueStore) ListEntries(ctx context.Context, department entities.Department) ([]*entities.QueueEntry, []*entities.PriorityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var normal []*entities.QueueEntry
	for _, e := range s.normal {
		if e.Department == department && e.Active() {
			normal = append(normal, e)
		}
	}
	sort.Slice(normal, func(i, j int) bool { return normal[i].Position < normal[j].Position })

	var priority []*entities.PriorityEntry
	for _, e := range s.priority {
		if e.Department == department && e.Active() {
			priority = append(priority, e)
		}
	}
	sort.Slice(priority, func(i, j int) bool { return priority[i].PriorityPosition < priority[j].PriorityPosition })
	return normal, priority, nil
}

func (s *fakeQueueStore) ActiveEntryForPatient(ctx context.Context, patientID int64, department entities.Department) (*repositories.ActiveEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeEntryLocked(patientID, &department), nil
}

func (s *fakeQueueStore) activeEntryLocked(patientID int64, department *entities.Department) *repositories.ActiveEntry {
	for _, e := range s.priority {
		if e.PatientID == patientID && e.Active() && (department == nil || e.Department == *department) {
			return &repositories.ActiveEntry{
				Class: entities.QueueClassPriority, EntryID: e.ID, PatientID: e.PatientID,
				Department: e.Department, QueueNumber: e.QueueNumber,
				Position: e.PriorityPosition, Status: e.Status,
			}
		}
	}
	for _, e := range s.normal {
		if e.PatientID == patientID && e.Active() && (department == nil || e.Department == *department) {
			return &repositories.ActiveEntry{
				Class: entities.QueueClassNormal, EntryID: e.ID, PatientID: e.PatientID,
				Department: e.Department, QueueNumber: e.QueueNumber,
				Position: e.Position, Status: e.Status,
			}
		}
	}
	return nil
}

// fakeQueueTx operates on the store while its lock is held
type fakeQueueTx struct {
	store      *fakeQueueStore
	department entities.Department
	created    bool
}

func (t *fakeQueueTx) Department() entities.Department { return t.department }

func (t *fakeQueueTx) StatusCreated() bool { return t.created }

func (t *fakeQueueTx) Status(ctx context.Context) (*entities.QueueStatus, error) {
	return t.store.statuses[t.department], nil
}

func (t *fakeQueueTx) SaveStatus(ctx context.Context, status *entities.QueueStatus) error {
	t.store.statuses[t.department] = status
	return nil
}

func (t *fakeQueueTx) AppendLog(ctx context.Context, log *entities.QueueStatusLog) error {
	log.ID = t.store.id()
	t.store.logs = append(t.store.logs, log)
	return nil
}

func (t *fakeQueueTx) ActiveSchedule(ctx context.Context) (*entities.QueueSchedule, error) {
	for _, schedule := range t.store.schedules {
		if schedule.Department == t.department && schedule.IsActive {
			return schedule, nil
		}
	}
	return nil, nil
}

func (t *fakeQueueTx) NextTicket(ctx context.Context) (int64, error) {
	t.store.counter++
	return t.store.counter, nil
}

func (t *fakeQueueTx) InsertNormal(ctx context.Context, entry *entities.QueueEntry) error {
	max := 0
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Active() && e.Position > max {
			max = e.Position
		}
	}
	entry.ID = t.store.id()
	entry.Department = t.department
	entry.Position = max + 1
	entry.Status = entities.EntryStatusWaiting
	t.store.normal = append(t.store.normal, entry)
	return nil
}

func (t *fakeQueueTx) InsertPriority(ctx context.Context, entry *entities.PriorityEntry) error {
	max := 0
	for _, e := range t.store.priority {
		if e.Department == t.department && e.Active() && e.PriorityPosition > max {
			max = e.PriorityPosition
		}
	}
	entry.ID = t.store.id()
	entry.Department = t.department
	entry.PriorityPosition = max + 1
	entry.Status = entities.EntryStatusWaiting
	t.store.priority = append(t.store.priority, entry)
	return nil
}

func (t *fakeQueueTx) ActiveEntryForPatient(ctx context.Context, patientID int64) (*repositories.ActiveEntry, error) {
	return t.store.activeEntryLocked(patientID, &t.department), nil
}

func (t *fakeQueueTx) CountWaiting(ctx context.Context) (int, error) {
	count := 0
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Status == entities.EntryStatusWaiting {
			count++
		}
	}
	for _, e := range t.store.priority {
		if e.Department == t.department && e.Status == entities.EntryStatusWaiting {
			count++
		}
	}
	return count, nil
}

func (t *fakeQueueTx) RenumberPositions(ctx context.Context) error {
	var waiting []*entities.QueueEntry
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Status == entities.EntryStatusWaiting {
			waiting = append(waiting, e)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].EnqueueTime.Before(waiting[j].EnqueueTime) })
	for i, e := range waiting {
		e.Position = i + 1
	}
	return nil
}

func (t *fakeQueueTx) NextPriority(ctx context.Context) (*entities.PriorityEntry, error) {
	var head *entities.PriorityEntry
	for _, e := range t.store.priority {
		if e.Department != t.department || e.Status != entities.EntryStatusWaiting {
			continue
		}
		if head == nil || e.PriorityPosition < head.PriorityPosition {
			head = e
		}
	}
	return head, nil
}

func (t *fakeQueueTx) NextNormal(ctx context.Context) (*entities.QueueEntry, error) {
	var head *entities.QueueEntry
	for _, e := range t.store.normal {
		if e.Department != t.department || e.Status != entities.EntryStatusWaiting {
			continue
		}
		if head == nil || e.Position < head.Position {
			head = e
		}
	}
	return head, nil
}

func (t *fakeQueueTx) CurrentInProgressNormal(ctx context.Context) (*entities.QueueEntry, error) {
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Status == entities.EntryStatusInProgress {
			return e, nil
		}
	}
	return nil, nil
}

func (t *fakeQueueTx) CurrentInProgressPriority(ctx context.Context) (*entities.PriorityEntry, error) {
	for _, e := range t.store.priority {
		if e.Department == t.department && e.Status == entities.EntryStatusInProgress {
			return e, nil
		}
	}
	return nil, nil
}

func (t *fakeQueueTx) MarkNormalStarted(ctx context.Context, id int64, at time.Time) error {
	for _, e := range t.store.normal {
		if e.ID == id {
			e.Status = entities.EntryStatusInProgress
			e.StartedAt = &at
			return nil
		}
	}
	return apperrors.NewNotFoundError("entry not found")
}

func (t *fakeQueueTx) MarkPriorityStarted(ctx context.Context, id int64, at time.Time) error {
	for _, e := range t.store.priority {
		if e.ID == id {
			e.Status = entities.EntryStatusInProgress
			e.StartedAt = &at
			return nil
		}
	}
	return apperrors.NewNotFoundError("entry not found")
}

func (t *fakeQueueTx) MarkNormalCompleted(ctx context.Context, id int64, at time.Time) error {
	for _, e := range t.store.normal {
		if e.ID == id {
			e.Status = entities.EntryStatusCompleted
			e.FinishedAt = &at
			e.DequeueTime = &at
			return nil
		}
	}
	return apperrors.NewNotFoundError("entry not found")
}

func (t *fakeQueueTx) MarkPriorityCompleted(ctx context.Context, id int64, at time.Time) error {
	for _, e := range t.store.priority {
		if e.ID == id {
			e.Status = entities.EntryStatusCompleted
			e.FinishedAt = &at
			e.DequeueTime = &at
			return nil
		}
	}
	return apperrors.NewNotFoundError("entry not found")
}

func (t *fakeQueueTx) DeleteNormal(ctx context.Context, id int64) error {
	for i, e := range t.store.normal {
		if e.ID == id {
			t.store.normal = append(t.store.normal[:i], t.store.normal[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("entry not found")
}

func (t *fakeQueueTx) DeletePriority(ctx context.Context, id int64) error {
	for i, e := range t.store.priority {
		if e.ID == id {
			t.store.priority = append(t.store.priority[:i], t.store.priority[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("entry not found")
}

func (t *fakeQueueTx) FindNormal(ctx context.Context, ref int64) (*entities.QueueEntry, error) {
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Active() && (e.ID == ref || e.QueueNumber == ref) {
			return e, nil
		}
	}
	return nil, nil
}

func (t *fakeQueueTx) FindPriority(ctx context.Context, ref int64) (*entities.PriorityEntry, error) {
	for _, e := range t.store.priority {
		if e.Department == t.department && e.Active() && (e.ID == ref || e.QueueNumber == ref) {
			return e, nil
		}
	}
	return nil, nil
}

func (t *fakeQueueTx) ListWaitingNormal(ctx context.Context) ([]*entities.QueueEntry, error) {
	var out []*entities.QueueEntry
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Status == entities.EntryStatusWaiting {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *fakeQueueTx) AverageServiceTime(ctx context.Context) (time.Duration, bool, error) {
	var total time.Duration
	var count int
	for _, e := range t.store.normal {
		if e.Department == t.department && e.Status == entities.EntryStatusCompleted && e.StartedAt != nil && e.FinishedAt != nil {
			total += e.FinishedAt.Sub(*e.StartedAt)
			count++
		}
	}
	if count == 0 {
		return 0, false, nil
	}
	return total / time.Duration(count), true, nil
}
