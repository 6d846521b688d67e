package moderation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for engine tests. It honors the same
// contracts as the SQLite store: queue ordering, resolve-once, active
// restriction uniqueness, and revocation immutability.
type memStore struct {
	mu           sync.Mutex
	reports      map[string]*Report
	actions      map[string]*Action
	changes      map[string][]StateChangeEntry
	restrictions map[string]*Restriction
	users        map[string]*User
	events       []*SecurityEvent

	// tamperable makes AttemptRevocationOverwrite succeed, simulating a
	// store without the revocation guard.
	tamperable bool
}

func newMemStore() *memStore {
	return &memStore{
		reports:      make(map[string]*Report),
		actions:      make(map[string]*Action),
		changes:      make(map[string][]StateChangeEntry),
		restrictions: make(map[string]*Restriction),
		users:        make(map[string]*User),
	}
}

var (
	_ Store        = (*memStore)(nil)
	_ TamperProber = (*memStore)(nil)
)

func (m *memStore) CreateReport(ctx context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *report
	m.reports[report.ID] = &cp
	return nil
}

func (m *memStore) GetReport(ctx context.Context, id string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListQueue(ctx context.Context, filter QueueFilter) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
	for _, r := range m.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Priority != 0 && r.Priority != filter.Priority {
			continue
		}
		if filter.ModeratorFlagged != nil && r.ModeratorFlagged != *filter.ModeratorFlagged {
			continue
		}
		if filter.ReportType != "" && r.ReportType != filter.ReportType {
			continue
		}
		if !filter.CreatedAfter.IsZero() && !r.CreatedAt.After(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !r.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ModeratorFlagged != b.ModeratorFlagged {
			return a.ModeratorFlagged
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) ResolveReport(ctx context.Context, id string, status ReportStatus, reviewedBy string, reviewedAt time.Time, notes string, actionTaken ActionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || (r.Status != ReportStatusPending && r.Status != ReportStatusUnderReview) {
		return errNotResolvable
	}
	r.Status = status
	r.ReviewedBy = reviewedBy
	t := reviewedAt
	r.ReviewedAt = &t
	r.ResolutionNotes = notes
	r.ActionTaken = actionTaken
	return nil
}

var errNotResolvable = &Error{Kind: KindDatabase, Message: "report not resolvable"}

func (m *memStore) FindRecentReport(ctx context.Context, reporterID string, reportType ReportType, targetID string, since time.Time) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Report
	for _, r := range m.reports {
		if r.ReporterID != reporterID || r.ReportType != reportType || r.TargetID != targetID {
			continue
		}
		if !r.CreatedAt.After(since) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) CountReportsBy(ctx context.Context, reporterID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.reports {
		if r.ReporterID == reporterID && r.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ListReportsSince(ctx context.Context, since time.Time) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
	for _, r := range m.reports {
		if r.CreatedAt.After(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CreateAction(ctx context.Context, action *Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *action
	m.actions[action.ID] = &cp
	return nil
}

func (m *memStore) GetAction(ctx context.Context, id string) (*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) MarkActionRevoked(ctx context.Context, id string, revokedBy string, revokedAt time.Time, reversalReason string, isSelfReversal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.RevokedAt != nil {
		return &Error{Kind: KindDatabase, Message: "action not found or already revoked"}
	}
	t := revokedAt
	a.RevokedAt = &t
	a.RevokedBy = revokedBy
	a.Metadata.ReversalReason = reversalReason
	a.Metadata.IsSelfReversal = isSelfReversal
	return nil
}

func (m *memStore) SetActionNotification(ctx context.Context, id string, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actions[id]; ok {
		a.NotificationID = notificationID
	}
	return nil
}

func (m *memStore) CountActionsBy(ctx context.Context, moderatorID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.actions {
		if a.ModeratorID == moderatorID && a.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ListActionsSince(ctx context.Context, since time.Time) ([]*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Action
	for _, a := range m.actions {
		if a.CreatedAt.After(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListActionsByTarget(ctx context.Context, targetUserID string) ([]*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Action
	for _, a := range m.actions {
		if a.TargetUserID == targetUserID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) FindActiveActionByType(ctx context.Context, targetUserID string, actionType ActionType) (*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Action
	for _, a := range m.actions {
		if a.TargetUserID != targetUserID || a.ActionType != actionType || a.RevokedAt != nil {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) AppendStateChange(ctx context.Context, actionID string, entry StateChangeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes[actionID] = append(m.changes[actionID], entry)
	return nil
}

func (m *memStore) ListStateChanges(ctx context.Context, actionID string) ([]StateChangeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StateChangeEntry, len(m.changes[actionID]))
	copy(out, m.changes[actionID])
	return out, nil
}

func (m *memStore) CreateRestriction(ctx context.Context, r *Restriction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.restrictions {
		if existing.UserID == r.UserID && existing.RestrictionType == r.RestrictionType && existing.IsActive {
			cp := *existing
			return &RestrictionConflictError{Existing: &cp}
		}
	}
	cp := *r
	m.restrictions[r.ID] = &cp
	return nil
}

func (m *memStore) FindActiveRestriction(ctx context.Context, userID string, t RestrictionType) (*Restriction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.restrictions {
		if r.UserID == userID && r.RestrictionType == t && r.IsActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListActiveRestrictions(ctx context.Context, userID string) ([]*Restriction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Restriction
	for _, r := range m.restrictions {
		if r.UserID == userID && r.IsActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) DeactivateRestriction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.restrictions[id]; ok {
		r.IsActive = false
	}
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	// Accounts live upstream; an unknown user has no suspension state yet.
	return &User{ID: id}, nil
}

func (m *memStore) SetUserSuspension(ctx context.Context, id string, until *time.Time, reason string, suspended bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = &User{ID: id}
		m.users[id] = u
	}
	u.Suspended = suspended
	u.SuspendedUntil = until
	u.SuspensionReason = reason
	return nil
}

func (m *memStore) AppendSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *memStore) ListSecurityEvents(ctx context.Context, limit int, cursor string) ([]*SecurityEvent, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := make([]*SecurityEvent, len(m.events))
	copy(sorted, m.events)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	start := 0
	if cursor != "" {
		for i, e := range sorted {
			if e.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(sorted) {
		return nil, "", nil
	}
	sorted = sorted[start:]
	var next string
	if len(sorted) > limit {
		sorted = sorted[:limit]
		next = sorted[limit-1].ID
	}
	return sorted, next, nil
}

func (m *memStore) AttemptRevocationOverwrite(ctx context.Context, actionID string, revokedBy string, revokedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tamperable {
		return true, nil
	}
	if a, ok := m.actions[actionID]; ok {
		t := revokedAt
		a.RevokedAt = &t
		a.RevokedBy = revokedBy
	}
	return false, nil
}

// eventTypes lists recorded security event types in append order.
func (m *memStore) eventTypes() []SecurityEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SecurityEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func (m *memStore) hasEvent(t SecurityEventType) bool {
	for _, et := range m.eventTypes() {
		if et == t {
			return true
		}
	}
	return false
}

// fakeRoles maps user ids to role grants.
type fakeRoles struct {
	grants map[string][]Role
}

func (f *fakeRoles) ActiveRoles(ctx context.Context, userID string) ([]Role, error) {
	return f.grants[userID], nil
}

// fakeNotifier records deliveries and can be told to fail.
type fakeNotifier struct {
	mu        sync.Mutex
	sent      []fakeNotification
	reversals []fakeNotification
	fail      bool
}

type fakeNotification struct {
	UserID    string
	Title     string
	Message   string
	RelatedID string
}

func (f *fakeNotifier) Send(ctx context.Context, userID, title, message string, data map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", &Error{Kind: KindDatabase, Message: "delivery failed"}
	}
	f.sent = append(f.sent, fakeNotification{UserID: userID, Title: title, Message: message})
	return uuid.NewString(), nil
}

func (f *fakeNotifier) SendReversal(ctx context.Context, userID, title, message string, data map[string]any, relatedNotificationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", &Error{Kind: KindDatabase, Message: "delivery failed"}
	}
	f.reversals = append(f.reversals, fakeNotification{UserID: userID, Title: title, Message: message, RelatedID: relatedNotificationID})
	return uuid.NewString(), nil
}

// fakeAlerter records admin alerts.
type fakeAlerter struct {
	mu     sync.Mutex
	alerts []fakeAlert
}

type fakeAlert struct {
	EventType string
	Severity  string
}

func (f *fakeAlerter) Alert(ctx context.Context, eventType string, severity string, details map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, fakeAlert{EventType: eventType, Severity: severity})
}

// fakeContent resolves and deletes content rows by (type, id).
type fakeContent struct {
	mu      sync.Mutex
	owners  map[string]string // type|id -> owner
	deleted []string
}

func newFakeContent() *fakeContent {
	return &fakeContent{owners: make(map[string]string)}
}

func (f *fakeContent) put(t ReportType, id, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[string(t)+"|"+id] = owner
}

func (f *fakeContent) Delete(ctx context.Context, contentType ReportType, contentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(contentType) + "|" + contentID
	if _, ok := f.owners[key]; !ok {
		return 0, nil
	}
	delete(f.owners, key)
	f.deleted = append(f.deleted, key)
	return 1, nil
}

func (f *fakeContent) OwnerOf(ctx context.Context, contentType ReportType, contentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[string(contentType)+"|"+contentID], nil
}

// fixture wires a Service over the in-memory collaborators with a
// controllable clock.
type fixture struct {
	store    *memStore
	notifier *fakeNotifier
	alerter  *fakeAlerter
	content  *fakeContent
	svc      *Service
	now      time.Time

	admin Actor
	mod   Actor
	mod2  Actor
	user  Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		notifier: &fakeNotifier{},
		alerter:  &fakeAlerter{},
		content:  newFakeContent(),
		now:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		admin:    Actor{ID: uuid.NewString()},
		mod:      Actor{ID: uuid.NewString()},
		mod2:     Actor{ID: uuid.NewString()},
		user:     Actor{ID: uuid.NewString()},
	}
	roles := &fakeRoles{grants: map[string][]Role{
		f.admin.ID: {RoleAdmin},
		f.mod.ID:   {RoleModerator},
		f.mod2.ID:  {RoleModerator},
	}}
	f.svc = NewService(f.store, roles, Options{
		Notifier: f.notifier,
		Alerter:  f.alerter,
		Content:  f.content,
		Now:      func() time.Time { return f.now },
	})
	return f
}

// advance moves the fixture clock forward.
func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// seedContent registers content owned by the given user and returns its id.
func (f *fixture) seedContent(t ReportType, owner string) string {
	id := uuid.NewString()
	f.content.put(t, id, owner)
	return id
}

// submit files a report for fresh content owned by a random user.
func (f *fixture) submit(t *testing.T, reporter Actor, reason ReportReason) *Report {
	t.Helper()
	target := f.seedContent(ReportTypePost, uuid.NewString())
	report, err := f.svc.SubmitReport(context.Background(), reporter, SubmitReportInput{
		ReportType: ReportTypePost,
		TargetID:   target,
		Reason:     reason,
	})
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	return report
}

// warn takes a user_warned action against the given user.
func (f *fixture) warn(t *testing.T, moderator Actor, targetUserID string) *Action {
	t.Helper()
	result, err := f.svc.TakeModerationAction(context.Background(), moderator, ActionInput{
		TargetUserID: targetUserID,
		ActionType:   ActionUserWarned,
		Reason:       "warned in test",
	})
	if err != nil {
		t.Fatalf("take action: %v", err)
	}
	return result.Action
}

// kindIs asserts the engine error kind.
func kindIs(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, got, err)
	}
}
