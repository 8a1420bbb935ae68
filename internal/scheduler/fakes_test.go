package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"learnpulse/internal/types"
)

// memStore is an in-memory stand-in for the Postgres repositories.
type memStore struct {
	mu sync.Mutex

	learners      []string
	activities    map[string][]types.ActivityEvent
	enrollments   map[string][]types.Enrollment
	summaries     map[string]types.EngagementSummary
	snapshots     map[string]map[string]types.RiskSnapshot // learner -> day -> snapshot
	notifications map[string]*types.Notification

	failLearners  map[string]bool // FindActivities/ListEnrollments fail
	failCreate    map[string]bool // CreateNotification fails for learner
	listErr       error
	upsertCalls   int
	listPageSizes []int
}

func newMemStore() *memStore {
	return &memStore{
		activities:    map[string][]types.ActivityEvent{},
		enrollments:   map[string][]types.Enrollment{},
		summaries:     map[string]types.EngagementSummary{},
		snapshots:     map[string]map[string]types.RiskSnapshot{},
		notifications: map[string]*types.Notification{},
		failLearners:  map[string]bool{},
		failCreate:    map[string]bool{},
	}
}

var errStoreDown = errors.New("store unavailable")

func (m *memStore) addLearner(id string, enrollments ...types.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learners = append(m.learners, id)
	sort.Strings(m.learners)
	m.enrollments[id] = enrollments
}

func (m *memStore) ListLearnerIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPageSizes = append(m.listPageSizes, limit)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []string
	for _, id := range m.learners {
		if id > afterID && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memStore) FindActivitiesByLearner(_ context.Context, learnerID string) ([]types.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLearners[learnerID] {
		return nil, errStoreDown
	}
	return slices.Clone(m.activities[learnerID]), nil
}

func (m *memStore) ListEnrollmentsByLearner(_ context.Context, learnerID string) ([]types.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLearners[learnerID] {
		return nil, errStoreDown
	}
	return slices.Clone(m.enrollments[learnerID]), nil
}

func (m *memStore) UpsertEngagementSummary(_ context.Context, s *types.EngagementSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	m.summaries[s.LearnerID] = *s
	return nil
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }

func (m *memStore) UpsertRiskSnapshot(_ context.Context, s *types.RiskSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.snapshots[s.LearnerID] == nil {
		m.snapshots[s.LearnerID] = map[string]types.RiskSnapshot{}
	}
	m.snapshots[s.LearnerID][dayKey(s.Day)] = *s
	return nil
}

func (m *memStore) putSnapshot(learnerID string, day time.Time, level types.RiskLevel, score float64) {
	_ = m.UpsertRiskSnapshot(context.Background(), &types.RiskSnapshot{
		LearnerID: learnerID, Day: day, RiskLevel: level, RiskScore: score, Source: types.RiskSourceExternal,
	})
}

func (m *memStore) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, days := range m.snapshots {
		n += len(days)
	}
	return n
}

func (m *memStore) GetLatestSnapshot(_ context.Context, learnerID string) (*types.RiskSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days := m.snapshots[learnerID]
	if len(days) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundSnapshot, "risk snapshot not found", nil)
	}
	var latest string
	for k := range days {
		if k > latest {
			latest = k
		}
	}
	s := days[latest]
	return &s, nil
}

func (m *memStore) ListSnapshotsForDay(_ context.Context, day time.Time, levels []types.RiskLevel, after string, limit int) ([]types.RiskSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.RiskSnapshot
	for learner, days := range m.snapshots {
		s, ok := days[dayKey(day)]
		if !ok || learner <= after {
			continue
		}
		if len(levels) > 0 && !slices.Contains(levels, s.RiskLevel) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnerID < out[j].LearnerID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetDistribution(_ context.Context, day time.Time) (types.RiskDistribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dist := types.RiskDistribution{Day: day}
	for _, days := range m.snapshots {
		if s, ok := days[dayKey(day)]; ok {
			dist.Add(s.RiskLevel, 1)
		}
	}
	return dist, nil
}

func (m *memStore) CreateNotification(_ context.Context, n *types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate[n.LearnerID] {
		return errStoreDown
	}
	if _, exists := m.notifications[n.ID]; exists {
		return fmt.Errorf("duplicate notification %s", n.ID)
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *memStore) FindUnreadNotifications(_ context.Context, f types.UnreadNotificationFilter) ([]types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Notification
	for _, n := range m.notifications {
		switch {
		case n.ReadAt != nil, n.RetryCount >= n.MaxRetries:
			continue
		case len(f.Levels) > 0 && !slices.Contains(f.Levels, n.RiskLevel):
			continue
		case f.Category != "" && n.Category != f.Category:
			continue
		case !f.CreatedUntil.IsZero() && n.CreatedAt.After(f.CreatedUntil):
			continue
		case f.RootsOnly && n.OriginLinkID != nil:
			continue
		case n.ID <= f.AfterID:
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateNotificationRetryState(_ context.Context, id string, expected int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.RetryCount != expected || n.ReadAt != nil || n.RetryCount >= n.MaxRetries {
		return types.NewAppError(types.ErrCodeConflictRetryState, "changed", nil)
	}
	n.RetryCount++
	ts := now
	n.LastRetryAt = &ts
	return nil
}

func (m *memStore) HasOpenRiskAlert(_ context.Context, learnerID string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.LearnerID != learnerID || n.Category != types.CategoryRiskAlert || n.OriginLinkID != nil {
			continue
		}
		if (n.ReadAt == nil && n.RetryCount < n.MaxRetries) || !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) byCategory(category types.NotificationCategory) []types.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Notification
	for _, n := range m.notifications {
		if n.Category == category {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnerID < out[j].LearnerID })
	return out
}

// recordingPublisher captures published notifications.
type recordingPublisher struct {
	mu        sync.Mutex
	published []*types.Notification
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, n *types.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, n)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func learnerID(i int) string { return fmt.Sprintf("learner-%03d", i) }
