package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/notifications"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	byID map[string]*domain.ScheduledNotification
}

func newMockRepository() *mockRepository {
	return &mockRepository{byID: make(map[string]*domain.ScheduledNotification)}
}

func (m *mockRepository) Create(_ context.Context, s *domain.ScheduledNotification) error {
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*domain.ScheduledNotification, error) {
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrScheduleNotFound
}

func (m *mockRepository) GetByNotificationID(_ context.Context, notificationID string) (*domain.ScheduledNotification, error) {
	for _, s := range m.byID {
		if s.NotificationID == notificationID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (m *mockRepository) ListByStatus(_ context.Context, status domain.ScheduleStatus, limit int) ([]domain.ScheduledNotification, error) {
	result := make([]domain.ScheduledNotification, 0)
	for _, s := range m.byID {
		if s.Status == status && len(result) < limit {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *mockRepository) ListDue(_ context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error) {
	result := make([]domain.ScheduledNotification, 0)
	for _, s := range m.byID {
		if s.Status != domain.ScheduleStatusScheduled || s.NextAttemptAt == nil {
			continue
		}
		if s.NextAttemptAt.After(now) || len(result) >= limit {
			continue
		}
		result = append(result, *s)
	}
	return result, nil
}

func (m *mockRepository) ClaimProcessing(_ context.Context, id string) (*domain.ScheduledNotification, error) {
	s, ok := m.byID[id]
	if !ok || s.Status != domain.ScheduleStatusScheduled {
		return nil, ErrNotClaimable
	}
	now := time.Now()
	s.Status = domain.ScheduleStatusProcessing
	s.Attempts++
	s.LastAttemptAt = &now
	cp := *s
	return &cp, nil
}

func (m *mockRepository) MarkSent(_ context.Context, id string) error {
	s, ok := m.byID[id]
	if !ok || s.Status != domain.ScheduleStatusProcessing {
		return ErrScheduleState
	}
	s.Status = domain.ScheduleStatusSent
	s.NextAttemptAt = nil
	s.ErrorDetails = ""
	return nil
}

func (m *mockRepository) MarkRetry(_ context.Context, id string, nextAttemptAt time.Time, errorDetails string) error {
	s, ok := m.byID[id]
	if !ok || s.Status != domain.ScheduleStatusProcessing {
		return ErrScheduleState
	}
	s.Status = domain.ScheduleStatusScheduled
	s.NextAttemptAt = &nextAttemptAt
	s.ErrorDetails = errorDetails
	return nil
}

func (m *mockRepository) MarkFailed(_ context.Context, id string, errorDetails string) error {
	s, ok := m.byID[id]
	if !ok || (s.Status != domain.ScheduleStatusScheduled && s.Status != domain.ScheduleStatusProcessing) {
		return ErrScheduleState
	}
	s.Status = domain.ScheduleStatusFailed
	s.NextAttemptAt = nil
	s.ErrorDetails = errorDetails
	return nil
}

func (m *mockRepository) Reschedule(_ context.Context, id string, at time.Time) (*domain.ScheduledNotification, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	if s.Status != domain.ScheduleStatusScheduled {
		return nil, ErrScheduleState
	}
	s.NextAttemptAt = &at
	s.Attempts = 0
	s.ErrorDetails = ""
	cp := *s
	return &cp, nil
}

func (m *mockRepository) CountByStatus(_ context.Context) (map[domain.ScheduleStatus]int64, error) {
	counts := make(map[domain.ScheduleStatus]int64)
	for _, s := range m.byID {
		counts[s.Status]++
	}
	return counts, nil
}

// mockService implements NotificationService for testing.
type mockService struct {
	deliverErr error
	delivered  []string
	cancelled  []string
	createErr  error
}

func (m *mockService) Create(_ context.Context, input notifications.CreateInput) (*domain.Notification, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &domain.Notification{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Type:        input.Type,
		Channel:     input.Channel,
		Status:      domain.StatusPending,
		ScheduledAt: input.ScheduledAt,
	}, nil
}

func (m *mockService) Deliver(_ context.Context, notificationID string) error {
	m.delivered = append(m.delivered, notificationID)
	return m.deliverErr
}

func (m *mockService) Cancel(_ context.Context, notificationID string) (*domain.Notification, error) {
	m.cancelled = append(m.cancelled, notificationID)
	return &domain.Notification{ID: notificationID, Status: domain.StatusFailed}, nil
}

func scheduleInput(at time.Time) ScheduleInput {
	return ScheduleInput{
		Notification: notifications.CreateInput{
			UserID:    "user-1",
			Type:      domain.TypeOrder,
			Channel:   domain.ChannelEmail,
			Recipient: "user@example.com",
			Content:   "Order shipped",
		},
		ScheduledAt: at,
	}
}

func TestScheduler_Schedule(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{}
	s := New(repo, svc, Config{})

	at := time.Now().Add(time.Hour)
	sched, err := s.Schedule(context.Background(), scheduleInput(at))
	require.NoError(t, err)

	assert.Equal(t, domain.ScheduleStatusScheduled, sched.Status)
	assert.Equal(t, 0, sched.Attempts)
	assert.Equal(t, domain.DefaultMaxAttempts, sched.MaxAttempts)
	assert.Equal(t, domain.DefaultRetryInterval, sched.RetryInterval)
	require.NotNil(t, sched.NextAttemptAt)
	assert.True(t, sched.NextAttemptAt.Equal(at))
	assert.Empty(t, svc.delivered, "nothing is sent at schedule time")
}

func TestScheduler_Schedule_PastTime(t *testing.T) {
	s := New(newMockRepository(), &mockService{}, Config{})

	_, err := s.Schedule(context.Background(), scheduleInput(time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestScheduler_Schedule_CreateFails(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{createErr: notifications.ErrPreferenceDenied}
	s := New(repo, svc, Config{})

	_, err := s.Schedule(context.Background(), scheduleInput(time.Now().Add(time.Hour)))
	require.ErrorIs(t, err, notifications.ErrPreferenceDenied)
	assert.Empty(t, repo.byID)
}

// seedDue plants a schedule row that is already due.
func seedDue(repo *mockRepository, maxAttempts int, retryInterval time.Duration) *domain.ScheduledNotification {
	due := time.Now().Add(-time.Minute)
	sched := &domain.ScheduledNotification{
		ID:             uuid.NewString(),
		NotificationID: uuid.NewString(),
		Status:         domain.ScheduleStatusScheduled,
		MaxAttempts:    maxAttempts,
		RetryInterval:  retryInterval,
		NextAttemptAt:  &due,
	}
	repo.byID[sched.ID] = sched
	return sched
}

func TestRunCycle_DeliversDue(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{}
	s := New(repo, svc, Config{})

	sched := seedDue(repo, 3, 300*time.Second)

	result := s.RunCycle(context.Background())

	assert.Equal(t, CycleResult{Processed: 1, Successful: 1}, result)
	assert.Equal(t, []string{sched.NotificationID}, svc.delivered)
	assert.Equal(t, domain.ScheduleStatusSent, repo.byID[sched.ID].Status)
	assert.Equal(t, 1, repo.byID[sched.ID].Attempts)
}

func TestRunCycle_NotDueYet(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{}
	s := New(repo, svc, Config{})

	future := time.Now().Add(time.Hour)
	sched := seedDue(repo, 3, 300*time.Second)
	repo.byID[sched.ID].NextAttemptAt = &future

	result := s.RunCycle(context.Background())

	assert.Equal(t, CycleResult{}, result)
	assert.Empty(t, svc.delivered)
}

func TestRunCycle_RetryableFailureBacksOff(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{
		deliverErr: notifications.NewProviderError(domain.ChannelEmail, errors.New("timeout"), true),
	}
	s := New(repo, svc, Config{})

	retryInterval := 300 * time.Second
	sched := seedDue(repo, 2, retryInterval)

	before := time.Now()
	result := s.RunCycle(context.Background())

	assert.Equal(t, CycleResult{Processed: 1, Failed: 1}, result)

	row := repo.byID[sched.ID]
	assert.Equal(t, domain.ScheduleStatusScheduled, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Contains(t, row.ErrorDetails, "timeout")
	require.NotNil(t, row.NextAttemptAt)
	assert.WithinDuration(t, before.Add(retryInterval), *row.NextAttemptAt, 5*time.Second)
}

func TestRunCycle_ExhaustsAttempts(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{
		deliverErr: notifications.NewProviderError(domain.ChannelEmail, errors.New("timeout"), true),
	}
	s := New(repo, svc, Config{})

	sched := seedDue(repo, 2, 300*time.Second)

	// first attempt: retry scheduled
	s.RunCycle(context.Background())
	require.Equal(t, domain.ScheduleStatusScheduled, repo.byID[sched.ID].Status)

	// make the retry due now
	due := time.Now().Add(-time.Second)
	repo.byID[sched.ID].NextAttemptAt = &due

	// second attempt: attempts == max, terminal failure
	s.RunCycle(context.Background())

	row := repo.byID[sched.ID]
	assert.Equal(t, domain.ScheduleStatusFailed, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Nil(t, row.NextAttemptAt)
	assert.Contains(t, row.ErrorDetails, "timeout")
	assert.Len(t, svc.delivered, 2)
}

func TestRunCycle_PermanentProviderFailureStillBacksOff(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{
		deliverErr: notifications.NewProviderError(domain.ChannelEmail, errors.New("mailbox does not exist"), false),
	}
	s := New(repo, svc, Config{})

	sched := seedDue(repo, 3, 300*time.Second)

	s.RunCycle(context.Background())

	// Any provider failure is retried until attempts run out.
	row := repo.byID[sched.ID]
	assert.Equal(t, domain.ScheduleStatusScheduled, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.NextAttemptAt)
}

// blockingService stalls the first Deliver call until released.
type blockingService struct {
	mockService
	started chan struct{}
	release chan struct{}
}

func (b *blockingService) Deliver(ctx context.Context, notificationID string) error {
	close(b.started)
	<-b.release
	return b.mockService.Deliver(ctx, notificationID)
}

func TestRunCycle_DoesNotOverlap(t *testing.T) {
	repo := newMockRepository()
	svc := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	s := New(repo, svc, Config{})

	sched := seedDue(repo, 3, 300*time.Second)

	first := make(chan CycleResult, 1)
	go func() { first <- s.RunCycle(context.Background()) }()
	<-svc.started

	// a cycle is in flight, so a concurrent run does nothing
	assert.Equal(t, CycleResult{}, s.RunCycle(context.Background()))

	close(svc.release)
	assert.Equal(t, CycleResult{Processed: 1, Successful: 1}, <-first)
	assert.Equal(t, []string{sched.NotificationID}, svc.delivered, "the row is delivered exactly once")
}

// lostClaimRepository simulates a second scheduler instance winning
// the claim between listing and claiming.
type lostClaimRepository struct {
	*mockRepository
}

func (r *lostClaimRepository) ClaimProcessing(context.Context, string) (*domain.ScheduledNotification, error) {
	return nil, ErrNotClaimable
}

func TestRunCycle_LostClaimIsExcluded(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{}
	s := New(&lostClaimRepository{repo}, svc, Config{})

	seedDue(repo, 3, 300*time.Second)

	result := s.RunCycle(context.Background())

	assert.Equal(t, CycleResult{}, result, "a lost claim does not count as processed")
	assert.Empty(t, svc.delivered)
}

func TestRunCycle_NonProviderErrorIsTerminal(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{deliverErr: notifications.ErrInvalidState}
	s := New(repo, svc, Config{})

	sched := seedDue(repo, 3, 300*time.Second)

	s.RunCycle(context.Background())

	assert.Equal(t, domain.ScheduleStatusFailed, repo.byID[sched.ID].Status)
}

func TestReschedule(t *testing.T) {
	repo := newMockRepository()
	s := New(repo, &mockService{}, Config{})

	sched := seedDue(repo, 3, 300*time.Second)
	repo.byID[sched.ID].Attempts = 2
	repo.byID[sched.ID].ErrorDetails = "timeout"

	at := time.Now().Add(2 * time.Hour)
	updated, err := s.Reschedule(context.Background(), sched.ID, at)
	require.NoError(t, err)

	assert.Equal(t, 0, updated.Attempts)
	assert.Empty(t, updated.ErrorDetails)
	assert.True(t, updated.NextAttemptAt.Equal(at))
}

func TestReschedule_PastTime(t *testing.T) {
	repo := newMockRepository()
	s := New(repo, &mockService{}, Config{})

	sched := seedDue(repo, 3, 300*time.Second)

	_, err := s.Reschedule(context.Background(), sched.ID, time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestReschedule_OnlyScheduled(t *testing.T) {
	repo := newMockRepository()
	s := New(repo, &mockService{}, Config{})

	sched := seedDue(repo, 3, 300*time.Second)
	repo.byID[sched.ID].Status = domain.ScheduleStatusSent

	_, err := s.Reschedule(context.Background(), sched.ID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrScheduleState)
}

func TestCancelScheduled(t *testing.T) {
	repo := newMockRepository()
	svc := &mockService{}
	s := New(repo, svc, Config{})

	sched := seedDue(repo, 3, 300*time.Second)

	require.NoError(t, s.CancelScheduled(context.Background(), sched.ID))

	assert.Equal(t, domain.ScheduleStatusFailed, repo.byID[sched.ID].Status)
	assert.Equal(t, "Cancelled", repo.byID[sched.ID].ErrorDetails)
	assert.Equal(t, []string{sched.NotificationID}, svc.cancelled)
}

func TestCancelScheduled_OnlyScheduled(t *testing.T) {
	repo := newMockRepository()
	s := New(repo, &mockService{}, Config{})

	sched := seedDue(repo, 3, 300*time.Second)
	repo.byID[sched.ID].Status = domain.ScheduleStatusProcessing

	err := s.CancelScheduled(context.Background(), sched.ID)
	assert.ErrorIs(t, err, ErrScheduleState)
}

func TestRun_StopsOnStop(t *testing.T) {
	repo := newMockRepository()
	s := New(repo, &mockService{}, Config{PollInterval: 10 * time.Millisecond})

	go s.Run(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
