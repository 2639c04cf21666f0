package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/email"
	"github.com/afterword/afterword/internal/escalation"
	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/queue"
)

// ---- fakes ----

type fakeSecrets struct {
	mu        sync.Mutex
	due       []model.Secret
	dueErr    error
	triggered map[string]bool

	// movedDeadlines holds next_check_in values advanced by a check-in that
	// landed after the scan returned its snapshot.
	movedDeadlines map[string]int64
}

func (f *fakeSecrets) DueWithinWindow(ctx context.Context, nowMs, lookaheadMs int64) ([]model.Secret, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	out := make([]model.Secret, len(f.due))
	copy(out, f.due)
	return out, nil
}

func (f *fakeSecrets) MarkTriggered(ctx context.Context, id string, nowMs int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.movedDeadlines[id]; ok && d > nowMs {
		return false, nil // the conditional UPDATE matches no row
	}
	if f.triggered == nil {
		f.triggered = map[string]bool{}
	}
	if f.triggered[id] {
		return false, nil
	}
	f.triggered[id] = true
	return true, nil
}

type fakeIssuer struct {
	mu     sync.Mutex
	issued int
	err    error
}

func (f *fakeIssuer) Issue(ctx context.Context, secretID string, nowMs, expiresAtMs int64) (*model.CheckInToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.issued++
	return &model.CheckInToken{Token: "tok", SecretID: secretID, ExpiresAt: expiresAtMs, CreatedAt: nowMs}, nil
}

type dedupeKey struct {
	secretID, tier string
	cycle          int64
}

type fakeDedupe struct {
	mu   sync.Mutex
	rows map[dedupeKey]bool
}

func newFakeDedupe() *fakeDedupe { return &fakeDedupe{rows: map[dedupeKey]bool{}} }

func (f *fakeDedupe) WasSent(ctx context.Context, secretID, tier string, cycleMs int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[dedupeKey{secretID, tier, cycleMs}], nil
}

func (f *fakeDedupe) MarkSent(ctx context.Context, secretID, tier string, cycleMs, sentAtMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[dedupeKey{secretID, tier, cycleMs}] = true
	return nil
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []email.EmailData
	failAll bool
}

func (f *fakeMailer) Send(ctx context.Context, data email.EmailData) email.EmailResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	if f.failAll {
		return email.EmailResult{Error: "unreachable", Retryable: true, Attempts: 3}
	}
	return email.EmailResult{Success: true, MessageID: "m1", Attempts: 1}
}

func (f *fakeMailer) ProviderName() string { return "mock" }

func (f *fakeMailer) byType(t email.EmailType) []email.EmailData {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []email.EmailData
	for _, d := range f.sent {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

type recoveryKey struct {
	typ       email.EmailType
	recipient string
}

type fakeEscalator struct {
	mu        sync.Mutex
	recorded  []escalation.FailureData
	recovered []recoveryKey
}

func (f *fakeEscalator) Record(ctx context.Context, data escalation.FailureData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, data)
	return nil
}

func (f *fakeEscalator) Delivered(ctx context.Context, typ email.EmailType, recipient, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovered = append(f.recovered, recoveryKey{typ, recipient})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.LifecycleEvent
}

func (f *fakePublisher) PublishLifecycle(ctx context.Context, ev queue.LifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// ---- helpers ----

func secretWithDeadline(id string, now time.Time, remaining time.Duration) model.Secret {
	next := now.Add(remaining).UnixMilli()
	return model.Secret{
		ID:                  id,
		OwnerEmail:          "owner@example.com",
		Title:               "will",
		CheckInIntervalDays: 30,
		LastCheckIn:         next - 30*model.MillisPerDay,
		NextCheckIn:         next,
		Status:              model.StatusActive,
		Recipients: []model.Recipient{
			{Position: 1, Name: "Ana", Email: "ana@example.com"},
			{Position: 2, Name: "Ben", Email: "ben@example.com"},
		},
	}
}

type fixture struct {
	secrets *fakeSecrets
	issuer  *fakeIssuer
	dedupe  *fakeDedupe
	mailer  *fakeMailer
	esc     *fakeEscalator
	pub     *fakePublisher
	sched   *Scheduler
}

func newFixture(due ...model.Secret) *fixture {
	f := &fixture{
		secrets: &fakeSecrets{due: due},
		issuer:  &fakeIssuer{},
		dedupe:  newFakeDedupe(),
		mailer:  &fakeMailer{},
		esc:     &fakeEscalator{},
		pub:     &fakePublisher{},
	}
	f.sched = New(f.secrets, f.issuer, f.dedupe, f.mailer, f.esc,
		&TextRenderer{BaseURL: "https://afterword.dev"}, f.pub, Options{Workers: 4})
	return f
}

// ---- tests ----

func TestRunOncePastDeadlineDisclosesToEveryRecipientOnce(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, -time.Minute))

	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.DisclosuresTriggered)
	assert.Equal(t, 0, sum.RemindersProcessed)
	assert.True(t, f.secrets.triggered["s1"])

	disclosures := f.mailer.byType(email.TypeDisclosure)
	require.Len(t, disclosures, 2)
	assert.Equal(t, "ana@example.com", disclosures[0].To)
	assert.Equal(t, "ben@example.com", disclosures[1].To)

	// Second run: the secret is triggered, the store no longer returns it.
	f.secrets.due = nil
	sum, err = f.sched.RunOnce(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.DisclosuresTriggered)
	assert.Len(t, f.mailer.byType(email.TypeDisclosure), 2, "never re-disclosed")
}

func TestRunOnceCheckInDuringScanWinsOverDisclosure(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, -time.Minute))

	// A check-in lands between the candidate scan and the transition: the
	// stale snapshot still looks past-deadline, but the stored row has moved.
	f.secrets.movedDeadlines = map[string]int64{
		"s1": now.AddDate(0, 0, 30).UnixMilli(),
	}

	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 0, sum.DisclosuresTriggered)
	assert.False(t, f.secrets.triggered["s1"])
	for _, ev := range f.pub.events {
		assert.NotEqual(t, queue.KindDisclosed, ev.Kind)
	}
}

func TestRunOnceDisclosureFailureStillTriggers(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, -time.Minute))
	f.mailer.failAll = true

	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	// The deadline has truly passed: failures escalate, the transition holds.
	assert.Equal(t, 1, sum.DisclosuresTriggered)
	assert.True(t, f.secrets.triggered["s1"])
	require.Len(t, f.esc.recorded, 2)
	for _, rec := range f.esc.recorded {
		assert.Equal(t, email.TypeDisclosure, rec.Type)
	}
}

func TestRunOnceSendsDueTierWithCheckInLink(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, 11*time.Hour)) // 12_hour tier

	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Summary{RemindersProcessed: 1, RemindersSent: 1}, sum)
	assert.Equal(t, 1, f.issuer.issued)

	reminders := f.mailer.byType(email.TypeReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, "owner@example.com", reminders[0].To)
	assert.Contains(t, reminders[0].Body, "/v1/check-in?token=tok")
	assert.Contains(t, reminders[0].Subject, "11 hours left")
}

func TestRunOnceSuccessfulSendClosesEarlierFailure(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, 11*time.Hour))

	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	// Every successful send reports a recovery so the escalation service can
	// resolve a failure record left by an earlier attempt.
	assert.Equal(t, 1, sum.RemindersSent)
	require.Len(t, f.esc.recovered, 1)
	assert.Equal(t, recoveryKey{email.TypeReminder, "owner@example.com"}, f.esc.recovered[0])
	assert.Empty(t, f.esc.recorded)
}

func TestRunOnceDeduplicatesAcrossRuns(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, 11*time.Hour))

	_, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)
	sum, err := f.sched.RunOnce(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, Summary{}, sum, "second immediate run sends nothing")
	assert.Len(t, f.mailer.byType(email.TypeReminder), 1)
}

func TestRunOnceNewCycleResendsTiers(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	sec := secretWithDeadline("s1", now, 11*time.Hour)
	f := newFixture(sec)

	_, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	// A check-in advances LastCheckIn; the same tier becomes sendable again
	// in the new cycle.
	sec.LastCheckIn += model.MillisPerDay
	f.secrets.due = []model.Secret{sec}
	sum, err := f.sched.RunOnce(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RemindersSent)
}

func TestRunOnceReminderFailureCountsAndEscalates(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(secretWithDeadline("s1", now, 11*time.Hour))
	f.mailer.failAll = true

	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Summary{RemindersProcessed: 1, RemindersFailed: 1}, sum)
	require.Len(t, f.esc.recorded, 1)
	assert.Equal(t, email.TypeReminder, f.esc.recorded[0].Type)

	// The failure was logged, which is a terminal outcome: the tier is not
	// retried within the same cycle.
	sum, err = f.sched.RunOnce(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}

func TestRunOnceIsolatesPerSecretFailures(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(
		secretWithDeadline("bad", now, 30*time.Minute),
		secretWithDeadline("good", now, 30*time.Minute),
	)

	// A store-level fault while processing individual secrets is counted,
	// never propagated: every candidate is still visited.
	f.issuer.err = errors.New("insert failed")
	sum, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err, "per-item failures never abort the run")
	assert.Equal(t, 2, sum.RemindersProcessed)
	assert.Equal(t, 2, sum.RemindersFailed)
}

func TestRunOnceStoreFailureAbortsRun(t *testing.T) {
	f := newFixture()
	f.secrets.dueErr = errors.New("connection refused")

	_, err := f.sched.RunOnce(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestRunOncePublishesLifecycleEvents(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	f := newFixture(
		secretWithDeadline("due", now, -time.Minute),
		secretWithDeadline("soon", now, 11*time.Hour),
	)

	_, err := f.sched.RunOnce(context.Background(), now)
	require.NoError(t, err)

	kinds := map[string]int{}
	for _, ev := range f.pub.events {
		kinds[ev.Kind]++
	}
	assert.Equal(t, 1, kinds[queue.KindDisclosed])
	assert.Equal(t, 1, kinds[queue.KindReminderSent])
}
