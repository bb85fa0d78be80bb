package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository/repotest"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/email"
)

var day0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	msgs []email.Message
}

func (s *recordingSender) Send(_ context.Context, m email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type detacher struct {
	keys []model.VPNKey
	err  error
}

func (d *detacher) DetachAll(_ context.Context, keys []model.VPNKey) error {
	d.keys = append(d.keys, keys...)
	return d.err
}

type world struct {
	now       time.Time
	lifecycle *service.Lifecycle
	ledger    *service.Ledger
	accounts  *service.Accounts
	servers   *service.Servers
	notifier  *email.Notifier
	sender    *recordingSender
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store, _ := repotest.Open(t)
	w := &world{now: day0, sender: &recordingSender{}}
	clock := func() time.Time { return w.now }
	opts := []service.Option{service.WithClock(clock), service.WithBcryptCost(bcrypt.MinCost)}
	log := zerolog.Nop()

	alloc := service.NewAllocator(store, log, opts...)
	w.lifecycle = service.NewLifecycle(store, alloc, log, opts...)
	w.ledger = service.NewLedger(store, log, opts...)
	w.accounts = service.NewAccounts(store, log, opts...)
	w.servers = service.NewServers(store, log, opts...)

	n, err := email.NewNotifier(w.sender, w.ledger, log)
	require.NoError(t, err)
	w.notifier = n
	return w
}

func (w *world) buy(t *testing.T, email, plan string) *service.Purchase {
	t.Helper()
	ctx := context.Background()
	u, err := w.accounts.Register(ctx, email, "secret123")
	require.NoError(t, err)
	p, err := w.lifecycle.Purchase(ctx, u.ID, plan, "ref-"+email)
	require.NoError(t, err)
	return p
}

func TestExpirySweep(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, err := w.servers.Add(ctx, service.NewServer{Name: "Main", Host: "h", MaxClients: 5})
	require.NoError(t, err)
	p := w.buy(t, "expire@example.com", "1m")
	w.buy(t, "keep@example.com", "3m")

	panel := &detacher{}
	job := NewExpirySweep(w.lifecycle, w.notifier, panel, func() time.Time { return w.now }, zerolog.Nop())

	w.now = day0.Add(31 * 24 * time.Hour)
	require.NoError(t, job.Run(ctx))
	require.Len(t, panel.keys, 1)
	assert.Equal(t, p.Key.ID, panel.keys[0].ID)

	history, err := w.ledger.History(ctx, p.Subscription.UserID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TemplateExpired, history[0].Template)
	assert.True(t, history[0].Success)

	require.NoError(t, job.Run(ctx), "second run is a no-op")
	assert.Len(t, panel.keys, 1)
	assert.Equal(t, 1, w.sender.count())

	servers, err := w.servers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, servers[0].ActiveClients)
}

func TestExpirySweepPanelFailureStillNotifies(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, err := w.servers.Add(ctx, service.NewServer{Name: "Main", Host: "h", MaxClients: 5})
	require.NoError(t, err)
	w.buy(t, "panel@example.com", "1m")

	job := NewExpirySweep(w.lifecycle, w.notifier, &detacher{err: errors.New("panel down")}, func() time.Time { return w.now }, zerolog.Nop())
	w.now = day0.Add(30 * 24 * time.Hour)
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, w.sender.count())
}

func TestRemindersOncePerSubscription(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, err := w.servers.Add(ctx, service.NewServer{Name: "Main", Host: "h", MaxClients: 10})
	require.NoError(t, err)

	soon := w.buy(t, "soon@example.com", "1m")
	w.buy(t, "later@example.com", "3m")

	renewedSub := w.buy(t, "renewed@example.com", "1m")
	w.now = w.now.Add(time.Hour)
	_, err = w.lifecycle.Purchase(ctx, renewedSub.Subscription.UserID, "3m", "ref-renewal")
	require.NoError(t, err)

	job := NewReminders(w.lifecycle, w.notifier, NewLedgerGuard(w.ledger), 3*24*time.Hour, func() time.Time { return w.now }, zerolog.Nop())

	w.now = day0.Add(28 * 24 * time.Hour)
	require.NoError(t, job.Run(ctx))
	require.Equal(t, 1, w.sender.count())
	assert.Equal(t, "soon@example.com", w.sender.msgs[0].To)
	assert.Contains(t, w.sender.msgs[0].Subject, "2 days")

	w.now = w.now.Add(24 * time.Hour)
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, w.sender.count(), "ledger guard prevents a second reminder")

	rows, err := w.ledger.History(ctx, soon.Subscription.UserID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.TemplateExpiringSoon, rows[0].Template)
}

func TestLedgerGuardIsPerSubscription(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	u, err := w.accounts.Register(ctx, "two@example.com", "secret123")
	require.NoError(t, err)

	window := 3 * 24 * time.Hour
	expires := day0.Add(2 * 24 * time.Hour)
	first := &model.Subscription{ID: 41, UserID: u.ID, IsActive: true, ExpiresAt: &expires}
	second := &model.Subscription{ID: 42, UserID: u.ID, IsActive: true, ExpiresAt: &expires}

	guard := NewLedgerGuard(w.ledger)
	ok, err := guard.Acquire(ctx, first, window)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.notifier.ExpiringSoon(ctx, u, first, 2))

	ok, err = guard.Acquire(ctx, first, window)
	require.NoError(t, err)
	assert.False(t, ok, "first subscription was already reminded")

	ok, err = guard.Acquire(ctx, second, window)
	require.NoError(t, err)
	assert.True(t, ok, "a reminder for another subscription of the same user does not count")

	rows, err := w.ledger.History(ctx, u.ID)
	require.NoError(t, err)
	var reminder *model.EmailNotification
	for i := range rows {
		if rows[i].Template == model.TemplateExpiringSoon {
			reminder = &rows[i]
		}
	}
	require.NotNil(t, reminder)
	require.NotNil(t, reminder.SubscriptionID)
	assert.Equal(t, first.ID, *reminder.SubscriptionID)
}

type memGuard struct{ seen map[uint]bool }

func (g *memGuard) Acquire(_ context.Context, sub *model.Subscription, _ time.Duration) (bool, error) {
	if g.seen[sub.ID] {
		return false, nil
	}
	g.seen[sub.ID] = true
	return true, nil
}

type failingGuard struct{}

func (failingGuard) Acquire(context.Context, *model.Subscription, time.Duration) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestRemindersGuardErrorsSkip(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, err := w.servers.Add(ctx, service.NewServer{Name: "Main", Host: "h", MaxClients: 10})
	require.NoError(t, err)
	w.buy(t, "guard@example.com", "1m")
	w.now = day0.Add(29 * 24 * time.Hour)

	job := NewReminders(w.lifecycle, w.notifier, failingGuard{}, 3*24*time.Hour, func() time.Time { return w.now }, zerolog.Nop())
	assert.Error(t, job.Run(ctx))
	assert.Zero(t, w.sender.count())

	job = NewReminders(w.lifecycle, w.notifier, &memGuard{seen: map[uint]bool{}}, 3*24*time.Hour, func() time.Time { return w.now }, zerolog.Nop())
	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, w.sender.count())
}

func TestRedisGuardReportsConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer rdb.Close()

	g := NewRedisGuard(rdb)
	assert.Equal(t, "gshvpn:reminded:expiring_soon:5", g.key(&model.Subscription{ID: 5}))

	_, err := g.Acquire(context.Background(), &model.Subscription{ID: 5}, time.Hour)
	assert.Error(t, err)
}

type fakePinger struct{ down map[uint]bool }

func (p fakePinger) Ping(_ context.Context, s *model.VPNServer) error {
	if p.down[s.ID] {
		return errors.New("timeout")
	}
	return nil
}

func TestHealthCheck(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	up, err := w.servers.Add(ctx, service.NewServer{Name: "Up", Host: "h1", MaxClients: 5, ManagementURL: "https://h1/api"})
	require.NoError(t, err)
	down, err := w.servers.Add(ctx, service.NewServer{Name: "Down", Host: "h2", MaxClients: 5, ManagementURL: "https://h2/api"})
	require.NoError(t, err)
	unmanaged, err := w.servers.Add(ctx, service.NewServer{Name: "Bare", Host: "h3", MaxClients: 5})
	require.NoError(t, err)

	job := NewHealthCheck(w.servers, fakePinger{down: map[uint]bool{down.ID: true}}, zerolog.Nop())
	require.NoError(t, job.Run(ctx))

	servers, err := w.servers.List(ctx)
	require.NoError(t, err)
	byID := map[uint]model.VPNServer{}
	for _, s := range servers {
		byID[s.ID] = s
	}
	assert.NotNil(t, byID[up.ID].LastHealthCheck)
	assert.Nil(t, byID[down.ID].LastHealthCheck)
	assert.Nil(t, byID[unmanaged.ID].LastHealthCheck)
}

type countingJob struct {
	mu   sync.Mutex
	runs int
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	return nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(zerolog.Nop(), time.Minute)
	assert.Error(t, s.Add("not a spec", &countingJob{}))
	require.NoError(t, s.Add("@every 1h", &countingJob{}))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerRunWrapsJob(t *testing.T) {
	s := NewScheduler(zerolog.Nop(), time.Minute)
	job := &countingJob{}
	s.run(job)
	s.run(job)
	assert.Equal(t, 2, job.runs)
}
