package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
	"gshvpn_backend/internal/repository/repotest"
	"gshvpn_backend/internal/service"
)

var day0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	store     repository.Store
	db        *gorm.DB
	clock     *fakeClock
	alloc     *service.Allocator
	lifecycle *service.Lifecycle
	ledger    *service.Ledger
	accounts  *service.Accounts
	servers   *service.Servers
	stats     *service.Stats
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, db := repotest.Open(t)
	return newEnvWithStore(t, store, db)
}

func newEnvWithStore(t *testing.T, store repository.Store, db *gorm.DB, extra ...service.Option) *env {
	t.Helper()
	clock := &fakeClock{t: day0}
	opts := append([]service.Option{service.WithClock(clock.Now), service.WithBcryptCost(bcrypt.MinCost)}, extra...)
	log := zerolog.Nop()

	alloc := service.NewAllocator(store, log, opts...)
	return &env{
		store:     store,
		db:        db,
		clock:     clock,
		alloc:     alloc,
		lifecycle: service.NewLifecycle(store, alloc, log, opts...),
		ledger:    service.NewLedger(store, log, opts...),
		accounts:  service.NewAccounts(store, log, opts...),
		servers:   service.NewServers(store, log, opts...),
		stats:     service.NewStats(store),
	}
}

func (e *env) user(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := e.accounts.Register(context.Background(), email, "secret123")
	require.NoError(t, err)
	return u
}

func (e *env) server(t *testing.T, name string, max int) *model.VPNServer {
	t.Helper()
	srv, err := e.servers.Add(context.Background(), service.NewServer{Name: name, Host: name + ".vpn.test", MaxClients: max})
	require.NoError(t, err)
	return srv
}

func (e *env) load(t *testing.T, serverID uint) int {
	t.Helper()
	srv, err := e.store.Servers().Get(context.Background(), serverID)
	require.NoError(t, err)
	return srv.ActiveClients
}

func (e *env) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}
