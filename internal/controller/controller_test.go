package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository/repotest"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/outline"
	"gshvpn_backend/pkg/payment"
	"gshvpn_backend/pkg/utils/jwt"
)

var day0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []model.NotificationTemplate
}

func (f *fakeNotifier) add(kind model.NotificationTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	return nil
}

func (f *fakeNotifier) Welcome(context.Context, *model.User) error {
	return f.add(model.TemplateWelcome)
}

func (f *fakeNotifier) PaymentSuccess(context.Context, *model.User, *model.Subscription, *model.VPNKey) error {
	return f.add(model.TemplatePaymentSuccess)
}

func (f *fakeNotifier) Revoked(context.Context, *model.User, *model.Subscription) error {
	return f.add(model.TemplateSubscriptionRevoked)
}

func (f *fakeNotifier) sent() []model.NotificationTemplate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.NotificationTemplate(nil), f.calls...)
}

type fakeGateway struct {
	completion *payment.Completion
	parseErr   error
	refunds    []string
	checkouts  []payment.Checkout
}

func (g *fakeGateway) CreateCheckout(_ context.Context, in payment.Checkout) (*payment.Session, error) {
	g.checkouts = append(g.checkouts, in)
	return &payment.Session{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (*payment.Completion, error) {
	return g.completion, g.parseErr
}

func (g *fakeGateway) Refund(_ context.Context, paymentIntentID string) error {
	g.refunds = append(g.refunds, paymentIntentID)
	return nil
}

type fakePanel struct {
	attached []uint
	detached []uint
}

func (p *fakePanel) Attach(_ context.Context, k *model.VPNKey) (*outline.AccessKey, error) {
	p.attached = append(p.attached, k.ID)
	return &outline.AccessKey{ID: fmt.Sprint(k.ID), AccessURL: "ss://test"}, nil
}

func (p *fakePanel) DetachAll(_ context.Context, keys []model.VPNKey) error {
	for _, k := range keys {
		p.detached = append(p.detached, k.ID)
	}
	return nil
}

type fakeArchive struct {
	objects map[uint]string
}

func (a *fakeArchive) Put(_ context.Context, k *model.VPNKey, accessURL string) (string, error) {
	a.objects[k.ID] = accessURL
	return fmt.Sprintf("keys/%d.txt", k.ID), nil
}

func (a *fakeArchive) URL(_ context.Context, k *model.VPNKey) (string, error) {
	if _, ok := a.objects[k.ID]; !ok {
		return "", errors.New("no such object")
	}
	return fmt.Sprintf("https://r2.test/keys/%d.txt?sig=1", k.ID), nil
}

func (a *fakeArchive) Delete(_ context.Context, k *model.VPNKey) error {
	delete(a.objects, k.ID)
	return nil
}

type testApp struct {
	app      *fiber.App
	db       *gorm.DB
	tokens   *jwt.Manager
	servers  *service.Servers
	accounts *service.Accounts
	notifier *fakeNotifier
	gateway  *fakeGateway
	panel    *fakePanel
	archive  *fakeArchive
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, db := repotest.Open(t)
	log := zerolog.Nop()
	now := func() time.Time { return day0 }
	opts := []service.Option{service.WithClock(now), service.WithBcryptCost(bcrypt.MinCost)}

	alloc := service.NewAllocator(store, log, opts...)
	ta := &testApp{
		db:       db,
		tokens:   jwt.NewManager("controller-test", time.Hour),
		servers:  service.NewServers(store, log, opts...),
		accounts: service.NewAccounts(store, log, opts...),
		notifier: &fakeNotifier{},
		gateway:  &fakeGateway{},
		panel:    &fakePanel{},
		archive:  &fakeArchive{objects: map[uint]string{}},
	}

	h := New(Deps{
		Log:        log,
		Tokens:     ta.tokens,
		Accounts:   ta.accounts,
		Lifecycle:  service.NewLifecycle(store, alloc, log, opts...),
		Ledger:     service.NewLedger(store, log, opts...),
		Servers:    ta.servers,
		Stats:      service.NewStats(store),
		Notifier:   ta.notifier,
		Payments:   ta.gateway,
		Panel:      ta.panel,
		Archive:    ta.archive,
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
		Now:        now,
	})
	ta.app = fiber.New()
	h.SetupRoutes(ta.app)
	return ta
}

func (ta *testApp) call(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	} else {
		out["raw"] = string(raw)
	}
	return resp.StatusCode, out
}

// register creates a user through the API and returns its id and token.
func (ta *testApp) register(t *testing.T, email string) (uint, string) {
	t.Helper()
	status, body := ta.call(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{"email": email, "password": "secret123"})
	require.Equal(t, fiber.StatusCreated, status, body)
	user := body["user"].(map[string]interface{})
	return uint(user["id"].(float64)), body["token"].(string)
}

func (ta *testApp) admin(t *testing.T) (uint, string) {
	t.Helper()
	user, _, err := ta.accounts.EnsureAdmin(context.Background(), "admin@gshvpn.test", "admin123")
	require.NoError(t, err)
	token, err := ta.tokens.GenerateToken(user.ID, user.Email, true)
	require.NoError(t, err)
	return user.ID, token
}

func (ta *testApp) server(t *testing.T, max int) *model.VPNServer {
	t.Helper()
	srv, err := ta.servers.Add(context.Background(), service.NewServer{Name: "Frankfurt", Host: "fra.vpn.test", MaxClients: max})
	require.NoError(t, err)
	return srv
}

func (ta *testApp) activeClients(t *testing.T, id uint) int {
	t.Helper()
	var srv model.VPNServer
	require.NoError(t, ta.db.First(&srv, id).Error)
	return srv.ActiveClients
}

func TestAuthFlow(t *testing.T) {
	ta := newTestApp(t)

	_, token := ta.register(t, "User@Example.com")
	assert.Equal(t, []model.NotificationTemplate{model.TemplateWelcome}, ta.notifier.sent())

	status, body := ta.call(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{"email": "user@example.com", "password": "secret123"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Email already exists", body["error"])

	status, _ = ta.call(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{"email": "nope", "password": "secret123"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = ta.call(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{"email": "user@example.com", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = ta.call(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{"email": "user@example.com", "password": "secret123"})
	require.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, body = ta.call(t, fiber.MethodGet, "/api/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user@example.com", body["user"].(map[string]interface{})["email"])

	status, _ = ta.call(t, fiber.MethodGet, "/api/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestListPlans(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.call(t, fiber.MethodGet, "/api/plans", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	plans := body["plans"].([]interface{})
	require.Len(t, plans, 3)
	assert.Equal(t, "free", plans[0].(map[string]interface{})["id"])
}

func TestCheckoutFreePlan(t *testing.T) {
	ta := newTestApp(t)
	srv := ta.server(t, 2)
	_, token := ta.register(t, "free@example.com")

	status, body := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "free"})
	require.Equal(t, fiber.StatusCreated, status, body)

	sub := body["subscription"].(map[string]interface{})
	assert.Equal(t, "FREE_PLAN", sub["payment_id"])
	assert.Nil(t, sub["expires_at"])
	assert.Equal(t, 1, ta.activeClients(t, srv.ID))
	assert.Len(t, ta.panel.attached, 1)
	assert.Equal(t, "ss://test", ta.archive.objects[ta.panel.attached[0]])
	assert.Contains(t, ta.notifier.sent(), model.TemplatePaymentSuccess)

	status, body = ta.call(t, fiber.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["has_access"])
	assert.Nil(t, body["days_remaining"])
	assert.Len(t, body["keys"], 1)
	assert.Len(t, body["history"], 1)
}

func TestCheckoutErrors(t *testing.T) {
	ta := newTestApp(t)
	_, token := ta.register(t, "buyer@example.com")

	status, _ := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "12m"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "free"})
	assert.Equal(t, fiber.StatusServiceUnavailable, status, "no servers registered")
	assert.Contains(t, body["error"], "try again later")

	status, _ = ta.call(t, fiber.MethodPost, "/api/billing/checkout", "", fiber.Map{"plan": "1m"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestCheckoutPaidPlanOpensSession(t *testing.T) {
	ta := newTestApp(t)
	userID, token := ta.register(t, "buyer@example.com")

	status, body := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "3m"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", body["checkout_url"])

	require.Len(t, ta.gateway.checkouts, 1)
	in := ta.gateway.checkouts[0]
	assert.Equal(t, userID, in.UserID)
	assert.Equal(t, "buyer@example.com", in.Email)
	assert.Equal(t, int64(2900), in.Plan.AmountCents())
	assert.Equal(t, "https://app.test/ok", in.SuccessURL)
}

func TestWebhook(t *testing.T) {
	ta := newTestApp(t)
	srv := ta.server(t, 1)
	userID, token := ta.register(t, "buyer@example.com")
	other, _ := ta.register(t, "late@example.com")

	ta.gateway.parseErr = payment.ErrInvalidSignature
	status, _ := ta.call(t, fiber.MethodPost, "/api/billing/webhook", "", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	ta.gateway.parseErr = payment.ErrIgnoredEvent
	status, _ = ta.call(t, fiber.MethodPost, "/api/billing/webhook", "", fiber.Map{})
	assert.Equal(t, fiber.StatusOK, status)

	ta.gateway.parseErr = nil
	ta.gateway.completion = &payment.Completion{Reference: "cs_1", UserID: userID, PlanID: "1m", Paid: true, PaymentIntentID: "pi_1"}
	status, body := ta.call(t, fiber.MethodPost, "/api/billing/webhook", "", fiber.Map{})
	require.Equal(t, fiber.StatusOK, status)
	assert.NotNil(t, body["subscription_id"])
	assert.Equal(t, 1, ta.activeClients(t, srv.ID))

	status, body = ta.call(t, fiber.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(30), body["days_remaining"])

	ta.gateway.completion = &payment.Completion{Reference: "cs_2", UserID: other, PlanID: "1m", Paid: true, PaymentIntentID: "pi_2"}
	status, body = ta.call(t, fiber.MethodPost, "/api/billing/webhook", "", fiber.Map{})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["refunded"])
	assert.Equal(t, []string{"pi_2"}, ta.gateway.refunds)

	ta.gateway.completion = &payment.Completion{Reference: "cs_3", UserID: userID, PlanID: "1m", Paid: false}
	status, _ = ta.call(t, fiber.MethodPost, "/api/billing/webhook", "", fiber.Map{})
	assert.Equal(t, fiber.StatusOK, status)

	var subs int64
	require.NoError(t, ta.db.Model(&model.Subscription{}).Count(&subs).Error)
	assert.Equal(t, int64(1), subs)
}

func TestKeyConfig(t *testing.T) {
	ta := newTestApp(t)
	ta.server(t, 5)
	_, token := ta.register(t, "owner@example.com")
	_, strangerToken := ta.register(t, "stranger@example.com")

	status, body := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "free"})
	require.Equal(t, fiber.StatusCreated, status)
	key := body["key"].(map[string]interface{})
	path := fmt.Sprintf("/api/dashboard/keys/%d/config", uint(key["id"].(float64)))

	status, body = ta.call(t, fiber.MethodGet, path, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["config"], key["token"])
	assert.Contains(t, body["download_url"], "https://r2.test/")

	status, body = ta.call(t, fiber.MethodGet, path+"?format=text", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["raw"], "token="+key["token"].(string))

	status, _ = ta.call(t, fiber.MethodGet, path, strangerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = ta.call(t, fiber.MethodGet, "/api/dashboard/keys/999/config", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = ta.call(t, fiber.MethodGet, "/api/dashboard/keys", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["keys"], 1)
}

func TestRevokeSubscription(t *testing.T) {
	ta := newTestApp(t)
	srv := ta.server(t, 5)
	_, token := ta.register(t, "owner@example.com")
	_, strangerToken := ta.register(t, "stranger@example.com")

	status, body := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "free"})
	require.Equal(t, fiber.StatusCreated, status)
	subID := uint(body["subscription"].(map[string]interface{})["id"].(float64))
	path := fmt.Sprintf("/api/subscriptions/%d/revoke", subID)

	status, _ = ta.call(t, fiber.MethodPost, path, strangerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, 1, ta.activeClients(t, srv.ID))

	status, body = ta.call(t, fiber.MethodPost, path, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["released_keys"])
	assert.Zero(t, ta.activeClients(t, srv.ID))
	assert.Len(t, ta.panel.detached, 1)
	assert.Empty(t, ta.archive.objects)
	assert.Contains(t, ta.notifier.sent(), model.TemplateSubscriptionRevoked)

	status, body = ta.call(t, fiber.MethodPost, path, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["released_keys"])

	status, _ = ta.call(t, fiber.MethodPost, "/api/subscriptions/999/revoke", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = ta.call(t, fiber.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["has_access"])
}

func TestNotificationsEndpoint(t *testing.T) {
	ta := newTestApp(t)
	_, token := ta.register(t, "owner@example.com")

	status, body := ta.call(t, fiber.MethodGet, "/api/dashboard/notifications", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["notifications"])
}

func TestAdminRoutes(t *testing.T) {
	ta := newTestApp(t)
	adminID, adminToken := ta.admin(t)
	userID, userToken := ta.register(t, "user@example.com")

	status, _ := ta.call(t, fiber.MethodGet, "/api/admin/stats", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := ta.call(t, fiber.MethodPost, "/api/admin/servers", adminToken, fiber.Map{"name": "Amsterdam 1", "host": "ams1.vpn.test", "max_clients": 3})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "amsterdam-1", body["slug"])
	serverID := uint(body["id"].(float64))

	status, _ = ta.call(t, fiber.MethodPost, "/api/admin/servers", adminToken, fiber.Map{"name": "Broken", "host": "x", "max_clients": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = ta.call(t, fiber.MethodPost, "/api/billing/checkout", userToken, fiber.Map{"plan": "free"})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = ta.call(t, fiber.MethodGet, "/api/admin/stats", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(2), body["total_users"])
	assert.Equal(t, float64(1), body["active_keys"])

	status, body = ta.call(t, fiber.MethodGet, "/api/admin/servers", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	servers := body["servers"].([]interface{})
	require.Len(t, servers, 1)
	assert.InDelta(t, 33.33, servers[0].(map[string]interface{})["load_percentage"], 0.01)

	status, body = ta.call(t, fiber.MethodPut, fmt.Sprintf("/api/admin/servers/%d/active", serverID), adminToken, fiber.Map{"active": false})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["is_active"])

	status, _ = ta.call(t, fiber.MethodPut, fmt.Sprintf("/api/admin/servers/%d/active", serverID), adminToken, fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = ta.call(t, fiber.MethodGet, "/api/admin/users?limit=1", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["users"], 1)

	status, body = ta.call(t, fiber.MethodGet, "/api/admin/subscriptions", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["subscriptions"], 1)

	status, body = ta.call(t, fiber.MethodGet, "/api/admin/emails", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["emails"])

	status, _ = ta.call(t, fiber.MethodDelete, fmt.Sprintf("/api/admin/users/%d", adminID), adminToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = ta.call(t, fiber.MethodDelete, fmt.Sprintf("/api/admin/users/%d", userID), adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["released_keys"])
	assert.Zero(t, ta.activeClients(t, serverID))

	status, _ = ta.call(t, fiber.MethodDelete, fmt.Sprintf("/api/admin/users/%d", userID), adminToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminRoutesRecheckAccount(t *testing.T) {
	ta := newTestApp(t)
	adminID, adminToken := ta.admin(t)

	status, _ := ta.call(t, fiber.MethodGet, "/api/admin/stats", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)

	require.NoError(t, ta.db.Model(&model.User{}).Where("id = ?", adminID).Update("is_admin", false).Error)
	status, body := ta.call(t, fiber.MethodGet, "/api/admin/stats", adminToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Admin access required", body["error"])

	require.NoError(t, ta.db.Model(&model.User{}).Where("id = ?", adminID).
		Updates(map[string]interface{}{"is_admin": true, "is_active": false}).Error)
	status, _ = ta.call(t, fiber.MethodGet, "/api/admin/users", adminToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestPaymentsDisabled(t *testing.T) {
	ta := newTestApp(t)
	h := New(Deps{Log: zerolog.Nop(), Tokens: ta.tokens, Accounts: ta.accounts, Notifier: ta.notifier})
	app := fiber.New()
	h.SetupRoutes(app)
	ta.app = app

	_, token := ta.register(t, "buyer@example.com")
	status, body := ta.call(t, fiber.MethodPost, "/api/billing/checkout", token, fiber.Map{"plan": "1m"})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "Payments are not available right now", body["error"])

	status, _ = ta.call(t, fiber.MethodPost, "/api/billing/webhook", "", fiber.Map{})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}
