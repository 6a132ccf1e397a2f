package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"crisishub/api"
	"crisishub/config"
	"crisishub/core/auth"
	"crisishub/core/dispatch"
	"crisishub/core/rbac"
	"crisishub/core/store"
	"crisishub/core/utils"
)

// one bcrypt round for the whole package
var testPasswordHash = auth.MustHashPassword("sesame123")

type apiFixture struct {
	srv   *httptest.Server
	users store.UsersStore

	admin    *store.User
	rescue   *store.User
	citizen  *store.User
	citizen2 *store.User
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:   "sqlite",
		DBURL:      filepath.Join(t.TempDir(), "test.db"),
		SessionTTL: 0,
		Uploads:    config.UploadsConfig{Dir: filepath.Join(t.TempDir(), "uploads"), MaxBytes: 1 << 20},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := store.NewUsersStore(db)
	audits := store.NewAuditStore(db)
	deps := api.ServerDeps{
		Users:     users,
		Sessions:  store.NewSessionsStore(db),
		Resources: store.NewResourcesStore(db),
		Incidents: store.NewIncidentsStore(db),
		Audits:    audits,
		Engine:    dispatch.NewEngine(db, audits, logger),
	}
	server := api.NewServer(cfg, deps, rbac.MustNewPolicy(), logger)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	f := &apiFixture{srv: ts, users: users}
	f.admin = f.seedUser(t, ctx, "admin1", store.RoleAdmin, true)
	f.rescue = f.seedUser(t, ctx, "team1", store.RoleRescueTeam, true)
	f.citizen = f.seedUser(t, ctx, "casey", store.RoleUser, true)
	f.citizen2 = f.seedUser(t, ctx, "riley", store.RoleUser, true)
	return f
}

func (f *apiFixture) seedUser(t *testing.T, ctx context.Context, username, role string, active bool) *store.User {
	t.Helper()
	u := &store.User{
		Username:     username,
		Email:        username + "@example.org",
		FullName:     "Test " + username,
		PasswordHash: testPasswordHash,
		Role:         role,
		Active:       active,
	}
	if _, err := f.users.Create(ctx, u); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return u
}

type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func (f *apiFixture) login(t *testing.T, username, password string) *apiClient {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	c := &apiClient{t: t, base: f.srv.URL, http: &http.Client{Jar: jar}}
	status, body := c.post("/api/auth/login", map[string]string{"username": username, "password": password})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, status, body)
	}
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.CSRFToken == "" {
		t.Fatalf("login %s: missing csrf token in %s", username, body)
	}
	c.csrf = resp.CSRFToken
	return c
}

func (c *apiClient) do(method, path string, payload any, withCSRF bool) (int, []byte) {
	c.t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withCSRF && c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func (c *apiClient) get(path string) (int, []byte) {
	return c.do(http.MethodGet, path, nil, false)
}

func (c *apiClient) post(path string, payload any) (int, []byte) {
	return c.do(http.MethodPost, path, payload, true)
}

func newIncidentPayload(title string) map[string]any {
	return map[string]any{
		"title":         title,
		"description":   "Something serious is happening at this location",
		"incident_type": "fire",
		"priority":      "high",
		"address":       "14 Oak Street",
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	f := setupAPI(t)

	jar, _ := cookiejar.New(nil)
	anon := &apiClient{t: t, base: f.srv.URL, http: &http.Client{Jar: jar}}
	if status, _ := anon.post("/api/auth/login", map[string]string{"username": "casey", "password": "wrong"}); status != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", status)
	}

	c := f.login(t, "casey", "sesame123")
	status, body := c.get("/api/auth/me")
	if status != http.StatusOK {
		t.Fatalf("me status = %d body %s", status, body)
	}
	var me struct {
		Username string   `json:"username"`
		Role     string   `json:"role"`
		Perms    []string `json:"permissions"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("me decode: %v", err)
	}
	if me.Username != "casey" || me.Role != store.RoleUser || len(me.Perms) == 0 {
		t.Fatalf("me = %+v", me)
	}

	if status, _ := c.post("/api/auth/logout", nil); status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}
	if status, _ := c.get("/api/auth/me"); status != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", status)
	}
}

func TestInactiveAccountBlocked(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()
	if err := f.users.SetActive(ctx, f.citizen.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	jar, _ := cookiejar.New(nil)
	anon := &apiClient{t: t, base: f.srv.URL, http: &http.Client{Jar: jar}}
	if status, _ := anon.post("/api/auth/login", map[string]string{"username": "casey", "password": "sesame123"}); status != http.StatusForbidden {
		t.Fatalf("inactive login status = %d, want 403", status)
	}
}

func TestCSRFRequiredOnWrites(t *testing.T) {
	f := setupAPI(t)
	c := f.login(t, "casey", "sesame123")

	status, _ := c.do(http.MethodPost, "/api/incidents/", newIncidentPayload("Fire without csrf token"), false)
	if status != http.StatusForbidden {
		t.Fatalf("post without csrf = %d, want 403", status)
	}
	status, body := c.post("/api/incidents/", newIncidentPayload("Fire with csrf token"))
	if status != http.StatusCreated {
		t.Fatalf("post with csrf = %d body %s", status, body)
	}
}

func TestRegisterAlwaysCreatesCitizen(t *testing.T) {
	f := setupAPI(t)
	jar, _ := cookiejar.New(nil)
	anon := &apiClient{t: t, base: f.srv.URL, http: &http.Client{Jar: jar}}

	payload := map[string]string{
		"username":  "newbie",
		"email":     "newbie@example.org",
		"full_name": "New Person",
		"password":  "sesame123",
		"role":      "admin",
	}
	status, body := anon.post("/api/auth/register", payload)
	if status != http.StatusCreated {
		t.Fatalf("register = %d body %s", status, body)
	}
	var created struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Role != store.RoleUser {
		t.Fatalf("role = %s, want user (self-registration must not grant roles)", created.Role)
	}
	if status, _ := anon.post("/api/auth/register", payload); status != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", status)
	}
}

func TestRoleGates(t *testing.T) {
	f := setupAPI(t)
	citizen := f.login(t, "casey", "sesame123")
	rescue := f.login(t, "team1", "sesame123")
	admin := f.login(t, "admin1", "sesame123")

	if status, _ := citizen.get("/api/users/"); status != http.StatusForbidden {
		t.Fatalf("citizen list users = %d, want 403", status)
	}
	if status, _ := admin.get("/api/users/"); status != http.StatusOK {
		t.Fatalf("admin list users = %d, want 200", status)
	}
	if status, _ := citizen.get("/api/incidents/unassigned"); status != http.StatusForbidden {
		t.Fatalf("citizen unassigned = %d, want 403", status)
	}
	if status, _ := rescue.get("/api/incidents/unassigned"); status != http.StatusOK {
		t.Fatalf("rescue unassigned = %d, want 200", status)
	}
	if status, _ := rescue.post("/api/incidents/", newIncidentPayload("Report from a rescue team")); status != http.StatusForbidden {
		t.Fatalf("rescue report = %d, want 403 (only citizens report)", status)
	}
	if status, _ := rescue.get("/api/dashboard/analytics"); status != http.StatusForbidden {
		t.Fatalf("rescue analytics = %d, want 403", status)
	}
	if status, _ := admin.get("/api/dashboard/analytics"); status != http.StatusOK {
		t.Fatalf("admin analytics = %d, want 200", status)
	}
}

func TestIncidentOwnershipScoping(t *testing.T) {
	f := setupAPI(t)
	casey := f.login(t, "casey", "sesame123")
	riley := f.login(t, "riley", "sesame123")
	admin := f.login(t, "admin1", "sesame123")

	status, body := casey.post("/api/incidents/", newIncidentPayload("Fire reported by casey"))
	if status != http.StatusCreated {
		t.Fatalf("report = %d body %s", status, body)
	}
	var inc struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := fmt.Sprintf("/api/incidents/%d", inc.ID)

	if status, _ := casey.get(path); status != http.StatusOK {
		t.Fatalf("owner get = %d, want 200", status)
	}
	if status, _ := riley.get(path); status != http.StatusNotFound {
		t.Fatalf("other citizen get = %d, want 404", status)
	}
	if status, _ := admin.get(path); status != http.StatusOK {
		t.Fatalf("admin get = %d, want 200", status)
	}

	var list struct {
		Incidents []json.RawMessage `json:"incidents"`
		Total     int               `json:"total"`
	}
	_, body = riley.get("/api/incidents/")
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 0 || len(list.Incidents) != 0 {
		t.Fatalf("riley sees %d incidents, want 0", list.Total)
	}
	_, body = casey.get("/api/incidents/")
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("casey sees %d incidents, want 1", list.Total)
	}
}

func TestDispatchOverHTTP(t *testing.T) {
	f := setupAPI(t)
	casey := f.login(t, "casey", "sesame123")
	rescue := f.login(t, "team1", "sesame123")

	status, body := casey.post("/api/incidents/", newIncidentPayload("Fire needing a team"))
	if status != http.StatusCreated {
		t.Fatalf("report = %d body %s", status, body)
	}
	var inc struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &inc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	status, body = rescue.post(fmt.Sprintf("/api/incidents/%d/accept", inc.ID), nil)
	if status != http.StatusOK {
		t.Fatalf("accept = %d body %s", status, body)
	}
	var updated struct {
		Status         string `json:"status"`
		AssignedTeamID *int64 `json:"assigned_team_id"`
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Status != store.StatusInProgress || updated.AssignedTeamID == nil || *updated.AssignedTeamID != f.rescue.ID {
		t.Fatalf("after accept = %+v", updated)
	}

	status, _ = rescue.post(fmt.Sprintf("/api/incidents/%d/status", inc.ID), map[string]string{"status": "resolved", "notes": "handled"})
	if status != http.StatusOK {
		t.Fatalf("status update = %d", status)
	}

	status, body = casey.get(fmt.Sprintf("/api/incidents/%d/events", inc.ID))
	if status != http.StatusOK {
		t.Fatalf("events = %d", status)
	}
	var events struct {
		Events []struct {
			OldStatus string `json:"old_status"`
			NewStatus string `json:"new_status"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(events.Events))
	}
	// newest first
	if events.Events[0].NewStatus != store.StatusResolved {
		t.Fatalf("latest event = %+v", events.Events[0])
	}
}

func TestLoginRateLimit(t *testing.T) {
	f := setupAPI(t)
	jar, _ := cookiejar.New(nil)
	anon := &apiClient{t: t, base: f.srv.URL, http: &http.Client{Jar: jar}}

	var last int
	for i := 0; i < 6; i++ {
		last, _ = anon.post("/api/auth/login", map[string]string{"username": "ghost", "password": "wrong"})
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt = %d, want 429", last)
	}
}
