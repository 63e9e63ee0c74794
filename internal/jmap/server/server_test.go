package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jmapproxy/internal/common/ratelimit"
	"jmapproxy/internal/jmap/protocol"
)

const (
	testUser = "service"
	testPass = "s3cret"
)

func newTestServer(t *testing.T, configure func(*Options)) *Server {
	t.Helper()
	opts := Options{
		Account:   protocol.NewAccount("a@b.com"),
		AccountId: "A123",
		Username:  "a@b.com",
		Address:   "example.com:8080",
		Gate:      NewCredentialGate(testUser, testPass),
	}
	if configure != nil {
		configure(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func doRequest(h http.Handler, path string, auth bool, username, password string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth {
		req.SetBasicAuth(username, password)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSession_OK(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s.Handler(), "/", true, testUser, testPass)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	session, err := protocol.ParseSession(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseSession() error: %v", err)
	}
	if session.Username != "a@b.com" {
		t.Errorf("Username = %q, want a@b.com", session.Username)
	}
	if session.APIURL != "https://example.com:8080/api" {
		t.Errorf("APIURL = %q", session.APIURL)
	}
	if session.EventSourceURL != "https://example.com:8080/eventsource?types={types}&closeafter={closeafter}&ping={ping}" {
		t.Errorf("EventSourceURL = %q", session.EventSourceURL)
	}
	account, ok := session.Accounts["A123"]
	if !ok {
		t.Fatalf("Accounts = %v, want A123", session.Accounts)
	}
	if account.Name != "a@b.com" || !account.IsPersonal || !account.IsReadOnly {
		t.Errorf("Account = %+v", account)
	}
	if err := session.Validate(); err != nil {
		t.Errorf("served session invalid: %v", err)
	}

	want, err := protocol.Stamp(protocol.BuildSession(protocol.NewAccount("a@b.com"), "A123", "a@b.com", "example.com:8080"))
	if err != nil {
		t.Fatalf("Stamp() error: %v", err)
	}
	if session.State != want.State {
		t.Errorf("State = %q, want %q", session.State, want.State)
	}

	again := doRequest(s.Handler(), "/", true, testUser, testPass)
	if again.Body.String() != rec.Body.String() {
		t.Errorf("repeated request body differs:\n%s\n%s", rec.Body, again.Body)
	}
}

func TestSession_WellKnown(t *testing.T) {
	s := newTestServer(t, nil)

	root := doRequest(s.Handler(), "/", true, testUser, testPass)
	wellKnown := doRequest(s.Handler(), protocol.WellKnownPath, true, testUser, testPass)

	if wellKnown.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", wellKnown.Code)
	}
	if root.Body.String() != wellKnown.Body.String() {
		t.Error("well-known and root documents differ")
	}
}

func TestSession_Unauthorized(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		auth     bool
		username string
		password string
	}{
		{"wrong password", true, testUser, "wrong"},
		{"wrong username", true, "svc", testPass},
		{"empty credentials", true, "", ""},
		{"no credentials", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s.Handler(), "/", tt.auth, tt.username, tt.password)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			if got := rec.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Basic ") {
				t.Errorf("WWW-Authenticate = %q", got)
			}
		})
	}
}

func TestSession_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	if rec := doRequest(s.Handler(), "/api", true, testUser, testPass); rec.Code != http.StatusNotFound {
		t.Errorf("/api status = %d, want 404", rec.Code)
	}
	if rec := doRequest(s.Handler(), "/metrics", false, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404 when metrics are disabled", rec.Code)
	}
}

func TestSession_Extensions(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Extensions = map[string]json.RawMessage{"vendorExtra": json.RawMessage(`{"beta":true}`)}
	})

	rec := doRequest(s.Handler(), "/", true, testUser, testPass)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	session, err := protocol.ParseSession(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseSession() error: %v", err)
	}
	if string(session.Extensions["vendorExtra"]) != `{"beta":true}` {
		t.Errorf("vendorExtra = %s", session.Extensions["vendorExtra"])
	}

	plain := newTestServer(t, nil)
	plainSession, err := plain.Session()
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if session.State == plainSession.State {
		t.Error("extensions should change the state token")
	}
}

func TestSession_SerializationFailure(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Extensions = map[string]json.RawMessage{"broken": json.RawMessage(`{oops`)}
	})

	rec := doRequest(s.Handler(), "/", true, testUser, testPass)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "apiUrl") {
		t.Errorf("500 response leaked a partial document: %s", rec.Body)
	}

	if _, err := s.Session(); !errors.Is(err, protocol.ErrSerialization) {
		t.Errorf("Session() error = %v, want ErrSerialization", err)
	}
}

func TestSession_Throttled(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Limiter = ratelimit.New(0.5)
	})

	if rec := doRequest(s.Handler(), "/", true, testUser, testPass); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}
	rec := doRequest(s.Handler(), "/", true, testUser, testPass)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
}

func TestSession_Concurrent(t *testing.T) {
	s := newTestServer(t, nil)
	want, err := s.Session()
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doRequest(s.Handler(), "/", true, testUser, testPass)
			if rec.Code != http.StatusOK {
				errs <- "unexpected status"
				return
			}
			session, err := protocol.ParseSession(rec.Body.Bytes())
			if err != nil || session.State != want.State {
				errs <- "state mismatch"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.EnableMetrics = true
	})

	doRequest(s.Handler(), "/", true, testUser, testPass)
	doRequest(s.Handler(), "/", true, testUser, "wrong")
	doRequest(s.Handler(), "/", false, "", "")

	rec := doRequest(s.Handler(), "/metrics", false, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`jmapproxy_session_requests_total{result="ok"} 1`,
		`jmapproxy_session_requests_total{result="unauthorized"} 2`,
		`jmapproxy_auth_failures_total 2`,
		`jmapproxy_session_request_duration_seconds_count 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

type memoryAudit struct {
	mu     sync.Mutex
	header []string
	rows   [][]string
	empty  bool
}

func (m *memoryAudit) WriteHeader(columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.header = columns
	return nil
}

func (m *memoryAudit) WriteRow(row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *memoryAudit) ShouldWriteHeader() (bool, error) { return m.empty, nil }
func (m *memoryAudit) Close() error                     { return nil }

func (m *memoryAudit) column(row []string, name string) string {
	for i, col := range auditColumns {
		if col == name {
			return row[i]
		}
	}
	return ""
}

func TestAudit(t *testing.T) {
	audit := &memoryAudit{empty: true}
	s := newTestServer(t, func(o *Options) {
		o.Audit = audit
	})

	doRequest(s.Handler(), "/", true, testUser, testPass)
	doRequest(s.Handler(), "/", true, testUser, "wrong")

	if len(audit.header) != len(auditColumns) {
		t.Fatalf("header = %v, want %v", audit.header, auditColumns)
	}
	if len(audit.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(audit.rows))
	}

	want, _ := s.Session()
	ok, rejected := audit.rows[0], audit.rows[1]
	if got := audit.column(ok, "Result"); got != resultOK {
		t.Errorf("Result = %q, want %q", got, resultOK)
	}
	if got := audit.column(ok, "State"); got != want.State {
		t.Errorf("State = %q, want %q", got, want.State)
	}
	if got := audit.column(rejected, "Result"); got != resultUnauthorized {
		t.Errorf("Result = %q, want %q", got, resultUnauthorized)
	}
	if got := audit.column(rejected, "State"); got != "" {
		t.Errorf("rejected request logged state %q", got)
	}
	for _, row := range audit.rows {
		if got := audit.column(row, "Username"); got != "se****ce" {
			t.Errorf("Username = %q, want masked", got)
		}
	}
}

func TestAudit_ExistingFileSkipsHeader(t *testing.T) {
	audit := &memoryAudit{empty: false}
	newTestServer(t, func(o *Options) {
		o.Audit = audit
	})
	if audit.header != nil {
		t.Errorf("header written to non-empty log: %v", audit.header)
	}
}

func TestForwardedHeaders(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		wantRemote string
	}{
		{"trusted proxy", []string{"192.0.2.1"}, "203.0.113.7"},
		{"trusted network", []string{"192.0.2.0/24"}, "203.0.113.7"},
		{"untrusted", []string{"10.0.0.0/8"}, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &memoryAudit{empty: true}
			s := newTestServer(t, func(o *Options) {
				o.Audit = audit
				o.TrustedProxies = tt.trusted
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			req.SetBasicAuth(testUser, testPass)
			s.Handler().ServeHTTP(httptest.NewRecorder(), req)

			if len(audit.rows) != 1 {
				t.Fatalf("rows = %d, want 1", len(audit.rows))
			}
			if got := audit.column(audit.rows[0], "Remote"); !strings.Contains(got, tt.wantRemote) {
				t.Errorf("Remote = %q, want %q", got, tt.wantRemote)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"missing gate", func(o *Options) { o.Gate = nil }},
		{"missing account id", func(o *Options) { o.AccountId = "" }},
		{"missing address", func(o *Options) { o.Address = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{
				Account:   protocol.NewAccount("a@b.com"),
				AccountId: "A1",
				Username:  "a@b.com",
				Address:   "localhost:8080",
				Gate:      NewCredentialGate("u", "p"),
			}
			tt.modify(&opts)
			if _, err := New(opts); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	s := newTestServer(t, func(o *Options) {
		o.Address = ln.Addr().String()
		o.ShutdownTimeout = time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	req, _ := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+protocol.WellKnownPath, nil)
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	session, err := protocol.ParseSession(body)
	if err != nil {
		t.Fatalf("ParseSession() error: %v", err)
	}
	if session.APIURL != "https://"+ln.Addr().String()+"/api" {
		t.Errorf("APIURL = %q", session.APIURL)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Address = "256.0.0.1:99999"
	})
	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() expected listen error")
	}
}
