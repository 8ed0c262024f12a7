package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/engine"
	"gigline/internal/engine/gateway"
	"gigline/internal/migrate"
)

var (
	employerHdr   = map[string]string{"X-Actor-Id": "emp-1", "X-Actor-Role": "employer"}
	freelancerHdr = map[string]string{"X-Actor-Id": "dev-1", "X-Actor-Role": "freelancer"}
	rivalHdr      = map[string]string{"X-Actor-Id": "dev-2", "X-Actor-Role": "freelancer"}
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg, gateway.Mock{Currency: cfg.Payments.Currency})
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api/v1",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			DevLogin:               true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", string(data), err)
	}
	return envelope.Error.Code
}

func TestJobBidAcceptFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"title":       "Build API",
		"company":     "Acme",
		"location":    "Remote",
		"description": "REST backend",
		"budget":      10000,
	}, employerHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job: %d %s", res.StatusCode, string(data))
	}
	var job JobResponse
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", map[string]any{
		"amount": 9000,
	}, freelancerHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("first bid: %d %s", res.StatusCode, string(data))
	}
	var winning BidResponse
	_ = json.Unmarshal(data, &winning)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", map[string]any{
		"amount": 8500,
	}, rivalHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("second bid: %d %s", res.StatusCode, string(data))
	}

	// duplicate bid from the same freelancer conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", map[string]any{
		"amount": 7000,
	}, freelancerHdr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate-bid conflict, got %d %s", res.StatusCode, string(data))
	}

	// only the posting employer can accept
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/bids/"+winning.ID+"/accept", nil, freelancerHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden accept, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/bids/"+winning.ID+"/accept", nil, employerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	var accepted AcceptBidResponse
	if err := json.Unmarshal(data, &accepted); err != nil {
		t.Fatalf("unmarshal accept: %v", err)
	}
	if accepted.Job.Status != "closed" {
		t.Fatalf("expected closed job, got %s", accepted.Job.Status)
	}
	if accepted.Job.AllocatedTo == nil || *accepted.Job.AllocatedTo != "dev-1" {
		t.Fatalf("expected allocation to dev-1")
	}
	if accepted.Bid.Status != "accepted" {
		t.Fatalf("expected accepted bid, got %s", accepted.Bid.Status)
	}

	// the losing bid was rejected in the same transaction
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", nil, employerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list bids: %d %s", res.StatusCode, string(data))
	}
	var bids []BidResponse
	_ = json.Unmarshal(data, &bids)
	for _, b := range bids {
		if b.ID != winning.ID && b.Status != "rejected" {
			t.Fatalf("expected sibling rejection, got %s", b.Status)
		}
	}

	// bidding on an allocated job conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", map[string]any{
		"amount": 1,
	}, map[string]string{"X-Actor-Id": "dev-3", "X-Actor-Role": "freelancer"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
}

func TestProgressAndPaymentFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"title": "App", "company": "Acme", "location": "Remote", "description": "Mobile app", "budget": 20000,
	}, employerHdr)
	var job JobResponse
	_ = json.Unmarshal(data, &job)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", map[string]any{"amount": 18000}, freelancerHdr)
	var bid BidResponse
	_ = json.Unmarshal(data, &bid)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/bids/"+bid.ID+"/accept", nil, employerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	// progress backwards or by the employer is refused
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/progress", map[string]any{"level": 1}, employerHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/progress", map[string]any{"level": 2}, freelancerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("progress: %d %s", res.StatusCode, string(data))
	}
	var progressed JobResponse
	_ = json.Unmarshal(data, &progressed)
	if progressed.ProgressLevel != 2 || progressed.CompletionPercentage != 50 {
		t.Fatalf("unexpected progress %+v", progressed)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/progress", map[string]any{"level": 1}, freelancerHdr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected monotonicity conflict, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID+"/payable", nil, employerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("payable: %d %s", res.StatusCode, string(data))
	}
	var payable engine.Payable
	_ = json.Unmarshal(data, &payable)
	if payable.Level != 2 || payable.AmountDue != 10000 {
		t.Fatalf("unexpected payable %+v", payable)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/payments", map[string]any{"level": 2}, employerHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create payment: %d %s", res.StatusCode, string(data))
	}
	var payment PaymentResponse
	_ = json.Unmarshal(data, &payment)
	if payment.Status != "CREATED" || payment.Amount != 10000 {
		t.Fatalf("unexpected payment %+v", payment)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/payments", map[string]any{"level": 2}, employerHdr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate-payment conflict, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/payments/"+payment.GatewayOrderID+"/confirm", nil, employerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", res.StatusCode, string(data))
	}
	var settled PaymentResponse
	_ = json.Unmarshal(data, &settled)
	if settled.Status != "SUCCESS" {
		t.Fatalf("expected SUCCESS, got %s", settled.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID+"/milestones", nil, freelancerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("milestones: %d %s", res.StatusCode, string(data))
	}
	var milestones []MilestoneResponse
	_ = json.Unmarshal(data, &milestones)
	var paid bool
	for _, m := range milestones {
		if m.Level == 2 && m.PaymentStatus == "PAID" {
			paid = true
		}
	}
	if !paid {
		t.Fatalf("expected level 2 milestone PAID, got %+v", milestones)
	}
}

func TestMessagingFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"title": "Site", "company": "Acme", "location": "Remote", "description": "Landing page", "budget": 3000,
	}, employerHdr)
	var job JobResponse
	_ = json.Unmarshal(data, &job)

	// messaging is closed until allocation
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/messages", map[string]any{"body": "hi"}, employerHdr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict before allocation, got %d %s", res.StatusCode, string(data))
	}

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/bids", map[string]any{"amount": 2500}, freelancerHdr)
	var bid BidResponse
	_ = json.Unmarshal(data, &bid)
	doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/bids/"+bid.ID+"/accept", nil, employerHdr)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/messages", map[string]any{"body": "kickoff tomorrow"}, employerHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs/"+job.ID+"/messages", map[string]any{"body": "snooping"}, rivalHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden outsider, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/conversations", nil, freelancerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("conversations: %d %s", res.StatusCode, string(data))
	}
	var convs []ConversationResponse
	_ = json.Unmarshal(data, &convs)
	if len(convs) != 1 || convs[0].UnreadCount != 1 {
		t.Fatalf("unexpected inbox %+v", convs)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID+"/messages", nil, freelancerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("thread: %d %s", res.StatusCode, string(data))
	}
	var msgs []MessageResponse
	_ = json.Unmarshal(data, &msgs)
	if len(msgs) != 1 || !msgs[0].IsRead {
		t.Fatalf("expected read message, got %+v", msgs)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/jobs", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", code)
	}

	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", res.StatusCode)
	}
}

func TestDevLoginAndBearer(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/dev/login", map[string]any{
		"actor_id": "emp-9",
		"role":     "employer",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token, got %s (%v)", string(data), err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "emp-9" || me.Role != "employer" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %q", code)
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/jobs/nope", nil, employerHdr)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"title": "incomplete",
	}, employerHdr)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "bad_request" {
		t.Fatalf("expected bad_request, got %q", code)
	}
}
