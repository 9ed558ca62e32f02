package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/imagesearch"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/workflow"
)

const anonymous = "123456789"

type fakeEngine struct {
	mu       sync.Mutex
	messages []workflow.Message
	signals  []workflow.ResumeSignal
	bound    map[string]int64
	state    *checkpoint.State
	result   *workflow.Result
	err      error
}

func (f *fakeEngine) HandleMessage(_ context.Context, m workflow.Message) (*workflow.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.ThreadID = m.ThreadID
	return &res, nil
}

func (f *fakeEngine) Resume(_ context.Context, sig workflow.ResumeSignal) (*workflow.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.ThreadID = sig.ThreadID
	return &res, nil
}

func (f *fakeEngine) BindCustomer(_ context.Context, threadID string, customerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound == nil {
		f.bound = make(map[string]int64)
	}
	f.bound[threadID] = customerID
	return nil
}

func (f *fakeEngine) Thread(_ context.Context, threadID string) (*checkpoint.State, error) {
	if f.state == nil || f.state.ThreadID != threadID {
		return nil, fmt.Errorf("thread %s: %w", threadID, checkpoint.ErrNotFound)
	}
	return f.state, nil
}

func (f *fakeEngine) Checkpoints(_ context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	return []*checkpoint.Checkpoint{{ThreadID: threadID, Node: checkpoint.NodeSensitiveTool}}, nil
}

type fakeAccounts struct {
	registerErr error
	loginErr    error
}

func (f *fakeAccounts) RegisterCustomer(_ context.Context, reg store.Registration) (*store.Customer, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &store.Customer{ID: 5, Username: reg.Username, Email: reg.Email, Phone: reg.Phone}, nil
}

func (f *fakeAccounts) Login(_ context.Context, email, _ string) (*store.Customer, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &store.Customer{ID: 6, Email: email}, nil
}

type fakeImages struct {
	gotName string
	gotBody string
	err     error
}

func (f *fakeImages) Search(_ context.Context, filename string, image io.Reader) ([]imagesearch.Product, error) {
	b, _ := io.ReadAll(image)
	f.gotName, f.gotBody = filename, string(b)
	if f.err != nil {
		return nil, f.err
	}
	return []imagesearch.Product{{ProductName: "Túi vải", Price: 90000}}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(engine *fakeEngine) *Server {
	s := NewServer("", 0, engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetAnonymousID(anonymous)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func pausedResult() *workflow.Result {
	call := llm.ToolCall{ID: "call_1", Function: llm.ToolFunction{Name: "cancel_order", Arguments: map[string]any{"order_id": float64(3)}}}
	return &workflow.Result{
		Reply:     "",
		Interrupt: &workflow.Interrupt{ThreadID: "t1", Node: checkpoint.NodeSensitiveTool, ToolCall: call},
		Steps:     1,
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty message", workflow.ErrEmptyMessage, http.StatusBadRequest},
		{"bad customer", fmt.Errorf("%w %q", workflow.ErrBadCustomerID, "x"), http.StatusBadRequest},
		{"awaiting decision", fmt.Errorf("thread t1: %w", workflow.ErrAwaitingDecision), http.StatusConflict},
		{"mismatch", &workflow.MismatchError{Pending: "a", Got: "b"}, http.StatusConflict},
		{"not paused", workflow.ErrNotPaused, http.StatusConflict},
		{"unknown thread", fmt.Errorf("thread x: %w", checkpoint.ErrNotFound), http.StatusNotFound},
		{"duplicate account", store.ErrDuplicate, http.StatusConflict},
		{"bad password", store.ErrBadCredentials, http.StatusUnauthorized},
		{"image service down", imagesearch.ErrUnavailable, http.StatusBadGateway},
		{"bad upload id", fmt.Errorf("%w: %q", imagesearch.ErrBadUploadID, "/etc/passwd"), http.StatusBadRequest},
		{"anything else", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHandleChat(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		err          error
		wantCode     int
		wantCustomer int64
	}{
		{"anonymous sentinel", `{"message":"hi","thread_id":"t1","customer_id":"123456789"}`, nil, http.StatusOK, 0},
		{"no customer", `{"message":"hi","thread_id":"t1"}`, nil, http.StatusOK, 0},
		{"logged in", `{"message":"hi","thread_id":"t1","customer_id":"42"}`, nil, http.StatusOK, 42},
		{"garbage customer", `{"message":"hi","customer_id":"abc"}`, nil, http.StatusBadRequest, -1},
		{"unknown field", `{"message":"hi","colour":"red"}`, nil, http.StatusBadRequest, -1},
		{"paused thread", `{"message":"hi","thread_id":"t1"}`, workflow.ErrAwaitingDecision, http.StatusConflict, 0},
		{"engine failure", `{"message":"hi","thread_id":"t1"}`, errors.New("db locked"), http.StatusInternalServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{result: pausedResult(), err: tt.err}
			rec := do(t, newTestServer(engine).Handler(), "POST", "/v1/chat", tt.body)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCustomer < 0 {
				if len(engine.messages) != 0 {
					t.Error("rejected request reached the engine")
				}
				return
			}
			if len(engine.messages) != 1 || engine.messages[0].CustomerID != tt.wantCustomer {
				t.Fatalf("engine saw %+v", engine.messages)
			}
			if tt.wantCode == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "db locked") {
				t.Error("internal error detail leaked to the client")
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp ChatResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.ThreadID != "t1" || resp.Interrupt == nil || resp.Interrupt.ToolCall.ID != "call_1" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestHandleResume(t *testing.T) {
	engine := &fakeEngine{result: &workflow.Result{Reply: "Đã hủy đơn hàng.", Steps: 2}}
	h := newTestServer(engine).Handler()

	rec := do(t, h, "POST", "/v1/threads/t1/resume", `{"decision":"approve","tool_call_id":"call_1","edited_args":{"order_id":4}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	sig := engine.signals[0]
	if sig.ThreadID != "t1" || sig.Decision != workflow.Approve || sig.ToolCallID != "call_1" || sig.EditedArgs["order_id"] != float64(4) {
		t.Errorf("signal = %+v", sig)
	}

	if rec := do(t, h, "POST", "/v1/threads/t1/resume", `{"decision":"deny"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing tool_call_id: status %d", rec.Code)
	}

	engine.err = &workflow.MismatchError{Pending: "call_1", Got: "call_9"}
	rec = do(t, h, "POST", "/v1/threads/t1/resume", `{"decision":"deny","tool_call_id":"call_9"}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "call_1") {
		t.Errorf("mismatch: status %d, body %s", rec.Code, rec.Body)
	}
}

func TestHandleThread(t *testing.T) {
	st := checkpoint.NewState("t1", 7)
	st.Pending = []llm.ToolCall{{ID: "call_1", Function: llm.ToolFunction{Name: "update_customer_info"}}}
	st.Paused = true
	st.Next = checkpoint.NodeSensitiveTool
	h := newTestServer(&fakeEngine{state: st}).Handler()

	rec := do(t, h, "GET", "/v1/threads/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ThreadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.CustomerID != 7 || resp.Interrupt == nil || resp.Interrupt.ToolCall.ID != "call_1" || len(resp.Checkpoints) != 1 {
		t.Errorf("response = %+v", resp)
	}

	if rec := do(t, h, "GET", "/v1/threads/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown thread: status %d", rec.Code)
	}
}

func TestAccounts(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      string
		accounts  *fakeAccounts
		wantCode  int
		wantBound int64
	}{
		{"register binds thread", "/v1/accounts/register", `{"username":"lan","password":"pw","email":"lan@example.com","phone":"0911","thread_id":"t1"}`, &fakeAccounts{}, http.StatusCreated, 5},
		{"register missing phone", "/v1/accounts/register", `{"username":"lan","password":"pw","email":"lan@example.com"}`, &fakeAccounts{}, http.StatusBadRequest, 0},
		{"register duplicate", "/v1/accounts/register", `{"username":"lan","password":"pw","email":"lan@example.com","phone":"0911"}`, &fakeAccounts{registerErr: store.ErrDuplicate}, http.StatusConflict, 0},
		{"login binds thread", "/v1/accounts/login", `{"email":"lan@example.com","password":"pw","thread_id":"t1"}`, &fakeAccounts{}, http.StatusOK, 6},
		{"login bad password", "/v1/accounts/login", `{"email":"lan@example.com","password":"nope","thread_id":"t1"}`, &fakeAccounts{loginErr: store.ErrBadCredentials}, http.StatusUnauthorized, 0},
		{"login unknown email", "/v1/accounts/login", `{"email":"x@example.com","password":"pw"}`, &fakeAccounts{loginErr: fmt.Errorf("customer: %w", store.ErrNotFound)}, http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			s := newTestServer(engine)
			s.SetAccounts(tt.accounts)

			rec := do(t, s.Handler(), "POST", tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if got := engine.bound["t1"]; got != tt.wantBound {
				t.Errorf("bound customer = %d, want %d", got, tt.wantBound)
			}
		})
	}

	s := newTestServer(&fakeEngine{})
	if rec := do(t, s.Handler(), "POST", "/v1/accounts/login", `{}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured accounts: status %d", rec.Code)
	}
}

func upload(t *testing.T, h http.Handler, path, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleImageSearch(t *testing.T) {
	images := &fakeImages{}
	s := newTestServer(&fakeEngine{})
	s.SetImageSearch(images)
	h := s.Handler()

	rec := upload(t, h, "/v1/images/search", "bag.jpg", "jpeg bytes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp ImageSearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Products) != 1 || resp.Products[0].ProductName != "Túi vải" {
		t.Errorf("products = %+v", resp.Products)
	}
	if images.gotName != "bag.jpg" || images.gotBody != "jpeg bytes" {
		t.Errorf("service saw %q %q", images.gotName, images.gotBody)
	}

	if rec := upload(t, h, "/v1/images/search", "notes.txt", "hello"); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("text upload: status %d", rec.Code)
	}

	images.err = fmt.Errorf("%w: timeout", imagesearch.ErrUnavailable)
	if rec := upload(t, h, "/v1/images/search", "bag.png", "png"); rec.Code != http.StatusBadGateway {
		t.Errorf("service down: status %d", rec.Code)
	}
}

func TestHandleUpload(t *testing.T) {
	s := newTestServer(&fakeEngine{})
	if rec := upload(t, s.Handler(), "/v1/threads/t1/images", "bag.jpg", "jpeg"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured uploads: status %d", rec.Code)
	}

	uploads, err := imagesearch.OpenUploads(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer uploads.Close()
	s.SetUploads(uploads)
	h := s.Handler()

	tests := []struct {
		name     string
		path     string
		filename string
		wantCode int
	}{
		{"stored", "/v1/threads/t1/images", "bag.jpg", http.StatusCreated},
		{"unsupported format", "/v1/threads/t1/images", "notes.txt", http.StatusUnsupportedMediaType},
		{"unusable thread id", "/v1/threads/t1.bak/images", "bag.jpg", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, h, tt.path, tt.filename, "bytes")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode != http.StatusCreated {
				return
			}
			var resp UploadResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.ThreadID != "t1" || imagesearch.ValidUploadID(resp.ImageID) != nil {
				t.Errorf("response = %+v", resp)
			}
			rc, err := uploads.Open("t1", resp.ImageID)
			if err != nil {
				t.Fatalf("stored upload: %v", err)
			}
			rc.Close()
		})
	}
}

func TestHandleChat_ImageID(t *testing.T) {
	engine := &fakeEngine{result: &workflow.Result{Reply: "Đây là túi vải."}}
	rec := do(t, newTestServer(engine).Handler(), "POST", "/v1/chat", `{"thread_id":"t1","image_id":"0b7c6f8e-6f5a-4f2e-9a55-2f1c3d4e5f60.jpg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(engine.messages) != 1 || engine.messages[0].ImageID != "0b7c6f8e-6f5a-4f2e-9a55-2f1c3d4e5f60.jpg" {
		t.Errorf("engine saw %+v", engine.messages)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeEngine{})
	if rec := do(t, s.Handler(), "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("no checker: status %d", rec.Code)
	}
	s.SetHealthCheck(fakePinger{err: errors.New("connection refused")})
	if rec := do(t, s.Handler(), "GET", "/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing checker: status %d", rec.Code)
	}
	if rec := do(t, s.Handler(), "GET", "/v1/version", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_version") {
		t.Errorf("version: %d %s", rec.Code, rec.Body)
	}
}

func TestWebSocketApprovals(t *testing.T) {
	bus := events.New()
	engine := &fakeEngine{result: &workflow.Result{Reply: "Đã cập nhật.", Steps: 2}}
	s := newTestServer(engine)
	s.SetEvents(bus)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?thread_id=t1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	bus.Emit(events.SourceWorkflow, events.KindInterrupt, map[string]any{"thread_id": "t2", "tool_call_id": "other"})
	bus.Emit(events.SourceWorkflow, events.KindToolDone, map[string]any{"thread_id": "t1"})
	bus.Emit(events.SourceWorkflow, events.KindInterrupt, map[string]any{"thread_id": "t1", "tool_call_id": "call_1"})

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != wsTypeEvent || msg.Event == nil || msg.Event.Kind != events.KindInterrupt || msg.Event.Data["tool_call_id"] != "call_1" {
		t.Fatalf("first message = %+v", msg)
	}

	err = conn.WriteJSON(wsMessage{Type: wsTypeResume, Resume: &workflow.ResumeSignal{
		ThreadID: "t1", Decision: workflow.Approve, ToolCallID: "call_1",
	}})
	if err != nil {
		t.Fatal(err)
	}
	msg = wsMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if msg.Type != wsTypeResult || msg.Result == nil || msg.Result.Response != "Đã cập nhật." {
		t.Fatalf("result message = %+v", msg)
	}

	engine.mu.Lock()
	got := engine.signals
	engine.mu.Unlock()
	if len(got) != 1 || got[0].ToolCallID != "call_1" {
		t.Errorf("signals = %+v", got)
	}

	if err := conn.WriteJSON(map[string]string{"type": "hello"}); err != nil {
		t.Fatal(err)
	}
	msg = wsMessage{}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != wsTypeError {
		t.Errorf("unknown message answered with %+v (%v)", msg, err)
	}
}

func TestWebSocket_Unconfigured(t *testing.T) {
	rec := do(t, newTestServer(&fakeEngine{}).Handler(), "GET", "/v1/ws", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
