package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/zhouzirui/gemdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
)

type fakeSender struct {
	got  chathandler.SendRequest
	turn *conversation.Turn
	err  error
}

func (f *fakeSender) Send(_ context.Context, req chathandler.SendRequest) (*conversation.Turn, error) {
	f.got = req
	return f.turn, f.err
}

type event struct {
	name string
	data StreamResponse
}

func readEvents(t *testing.T, body string) []event {
	t.Helper()
	var events []event
	var name string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data StreamResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			events = append(events, event{name: name, data: data})
			name = ""
		}
	}
	return events
}

type ctxSender struct {
	fakeSender
	ctxErr error
}

func (f *ctxSender) Send(ctx context.Context, req chathandler.SendRequest) (*conversation.Turn, error) {
	f.ctxErr = ctx.Err()
	return f.fakeSender.Send(ctx, req)
}

func TestStreamEmitsStartMessageEnd(t *testing.T) {
	sender := &fakeSender{turn: &conversation.Turn{Session: chat.Session{
		ID: "s1",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "hi"},
			{Role: chat.RoleModel, Content: "hello!"},
		},
	}}}
	r := chi.NewRouter()
	New(sender, nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/stream", strings.NewReader(`{"text":"hi"}`)))

	if sender.got.Text != "hi" {
		t.Fatalf("expected message from body, got %q", sender.got.Text)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, resp.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].name != EventStart || events[1].name != EventMessage || events[2].name != EventEnd {
		t.Fatalf("unexpected event order: %+v", events)
	}
	if events[1].data.Content != "hello!" || events[1].data.SessionID != "s1" {
		t.Fatalf("unexpected message event: %+v", events[1])
	}
	if !events[2].data.Finished {
		t.Fatalf("end event should be marked finished: %+v", events[2])
	}
}

func TestStreamMissingCredentialIsPlainError(t *testing.T) {
	sender := &fakeSender{err: ai.ErrMissingCredential}
	r := chi.NewRouter()
	New(sender, nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/stream", strings.NewReader(`{"text":"hi"}`)))

	if resp.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", resp.Code)
	}
}

func TestStreamIsPostOnly(t *testing.T) {
	sender := &fakeSender{}
	r := chi.NewRouter()
	New(sender, nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream?message=hi", nil))

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	if sender.got.Text != "" {
		t.Fatalf("GET must not send, got %q", sender.got.Text)
	}
}

func TestStreamSurvivesClientDisconnect(t *testing.T) {
	sender := &ctxSender{fakeSender: fakeSender{turn: &conversation.Turn{Session: chat.Session{ID: "s1"}}}}
	r := chi.NewRouter()
	New(sender, nil).RegisterRoutes(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/stream", strings.NewReader(`{"text":"hi"}`)).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if sender.ctxErr != nil {
		t.Fatalf("send should run on a live context, got %v", sender.ctxErr)
	}
}
