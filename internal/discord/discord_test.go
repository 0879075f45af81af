package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/triagegate/internal/decision"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeDiscord struct {
	mu       sync.Mutex
	requests []recordedRequest
	failures int32 // respond 500 this many times first
	status   int
	created  int
	delay    time.Duration // applied to message creation
}

func (f *fakeDiscord) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	creating := r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages")
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body})
	if creating {
		f.created++
	}
	id, delay := f.created, f.delay
	f.mu.Unlock()
	if creating && delay > 0 {
		time.Sleep(delay)
	}

	if atomic.AddInt32(&f.failures, -1) >= 0 {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}
	if f.status != 0 {
		http.Error(w, `{"message":"nope"}`, f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if id == 0 {
		id = 1
	}
	_, _ = w.Write([]byte(fmt.Sprintf(`{"id":"m-%d","channel_id":"c-1"}`, id)))
}

// edits returns the PATCH bodies sent for message id.
func (f *fakeDiscord) edits(messageID string) []map[string]any {
	var out []map[string]any
	for _, r := range f.calls() {
		if r.Method == http.MethodPatch && strings.HasSuffix(r.Path, "/messages/"+messageID) {
			out = append(out, r.Body)
		}
	}
	return out
}

func (f *fakeDiscord) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newFake(t *testing.T) (*fakeDiscord, *Client) {
	t.Helper()
	f := &fakeDiscord{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	return f, NewClient(ClientConfig{Token: "tok", BaseURL: srv.URL, RequestsPerSecond: 1000})
}

type fakeResolver struct {
	mu      sync.Mutex
	records map[int]decision.Record
	ids     map[int]string
	refuse  bool
}

func (r *fakeResolver) ResolveRequest(issue int, requestID string, rec decision.Record) bool {
	if !r.Resolve(issue, rec) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = make(map[int]string)
	}
	r.ids[issue] = requestID
	return true
}

func (r *fakeResolver) Resolve(issue int, rec decision.Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	if r.records == nil {
		r.records = make(map[int]decision.Record)
	}
	if _, ok := r.records[issue]; ok {
		return false
	}
	r.records[issue] = rec
	return true
}

func (r *fakeResolver) get(issue int) (decision.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[issue]
	return rec, ok
}

func sampleRequest() decision.Request {
	return decision.Request{
		ID: "req-1", Issue: 42, Repo: "acme/app",
		Title: "Crash on save", Body: "The editor crashes.",
		Severity: "High", Summary: "Editor crashes when saving.",
	}
}

func clickFrom(verb string, issue int, user string) Interaction {
	return Interaction{
		Type:   InteractionComponent,
		Data:   &InteractionData{CustomID: CustomID(verb, issue, sampleRequest().ID), ComponentType: ComponentButton},
		Member: &Member{User: &User{ID: "1", Username: user}},
	}
}

func TestClient_CreateMessage(t *testing.T) {
	f, c := newFake(t)
	ref, err := c.CreateMessage(context.Background(), "c-1", Message{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", ref.ID)

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/channels/c-1/messages", calls[0].Path)
	assert.Equal(t, "Bot tok", calls[0].Auth)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	f, c := newFake(t)
	f.failures = 1
	_, err := c.CreateMessage(context.Background(), "c-1", Message{Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, f.calls(), 2)
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	f, c := newFake(t)
	f.status = http.StatusForbidden
	_, err := c.CreateMessage(context.Background(), "c-1", Message{Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Len(t, f.calls(), 1)
}

func TestClient_WebhookHasNoAuth(t *testing.T) {
	f, c := newFake(t)
	srvURL := c.baseURL + "/webhooks/1/abc"
	require.NoError(t, c.ExecuteWebhook(context.Background(), srvURL, Message{Content: "done"}))
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Auth)
}

func TestChannel_PublishRequiresResolver(t *testing.T) {
	_, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	assert.Error(t, ch.Publish(context.Background(), sampleRequest()))
}

func TestChannel_PublishAndApprove(t *testing.T) {
	f, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	res := &fakeResolver{}
	ch.Bind(res)

	require.NoError(t, ch.Publish(context.Background(), sampleRequest()))
	assert.Equal(t, 1, ch.Outstanding())

	calls := f.calls()
	require.Len(t, calls, 1)
	embeds := calls[0].Body["embeds"].([]any)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Triage Required: Issue #42", embed["title"])
	assert.Equal(t, "Action required within 1 hour", embed["footer"].(map[string]any)["text"])
	rows := calls[0].Body["components"].([]any)
	buttons := rows[0].(map[string]any)["components"].([]any)
	require.Len(t, buttons, 3)
	assert.Equal(t, "triage:approve:42:req-1", buttons[0].(map[string]any)["custom_id"])

	resp := ch.HandleInteraction(clickFrom(verbApprove, 42, "alice"))
	assert.Equal(t, ResponseUpdateMessage, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data.Components)
	assert.Equal(t, 0, ch.Outstanding())

	rec, ok := res.get(42)
	require.True(t, ok)
	assert.Equal(t, decision.KindApprove, rec.Kind)
	assert.Equal(t, "alice", rec.Actor)
	assert.Nil(t, rec.Override)

	again := ch.HandleInteraction(clickFrom(verbReject, 42, "bob"))
	assert.Equal(t, ResponseChannelMessage, again.Type)
	assert.Equal(t, FlagEphemeral, again.Data.Flags)
	assert.Contains(t, again.Data.Content, "no longer pending")
}

func TestChannel_Reject(t *testing.T) {
	_, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	res := &fakeResolver{}
	ch.Bind(res)
	require.NoError(t, ch.Publish(context.Background(), sampleRequest()))

	resp := ch.HandleInteraction(clickFrom(verbReject, 42, "bob"))
	assert.Equal(t, ResponseUpdateMessage, resp.Type)
	rec, _ := res.get(42)
	assert.Equal(t, decision.KindReject, rec.Kind)
}

func TestChannel_ModifyOpensPrefilledModal(t *testing.T) {
	_, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	ch.Bind(&fakeResolver{})
	require.NoError(t, ch.Publish(context.Background(), sampleRequest()))

	resp := ch.HandleInteraction(clickFrom(verbModify, 42, "carol"))
	assert.Equal(t, ResponseModal, resp.Type)
	assert.Equal(t, "triage:modal:42:req-1", resp.Data.CustomID)
	assert.Equal(t, "High", textInputValue(resp.Data.Components, inputSeverity))
	assert.Equal(t, "Editor crashes when saving.", textInputValue(resp.Data.Components, inputText))
	assert.Equal(t, 1, ch.Outstanding(), "opening the modal does not resolve")
}

func TestChannel_ModalSubmitApprovesWithOverride(t *testing.T) {
	_, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	res := &fakeResolver{}
	ch.Bind(res)

	req := sampleRequest()
	req.IsDuplicate = true
	req.DuplicateOf = 7
	req.ProposedComment = "dup of #7"
	require.NoError(t, ch.Publish(context.Background(), req))

	submit := Interaction{
		Type: InteractionModalSubmit,
		Data: &InteractionData{
			CustomID: CustomID(verbModal, 42, "req-1"),
			Components: []Component{
				{Type: ComponentActionRow, Components: []Component{{Type: ComponentTextInput, CustomID: inputSeverity, Value: " Low "}}},
				{Type: ComponentActionRow, Components: []Component{{Type: ComponentTextInput, CustomID: inputText, Value: "Closing, see #7."}}},
			},
		},
		User: &User{Username: "dave"},
	}
	resp := ch.HandleInteraction(submit)
	assert.Equal(t, ResponseUpdateMessage, resp.Type)

	rec, ok := res.get(42)
	require.True(t, ok)
	assert.Equal(t, decision.KindApprove, rec.Kind)
	require.NotNil(t, rec.Override)
	assert.True(t, rec.Override.Modified)
	assert.Equal(t, "Low", rec.Override.Severity)
	assert.Equal(t, "Closing, see #7.", rec.Override.Comment)
	assert.Empty(t, rec.Override.Summary)
}

func TestChannel_ResolverRefusalIsNotPending(t *testing.T) {
	_, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	ch.Bind(&fakeResolver{refuse: true})
	require.NoError(t, ch.Publish(context.Background(), sampleRequest()))

	resp := ch.HandleInteraction(clickFrom(verbApprove, 42, "alice"))
	assert.Equal(t, ResponseChannelMessage, resp.Type)
	assert.Equal(t, 0, ch.Outstanding())
}

func TestChannel_UITimerResolvesTimeout(t *testing.T) {
	f, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1", Timeout: 30 * time.Millisecond})
	res := &fakeResolver{}
	ch.Bind(res)
	require.NoError(t, ch.Publish(context.Background(), sampleRequest()))

	require.Eventually(t, func() bool {
		_, ok := res.get(42)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	rec, _ := res.get(42)
	assert.Equal(t, decision.KindTimeout, rec.Kind)

	require.Eventually(t, func() bool {
		for _, r := range f.calls() {
			if r.Method == http.MethodPatch && r.Path == "/channels/c-1/messages/m-1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, ch.Outstanding())
}

func TestChannel_PingAndUnknown(t *testing.T) {
	ch := NewChannel(NewClient(ClientConfig{}), ChannelConfig{})
	assert.Equal(t, ResponsePong, ch.HandleInteraction(Interaction{Type: InteractionPing}).Type)
	assert.Equal(t, ResponseChannelMessage, ch.HandleInteraction(Interaction{Type: InteractionCommand}).Type)

	bad := Interaction{Type: InteractionComponent, Data: &InteractionData{CustomID: "other:thing"}}
	assert.Equal(t, ResponseChannelMessage, ch.HandleInteraction(bad).Type)
}

func TestParseCustomID(t *testing.T) {
	verb, issue, id, err := ParseCustomID(CustomID(verbReject, 17, "3f2a-run"))
	require.NoError(t, err)
	assert.Equal(t, "reject", verb)
	assert.Equal(t, 17, issue)
	assert.Equal(t, "3f2a-run", id)

	for _, bad := range []string{"", "triage:approve:17", "triage:approve:17:", "triage:approve:x:r", "triage:approve:0:r", "x:approve:1:r"} {
		_, _, _, err := ParseCustomID(bad)
		assert.Error(t, err, bad)
	}
}

func TestChannel_StaleButtonFromOtherRequest(t *testing.T) {
	_, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	res := &fakeResolver{}
	ch.Bind(res)
	require.NoError(t, ch.Publish(context.Background(), sampleRequest()))

	old := Interaction{
		Type: InteractionComponent,
		Data: &InteractionData{CustomID: CustomID(verbApprove, 42, "req-0")},
		User: &User{Username: "mallory"},
	}
	resp := ch.HandleInteraction(old)
	assert.Equal(t, ResponseChannelMessage, resp.Type)
	_, resolved := res.get(42)
	assert.False(t, resolved)
	assert.Equal(t, 1, ch.Outstanding(), "the live request keeps its message")
}

func TestChannel_RetractEditsMessage(t *testing.T) {
	f, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1"})
	ch.Bind(&fakeResolver{})
	req := sampleRequest()
	require.NoError(t, ch.Publish(context.Background(), req))

	rec := decision.Approve("api", nil)
	ch.Retract(req, &rec)
	assert.Equal(t, 0, ch.Outstanding())

	require.Eventually(t, func() bool { return len(f.edits("m-1")) == 1 }, 2*time.Second, 10*time.Millisecond)
	embed := f.edits("m-1")[0]["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "Approved", embed["footer"].(map[string]any)["text"])
	assert.Empty(t, f.edits("m-1")[0]["components"])

	// A second retract for the same request is a no-op.
	ch.Retract(req, &rec)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.edits("m-1"), 1)
}

// A decision taken outside Discord must retire the message and its timer so
// that neither can touch the next triage run for the same issue.
func TestChannel_WithBroker_ResolvedElsewhereThenRetriaged(t *testing.T) {
	f, c := newFake(t)
	ch := NewChannel(c, ChannelConfig{ChannelID: "c-1", Timeout: 100 * time.Millisecond})
	b := decision.NewBroker(ch)
	ch.Bind(b)

	type outcome struct {
		rec decision.Record
		err error
	}
	await := func(id string) <-chan outcome {
		out := make(chan outcome, 1)
		go func() {
			rec, err := b.Await(context.Background(), 42, decision.Request{ID: id, Title: "Crash on save"}, 2*time.Second)
			out <- outcome{rec, err}
		}()
		return out
	}

	first := await("run-1")
	require.Eventually(t, func() bool { return ch.Outstanding() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, b.Resolve(42, decision.Approve("api", nil)))
	r1 := <-first
	require.NoError(t, r1.err)
	assert.Equal(t, decision.KindApprove, r1.rec.Kind)
	assert.Equal(t, 0, ch.Outstanding(), "the first run's message is retired")

	// The second message takes longer to post than the first run's UI
	// window, so a surviving first-run timer would fire while it is pending.
	f.mu.Lock()
	f.delay = 150 * time.Millisecond
	f.mu.Unlock()
	second := await("run-2")
	require.Eventually(t, func() bool { return ch.Outstanding() == 1 }, time.Second, 2*time.Millisecond)

	// Buttons left on the first message cannot resolve the second run.
	stale := Interaction{
		Type: InteractionComponent,
		Data: &InteractionData{CustomID: CustomID(verbApprove, 42, "run-1")},
		User: &User{Username: "alice"},
	}
	resp := ch.HandleInteraction(stale)
	assert.Equal(t, ResponseChannelMessage, resp.Type)
	assert.Contains(t, resp.Data.Content, "no longer pending")
	require.True(t, b.IsPending(42))

	resp = ch.HandleInteraction(Interaction{
		Type: InteractionComponent,
		Data: &InteractionData{CustomID: CustomID(verbReject, 42, "run-2")},
		User: &User{Username: "bob"},
	})
	assert.Equal(t, ResponseUpdateMessage, resp.Type)

	r2 := <-second
	require.NoError(t, r2.err)
	assert.Equal(t, decision.KindReject, r2.rec.Kind, "the second run is decided by its own message")
	assert.Equal(t, "bob", r2.rec.Actor)

	require.Eventually(t, func() bool { return len(f.edits("m-1")) > 0 }, time.Second, 5*time.Millisecond)
	edits := f.edits("m-1")
	embed := edits[0]["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "Approved", embed["footer"].(map[string]any)["text"], "first message shows the real outcome")
}

func TestVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v, err := NewVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	body := []byte(`{"type":1}`)
	ts := "1700000000"
	sig := hex.EncodeToString(ed25519.Sign(priv, append([]byte(ts), body...)))

	assert.True(t, v.Verify(sig, ts, body))
	assert.False(t, v.Verify(sig, ts, []byte(`{"type":2}`)))
	assert.False(t, v.Verify(sig, "", body))
	assert.False(t, v.Verify("zz", ts, body))

	_, err = NewVerifier("abcd")
	assert.Error(t, err)
}

func TestNotifier(t *testing.T) {
	f, c := newFake(t)

	n := NewNotifier(c, "", "c-1")
	require.NoError(t, n.PublishSummary(context.Background(), 9, "Issue #9 processed: label"))
	calls := f.calls()
	require.Len(t, calls, 1)
	embed := calls[0].Body["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "Triage Action Completed", embed["title"])
	assert.Equal(t, "Audit Trail • triage-9", embed["footer"].(map[string]any)["text"])
	assert.Equal(t, "/channels/c-1/messages", calls[0].Path)

	wh := NewNotifier(c, c.baseURL+"/webhooks/1/tok", "c-1")
	require.NoError(t, wh.PublishSummary(context.Background(), 9, "x"))
	assert.True(t, strings.HasPrefix(f.calls()[1].Path, "/webhooks/"))

	assert.Error(t, NewNotifier(c, "", "").PublishSummary(context.Background(), 1, "x"))
}

func TestFormatWindow(t *testing.T) {
	assert.Equal(t, "1 hour", formatWindow(time.Hour))
	assert.Equal(t, "2 hours", formatWindow(2*time.Hour))
	assert.Equal(t, "30 minutes", formatWindow(30*time.Minute))
}
