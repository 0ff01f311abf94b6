package instagram

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientela-ai/clientela/internal/pipeline"
	"github.com/clientela-ai/clientela/pkg/logging"
)

type fakeProcessor struct {
	reqs []*pipeline.InboundRequest
	resp *pipeline.Result
	err  error
}

func (f *fakeProcessor) Process(ctx context.Context, req *pipeline.InboundRequest) (*pipeline.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type fakeSender struct {
	sent map[string]string
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, recipientID, text string) (*SendResponse, error) {
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[recipientID] = text
	return &SendResponse{RecipientID: recipientID}, f.err
}

func inboundBody(recipientID string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "instagram",
		"entry": [{
			"id": %q,
			"messaging": [{
				"sender": {"id": "user-9", "username": "ana.garcia"},
				"recipient": {"id": %q},
				"timestamp": 1700000000000,
				"message": {"mid": "m-1", "text": "una cheeseburger para llevar"}
			}]
		}]
	}`, recipientID, recipientID))
}

func postWebhook(a *Adapter, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(testAppSecret, body))
	rec := httptest.NewRecorder()
	a.HandleWebhook(rec, req)
	return rec
}

func TestAdapterRoutesToMappedBot(t *testing.T) {
	botID := uuid.New()
	proc := &fakeProcessor{resp: &pipeline.Result{Response: "¡Anotado!"}}
	sender := &fakeSender{}
	a := NewAdapter(proc, sender, testAppSecret, testVerifyToken,
		map[string]uuid.UUID{"biz-1": botID}, logging.Default())

	rec := postWebhook(a, inboundBody("biz-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, proc.reqs, 1)
	req := proc.reqs[0]
	assert.Equal(t, botID, req.BotID)
	assert.Equal(t, "una cheeseburger para llevar", req.Message)
	assert.Equal(t, "user-9", req.ConversationID)
	assert.Equal(t, "user-9", req.SenderInstagramID)
	assert.Equal(t, "@ana.garcia", req.SenderName)
	assert.Equal(t, "instagram", req.Platform)

	assert.Equal(t, "¡Anotado!", sender.sent["user-9"])
}

func TestAdapterIgnoresUnmappedAccount(t *testing.T) {
	proc := &fakeProcessor{resp: &pipeline.Result{Response: "hola"}}
	sender := &fakeSender{}
	a := NewAdapter(proc, sender, testAppSecret, testVerifyToken,
		map[string]uuid.UUID{"biz-1": uuid.New()}, logging.Default())

	rec := postWebhook(a, inboundBody("biz-other"))
	assert.Equal(t, http.StatusOK, rec.Code, "meta always gets a 200")
	assert.Empty(t, proc.reqs)
	assert.Empty(t, sender.sent)
}

func TestAdapterDoesNotReplyWhenPaused(t *testing.T) {
	proc := &fakeProcessor{err: pipeline.ErrConversationPaused}
	sender := &fakeSender{}
	a := NewAdapter(proc, sender, testAppSecret, testVerifyToken,
		map[string]uuid.UUID{"biz-1": uuid.New()}, logging.Default())

	rec := postWebhook(a, inboundBody("biz-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.reqs, 1)
	assert.Empty(t, sender.sent, "paused conversations get no bot reply")
}

func TestAdapterSwallowsProcessingErrors(t *testing.T) {
	proc := &fakeProcessor{err: context.DeadlineExceeded}
	sender := &fakeSender{}
	a := NewAdapter(proc, sender, testAppSecret, testVerifyToken,
		map[string]uuid.UUID{"biz-1": uuid.New()}, logging.Default())

	rec := postWebhook(a, inboundBody("biz-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.sent)
}
