package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bpsreport/report-server/api"
	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/types"
	"github.com/bpsreport/report-server/upload"
	"github.com/bpsreport/report-server/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventWait = 2 * time.Second

type chatEnv struct {
	server    *httptest.Server
	persister persistence.Persister
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
		UploadsConfig:     config.UploadsConfig{Dir: t.TempDir(), MaxSize: 1024 * 1024},
	}
	persister, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { persister.Close() })

	uploads, err := upload.NewStore(cfg.UploadsConfig.Dir)
	require.NoError(t, err)

	hub := ws.NewHub(cfg, persister)
	go hub.Run()

	srv := httptest.NewServer(api.NewServer(cfg, persister, hub, uploads).Router())
	t.Cleanup(srv.Close)
	return &chatEnv{server: srv, persister: persister}
}

func (e *chatEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *chatEnv) storeReport(t *testing.T, id string, messages ...string) {
	t.Helper()
	responses := make([]types.Response, 0, len(messages))
	for _, m := range messages {
		responses = append(responses, types.Response{Message: m, CreatedAt: time.Now()})
	}
	require.NoError(t, e.persister.StoreReport(types.Report{
		Id:        id,
		GrowId:    "G1",
		Category:  "Scam",
		Status:    types.StatusPending,
		CreatedAt: time.Now(),
		Responses: responses,
	}))
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(types.WebsocketMessage{Event: event, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) types.WebsocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(eventWait)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	message := types.WebsocketMessage{}
	require.NoError(t, json.Unmarshal(raw, &message))
	return message
}

// expectSilence asserts that no frame arrives within a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no event, got %s", raw)
	}
}

// join sends join-report and waits for the chat-history reply, which doubles
// as confirmation that the room membership is in place.
func join(t *testing.T, conn *websocket.Conn, reportId string) []types.Response {
	t.Helper()
	sendEvent(t, conn, types.EventJoinReport, reportId)
	message := readEvent(t, conn)
	require.Equal(t, types.EventChatHistory, message.Event)
	responses := []types.Response{}
	require.NoError(t, json.Unmarshal(message.Data, &responses))
	return responses
}

func TestJoinReplaysHistoryInOrder(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "first", "second", "third")

	conn := e.dial(t)
	responses := join(t, conn, "r1")
	require.Len(t, responses, 3)
	assert.Equal(t, "first", responses[0].Message)
	assert.Equal(t, "second", responses[1].Message)
	assert.Equal(t, "third", responses[2].Message)
}

func TestJoinUnknownReportIsSilent(t *testing.T) {
	e := newChatEnv(t)

	conn := e.dial(t)
	sendEvent(t, conn, types.EventJoinReport, "no-such-report")
	expectSilence(t, conn)
}

func TestSendMessageReachesWholeRoomIncludingSender(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint")

	sender := e.dial(t)
	join(t, sender, "r1")
	peer := e.dial(t)
	join(t, peer, "r1")

	sendEvent(t, sender, types.EventSendMessage, types.SendMessage{
		ReportId: "r1", Message: "hi", IsAdmin: true,
	})

	for _, conn := range []*websocket.Conn{sender, peer} {
		message := readEvent(t, conn)
		require.Equal(t, types.EventNewMessage, message.Event)
		payload := types.NewMessage{}
		require.NoError(t, json.Unmarshal(message.Data, &payload))
		assert.Equal(t, "hi", payload.Message)
		assert.True(t, payload.IsAdmin)
		assert.Equal(t, "r1", payload.ReportId)
	}

	report, err := e.persister.GetReport("r1")
	require.NoError(t, err)
	require.Len(t, report.Responses, 2)
	assert.Equal(t, "hi", report.Responses[1].Message)
}

func TestSendMessageStoreFailureNotifiesSenderOnly(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint")

	sender := e.dial(t)
	join(t, sender, "r1")
	peer := e.dial(t)
	join(t, peer, "r1")

	// kill the store underneath the live session
	require.NoError(t, e.persister.Close())

	sendEvent(t, sender, types.EventSendMessage, types.SendMessage{
		ReportId: "r1", Message: "hi",
	})

	message := readEvent(t, sender)
	require.Equal(t, types.EventMessageError, message.Event)
	payload := types.ErrorMessage{}
	require.NoError(t, json.Unmarshal(message.Data, &payload))
	assert.Equal(t, "failed to send message", payload.Error)

	// the failure goes to the sender only, never to the room
	expectSilence(t, peer)
}

func TestSendMessageUnknownReportIsSilent(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint")

	conn := e.dial(t)
	join(t, conn, "r1")
	sendEvent(t, conn, types.EventSendMessage, types.SendMessage{
		ReportId: "no-such-report", Message: "hi",
	})
	expectSilence(t, conn)
}

func TestTypingExcludesSender(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint")

	typer := e.dial(t)
	join(t, typer, "r1")
	watcher := e.dial(t)
	join(t, watcher, "r1")

	sendEvent(t, typer, types.EventTyping, map[string]interface{}{
		"reportId": "r1",
		"growId":   "G1",
	})

	message := readEvent(t, watcher)
	assert.Equal(t, types.EventTyping, message.Event)
	payload := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(message.Data, &payload))
	assert.Equal(t, "G1", payload["growId"])

	expectSilence(t, typer)

	// nothing was persisted
	report, err := e.persister.GetReport("r1")
	require.NoError(t, err)
	assert.Len(t, report.Responses, 1)
}

func TestRoomSwitchStopsOldRoomDelivery(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint one")
	e.storeReport(t, "r2", "complaint two")

	switcher := e.dial(t)
	join(t, switcher, "r1")
	join(t, switcher, "r2")

	stayer := e.dial(t)
	join(t, stayer, "r1")

	sendEvent(t, stayer, types.EventSendMessage, types.SendMessage{
		ReportId: "r1", Message: "anyone here?",
	})

	message := readEvent(t, stayer)
	assert.Equal(t, types.EventNewMessage, message.Event)

	// the switcher left r1 when it joined r2 and must not see r1 traffic
	expectSilence(t, switcher)
}

func TestCreateReportNotifiesConnectedClients(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r0", "unrelated")

	// new-report is global: the watcher sits in an unrelated room, the join
	// reply also guarantees registration is complete before the POST below
	watcher := e.dial(t)
	join(t, watcher, "r0")

	resp, err := http.Post(e.server.URL+"/api/reports", "application/json",
		strings.NewReader(`{"growId":"G1","category":"Scam","complaint":"X"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	message := readEvent(t, watcher)
	require.Equal(t, types.EventNewReport, message.Event)
	report := types.Report{}
	require.NoError(t, json.Unmarshal(message.Data, &report))
	assert.Equal(t, "G1", report.GrowId)
	require.Len(t, report.Responses, 2)
	assert.Equal(t, "X", report.Responses[0].Message)
	assert.True(t, report.Responses[1].IsAdmin)
}

func TestRespondOverHTTPReachesRoom(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint")

	member := e.dial(t)
	join(t, member, "r1")

	resp, err := http.Post(e.server.URL+"/api/reports/r1/respond", "application/json",
		strings.NewReader(`{"message":"on it"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	message := readEvent(t, member)
	require.Equal(t, types.EventNewMessage, message.Event)
	payload := types.NewMessage{}
	require.NoError(t, json.Unmarshal(message.Data, &payload))
	assert.Equal(t, "on it", payload.Message)
	assert.True(t, payload.IsAdmin)
	assert.Equal(t, "r1", payload.ReportId)
}

func TestLifecycleEventsReachAllClients(t *testing.T) {
	e := newChatEnv(t)
	e.storeReport(t, "r1", "complaint")

	// lifecycle events are global: the client sits in an unrelated room.
	// waiting for the join reply also guarantees registration is complete
	// before the HTTP call below broadcasts.
	e.storeReport(t, "r2", "unrelated")
	conn := e.dial(t)
	join(t, conn, "r2")

	req, err := http.NewRequest(http.MethodPut, e.server.URL+"/api/reports/r1/close", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	message := readEvent(t, conn)
	assert.Equal(t, types.EventReportClosed, message.Event)
	payload := types.ReportRef{}
	require.NoError(t, json.Unmarshal(message.Data, &payload))
	assert.Equal(t, "r1", payload.ReportId)
}
