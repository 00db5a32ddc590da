package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/notify"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
	"github.com/tcriess/terrace-buddy/ws"
)

type fixture struct {
	router     *mux.Router
	persister  persistence.Persister
	hub        *ws.Hub
	dispatcher *notify.Dispatcher
	verifier   *auth.JWTVerifier
}

var (
	alice = types.User{Id: "alice", Name: "Alice", Role: types.RoleUser}
	bob   = types.User{Id: "bob", Name: "Bob", Role: types.RoleUser}
	carol = types.User{Id: "carol", Name: "Carol", Role: types.RolePlatformAdmin}
)

func newFixture(t *testing.T) *fixture {
	cfg := &config.Config{
		RealtimeConfig:      config.RealtimeConfig{VerifyMembership: true},
		HistoryConfig:       config.HistoryConfig{DefaultLimit: 50, MaxLimit: 100},
		NotificationsConfig: config.NotificationsConfig{Limit: 50},
	}
	p, err := persistence.NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	membership, err := persistence.NewMembershipChecker(p, 64, time.Minute)
	require.NoError(t, err)
	hub := ws.NewHub(cfg, p, membership)
	dispatcher := notify.NewDispatcher(p, nil)
	require.NoError(t, dispatcher.Attach(hub.Broadcaster()))
	verifier := auth.NewJWTVerifier("secret", "terrace-buddy", time.Hour)

	router := mux.NewRouter()
	router.Handle("/ws", auth.Gate(verifier, auth.HandshakeToken, nil)(ws.NewHandler(hub)))
	New(cfg, p, membership, dispatcher, hub).Register(router, verifier)

	for _, u := range []types.User{alice, bob, carol} {
		require.NoError(t, p.StoreUser(u))
	}
	require.NoError(t, p.StoreCommunity(types.Community{Id: "c1", Name: "Rooftops", AdminId: "alice", Visibility: types.VisibilityPrivate}))
	require.NoError(t, p.StoreCommunity(types.Community{Id: "c2", Name: "Balconies", AdminId: "alice", Visibility: types.VisibilityPublic}))
	require.NoError(t, p.AddMember("c1", "alice"))
	return &fixture{router: router, persister: p, hub: hub, dispatcher: dispatcher, verifier: verifier}
}

func (f *fixture) token(t *testing.T, user types.User) string {
	token, err := f.verifier.Issue(user)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path string, user *types.User, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != nil {
		r.Header.Set("Authorization", "Bearer "+f.token(t, *user))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","connections":0,"live":true}`, rec.Body.String())
}

func TestRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/users/notifications", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Authentication error"}`, rec.Body.String())

	r := httptest.NewRequest(http.MethodGet, "/api/presence/online", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: f.token(t, bob)})
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendAndHistory(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/chat/messages", &alice, `{"communityId":"c1","channelId":"g1","content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := types.Message{}
	decode(t, rec, &msg)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "Alice", msg.Sender.Name)

	rec = f.do(t, http.MethodPost, "/api/chat/messages", &alice, `{"communityId":"c1","channelId":"g1","imageUrl":"https://img/1.png"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	image := types.Message{}
	decode(t, rec, &image)
	assert.Equal(t, types.MessageTypeImage, image.Type)

	// the channel is required on this path, too
	rec = f.do(t, http.MethodPost, "/api/chat/messages", &alice, `{"communityId":"c1","content":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/chat/messages", &alice, `{"communityId":"c1","channelId":"g1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/chat/messages", &bob, `{"communityId":"c1","channelId":"g1","content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/chat/messages", &alice, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chat/c1/channels/g1/messages", &alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := historyResponse{}
	decode(t, rec, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, msg.Id, history.Messages[0].Id)

	rec = f.do(t, http.MethodGet, "/api/chat/c1/channels/g1/messages?limit=1", &alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history = historyResponse{}
	decode(t, rec, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, image.Id, history.Messages[0].Id)

	rec = f.do(t, http.MethodGet, "/api/chat/c1/channels/g1/messages?before="+image.CreatedAt.Format(time.RFC3339Nano), &alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history = historyResponse{}
	decode(t, rec, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, msg.Id, history.Messages[0].Id)

	rec = f.do(t, http.MethodGet, "/api/chat/c1/channels/g1/messages?limit=zero", &alice, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/chat/c1/channels/g1/messages", &bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	// platform admins may read every community
	rec = f.do(t, http.MethodGet, "/api/chat/c1/channels/g1/messages", &carol, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRestSendIsBroadcastToCommunityRoom(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?token="+f.token(t, alice), nil)
	require.NoError(t, err)
	defer conn.Close()
	frame, err := types.NewWebsocketMessage(types.EventJoinCommunity, "c1")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	require.Eventually(t, func() bool {
		return len(f.hub.Rooms().Members(types.CommunityRoom("c1"))) == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec := f.do(t, http.MethodPost, "/api/chat/messages", &alice, `{"communityId":"c1","channelId":"g1","imageUrl":"https://img/1.png"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		message := types.WebsocketMessage{}
		require.NoError(t, conn.ReadJSON(&message))
		if message.Event != types.EventNewMessage {
			continue
		}
		assert.JSONEq(t, rec.Body.String(), string(message.Data))
		break
	}
}

func TestDirectHistoryAndMarkRead(t *testing.T) {
	f := newFixture(t)
	sent, err := f.hub.Chat().SendDirectMessage(&types.Identity{Id: "bob"}, "alice", "hey")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/chat/direct/bob", &alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := historyResponse{}
	decode(t, rec, &history)
	require.Len(t, history.Messages, 1)
	assert.False(t, history.Messages[0].Read)

	rec = f.do(t, http.MethodPut, "/api/chat/messages/read", &alice, `{"messageIds":["`+sent.Id+`"]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/chat/direct/alice", &bob, "")
	history = historyResponse{}
	decode(t, rec, &history)
	require.Len(t, history.Messages, 1)
	assert.True(t, history.Messages[0].Read)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.persister.AddMember("c1", "bob"))
	msg, err := f.hub.Chat().SendChannelMessage(&types.Identity{Id: "bob"}, "c1", "g1", "spam", "")
	require.NoError(t, err)
	other, err := f.hub.Chat().SendChannelMessage(&types.Identity{Id: "bob"}, "c1", "g1", "more spam", "")
	require.NoError(t, err)
	own, err := f.hub.Chat().SendChannelMessage(&types.Identity{Id: "bob"}, "c1", "g1", "mine", "")
	require.NoError(t, err)

	dave := types.User{Id: "dave", Name: "Dave", Role: types.RoleUser}
	rec := f.do(t, http.MethodDelete, "/api/chat/message/"+msg.Id, &dave, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	// community admin
	rec = f.do(t, http.MethodDelete, "/api/chat/message/"+msg.Id, &alice, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/chat/message/"+msg.Id, &alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	// platform admin
	rec = f.do(t, http.MethodDelete, "/api/chat/message/"+other.Id, &carol, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	// sender
	rec = f.do(t, http.MethodDelete, "/api/chat/message/"+own.Id, &bob, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	f := newFixture(t)
	first, err := f.dispatcher.Dispatch("bob", &types.Notification{Type: types.NotificationWeatherAlert, Title: "Frost"})
	require.NoError(t, err)
	_, err = f.dispatcher.Dispatch("bob", &types.Notification{Type: types.NotificationMarketplaceInterest, Title: "Interest"})
	require.NoError(t, err)
	_, err = f.dispatcher.Dispatch("alice", &types.Notification{Type: types.NotificationNewMessage, Title: "Hi"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/users/notifications", &bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := notificationsResponse{}
	decode(t, rec, &resp)
	assert.Len(t, resp.Notifications, 2)
	assert.Equal(t, 2, resp.UnreadCount)

	rec = f.do(t, http.MethodPut, "/api/users/notifications/"+first.Id+"/read", &bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	n := types.Notification{}
	decode(t, rec, &n)
	assert.True(t, n.IsRead)
	rec = f.do(t, http.MethodPut, "/api/users/notifications/"+first.Id+"/read", &alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/users/notifications/read-all", &bob, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/users/notifications", &bob, "")
	resp = notificationsResponse{}
	decode(t, rec, &resp)
	assert.Equal(t, 0, resp.UnreadCount)

	rec = f.do(t, http.MethodDelete, "/api/users/notifications/"+first.Id, &alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/users/notifications/"+first.Id, &bob, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestJoinFlow(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()
	adminConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?token="+f.token(t, alice), nil)
	require.NoError(t, err)
	defer adminConn.Close()
	require.Eventually(t, func() bool { return f.hub.Presence().IsOnline("alice") }, 2*time.Second, 5*time.Millisecond)

	// public communities are joined right away
	rec := f.do(t, http.MethodPost, "/api/communities/c2/join-request", &bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"communityId":"c2","joined":true,"requested":false}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/communities/c1/join-request", &bob, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/communities/c1/join-request", &alice, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/communities/nope/join-request", &bob, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the admin is notified live
	require.NoError(t, adminConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		message := types.WebsocketMessage{}
		require.NoError(t, adminConn.ReadJSON(&message))
		if message.Event != types.EventNewNotification {
			continue
		}
		n := types.Notification{}
		require.NoError(t, json.Unmarshal(message.Data, &n))
		assert.Equal(t, types.NotificationCommunityJoinRequest, n.Type)
		assert.Equal(t, "alice", n.UserId)
		assert.Equal(t, "c1", n.RelatedId)
		break
	}

	// bob can not post before approval, the cached answer is invalidated by the approval
	rec = f.do(t, http.MethodPost, "/api/chat/messages", &bob, `{"communityId":"c1","channelId":"g1","content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/communities/c1/approve", &bob, `{"userId":"bob"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/communities/c1/approve", &alice, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/communities/c1/approve", &alice, `{"userId":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/chat/messages", &bob, `{"communityId":"c1","channelId":"g1","content":"hi"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	notifications, err := f.persister.GetNotifications("bob", 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, types.NotificationCommunityApproved, notifications[0].Type)
}

func TestPresenceEndpoints(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?token="+f.token(t, bob), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.Presence().IsOnline("bob") }, 2*time.Second, 5*time.Millisecond)

	rec := f.do(t, http.MethodGet, "/api/presence/online", &alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":["bob"]}`, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/api/presence/bob", &alice, "")
	assert.JSONEq(t, `{"userId":"bob","online":true}`, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/api/presence/alice", &bob, "")
	assert.JSONEq(t, `{"userId":"alice","online":false}`, rec.Body.String())
}
