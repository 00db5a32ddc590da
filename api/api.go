// Package api contains the HTTP endpoints around the live channel: message history, REST sending,
// notifications, presence and the community join flow.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/chat"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/notify"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
	"github.com/tcriess/terrace-buddy/ws"
)

const maxBodySize = 1 << 20

type API struct {
	cfg        *config.Config
	persister  persistence.Persister
	membership *persistence.MembershipChecker
	dispatcher *notify.Dispatcher
	hub        *ws.Hub
}

func New(cfg *config.Config, persister persistence.Persister, membership *persistence.MembershipChecker, dispatcher *notify.Dispatcher, hub *ws.Hub) *API {
	return &API{
		cfg:        cfg,
		persister:  persister,
		membership: membership,
		dispatcher: dispatcher,
		hub:        hub,
	}
}

// Register adds the routes to router. Everything except the health check requires a valid credential.
func (a *API) Register(router *mux.Router, verifier auth.Verifier) {
	router.HandleFunc("/api/health", a.health).Methods(http.MethodGet)

	r := router.PathPrefix("/api").Subrouter()
	r.Use(auth.Gate(verifier, auth.RequestToken, rejectJSON))

	r.HandleFunc("/chat/messages", a.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chat/messages/read", a.markMessagesRead).Methods(http.MethodPut)
	r.HandleFunc("/chat/message/{messageId}", a.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/chat/direct/{userId}", a.directHistory).Methods(http.MethodGet)
	r.HandleFunc("/chat/{communityId}/channels/{channelId}/messages", a.channelHistory).Methods(http.MethodGet)

	r.HandleFunc("/users/notifications", a.notifications).Methods(http.MethodGet)
	r.HandleFunc("/users/notifications/read-all", a.markAllNotificationsRead).Methods(http.MethodPut)
	r.HandleFunc("/users/notifications/{notificationId}/read", a.markNotificationRead).Methods(http.MethodPut)
	r.HandleFunc("/users/notifications/{notificationId}", a.deleteNotification).Methods(http.MethodDelete)

	r.HandleFunc("/communities/{communityId}/join-request", a.joinRequest).Methods(http.MethodPost)
	r.HandleFunc("/communities/{communityId}/approve", a.approve).Methods(http.MethodPost)

	r.HandleFunc("/presence/online", a.onlineUsers).Methods(http.MethodGet)
	r.HandleFunc("/presence/{userId}", a.presence).Methods(http.MethodGet)
}

type errorResponse struct {
	Error string `json:"error"`
}

func rejectJSON(w http.ResponseWriter, _ *http.Request, _ error) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.AuthenticationErrorMessage})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps err to a status code. Unexpected errors are logged and reported without details.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotMember):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, persistence.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		globals.AppLogger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody weakly decodes the JSON body of r into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	m := make(map[string]interface{})
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&m)
	if err != nil {
		return err
	}
	return mapstructure.WeakDecode(m, v)
}

// page reads the limit and before query parameters.
func (a *API) page(r *http.Request) (time.Time, int, error) {
	limit := a.cfg.HistoryConfig.DefaultLimit
	if limit <= 0 {
		limit = 50
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return time.Time{}, 0, errors.New("invalid limit")
		}
		limit = n
	}
	if a.cfg.HistoryConfig.MaxLimit > 0 && limit > a.cfg.HistoryConfig.MaxLimit {
		limit = a.cfg.HistoryConfig.MaxLimit
	}
	var before time.Time
	if b := r.URL.Query().Get("before"); b != "" {
		var err error
		before, err = time.Parse(time.RFC3339Nano, b)
		if err != nil {
			return time.Time{}, 0, errors.New("invalid before")
		}
	}
	return before, limit, nil
}

// isMember reports whether identity may read and write the community. Platform admins may always.
func (a *API) isMember(identity *types.Identity, communityId string) (bool, error) {
	if identity.Role == types.RolePlatformAdmin {
		return true, nil
	}
	return a.membership.IsMember(communityId, identity.Id)
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Live        bool   `json:"live"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: a.hub.NoClients(),
		Live:        a.dispatcher.Attached(),
	})
}
