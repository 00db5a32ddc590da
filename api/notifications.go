package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/types"
)

type notificationsResponse struct {
	Notifications []*types.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

func (a *API) notifications(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	limit := a.cfg.NotificationsConfig.Limit
	if limit <= 0 {
		limit = 50
	}
	notifications, err := a.persister.GetNotifications(identity.Id, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	unread, err := a.persister.CountUnreadNotifications(identity.Id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: notifications, UnreadCount: unread})
}

func (a *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	n, err := a.persister.MarkNotificationRead(identity.Id, mux.Vars(r)["notificationId"])
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *API) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if err := a.persister.MarkAllNotificationsRead(identity.Id); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if err := a.persister.DeleteNotification(identity.Id, mux.Vars(r)["notificationId"]); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
