package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

type onlineResponse struct {
	Users []string `json:"users"`
}

type presenceResponse struct {
	UserId string `json:"userId"`
	Online bool   `json:"online"`
}

func (a *API) onlineUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, onlineResponse{Users: a.hub.Presence().OnlineUsers()})
}

func (a *API) presence(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	writeJSON(w, http.StatusOK, presenceResponse{UserId: userId, Online: a.hub.Presence().IsOnline(userId)})
}
