package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/types"
)

type sendMessageRequest struct {
	CommunityId string `mapstructure:"communityId"`
	ChannelId   string `mapstructure:"channelId"`
	Content     string `mapstructure:"content"`
	ImageUrl    string `mapstructure:"imageUrl"`
}

type markReadRequest struct {
	MessageIds []string `mapstructure:"messageIds"`
}

type historyResponse struct {
	Messages []*types.Message `json:"messages"`
}

// sendMessage persists a channel message and broadcasts it through the same channel-scoped path as the live
// channel, so community and channel are both required.
func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	req := sendMessageRequest{}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CommunityId == "" || req.ChannelId == "" {
		writeError(w, http.StatusBadRequest, "communityId and channelId are required")
		return
	}
	// posting always requires membership, even for platform admins
	isMember, err := a.membership.IsMember(req.CommunityId, identity.Id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member of the community")
		return
	}
	msg, err := a.hub.Chat().SendChannelMessage(identity, req.CommunityId, req.ChannelId, req.Content, req.ImageUrl)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) channelHistory(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	vars := mux.Vars(r)
	communityId := vars["communityId"]
	isMember, err := a.isMember(identity, communityId)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member of the community")
		return
	}
	before, limit, err := a.page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := a.persister.GetChannelHistory(communityId, vars["channelId"], before, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: msgs})
}

func (a *API) directHistory(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	before, limit, err := a.page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := a.persister.GetDirectHistory(identity.Id, mux.Vars(r)["userId"], before, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: msgs})
}

// deleteMessage is allowed for the sender, the admin of the community of a channel message and platform admins.
func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	msg := &types.Message{Id: mux.Vars(r)["messageId"]}
	if err := a.persister.GetMessage(msg); err != nil {
		writeFailure(w, r, err)
		return
	}
	allowed := msg.SenderId == identity.Id || identity.Role == types.RolePlatformAdmin
	if !allowed && !msg.IsDirect {
		community := types.Community{Id: msg.CommunityId}
		if err := a.persister.GetCommunity(&community); err == nil && community.AdminId == identity.Id {
			allowed = true
		}
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "not allowed to delete this message")
		return
	}
	if err := a.persister.DeleteMessage(msg); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	req := markReadRequest{}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.persister.MarkMessagesRead(identity.Id, req.MessageIds); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
