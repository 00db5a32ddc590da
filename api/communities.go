package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/types"
)

const relatedTypeCommunity = "community"

type joinResponse struct {
	CommunityId string `json:"communityId"`
	Joined      bool   `json:"joined"`
	Requested   bool   `json:"requested"`
}

type approveRequest struct {
	UserId string `mapstructure:"userId"`
}

// joinRequest joins a public community right away. For a private community the admin is notified and has to
// approve the request.
func (a *API) joinRequest(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	community := types.Community{Id: mux.Vars(r)["communityId"]}
	if err := a.persister.GetCommunity(&community); err != nil {
		writeFailure(w, r, err)
		return
	}
	isMember, err := a.membership.IsMember(community.Id, identity.Id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if isMember {
		writeError(w, http.StatusConflict, "already a member of the community")
		return
	}
	if community.Visibility == types.VisibilityPublic {
		if err := a.membership.AddMember(community.Id, identity.Id); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, joinResponse{CommunityId: community.Id, Joined: true})
		return
	}
	_, err = a.dispatcher.Dispatch(community.AdminId, &types.Notification{
		Type:        types.NotificationCommunityJoinRequest,
		Title:       "New join request",
		Message:     fmt.Sprintf("%s wants to join %s", displayName(identity), community.Name),
		RelatedId:   community.Id,
		RelatedType: relatedTypeCommunity,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, joinResponse{CommunityId: community.Id, Requested: true})
}

// approve adds a user to the community. Only the community admin and platform admins may approve.
func (a *API) approve(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	community := types.Community{Id: mux.Vars(r)["communityId"]}
	if err := a.persister.GetCommunity(&community); err != nil {
		writeFailure(w, r, err)
		return
	}
	if community.AdminId != identity.Id && identity.Role != types.RolePlatformAdmin {
		writeError(w, http.StatusForbidden, "only the community admin may approve members")
		return
	}
	req := approveRequest{}
	if err := decodeBody(w, r, &req); err != nil || req.UserId == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := a.membership.AddMember(community.Id, req.UserId); err != nil {
		writeFailure(w, r, err)
		return
	}
	_, err := a.dispatcher.Dispatch(req.UserId, &types.Notification{
		Type:        types.NotificationCommunityApproved,
		Title:       "Join request approved",
		Message:     fmt.Sprintf("You are now a member of %s", community.Name),
		RelatedId:   community.Id,
		RelatedType: relatedTypeCommunity,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{CommunityId: community.Id, Joined: true})
}

func displayName(identity *types.Identity) string {
	if identity.DisplayName != "" {
		return identity.DisplayName
	}
	return identity.Id
}
