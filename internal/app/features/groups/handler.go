// internal/app/features/groups/handler.go
package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/groupdrop/internal/app/features/errors"
	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/inputval"
	"github.com/dalemusser/groupdrop/internal/app/system/limits"
	"github.com/dalemusser/groupdrop/internal/app/system/membership"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves group creation, join validation and group lookup.
type Handler struct {
	Groups     *groupstore.Store
	Members    *membership.Controller
	MaxMembers int
	ErrLog     *errorsfeature.ErrorLogger
	Log        *zap.Logger
}

// NewHandler constructs a groups Handler. maxMembers bounds the capacity a
// creator may request.
func NewHandler(groups *groupstore.Store, members *membership.Controller, maxMembers int, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if maxMembers <= 0 {
		maxMembers = limits.DefaultMaxGroupMembers
	}
	return &Handler{
		Groups:     groups,
		Members:    members,
		MaxMembers: maxMembers,
		ErrLog:     errLog,
		Log:        logger,
	}
}

// flexInt accepts a JSON number or a numeric string. Browser forms often
// submit maxMembers as a string.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type createRequest struct {
	GroupName  string  `json:"groupName"`
	GroupCode  string  `json:"groupCode"`
	MaxMembers flexInt `json:"maxMembers"`
}

type createInput struct {
	GroupName  string `validate:"required,max=200,plaintext" label:"Group name"`
	GroupCode  string `validate:"required,groupcode" label:"Group code"`
	MaxMembers int    `validate:"gt=0" label:"Max members"`
}

type joinRequest struct {
	MemberName string `json:"memberName"`
	GroupCode  string `json:"groupCode"`
}

type joinInput struct {
	MemberName string `validate:"required,max=200" label:"Member name"`
	GroupCode  string `validate:"required" label:"Group code"`
}

// decode reads a bounded JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", groupstore.ErrInvalidArgument)
	}
	return nil
}

func invalid(res *inputval.Result) error {
	return fmt.Errorf("%w: %s", groupstore.ErrInvalidArgument, res.All())
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /create-group                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeCreate registers a new, empty group.
//
//	{ "groupName":"Team A", "groupCode":"T1", "maxMembers":2 } → { "success":true }
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}

	in := createInput{GroupName: req.GroupName, GroupCode: req.GroupCode, MaxMembers: int(req.MaxMembers)}
	if res := inputval.Validate(in); res.HasErrors() {
		h.ErrLog.Write(w, r, invalid(res))
		return
	}
	if in.MaxMembers > h.MaxMembers {
		h.ErrLog.Write(w, r, fmt.Errorf("%w: max members must be at most %d", groupstore.ErrInvalidArgument, h.MaxMembers))
		return
	}

	info, err := h.Groups.Create(r.Context(), in.GroupCode, in.GroupName, in.MaxMembers)
	if err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	errorsfeature.JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"groupCode":  info.Code,
		"groupName":  info.Name,
		"maxMembers": info.MaxMembers,
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /join-group                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeJoin checks that a member could join without joining. The actual
// join happens on the realtime channel.
//
//	{ "memberName":"Alice", "groupCode":"T1" } → { "success":true, "groupName":"Team A", "maxMembers":2 }
func (h *Handler) ServeJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	if res := inputval.Validate(joinInput(req)); res.HasErrors() {
		h.ErrLog.Write(w, r, invalid(res))
		return
	}

	info, err := h.Members.Validate(req.GroupCode, req.MemberName)
	if err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	errorsfeature.JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"groupName":  info.Name,
		"maxMembers": info.MaxMembers,
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /groups/{code}                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

type groupResponse struct {
	models.GroupInfo
	models.GroupSnapshot
}

// ServeGroup returns a group's summary and current snapshot.
func (h *Handler) ServeGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.Groups.Get(chi.URLParam(r, "code"))
	if err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	errorsfeature.JSON(w, http.StatusOK, groupResponse{
		GroupInfo:     g.Info(),
		GroupSnapshot: g.Snapshot(),
	})
}
