package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/tenant"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

const maxRequestBody = 1 << 20 // 1 MiB

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody{Error: "malformed JSON body"})
		return false
	}
	return true
}

// handleSubmit is the public form-submission endpoint. A replayed
// idempotency key returns the recorded outcome with 200 instead of 201.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub model.LeadSubmission
	if !decodeBody(w, r, &sub) {
		return
	}

	ctx := r.Context()
	if sub.FunnelID != "" {
		ctx = tenant.WithFunnelID(ctx, sub.FunnelID)
	}
	reqCtx := model.RequestContext{
		ClientIP:  tenant.ClientIPFromContext(ctx),
		UserAgent: r.UserAgent(),
	}
	if requestID, err := tenant.FromRequestIDContext(ctx); err == nil {
		reqCtx.RequestID = requestID
	}

	result, err := s.pipeline.Submit(ctx, sub, reqCtx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	utils.WriteJSONResponse(w, status, result)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.service.GetLead(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, lead)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Force  bool   `json:"force,omitempty"`
	Actor  string `json:"actor,omitempty"` // Required when force is set
}

// handleUpdateStatus applies one lifecycle transition, or an audited
// force override when the caller asks for it.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	leadID := mux.Vars(r)["id"]
	to := model.LeadStatus(req.Status)

	var (
		lead *model.Lead
		err  error
	)
	if req.Force {
		if req.Actor == "" {
			utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody{Error: "actor is required for a forced status change"})
			return
		}
		lead, err = s.service.ForceStatus(r.Context(), leadID, to, req.Actor)
	} else {
		lead, err = s.service.UpdateStatus(r.Context(), leadID, to)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, lead)
}

type reassignRequest struct {
	OrgID  string  `json:"orgId"`
	RuleID *string `json:"ruleId,omitempty"`
	UserID *string `json:"userId,omitempty"`
	Actor  string  `json:"actor"`
}

// handleReassign is the manual administrator assignment override.
func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrgID == "" {
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody{Error: "orgId is required"})
		return
	}

	leadID := mux.Vars(r)["id"]
	if err := s.engine.Reassign(r.Context(), leadID, req.OrgID, req.RuleID, req.UserID, req.Actor); err != nil {
		writeError(w, r, err)
		return
	}

	lead, err := s.service.GetLead(r.Context(), leadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, lead)
}

type noteRequest struct {
	Author string `json:"author,omitempty"`
	Body   string `json:"body"`
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	note, err := s.service.AddNote(r.Context(), mux.Vars(r)["id"], req.Author, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, note)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.service.Notes(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, notes)
}

func (s *Server) handleListUnassigned(w http.ResponseWriter, r *http.Request) {
	limit := utils.QueryInt(r, "limit", 50)
	offset := utils.QueryInt(r, "offset", 0)

	entries, err := s.service.ListUnassigned(r.Context(), mux.Vars(r)["funnelId"], limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, entries)
}
