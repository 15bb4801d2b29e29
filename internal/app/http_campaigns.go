package app

import (
	"encoding/json"
	"net/http"

	"donorbase/api/internal/rbac"
)

func (s *HTTPServer) handleCampaigns(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.ListCampaigns(r.Context(), sess)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodPost:
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body CampaignInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateCampaign(r.Context(), sess, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusCreated, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	campaignID := parts[1]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.GetCampaign(r.Context(), sess, campaignID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body CampaignInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateCampaign(r.Context(), sess, campaignID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 3 && parts[2] == "page-config" && r.Method == http.MethodPut {
		if !s.service.Can(sess.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			PageConfig json.RawMessage `json:"pageConfig"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SaveCampaignPageConfig(r.Context(), sess, campaignID, body.PageConfig)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) >= 3 && parts[2] == "revisions" {
		if !s.service.Can(sess.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if len(parts) == 3 && r.Method == http.MethodGet {
			limit, ok := parseIntQuery(r, "limit", 50)
			if !ok {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
				return
			}
			payload, err := s.service.ListCampaignRevisions(r.Context(), sess, campaignID, limit)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
		if len(parts) == 4 && r.Method == http.MethodGet {
			payload, err := s.service.GetCampaignRevision(r.Context(), sess, campaignID, parts[3])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
		if len(parts) == 5 && parts[4] == "restore" && r.Method == http.MethodPost {
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.RestoreCampaignRevision(r.Context(), sess, campaignID, parts[3])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
	}

	if len(parts) == 3 && parts[2] == "designations" {
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.ListCampaignDesignations(r.Context(), sess, campaignID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body struct {
				DesignationIDs []string `json:"designationIds"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.SyncCampaignDesignations(r.Context(), sess, campaignID, body.DesignationIDs)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, result)
			return
		}
	}

	if len(parts) == 3 && parts[2] == "questions" {
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.ListCampaignQuestions(r.Context(), sess, campaignID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body struct {
				Questions []QuestionInput `json:"questions"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.SyncCampaignQuestions(r.Context(), sess, campaignID, body.Questions)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, result)
			return
		}
	}

	if len(parts) == 3 && parts[2] == "publish" && r.Method == http.MethodPost {
		if !s.service.Can(sess.Role, rbac.ActionPublish) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			PageConfig json.RawMessage `json:"pageConfig"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.PublishCampaign(r.Context(), sess, campaignID, body.PageConfig)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
