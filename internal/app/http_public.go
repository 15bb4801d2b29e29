package app

import (
	"net/http"
	"strings"

	"donorbase/api/internal/search"
)

func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) >= 1 && parts[0] == "donors" {
		s.handleDonors(w, r, parts[1:])
		return
	}

	if len(parts) >= 2 && parts[0] == "orgs" {
		subdomain := parts[1]
		rest := parts[2:]

		if len(rest) == 0 && r.Method == http.MethodGet {
			payload, err := s.service.PublicOrganization(r.Context(), subdomain)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}

		if len(rest) == 1 && rest[0] == "campaigns" && r.Method == http.MethodGet {
			payload, err := s.service.PublicCampaigns(r.Context(), subdomain)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}

		if len(rest) == 2 && rest[0] == "campaigns" && r.Method == http.MethodGet {
			payload, err := s.service.PublicCampaign(r.Context(), subdomain, rest[1])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}

		if len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet {
			s.handlePublicSearch(w, r, subdomain)
			return
		}

		if len(rest) == 1 && rest[0] == "donations" && r.Method == http.MethodPost {
			var body DonationInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			donor := s.donorSession(r)
			payload, err := s.service.CreateDonation(r.Context(), subdomain, donor, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusCreated, payload)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePublicSearch(w http.ResponseWriter, r *http.Request, subdomain string) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	limit, ok := parseIntQuery(r, "limit", 20)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
		return
	}
	offset, ok := parseIntQuery(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
		return
	}

	payload, err := s.service.PublicSearch(r.Context(), subdomain, search.Query{
		Text:       text,
		FilterType: search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeData(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDonors(w http.ResponseWriter, r *http.Request, parts []string) {
	route := strings.Join(parts, "/")

	switch {
	case route == "signup" && r.Method == http.MethodPost:
		var body struct {
			Subdomain   string `json:"subdomain"`
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sess, err := s.service.DonorSignUp(r.Context(), body.Subdomain, body.Email, body.Password, body.DisplayName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		setDonorCookie(w, sess.Token, sess.ExpiresAt)
		writeData(w, http.StatusCreated, donorSessionPayload(sess))
		return

	case route == "signin" && r.Method == http.MethodPost:
		var body struct {
			Subdomain string `json:"subdomain"`
			Email     string `json:"email"`
			Password  string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sess, err := s.service.DonorSignIn(r.Context(), body.Subdomain, body.Email, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		setDonorCookie(w, sess.Token, sess.ExpiresAt)
		writeData(w, http.StatusOK, donorSessionPayload(sess))
		return

	case route == "logout" && r.Method == http.MethodPost:
		sess := s.donorSession(r)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), sess, body.RefreshToken)
		clearDonorCookie(w)
		writeData(w, http.StatusOK, map[string]any{"ok": true})
		return

	case route == "me" && r.Method == http.MethodGet:
		sess, ok := s.requireDonor(w, r)
		if !ok {
			return
		}
		payload, err := s.service.DonorProfile(r.Context(), sess)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return

	case route == "me/donations" && r.Method == http.MethodGet:
		sess, ok := s.requireDonor(w, r)
		if !ok {
			return
		}
		payload, err := s.service.DonorDonations(r.Context(), sess)
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

func donorSessionPayload(sess Session) map[string]any {
	return map[string]any{
		"accessToken":    sess.Token,
		"refreshToken":   sess.RefreshToken,
		"donorAccountId": sess.AccountID,
		"displayName":    sess.DisplayName,
		"organizationId": sess.OrganizationID,
		"expiresAt":      sess.ExpiresAt.Unix(),
	}
}
