package app

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"donorbase/api/internal/authpw"
	"donorbase/api/internal/rbac"
	"donorbase/api/internal/store"
)

func (s *HTTPServer) handleCRM(w http.ResponseWriter, r *http.Request, parts []string) {
	// Auth routes carry no session.
	if len(parts) >= 1 && parts[0] == "auth" {
		s.handleStaffAuth(w, r, parts[1:])
		return
	}

	if len(parts) == 1 && parts[0] == "session" && r.Method == http.MethodGet {
		token := bearerToken(r)
		if token == "" {
			writeData(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeData(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"authenticated":  true,
			"kind":           sess.Kind,
			"accountId":      sess.AccountID,
			"displayName":    sess.DisplayName,
			"organizationId": sess.OrganizationID,
			"role":           sess.Role,
		})
		return
	}

	sess, ok := s.requireStaff(w, r)
	if !ok {
		return
	}

	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[0] {
	case "organizations":
		if len(parts) == 1 && r.Method == http.MethodPost {
			s.handleCreateOrganization(w, r, sess)
			return
		}
	case "organization":
		s.handleOrganization(w, r, sess, parts)
		return
	case "staff":
		s.handleStaff(w, r, sess, parts)
		return
	case "designations":
		s.handleDesignations(w, r, sess, parts)
		return
	case "campaigns":
		s.handleCampaigns(w, r, sess, parts)
		return
	case "pages":
		s.handlePages(w, r, sess, parts)
		return
	case "donations":
		s.handleDonations(w, r, sess, parts)
		return
	case "uploads":
		if len(parts) == 2 && r.Method == http.MethodGet {
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.GetUpload(r.Context(), sess, parts[1])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
		if len(parts) == 1 && r.Method == http.MethodPost {
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body struct {
				Filename    string `json:"filename"`
				ContentType string `json:"contentType"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateUpload(r.Context(), sess, body.Filename, body.ContentType)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusCreated, payload)
			return
		}
		if len(parts) == 2 && r.Method == http.MethodDelete {
			if !s.service.Can(sess.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			if err := s.service.AbandonUpload(r.Context(), sess, parts[1]); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeMessage(w, http.StatusOK, "Upload abandoned")
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Staff authentication and session lifecycle

func (s *HTTPServer) handleStaffAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	route := strings.Join(parts, "/")
	switch route {
	case "signup":
		s.handleAuthSignUp(w, r)
	case "signin":
		s.handleAuthSignIn(w, r)
	case "verify-email":
		s.handleAuthVerifyEmail(w, r)
	case "reset-password/request":
		s.handleAuthRequestReset(w, r)
	case "reset-password":
		s.handleAuthResetPassword(w, r)
	case "refresh":
		s.handleAuthRefresh(w, r)
	case "logout":
		s.handleAuthLogout(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	emailConfigured := s.service.SMTPConfigured()
	if emailConfigured {
		verifyURL := s.service.cfg.PublicBaseURL + "/crm/verify-email?token=" + resp.VerificationToken
		go func() {
			if sendErr := s.service.email.SendVerificationEmail(body.Email, body.DisplayName, verifyURL); sendErr != nil {
				log.Printf("verification email to %s failed: %v", body.Email, sendErr)
			}
		}()
	}

	payload := map[string]any{
		"staffAccountId": resp.StaffAccountID,
		"message":        "Please check your email to verify your account",
	}
	// Dev bypass: include verification token in response when email not configured
	if !emailConfigured {
		payload["devVerificationToken"] = resp.VerificationToken
		payload["message"] = "Account created. Verify your email to continue."
	}

	writeData(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		OrganizationID string `json:"organizationId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	sess, err := s.service.StaffSignIn(r.Context(), body.Email, body.Password, body.OrganizationID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"accessToken":    sess.Token,
		"refreshToken":   sess.RefreshToken,
		"staffAccountId": sess.AccountID,
		"displayName":    sess.DisplayName,
		"organizationId": sess.OrganizationID,
		"role":           sess.Role,
		"expiresAt":      sess.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified successfully")
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, _ := s.service.AuthPasswordService().RequestPasswordReset(r.Context(), body.Email)

	emailConfigured := s.service.SMTPConfigured()
	if emailConfigured && token != "" {
		resetURL := s.service.cfg.PublicBaseURL + "/crm/reset-password?token=" + token
		go func() {
			if sendErr := s.service.email.SendPasswordResetEmail(body.Email, "", resetURL); sendErr != nil {
				log.Printf("password reset email to %s failed: %v", body.Email, sendErr)
			}
		}()
	}

	payload := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: include reset token in response when email not configured
	if !emailConfigured && token != "" {
		payload["devResetToken"] = token
	}
	writeData(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AuthPasswordService().ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successfully")
}

func (s *HTTPServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"accessToken":    sess.Token,
		"refreshToken":   sess.RefreshToken,
		"organizationId": sess.OrganizationID,
		"role":           sess.Role,
		"expiresAt":      sess.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	sess := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			sess = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), sess, body.RefreshToken)
	writeData(w, http.StatusOK, map[string]any{"ok": true})
}

// Organization

func (s *HTTPServer) handleCreateOrganization(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		Name      string `json:"name"`
		Subdomain string `json:"subdomain"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.CreateOrganization(r.Context(), sess, body.Name, body.Subdomain)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeData(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleOrganization(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.GetOrganization(r.Context(), sess)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			if !s.service.Can(sess.Role, rbac.ActionManageOrg) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body struct {
				Name     string          `json:"name"`
				Settings json.RawMessage `json:"settings"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateOrganization(r.Context(), sess, body.Name, body.Settings)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodDelete:
			if !s.service.Can(sess.Role, rbac.ActionManageOrg) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			if err := s.service.DeleteOrganization(r.Context(), sess); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 2 && parts[1] == "payment-account" {
		if !s.service.Can(sess.Role, rbac.ActionManageOrg) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetPaymentAccount(r.Context(), sess)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			var body struct {
				PaymentAccountID string `json:"paymentAccountId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.SetPaymentAccount(r.Context(), sess, body.PaymentAccountID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Staff membership

func (s *HTTPServer) handleStaff(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if len(parts) == 1 && r.Method == http.MethodGet {
		if !s.service.Can(sess.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		payload, err := s.service.ListStaff(r.Context(), sess)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if !s.service.Can(sess.Role, rbac.ActionManageStaff) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	if len(parts) == 2 && parts[1] == "invites" && r.Method == http.MethodPost {
		var body struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.InviteStaff(r.Context(), sess, body.Email, body.Role)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusCreated, payload)
		return
	}

	if len(parts) == 3 && parts[2] == "role" && r.Method == http.MethodPut {
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateStaffRole(r.Context(), sess, parts[1], body.Role)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodDelete {
		if err := s.service.RemoveStaff(r.Context(), sess, parts[1]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Designations

func (s *HTTPServer) handleDesignations(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			includeArchived := strings.TrimSpace(r.URL.Query().Get("includeArchived")) == "true"
			payload, err := s.service.ListDesignations(r.Context(), sess, includeArchived)
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
			var body DesignationInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateDesignation(r.Context(), sess, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusCreated, payload)
			return
		}
	}

	if len(parts) == 2 {
		designationID := parts[1]
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(sess.Role, rbac.ActionRead) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.GetDesignation(r.Context(), sess, designationID)
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
			var body DesignationInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateDesignation(r.Context(), sess, designationID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
	}

	if len(parts) == 3 && r.Method == http.MethodPost && (parts[2] == "archive" || parts[2] == "restore") {
		if !s.service.Can(sess.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		payload, err := s.service.SetDesignationArchived(r.Context(), sess, parts[1], parts[2] == "archive")
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

// Pages

func (s *HTTPServer) handlePages(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if len(parts) == 1 && r.Method == http.MethodGet {
		if !s.service.Can(sess.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		payload, err := s.service.ListPages(r.Context(), sess)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPut {
		if !s.service.Can(sess.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			ContentConfig json.RawMessage `json:"contentConfig"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SavePage(r.Context(), sess, parts[1], body.ContentConfig)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPost {
		if !s.service.Can(sess.Role, rbac.ActionPublish) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		switch parts[2] {
		case "publish":
			var body struct {
				ContentConfig json.RawMessage `json:"contentConfig"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.PublishPage(r.Context(), sess, parts[1], body.ContentConfig)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		case "unpublish":
			payload, err := s.service.UnpublishPage(r.Context(), sess, parts[1])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeData(w, http.StatusOK, payload)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Donations

func (s *HTTPServer) handleDonations(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(sess.Role, rbac.ActionRead) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	filter := store.DonationFilter{
		CampaignID:    strings.TrimSpace(r.URL.Query().Get("campaignId")),
		DesignationID: strings.TrimSpace(r.URL.Query().Get("designationId")),
		Status:        strings.TrimSpace(r.URL.Query().Get("status")),
	}

	if len(parts) == 1 {
		payload, err := s.service.ListDonations(r.Context(), sess, filter)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 2 && parts[1] == "export.csv" {
		result, err := s.service.ExportDonationsCSV(r.Context(), sess, filter)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		_, _ = w.Write(result.Data)
		return
	}

	if len(parts) == 2 {
		payload, err := s.service.GetDonation(r.Context(), sess, parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 3 && parts[2] == "receipt.pdf" {
		result, err := s.service.DonationReceiptPDF(r.Context(), sess, parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func parseIntQuery(r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return parsed, true
}
