package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendFailsWhenNotConfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@example.com"}, "subject", "body"); err == nil {
		t.Error("expected error for unconfigured service")
	}
	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "subject", "<p>body</p>"); err == nil {
		t.Error("expected error for unconfigured service")
	}
}

func TestRenderVerificationTemplate(t *testing.T) {
	data := VerificationData{
		AppName:         "Donorbase",
		UserName:        "Test Staffer",
		VerificationURL: "https://example.com/verify?token=abc123",
	}

	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Donorbase") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test Staffer") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify?token=abc123") {
		t.Error("template should contain verification URL")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	data := PasswordResetData{
		AppName:  "Donorbase",
		UserName: "Test Staffer",
		ResetURL: "https://example.com/reset?token=xyz789",
	}

	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "https://example.com/reset?token=xyz789") {
		t.Error("template should contain reset URL")
	}
}

func TestRenderStaffInviteTemplate(t *testing.T) {
	data := StaffInviteData{
		AppName:          "Donorbase",
		OrganizationName: "River Relief",
		InviterName:      "Alex Admin",
		Role:             "editor",
		AcceptURL:        "https://example.com/invite?token=inv1",
	}

	html, err := renderTemplate(staffInviteEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "River Relief") {
		t.Error("template should contain organization name")
	}
	if !strings.Contains(html, "Alex Admin") {
		t.Error("template should contain inviter name")
	}
	if !strings.Contains(html, "editor") {
		t.Error("template should contain role")
	}
}

func TestRenderReceiptTemplate(t *testing.T) {
	data := ReceiptData{
		OrganizationName: "River Relief",
		DonorName:        "Pat Donor",
		CampaignName:     "Spring Appeal",
		DesignationName:  "Clean Water Fund",
		Amount:           "$50.00",
		DonationID:       "don_abc123",
		Date:             "2026-03-14",
	}

	html, err := renderTemplate(receiptEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	for _, want := range []string{"River Relief", "Pat Donor", "Spring Appeal", "Clean Water Fund", "$50.00", "don_abc123"} {
		if !strings.Contains(html, want) {
			t.Errorf("template should contain %q", want)
		}
	}
}

func TestRenderReceiptTemplateWithoutDesignation(t *testing.T) {
	data := ReceiptData{
		OrganizationName: "River Relief",
		CampaignName:     "Spring Appeal",
		Amount:           "$25.00",
		DonationID:       "don_def456",
		Date:             "2026-03-15",
	}

	html, err := renderTemplate(receiptEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if strings.Contains(html, "Designation") {
		t.Error("template should omit designation row when empty")
	}
}
