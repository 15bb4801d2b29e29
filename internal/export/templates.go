package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"formatAmount": FormatAmount,
}).Parse(receiptHTML))

// RenderReceiptHTML renders the receipt template with provided data
func RenderReceiptHTML(receipt Receipt) (string, error) {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, receipt); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatAmount renders a minor-unit amount as a currency string, e.g. 5000
// usd -> "$50.00".
func FormatAmount(amount int64, currency string) string {
	symbol := ""
	switch strings.ToLower(currency) {
	case "usd", "cad", "aud":
		symbol = "$"
	case "eur":
		symbol = "€"
	case "gbp":
		symbol = "£"
	}
	whole := amount / 100
	cents := amount % 100
	if cents < 0 {
		cents = -cents
	}
	if symbol == "" {
		return fmt.Sprintf("%d.%02d %s", whole, cents, strings.ToUpper(currency))
	}
	return fmt.Sprintf("%s%d.%02d", symbol, whole, cents)
}

const receiptHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Donation Receipt</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 700px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #1a7f5a; padding-bottom: 0.5rem; }
    .amount { font-size: 2rem; font-weight: bold; color: #1a7f5a; margin: 1rem 0; }
    table { width: 100%; border-collapse: collapse; margin: 1.5rem 0; }
    td { padding: 0.5rem 0; border-bottom: 1px solid #eee; vertical-align: top; }
    td:first-child { color: #666; width: 35%; }
    .answers { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #1a7f5a; }
    .footer { margin-top: 2rem; color: #666; font-size: 0.85rem; }
  </style>
</head>
<body>
  <h1>{{.OrganizationName}}</h1>
  <p>Donation receipt{{if .DonorName}} for {{.DonorName}}{{end}}</p>

  <div class="amount">{{formatAmount .Amount .Currency}}</div>

  <table>
    <tr><td>Campaign</td><td>{{.CampaignName}}</td></tr>
    {{if .DesignationName}}<tr><td>Designation</td><td>{{.DesignationName}}</td></tr>{{end}}
    <tr><td>Date</td><td>{{formatDate .CompletedAt "January 2, 2006"}}</td></tr>
    <tr><td>Reference</td><td>{{.DonationID}}</td></tr>
    {{if .DonorEmail}}<tr><td>Email</td><td>{{.DonorEmail}}</td></tr>{{end}}
  </table>

  {{if .Answers}}
  <div class="answers">
    {{range .Answers}}
    <p><strong>{{.Question}}</strong><br>{{.Answer}}</p>
    {{end}}
  </div>
  {{end}}

  <div class="footer">
    <p>Please keep this receipt for your records.</p>
  </div>
</body>
</html>`
