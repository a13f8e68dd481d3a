package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"lawfirm-server/internal/models"
)

// Render builds a one-page PDF receipt for a payment. Payment relations
// (Appointment with Slot and AppointmentType, or Service) should be preloaded.
func Render(p *models.Payment, firm string, loc *time.Location) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("receipt: nil payment")
	}
	if loc == nil {
		loc = time.UTC
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, safe(firm, "Receipt"))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "PAYMENT RECEIPT")
	pdf.Ln(12)

	line := func(label, value string) {
		pdf.Cell(0, 7, fmt.Sprintf("%-16s: %s", label, value))
		pdf.Ln(7)
	}

	line("Receipt No", p.ID)
	if p.OrderID != nil {
		line("Order", *p.OrderID)
	}
	if p.GatewayPaymentID != "" {
		line("Gateway Ref", p.GatewayPaymentID)
	}
	line("Status", string(p.Status))
	line("Issued", p.UpdatedAt.In(loc).Format("2006-01-02 15:04"))
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Details:")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, describe(p), "", "", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	line("Amount", FormatAmount(p.Amount, p.Currency))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func describe(p *models.Payment) string {
	switch {
	case p.Appointment != nil:
		a := p.Appointment
		var parts []string
		title := "Consultation"
		if a.AppointmentType != nil {
			title = a.AppointmentType.Title
		}
		parts = append(parts, title+" for "+safe(a.Name, a.Email))
		if a.Slot != nil {
			parts = append(parts, "Slot: "+a.Slot.Date.Format(models.DateLayout)+" "+a.Slot.TimeLabel)
		}
		if a.Agenda != "" {
			parts = append(parts, "Agenda: "+a.Agenda)
		}
		return strings.Join(parts, "\n")
	case p.Service != nil:
		return "Service: " + p.Service.Title
	default:
		return string(p.PayFor)
	}
}

// FormatAmount renders minor units as "INR 1000.00".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, minor/100, minor%100)
}

func safe(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
