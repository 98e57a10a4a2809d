package appointments

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PrescriptionDoc is everything printed on a prescription sheet.
type PrescriptionDoc struct {
	AppointmentID    string
	DoctorName       string
	Specialization   string
	Hospital         string
	PatientName      string
	ConsultationType ConsultationType
	SlotStart        time.Time
	Symptoms         string
	Prescription     string
	Notes            string
	IssuedAt         time.Time
}

// RenderPrescription lays out an A4 prescription and returns the PDF bytes.
func RenderPrescription(doc PrescriptionDoc) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Prescription "+doc.AppointmentID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(0, 70, 140)
	pdf.CellFormat(0, 10, tr(doc.DoctorName), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(60, 60, 60)
	if doc.Specialization != "" {
		pdf.CellFormat(0, 6, tr(doc.Specialization), "", 1, "L", false, 0, "")
	}
	if doc.Hospital != "" {
		pdf.CellFormat(0, 6, tr(doc.Hospital), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 10, "Prescription", "1", 1, "C", false, 0, "")
	addDetail(pdf, "Patient", tr(doc.PatientName))
	addDetail(pdf, "Consultation", tr(string(doc.ConsultationType)))
	addDetail(pdf, "Date", doc.SlotStart.Format("02 Jan 2006, 03:04 PM MST"))
	addDetail(pdf, "Reference", doc.AppointmentID)
	pdf.Ln(4)

	section(pdf, "Symptoms", tr(doc.Symptoms))
	section(pdf, "Rx", tr(doc.Prescription))
	if doc.Notes != "" {
		section(pdf, "Notes", tr(doc.Notes))
	}

	pdf.SetY(pdf.GetY() + 10)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, "Issued "+doc.IssuedAt.Format(time.RFC1123), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, "This prescription was generated electronically after a teleconsultation.", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("appointments: render prescription: %w", err)
	}
	return buf.Bytes(), nil
}

func addDetail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(40, 8, label, "1", 0, "", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 8, value, "1", 1, "", false, 0, "")
}

func section(pdf *gofpdf.Fpdf, title, body string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	if body == "" {
		body = "-"
	}
	pdf.MultiCell(0, 6, body, "", "L", false)
	pdf.Ln(3)
}
