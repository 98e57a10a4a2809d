// Package payments runs eSewa ePay v2 checkout for appointment fees: order
// signing, client verification, and the gateway's redirect callbacks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/events"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/internal/observability/metrics"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

var paymentsTracer = otel.Tracer("telehealth.internal.payments")

var (
	ErrAlreadyPaid      = errors.New("payments: appointment already paid")
	ErrVelocityExceeded = errors.New("payments: too many payment attempts")
	ErrInvalidSignature = errors.New("payments: invalid signature")
	ErrNotComplete      = errors.New("payments: payment not complete")
	ErrNoTransaction    = errors.New("payments: no transaction for appointment")
	ErrAmountMismatch   = errors.New("payments: amount does not match appointment")
	ErrNotConfigured    = errors.New("payments: gateway not configured")
	ErrWrongRole        = errors.New("payments: only patients can pay")
	ErrCancelledBooking = errors.New("payments: appointment was cancelled")
)

// Appointments is the slice of the appointment service payments drives.
type Appointments interface {
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointments.Appointment, error)
	AttachTransaction(ctx context.Context, id uuid.UUID, transactionUUID string) error
	FindByTransaction(ctx context.Context, transactionUUID string) (*appointments.Appointment, error)
	RecordPayment(ctx context.Context, id uuid.UUID, rec appointments.PaymentRecord) (*appointments.Appointment, bool, error)
	RecordPaymentFailure(ctx context.Context, id uuid.UUID, rec appointments.PaymentRecord) (*appointments.Appointment, error)
}

// Settings are the merchant and URL parameters of the integration.
type Settings struct {
	SecretKey     string
	ProductCode   string
	MerchantID    string
	BaseURL       string
	StatusURL     string
	PublicBaseURL string
	FrontendURL   string
}

// FormURL is where the browser posts the signed order.
func (s Settings) FormURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/api/epay/main/v2/form"
}

func (s Settings) successCallbackURL() string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/api/payment/success-callback"
}

func (s Settings) failureCallbackURL(transactionUUID string) string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/api/payment/failure-callback?transaction_uuid=" + url.QueryEscape(transactionUUID)
}

func (s Settings) successRedirect(transactionCode, amount string) string {
	q := url.Values{}
	q.Set("status", "success")
	q.Set("transactionId", transactionCode)
	q.Set("amount", amount)
	return strings.TrimRight(s.FrontendURL, "/") + "/payment-status?" + q.Encode()
}

func (s Settings) failureRedirect() string {
	return strings.TrimRight(s.FrontendURL, "/") + "/payment-status?status=failed"
}

// OrderForm holds the fields posted to the eSewa form endpoint.
type OrderForm struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	SignedFieldNames      string `json:"signed_field_names"`
	Signature             string `json:"signature"`
	MerchantID            string `json:"merchant_id,omitempty"`
}

type Order struct {
	PaymentData   OrderForm `json:"paymentData"`
	PaymentURL    string    `json:"paymentUrl"`
	Amount        string    `json:"amount"`
	TransactionID string    `json:"transactionId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
}

type CreateOrderRequest struct {
	AppointmentID uuid.UUID `json:"appointmentId" validate:"required"`
}

type VerifyRequest struct {
	AppointmentID   uuid.UUID `json:"appointmentId" validate:"required"`
	TransactionCode string    `json:"transaction_code" validate:"required,max=100"`
	Status          string    `json:"status" validate:"required,max=40"`
}

// StatusView is what the payment-status page polls.
type StatusView struct {
	AppointmentID      uuid.UUID                  `json:"appointmentId"`
	PaymentStatus      appointments.PaymentStatus `json:"paymentStatus"`
	Status             appointments.Status        `json:"status"`
	TotalAmount        int64                      `json:"totalAmount"`
	PaymentMethod      string                     `json:"paymentMethod,omitempty"`
	EsewaTransactionID string                     `json:"esewaTransactionId,omitempty"`
	EsewaPaymentID     string                     `json:"esewaPaymentId,omitempty"`
	PaymentDate        *time.Time                 `json:"paymentDate,omitempty"`
}

// Service implements the eSewa checkout flow.
type Service struct {
	appts    Appointments
	settings Settings
	signer   *Signer
	status   StatusChecker
	velocity *VelocityChecker
	dedup    events.Deduper
	metrics  *metrics.ClinicMetrics
	now      func() time.Time
	logger   *logging.Logger
}

func NewService(appts Appointments, settings Settings, logger *logging.Logger) *Service {
	if appts == nil {
		panic("payments: appointments required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if settings.ProductCode == "" {
		settings.ProductCode = "EPAYTEST"
	}
	s := &Service{
		appts:    appts,
		settings: settings,
		signer:   NewSigner(settings.SecretKey),
		dedup:    events.NewMemoryDeduper(),
		now:      time.Now,
		logger:   logger,
	}
	if settings.StatusURL != "" {
		s.status = NewStatusClient(settings.StatusURL, nil)
	}
	return s
}

func (s *Service) WithStatusChecker(c StatusChecker) *Service {
	s.status = c
	return s
}

func (s *Service) WithVelocity(v *VelocityChecker) *Service {
	s.velocity = v
	return s
}

func (s *Service) WithDeduper(d events.Deduper) *Service {
	if d != nil {
		s.dedup = d
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.ClinicMetrics) *Service {
	s.metrics = m
	return s
}

func amountString(v int64) string {
	return strconv.FormatInt(v, 10)
}

// ownedUnpaid loads an appointment for its patient and rejects settled ones.
func (s *Service) ownedUnpaid(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointments.Appointment, error) {
	if !p.IsPatient() {
		return nil, ErrWrongRole
	}
	a, err := s.appts.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if a.PatientID != p.UserID {
		return nil, appointments.ErrForbidden
	}
	if a.PaymentStatus == appointments.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if a.Status == appointments.StatusCancelled {
		return nil, ErrCancelledBooking
	}
	return a, nil
}

// CreateOrder signs a checkout form for the patient's appointment.
func (s *Service) CreateOrder(ctx context.Context, p identity.Principal, appointmentID uuid.UUID) (*Order, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.create_order")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.appointment_id", appointmentID.String()))

	if s.settings.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	a, err := s.ownedUnpaid(ctx, p, appointmentID)
	if err != nil {
		return nil, err
	}
	v, err := s.velocity.CheckOrderVelocity(ctx, p.UserID.String())
	if err != nil {
		return nil, err
	}
	if !v.Allowed {
		s.metrics.ObservePayment("order", "throttled")
		return nil, fmt.Errorf("%w: %s", ErrVelocityExceeded, v.Message)
	}

	txn := fmt.Sprintf("%s-%d", a.ID, s.now().UnixMilli())
	total := amountString(a.TotalAmount)
	form := OrderForm{
		Amount:                total,
		TaxAmount:             "0",
		TotalAmount:           total,
		TransactionUUID:       txn,
		ProductCode:           s.settings.ProductCode,
		ProductServiceCharge:  "0",
		ProductDeliveryCharge: "0",
		SuccessURL:            s.settings.successCallbackURL(),
		FailureURL:            s.settings.failureCallbackURL(txn),
		SignedFieldNames:      OrderSignedFields,
		MerchantID:            s.settings.MerchantID,
	}
	form.Signature = s.signer.Sign(map[string]string{
		"total_amount":     form.TotalAmount,
		"transaction_uuid": form.TransactionUUID,
		"product_code":     form.ProductCode,
	}, OrderSignedFields)

	if err := s.appts.AttachTransaction(ctx, a.ID, txn); err != nil {
		if errors.Is(err, appointments.ErrStaleStatus) {
			return nil, ErrAlreadyPaid
		}
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObservePayment("order", "created")
	s.logger.Info("esewa order created", "appointment_id", a.ID, "transaction_uuid", txn, "amount", total)
	return &Order{
		PaymentData:   form,
		PaymentURL:    s.settings.FormURL(),
		Amount:        total,
		TransactionID: txn,
		AppointmentID: a.ID,
	}, nil
}

// VerifyPayment confirms a payment reported by the browser. With a status
// client configured the gateway's answer overrides the client's claim.
func (s *Service) VerifyPayment(ctx context.Context, p identity.Principal, req VerifyRequest) (*appointments.Appointment, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.verify")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.appointment_id", req.AppointmentID.String()))

	if !p.IsPatient() {
		return nil, ErrWrongRole
	}
	a, err := s.appts.Get(ctx, p, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != p.UserID {
		return nil, appointments.ErrForbidden
	}
	if a.PaymentStatus == appointments.PaymentPaid {
		return a, nil
	}
	if a.Status == appointments.StatusCancelled {
		return nil, ErrCancelledBooking
	}

	status := req.Status
	if s.status != nil {
		if a.EsewaTransactionID == "" {
			return nil, ErrNoTransaction
		}
		res, err := s.status.Check(ctx, s.settings.ProductCode, amountString(a.TotalAmount), a.EsewaTransactionID)
		if err != nil {
			span.RecordError(err)
			s.metrics.ObservePayment("verify", "error")
			return nil, err
		}
		status = res.Status
		if res.RefID != "" {
			req.TransactionCode = res.RefID
		}
	}
	if status != StatusComplete {
		s.metrics.ObservePayment("verify", "rejected")
		return nil, ErrNotComplete
	}

	updated, _, err := s.appts.RecordPayment(ctx, a.ID, appointments.PaymentRecord{
		Method:          ProviderEsewa,
		TransactionUUID: a.EsewaTransactionID,
		TransactionCode: req.TransactionCode,
		PaidAt:          s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePayment("verify", "paid")
	return updated, nil
}

// HandleSuccess processes eSewa's success redirect and returns where the
// browser should go next. Only ErrInvalidSignature is returned as an error;
// every other problem becomes the failure redirect.
func (s *Service) HandleSuccess(ctx context.Context, cb Callback) (string, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.success_callback")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.transaction_uuid", cb.TransactionUUID))

	names := cb.SignedNames()
	if !CoversCallbackFields(names) {
		s.metrics.ObserveSignatureFailure("esewa")
		s.logger.Warn("esewa callback signs too few fields", "transaction_uuid", cb.TransactionUUID, "signed_field_names", names)
		return "", ErrInvalidSignature
	}
	if !s.signer.Verify(cb.Fields(), names, cb.Signature) {
		s.metrics.ObserveSignatureFailure("esewa")
		s.logger.Warn("esewa callback signature mismatch", "transaction_uuid", cb.TransactionUUID)
		return "", ErrInvalidSignature
	}
	if cb.Status != StatusComplete {
		s.metrics.ObservePayment("callback", "not_complete")
		return s.settings.failureRedirect(), nil
	}

	success := s.settings.successRedirect(cb.TransactionCode, cb.TotalAmount)
	done, err := s.dedup.AlreadyProcessed(ctx, events.ProviderEsewa, cb.TransactionUUID)
	if err != nil {
		s.logger.Warn("esewa dedup lookup failed", "error", err, "transaction_uuid", cb.TransactionUUID)
	}
	if done {
		s.metrics.ObservePayment("callback", "duplicate")
		return success, nil
	}

	a, err := s.appts.FindByTransaction(ctx, cb.TransactionUUID)
	if err != nil {
		s.logger.Warn("esewa callback for unknown transaction", "error", err, "transaction_uuid", cb.TransactionUUID)
		s.metrics.ObservePayment("callback", "unknown")
		return s.settings.failureRedirect(), nil
	}
	if !amountMatches(cb.TotalAmount, a.TotalAmount) {
		s.logger.Error("esewa callback amount mismatch", "transaction_uuid", cb.TransactionUUID,
			"callback_amount", cb.TotalAmount, "expected", a.TotalAmount)
		s.metrics.ObservePayment("callback", "amount_mismatch")
		return s.settings.failureRedirect(), nil
	}
	if a.Status == appointments.StatusCancelled {
		s.logger.Error("esewa payment for cancelled appointment, refund required", "appointment_id", a.ID,
			"transaction_uuid", cb.TransactionUUID, "transaction_code", cb.TransactionCode, "amount", cb.TotalAmount)
		s.metrics.ObservePayment("callback", "cancelled")
		return s.settings.failureRedirect(), nil
	}

	_, _, err = s.appts.RecordPayment(ctx, a.ID, appointments.PaymentRecord{
		Method:          ProviderEsewa,
		TransactionUUID: cb.TransactionUUID,
		TransactionCode: cb.TransactionCode,
		PaidAt:          s.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error("esewa callback mark paid failed", "error", err, "appointment_id", a.ID)
		return s.settings.failureRedirect(), nil
	}
	if _, err := s.dedup.MarkProcessed(ctx, events.ProviderEsewa, cb.TransactionUUID); err != nil {
		s.logger.Warn("esewa dedup mark failed", "error", err, "transaction_uuid", cb.TransactionUUID)
	}
	s.metrics.ObservePayment("callback", "paid")
	return success, nil
}

// HandleFailure marks a known pending transaction failed and returns the
// failure page.
func (s *Service) HandleFailure(ctx context.Context, transactionUUID string) string {
	if transactionUUID == "" {
		return s.settings.failureRedirect()
	}
	a, err := s.appts.FindByTransaction(ctx, transactionUUID)
	if err != nil {
		return s.settings.failureRedirect()
	}
	if a.PaymentStatus != appointments.PaymentPending {
		return s.settings.failureRedirect()
	}
	_, err = s.appts.RecordPaymentFailure(ctx, a.ID, appointments.PaymentRecord{
		Method:          ProviderEsewa,
		TransactionUUID: transactionUUID,
	})
	if err != nil {
		s.logger.Error("esewa mark failed", "error", err, "appointment_id", a.ID)
		return s.settings.failureRedirect()
	}
	s.metrics.ObservePayment("callback", "failed")
	return s.settings.failureRedirect()
}

// Status reports payment state to either participant.
func (s *Service) Status(ctx context.Context, p identity.Principal, appointmentID uuid.UUID) (*StatusView, error) {
	a, err := s.appts.Get(ctx, p, appointmentID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		AppointmentID:      a.ID,
		PaymentStatus:      a.PaymentStatus,
		Status:             a.Status,
		TotalAmount:        a.TotalAmount,
		PaymentMethod:      a.PaymentMethod,
		EsewaTransactionID: a.EsewaTransactionID,
		EsewaPaymentID:     a.EsewaPaymentID,
		PaymentDate:        a.PaymentDate,
	}, nil
}

// Config reports the integration setup with secrets masked.
func (s *Service) Config() map[string]string {
	masked := func(v string) string {
		if v == "" {
			return "Not set"
		}
		return "Set (hidden)"
	}
	orNotSet := func(v string) string {
		if v == "" {
			return "Not set"
		}
		return v
	}
	statusAPI := "disabled"
	if s.status != nil {
		statusAPI = "enabled"
	}
	return map[string]string{
		"esewa_merchant_id":  orNotSet(s.settings.MerchantID),
		"esewa_product_code": orNotSet(s.settings.ProductCode),
		"esewa_secret_key":   masked(s.settings.SecretKey),
		"esewa_base_url":     orNotSet(s.settings.BaseURL),
		"esewa_status_api":   statusAPI,
		"frontend_url":       orNotSet(s.settings.FrontendURL),
		"success_url":        s.settings.successCallbackURL(),
	}
}

// amountMatches compares eSewa's decimal string (e.g. "1100.0" or "1,100.0")
// with whole rupees.
func amountMatches(reported string, expected int64) bool {
	f, err := strconv.ParseFloat(strings.ReplaceAll(reported, ",", ""), 64)
	if err != nil {
		return false
	}
	return int64(f*100+0.5) == expected*100
}
