package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderEsewa labels eSewa in metrics, events and payment records.
const ProviderEsewa = "eSewa"

// StatusComplete is eSewa's terminal success status.
const StatusComplete = "COMPLETE"

// OrderSignedFields is the signed_field_names value sent with every order.
const OrderSignedFields = "total_amount,transaction_uuid,product_code"

// callbackSignedFields applies when a callback omits signed_field_names.
// A callback signature must cover each of these fields.
const callbackSignedFields = "transaction_code,status,total_amount,transaction_uuid"

// Signer produces and checks eSewa ePay v2 HMAC-SHA256 signatures.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Message joins name=value pairs in the order listed by signedFieldNames.
func Message(fields map[string]string, signedFieldNames string) string {
	names := strings.Split(signedFieldNames, ",")
	parts := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		parts = append(parts, name+"="+fields[name])
	}
	return strings.Join(parts, ",")
}

// Sign returns the base64 HMAC of the message built from fields.
func (s *Signer) Sign(fields map[string]string, signedFieldNames string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(Message(fields, signedFieldNames)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the expected value in constant time.
func (s *Signer) Verify(fields map[string]string, signedFieldNames, signature string) bool {
	if signature == "" || len(s.secret) == 0 {
		return false
	}
	expected := s.Sign(fields, signedFieldNames)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Callback is the payload eSewa posts (or base64-encodes in "data") after checkout.
type Callback struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      string `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

// Fields exposes the callback as a name -> value map for signing.
func (c Callback) Fields() map[string]string {
	return map[string]string{
		"transaction_code":   c.TransactionCode,
		"status":             c.Status,
		"total_amount":       c.TotalAmount,
		"transaction_uuid":   c.TransactionUUID,
		"product_code":       c.ProductCode,
		"signed_field_names": c.SignedFieldNames,
	}
}

// SignedNames returns the field order to verify, defaulting when absent.
func (c Callback) SignedNames() string {
	if strings.TrimSpace(c.SignedFieldNames) == "" {
		return callbackSignedFields
	}
	return c.SignedFieldNames
}

// CoversCallbackFields reports whether names includes every field the
// success callback acts on. The order signature covers only amount, uuid and
// product code, so it must not be accepted as a callback signature.
func CoversCallbackFields(names string) bool {
	listed := make(map[string]struct{})
	for _, name := range strings.Split(names, ",") {
		listed[strings.TrimSpace(name)] = struct{}{}
	}
	for _, required := range strings.Split(callbackSignedFields, ",") {
		if _, ok := listed[required]; !ok {
			return false
		}
	}
	return true
}

// DecodeCallbackData parses the v2 "data" query parameter. eSewa uses
// standard base64; URL-safe input is accepted too.
func DecodeCallbackData(data string) (Callback, error) {
	data = strings.TrimSpace(data)
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return Callback{}, fmt.Errorf("payments: decode callback data: %w", err)
		}
	}
	// total_amount may arrive as a JSON number; keep its literal text since
	// that is what was signed.
	var loose map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&loose); err != nil {
		return Callback{}, fmt.Errorf("payments: parse callback data: %w", err)
	}
	str := func(key string) string {
		switch v := loose[key].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		}
		return ""
	}
	return Callback{
		TransactionCode:  str("transaction_code"),
		Status:           str("status"),
		TotalAmount:      str("total_amount"),
		TransactionUUID:  str("transaction_uuid"),
		ProductCode:      str("product_code"),
		SignedFieldNames: str("signed_field_names"),
		Signature:        str("signature"),
	}, nil
}
