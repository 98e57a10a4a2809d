package payments

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerKnownVector(t *testing.T) {
	s := NewSigner("8gBm/:&EnhH.1/q")
	fields := map[string]string{
		"total_amount":     "100",
		"transaction_uuid": "11-201-13",
		"product_code":     "EPAYTEST",
	}
	assert.Equal(t, "total_amount=100,transaction_uuid=11-201-13,product_code=EPAYTEST", Message(fields, OrderSignedFields))
	sig := s.Sign(fields, OrderSignedFields)
	assert.Equal(t, "5DZywcrTKD0gia/rsSMcrRHmJl+4Tbol6S+lWgdJ94E=", sig)
	assert.True(t, s.Verify(fields, OrderSignedFields, sig))

	fields["total_amount"] = "1000"
	assert.False(t, s.Verify(fields, OrderSignedFields, sig))
	assert.False(t, NewSigner("").Verify(fields, OrderSignedFields, s.Sign(fields, OrderSignedFields)))
	assert.False(t, s.Verify(fields, OrderSignedFields, ""))
}

func TestCallbackSignedNamesDefault(t *testing.T) {
	assert.Equal(t, "transaction_code,status,total_amount,transaction_uuid", Callback{}.SignedNames())
	cb := Callback{SignedFieldNames: "transaction_code,status"}
	assert.Equal(t, "transaction_code,status", cb.SignedNames())
}

func TestCoversCallbackFields(t *testing.T) {
	assert.True(t, CoversCallbackFields(callbackSignedFields))
	assert.True(t, CoversCallbackFields("transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"))
	assert.True(t, CoversCallbackFields("status, transaction_uuid, total_amount, transaction_code"))
	assert.False(t, CoversCallbackFields(OrderSignedFields))
	assert.False(t, CoversCallbackFields("transaction_code,total_amount,transaction_uuid"))
	assert.False(t, CoversCallbackFields(""))
}

func TestDecodeCallbackDataKeepsNumericLiteral(t *testing.T) {
	raw := `{"transaction_code":"000AWEO","status":"COMPLETE","total_amount":1100.0,` +
		`"transaction_uuid":"abc-1","product_code":"EPAYTEST",` +
		`"signed_field_names":"transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",` +
		`"signature":"sig"}`
	cb, err := DecodeCallbackData(base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, "1100.0", cb.TotalAmount)
	assert.Equal(t, "000AWEO", cb.TransactionCode)
	assert.Equal(t, "COMPLETE", cb.Status)
	assert.Equal(t, "sig", cb.Signature)
	assert.Equal(t,
		"transaction_code=000AWEO,status=COMPLETE,total_amount=1100.0,transaction_uuid=abc-1,product_code=EPAYTEST,"+
			"signed_field_names=transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
		Message(cb.Fields(), cb.SignedNames()))

	_, err = DecodeCallbackData("%%%")
	assert.Error(t, err)
	_, err = DecodeCallbackData(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)
}

func TestAmountMatches(t *testing.T) {
	assert.True(t, amountMatches("1100", 1100))
	assert.True(t, amountMatches("1100.0", 1100))
	assert.True(t, amountMatches("1,100.0", 1100))
	assert.False(t, amountMatches("1099.5", 1100))
	assert.False(t, amountMatches("", 1100))
}
