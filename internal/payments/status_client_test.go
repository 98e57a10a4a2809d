package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClientCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "EPAYTEST", q.Get("product_code"))
		assert.Equal(t, "1100", q.Get("total_amount"))
		if q.Get("transaction_uuid") == "missing" {
			http.Error(w, `{"code":0,"error_message":"Service is currently unavailable"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"product_code":"EPAYTEST","transaction_uuid":"` + q.Get("transaction_uuid") +
			`","total_amount":1100.0,"status":"COMPLETE","ref_id":"0001TS9"}`))
	}))
	defer srv.Close()

	client := NewStatusClient(srv.URL+"/api/epay/transaction/status/", srv.Client())
	res, err := client.Check(context.Background(), "EPAYTEST", "1100", "abc-123")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, "0001TS9", res.RefID)
	assert.Equal(t, "abc-123", res.TransactionUUID)
	assert.Equal(t, "1100.0", res.TotalAmount.String())

	_, err = client.Check(context.Background(), "EPAYTEST", "1100", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
