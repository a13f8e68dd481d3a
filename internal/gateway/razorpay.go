package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	rzputils "github.com/razorpay/razorpay-go/utils"
)

// OrderRequest asks the gateway to open an order. Amount is in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the gateway's view of an opened order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

var ErrNotConfigured = errors.New("payment gateway credentials are not configured")

// Razorpay creates orders through the Razorpay REST API and checks
// checkout signatures locally with the account secret.
type Razorpay struct {
	keyID  string
	secret string
	client *razorpay.Client
}

func NewRazorpay(keyID, secret string) *Razorpay {
	r := &Razorpay{keyID: keyID, secret: secret}
	if keyID != "" && secret != "" {
		r.client = razorpay.NewClient(keyID, secret)
	}
	return r
}

func (r *Razorpay) KeyID() string { return r.keyID }

func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if r.client == nil {
		return nil, ErrNotConfigured
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("order amount must be positive, got %d", req.Amount)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	body, err := r.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return parseOrder(body)
}

// VerifySignature checks the checkout signature in constant time.
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	return Verify(r.secret, orderID, paymentID, signature)
}

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID", the value
// checkout sends back. Used to build callbacks in tests.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a checkout signature with the SDK's payment verifier.
func Verify(secret, orderID, paymentID, signature string) bool {
	if secret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return rzputils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, secret)
}

func parseOrder(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay response missing order id")
	}
	order := &Order{ID: id}
	order.Currency, _ = body["currency"].(string)
	order.Status, _ = body["status"].(string)
	switch v := body["amount"].(type) {
	case float64:
		order.Amount = int64(v)
	case int64:
		order.Amount = v
	case int:
		order.Amount = int64(v)
	}
	return order, nil
}
