package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const (
	timestampLayout = "20060102150405"

	transactionTypePayBill = "CustomerPayBillOnline"
	responseCodeAccepted   = "0"
	defaultRejection       = "STK Push failed"
)

// PushRequest is what the caller supplies; the client fills in the rest.
type PushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// PushResponse covers both the success and the error shape Daraja returns.
type PushResponse struct {
	HTTPStatus int `json:"-"`

	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Accepted reports whether M-Pesa queued the prompt on the payer's phone.
func (r *PushResponse) Accepted() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus <= 299 && r.ResponseCode == responseCodeAccepted
}

// Reason is the provider's explanation for a rejected push.
func (r *PushResponse) Reason() string {
	switch {
	case r.ErrorMessage != "":
		return r.ErrorMessage
	case r.ResponseDescription != "":
		return r.ResponseDescription
	default:
		return defaultRejection
	}
}

// Password derives the Lipa Na M-Pesa password for timestamp.
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// StkPush sends a single Lipa Na M-Pesa Online request. A rejection by
// Daraja is reported through the response, not as an error.
func (c *Client) StkPush(ctx context.Context, token string, pr PushRequest) (*PushResponse, error) {
	timestamp := c.now().Format(timestampLayout)
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            pr.Amount,
		PartyA:            pr.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       pr.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  pr.AccountReference,
		TransactionDesc:   pr.Description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stk push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create stk push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending stk push",
		zap.String("phone", maskPhone(pr.Phone)),
		zap.Int64("amount", pr.Amount),
		zap.String("account_reference", pr.AccountReference))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stk push request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stk push response: %w", err)
	}

	out := &PushResponse{HTTPStatus: resp.StatusCode}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return nil, fmt.Errorf("failed to decode stk push response: %w", err)
		}
		// error bodies are not always JSON; fall back to the default reason
		c.logger.Warn("undecodable stk push error body",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)))
	}
	return out, nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "****" + phone[len(phone)-4:]
}
