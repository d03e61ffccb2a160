package mpesa

import "encoding/json"

// CallbackResult is the actionable part of an stkCallback notification.
type CallbackResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int64
	ResultDesc        string
	// Success is true only for a numeric ResultCode of 0.
	Success bool
}

// ParseCallback digs Body.stkCallback out of an arbitrary JSON payload.
// ok is false when no CheckoutRequestID is present.
func ParseCallback(payload map[string]any) (result CallbackResult, ok bool) {
	body, _ := payload["Body"].(map[string]any)
	stk, _ := body["stkCallback"].(map[string]any)

	id, _ := stk["CheckoutRequestID"].(string)
	if id == "" {
		return CallbackResult{}, false
	}
	result.CheckoutRequestID = id
	result.MerchantRequestID, _ = stk["MerchantRequestID"].(string)
	result.ResultDesc, _ = stk["ResultDesc"].(string)

	result.ResultCode = -1
	switch code := stk["ResultCode"].(type) {
	case float64:
		if code == float64(int64(code)) {
			result.ResultCode = int64(code)
		}
	case json.Number:
		if n, err := code.Int64(); err == nil {
			result.ResultCode = n
		}
	}
	result.Success = result.ResultCode == 0
	return result, true
}
