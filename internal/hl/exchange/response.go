package exchange

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrOrderRejected = errors.New("order rejected")
	ErrActionFailed  = errors.New("exchange action failed")
	ErrNoFill        = errors.New("order did not fill")
)

// OrderStatus is the outcome of the first order in an order action.
type OrderStatus struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
	Resting   bool
}

// CheckActionResponse returns an error for {"status":"err"} responses.
func CheckActionResponse(resp map[string]any) error {
	if resp == nil {
		return fmt.Errorf("empty response: %w", ErrActionFailed)
	}
	if status, _ := resp["status"].(string); status != "ok" {
		return fmt.Errorf("%v: %w", resp["response"], ErrActionFailed)
	}
	return nil
}

// OrderStatusFromResponse reads response.data.statuses[0], which is one of
// {"filled":{...}}, {"resting":{...}} or {"error":"..."}.
func OrderStatusFromResponse(resp map[string]any) (OrderStatus, error) {
	if err := CheckActionResponse(resp); err != nil {
		return OrderStatus{}, err
	}
	body, _ := resp["response"].(map[string]any)
	data, _ := body["data"].(map[string]any)
	statuses, _ := data["statuses"].([]any)
	if len(statuses) == 0 {
		return OrderStatus{}, fmt.Errorf("missing order statuses: %w", ErrActionFailed)
	}
	status, _ := statuses[0].(map[string]any)
	if msg, ok := status["error"].(string); ok {
		return OrderStatus{}, fmt.Errorf("%s: %w", msg, ErrOrderRejected)
	}
	if filled, ok := status["filled"].(map[string]any); ok {
		return OrderStatus{
			OrderID:   stringFromAny(filled["oid"]),
			FilledQty: floatFromAny(filled["totalSz"]),
			AvgPrice:  floatFromAny(filled["avgPx"]),
		}, nil
	}
	if resting, ok := status["resting"].(map[string]any); ok {
		return OrderStatus{OrderID: stringFromAny(resting["oid"]), Resting: true}, nil
	}
	return OrderStatus{}, fmt.Errorf("unrecognised order status %v: %w", status, ErrActionFailed)
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func floatFromAny(v any) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
