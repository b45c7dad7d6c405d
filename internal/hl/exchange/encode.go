package exchange

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// field is one map entry. The action hash covers msgpack bytes, so key
// order has to match the exchange's own serialisation.
type field struct {
	key string
	val any
}

// EncodeOrderAction msgpack-encodes an order action for hashing.
func EncodeOrderAction(action OrderAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Orders) == 0 {
		return nil, errors.New("action orders are required")
	}
	grouping := action.Grouping
	if grouping == "" {
		grouping = "na"
	}
	orders := make([][]field, 0, len(action.Orders))
	for _, o := range action.Orders {
		fields, err := orderFields(o)
		if err != nil {
			return nil, err
		}
		orders = append(orders, fields)
	}
	var buf bytes.Buffer
	err := encodeFields(msgpack.NewEncoder(&buf), []field{
		{"type", action.Type},
		{"orders", orders},
		{"grouping", grouping},
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func orderFields(o OrderWire) ([]field, error) {
	if o.OrderType.Limit == nil {
		return nil, errors.New("limit order type required")
	}
	fields := []field{
		{"a", o.Asset},
		{"b", o.IsBuy},
		{"p", o.Price},
		{"s", o.Size},
		{"r", o.ReduceOnly},
		{"t", []field{{"limit", []field{{"tif", string(o.OrderType.Limit.Tif)}}}}},
	}
	if o.Cloid != "" {
		fields = append(fields, field{"c", o.Cloid})
	}
	return fields, nil
}

func encodeFields(enc *msgpack.Encoder, fields []field) error {
	if err := enc.EncodeMapLen(len(fields)); err != nil {
		return err
	}
	for _, f := range fields {
		if err := enc.EncodeString(f.key); err != nil {
			return err
		}
		if err := encodeValue(enc, f.val); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}

func encodeValue(enc *msgpack.Encoder, v any) error {
	switch val := v.(type) {
	case string:
		return enc.EncodeString(val)
	case bool:
		return enc.EncodeBool(val)
	case int:
		return enc.EncodeInt(int64(val))
	case []field:
		return encodeFields(enc, val)
	case [][]field:
		if err := enc.EncodeArrayLen(len(val)); err != nil {
			return err
		}
		for _, item := range val {
			if err := encodeFields(enc, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported msgpack value %T", v)
	}
}
