package client

import (
	"fmt"
	"strconv"
)

// Object is a decoded JSON object as returned by the API. Asset, transaction
// and count payloads are passed through untyped since their shape differs per
// chain.
type Object map[string]any

// String returns the value at key formatted as a string, or "" when absent.
func (o Object) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the value at key as an int64. Numeric strings are parsed;
// anything else yields ok=false.
func (o Object) Int(key string) (int64, bool) {
	switch t := o[key].(type) {
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Hash returns the transaction identifier. The v3 transaction endpoints use
// "id"; older payloads use "hash" or "txhash".
func (o Object) Hash() string {
	for _, key := range []string{"id", "hash", "txhash", "signature"} {
		if s := o.String(key); s != "" {
			return s
		}
	}
	return ""
}

// Count returns the "total_txs" field of a transaction count response.
func (o Object) Count() (int64, bool) {
	if n, ok := o.Int("total_txs"); ok {
		return n, true
	}
	return o.Int("count")
}

// page is a single paginated response.
type page struct {
	Items   []Object
	HasNext bool
}

// decodePage pulls the list under dataField and the has_next flag out of a
// decoded response. A missing or non-list field contributes no items.
func decodePage(raw map[string]any, dataField string) page {
	var p page
	if items, ok := raw[dataField].([]any); ok {
		p.Items = make([]Object, 0, len(items))
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				p.Items = append(p.Items, Object(obj))
			}
		}
	}
	p.HasNext = truthy(raw["has_next"])
	return p
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
