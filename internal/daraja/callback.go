// Asynchronous result callback envelope.
//
// After an STK push is accepted, the gateway posts the outcome to the
// configured callback URL wrapped in the envelope below. Metadata items are
// only present on success and carry heterogeneous value types (numbers and
// strings), so accessors normalize them here instead of leaking type
// switches into the handlers.
package daraja

import (
	"encoding/json"
	"strconv"
)

// CallbackEnvelope is the outer wrapper of a Daraja STK result notification.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback carries the outcome of a single STK push. ResultCode zero means
// the payer confirmed and funds moved; any other value is a failure
// (cancelled, timed out, insufficient funds, ...).
type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// MetadataItem is a single name/value pair from the callback metadata.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Succeeded reports whether the callback describes a successful payment.
func (cb StkCallback) Succeeded() bool { return cb.ResultCode == 0 }

// ReceiptNumber returns the MpesaReceiptNumber metadata item, or "" when the
// callback carries none (failures have no metadata).
func (cb StkCallback) ReceiptNumber() string {
	return cb.metaString("MpesaReceiptNumber")
}

// PayerPhone returns the PhoneNumber metadata item in string form, or "".
func (cb StkCallback) PayerPhone() string {
	return cb.metaString("PhoneNumber")
}

// Amount returns the Amount metadata item and whether it was present.
func (cb StkCallback) Amount() (float64, bool) {
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name != "Amount" || len(it.Value) == 0 {
			continue
		}
		var f float64
		if err := json.Unmarshal(it.Value, &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// metaString extracts a metadata item by name, converting numeric values
// (Daraja serializes phone numbers as integers) to their decimal string form.
func (cb StkCallback) metaString(name string) string {
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name != name || len(it.Value) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(it.Value, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(it.Value, &n); err == nil {
			// Phone numbers arrive as integers; avoid exponent notation.
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10)
			}
			return n.String()
		}
	}
	return ""
}

// Ack is the acknowledgment shape the gateway expects from the callback
// endpoint. Anything other than a zero ResultCode triggers redelivery, so the
// endpoint always answers with AckOK once the payload parses.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// AckOK is the standard success acknowledgment.
var AckOK = Ack{ResultCode: 0, ResultDesc: "Callback received successfully"}
