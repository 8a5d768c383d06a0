// Package payload pulls normalized fields out of arbitrarily-shaped provider
// webhook payloads.
//
// Providers disagree about where each field lives (snake_case, camelCase,
// nested under transaction/data/meta/event wrappers), so each field kind
// carries an ordered table of candidate paths. Extraction tries each path in
// turn and returns the first non-empty hit. Everything fails soft: bad input
// types, missing keys and malformed nesting produce an absent result, never
// a panic.
package payload

import (
	"strconv"
	"strings"
)

// Path is a sequence of object keys descended in order. Adding support for a
// new provider format means appending paths to the tables below, not
// touching control flow.
type Path []string

var eventIDPaths = []Path{
	// Top-level variants
	{"event_id"},
	{"eventId"},
	{"event"},
	{"id"},
	{"webhook_id"},
	{"webhookId"},
	{"event_key"},
	{"eventKey"},
	// Provider-specific top-level. Alias lists for providers without real
	// payload samples are placeholders carried from the integration notes.
	{"flutterwave_event_id"},
	{"flutterwaveEventId"},
	{"paystack_reference"},
	{"monnify_transaction_ref"},
	// Nested in event
	{"event", "id"},
	{"event", "event_id"},
	// Nested in data
	{"data", "event_id"},
	{"data", "eventId"},
	{"data", "id"},
	// Nested in meta
	{"meta", "event_id"},
	{"meta", "eventId"},
	// Deeply nested
	{"payload", "event_id"},
	{"payload", "id"},
}

var requestRefPaths = []Path{
	{"request_ref"},
	{"requestRef"},
	{"request_reference"},
	{"requestReference"},
	{"ref"},
	{"transaction", "request_ref"},
	{"transaction", "requestRef"},
	{"transaction", "reference"},
	{"data", "request_ref"},
	{"data", "requestRef"},
	{"data", "reference"},
	{"meta", "request_ref"},
	{"meta", "requestRef"},
	{"event", "request_ref"},
	{"event", "requestRef"},
	{"payload", "request_ref"},
	{"payload", "requestRef"},
}

var providerRefPaths = []Path{
	{"provider_ref"},
	{"providerRef"},
	{"transaction_ref"},
	{"transactionRef"},
	{"txRef"},
	{"tx_ref"},
	{"reference"},
	{"ref"},
	{"flutterwave_ref"},
	{"flutterwaveRef"},
	{"paystack_ref"},
	{"paystackRef"},
	{"monnify_ref"},
	{"monnifyRef"},
	{"transaction", "reference"},
	{"transaction", "ref"},
	{"transaction", "transaction_ref"},
	{"transaction", "transactionRef"},
	{"data", "reference"},
	{"data", "transaction_ref"},
	{"data", "transactionRef"},
	{"data", "txRef"},
	{"meta", "provider_ref"},
	{"meta", "providerRef"},
	{"event", "reference"},
}

var statusPaths = []Path{
	{"status"},
	{"transaction_status"},
	{"transactionStatus"},
	{"payment_status"},
	{"paymentStatus"},
	{"state"},
	{"transaction", "status"},
	{"transaction", "state"},
	{"data", "status"},
	{"data", "transaction_status"},
	{"data", "transactionStatus"},
	{"event", "status"},
	{"event", "state"},
	{"meta", "status"},
	{"response", "status"},
}

var amountPaths = []Path{
	{"amount"},
	{"value"},
	{"total"},
	{"total_amount"},
	{"totalAmount"},
	{"transaction_amount"},
	{"transactionAmount"},
	{"payable_amount"},
	{"payableAmount"},
	{"transaction", "amount"},
	{"transaction", "value"},
	{"transaction", "total"},
	{"data", "amount"},
	{"data", "value"},
	{"data", "total"},
	{"data", "transaction_amount"},
	{"meta", "amount"},
	{"meta", "value"},
	{"body", "amount"},
	{"body", "value"},
}

var currencyPaths = []Path{
	{"currency"},
	{"currency_code"},
	{"currencyCode"},
	{"currency_type"},
	{"currencyType"},
	{"curr"},
	{"transaction", "currency"},
	{"transaction", "currency_code"},
	{"data", "currency"},
	{"data", "currency_code"},
	{"data", "currencyCode"},
	{"meta", "currency"},
	{"body", "currency"},
}

// descend walks a path through nested objects. It fails closed: a missing
// key or a non-object intermediate value aborts the whole path.
func descend(payload any, path Path) (any, bool) {
	node := payload
	for _, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[key]
		if !ok || node == nil {
			return nil, false
		}
	}
	return node, true
}

// stringify coerces scalar JSON values to a string, trimming string input.
// Returns false for empty strings and non-scalar values.
func stringify(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// firstString returns the first candidate path resolving to a non-empty
// scalar, coerced to string.
func firstString(payload any, paths []Path) (string, bool) {
	for _, path := range paths {
		val, ok := descend(payload, path)
		if !ok {
			continue
		}
		if s, ok := stringify(val); ok {
			return s, true
		}
	}
	return "", false
}

// firstNumber returns the first candidate path resolving to a number or a
// parseable numeric string.
func firstNumber(payload any, paths []Path) (float64, bool) {
	for _, path := range paths {
		val, ok := descend(payload, path)
		if !ok {
			continue
		}
		switch v := val.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// ExtractEventID returns the provider-supplied idempotency key, if any.
func ExtractEventID(payload any) (string, bool) {
	return firstString(payload, eventIDPaths)
}

// ExtractRequestRef returns the application's own transaction reference.
func ExtractRequestRef(payload any) (string, bool) {
	return firstString(payload, requestRefPaths)
}

// ExtractProviderRef returns the provider's transaction identifier.
func ExtractProviderRef(payload any) (string, bool) {
	return firstString(payload, providerRefPaths)
}

// ExtractStatus returns the raw provider status string, case preserved.
// Normalization is the status package's job.
func ExtractStatus(payload any) (string, bool) {
	return firstString(payload, statusPaths)
}

// ExtractAmount returns the transaction amount, parsing numeric strings.
func ExtractAmount(payload any) (float64, bool) {
	return firstNumber(payload, amountPaths)
}

// ExtractCurrency returns the currency code, case preserved.
func ExtractCurrency(payload any) (string, bool) {
	return firstString(payload, currencyPaths)
}
