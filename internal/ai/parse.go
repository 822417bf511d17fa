package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object or array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	if end := strings.LastIndex(s, closer); end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// decodeModelJSON parses cleaned model text keeping numbers as json.Number.
func decodeModelJSON(raw string) (interface{}, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("empty response from model")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return parsed, nil
}

func decodeObject(raw string) (map[string]interface{}, error) {
	parsed, err := decodeModelJSON(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("model output is %T, want object", parsed)
	}
	return obj, nil
}

func decodeArray(raw string) ([]map[string]interface{}, error) {
	parsed, err := decodeModelJSON(raw)
	if err != nil {
		return nil, err
	}
	items, ok := parsed.([]interface{})
	if !ok {
		return nil, fmt.Errorf("model output is %T, want array", parsed)
	}
	result := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want object", i, item)
		}
		result = append(result, obj)
	}
	return result, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	val, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	val = strings.TrimSpace(val)
	if required && val == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return val, nil
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	val, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
	s := strings.TrimSpace(val)
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// getOptionalDecimalField accepts JSON numbers and numeric strings.
func getOptionalDecimalField(m map[string]interface{}, key string) (*decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case float64:
		d = decimal.NewFromFloat(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		d, err = decimal.NewFromString(s)
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid number: %w", key, err)
	}
	return &d, nil
}

func getDecimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	d, err := getOptionalDecimalField(m, key)
	if err != nil {
		return decimal.Zero, err
	}
	if d == nil {
		return decimal.Zero, fmt.Errorf("missing required field %q", key)
	}
	return *d, nil
}

func getOptionalBoolField(m map[string]interface{}, key string) (*bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case bool:
		return &val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true":
			b := true
			return &b, nil
		case "false":
			b := false
			return &b, nil
		}
	}
	return nil, fmt.Errorf("field %q has type %T, want boolean or null", key, v)
}

func transformExtraction(obj map[string]interface{}) (*ExtractedExpense, error) {
	vendor, err := getOptionalStringField(obj, "vendorName")
	if err != nil {
		return nil, err
	}
	amount, err := getOptionalDecimalField(obj, "amount")
	if err != nil {
		return nil, err
	}
	currency, err := getOptionalStringField(obj, "currency")
	if err != nil {
		return nil, err
	}
	date, err := getOptionalStringField(obj, "date")
	if err != nil {
		return nil, err
	}
	category, err := getOptionalStringField(obj, "category")
	if err != nil {
		return nil, err
	}
	return &ExtractedExpense{
		VendorName: vendor,
		Amount:     amount,
		Currency:   currency,
		Date:       date,
		Category:   category,
	}, nil
}

func transformFindings(items []map[string]interface{}) ([]SavingsFinding, error) {
	result := make([]SavingsFinding, 0, len(items))
	for i, obj := range items {
		vendor, err := getStringField(obj, "vendorName", true)
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		reason, err := getStringField(obj, "reason", false)
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		saving, err := getDecimalField(obj, "estimatedSaving")
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		action, err := getStringField(obj, "action", false)
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		result = append(result, SavingsFinding{
			VendorName:      vendor,
			Reason:          reason,
			EstimatedSaving: saving,
			Action:          action,
		})
	}
	return result, nil
}

func transformCandidates(items []map[string]interface{}) ([]SubscriptionCandidate, error) {
	result := make([]SubscriptionCandidate, 0, len(items))
	for i, obj := range items {
		vendor, err := getOptionalStringField(obj, "vendorName")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		cost, err := getOptionalDecimalField(obj, "monthlyCost")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		renewal, err := getOptionalStringField(obj, "renewalDate")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		flagged, err := getOptionalBoolField(obj, "isFlagged")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		reason, err := getOptionalStringField(obj, "reason")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		result = append(result, SubscriptionCandidate{
			VendorName:  vendor,
			MonthlyCost: cost,
			RenewalDate: renewal,
			Flagged:     flagged,
			Reason:      reason,
		})
	}
	return result, nil
}
