package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"api_key", "sk-live-123",
		"case_id", "c-1",
		"customer_name", "ACME",
		"auth", "Bearer abc",
	})
	if len(out) != 8 {
		t.Fatalf("len=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api_key not redacted: %v", out[1])
	}
	if out[3] != "c-1" {
		t.Fatalf("case_id changed: %v", out[3])
	}
	s, _ := out[5].(string)
	if len(s) != len("hash:")+12 || s[:5] != "hash:" {
		t.Fatalf("customer_name not hashed: %v", out[5])
	}
	if out[7] != "[REDACTED]" {
		t.Fatalf("bearer value not redacted: %v", out[7])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"stage", "extract", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected %v", out)
	}
}

func TestSanitizeNestedMap(t *testing.T) {
	v := sanitizeValue("payload", map[string]interface{}{"password": "x", "qty": 2})
	m := v.(map[string]interface{})
	if m["password"] != "[REDACTED]" || m["qty"] != 2 {
		t.Fatalf("unexpected %v", m)
	}
}
