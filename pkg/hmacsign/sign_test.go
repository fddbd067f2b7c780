package hmacsign

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := map[string]any{"thread_id": "abc", "items": []any{"x", "y"}}
	sig, err := Sign("secret", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify("secret", payload, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := map[string]any{"thread_id": "abc"}
	sig, err := Sign("secret", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := map[string]any{"thread_id": "abd"}
	ok, err := Verify("secret", tampered, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	payload := map[string]any{"thread_id": "abc"}
	sig, err := Sign("secret", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := []byte(sig)
	tampered[0] ^= 0xFF
	ok, err := Verify("secret", payload, string(tampered))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected mutated signature to fail verification")
	}
}

func TestSignIsOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}
	sigA, _ := Sign("secret", a)
	sigB, _ := Sign("secret", b)
	if sigA != sigB {
		t.Fatalf("expected key order to not affect signature")
	}
}
