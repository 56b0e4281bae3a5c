package pwhash

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	encoded, err := Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !Verify(encoded, "correct-horse-battery") {
		t.Fatal("Verify rejected the password it was hashed from")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	encoded, err := Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if Verify(encoded, "wrong-password") {
		t.Fatal("Verify accepted the wrong password")
	}
}

func TestHashProducesUniqueSalts(t *testing.T) {
	a, err := Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password produced identical output (no fresh salt)")
	}
}

func TestVerifyRejectsMalformedEncodings(t *testing.T) {
	cases := []string{
		"",
		"not-an-argon2-string",
		"argon2id$v=19$m=65536,t=3,p=4$onlyonefield",
		"bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"argon2id$v=19$m=0,t=3,p=4$c2FsdA$aGFzaA",
		"argon2id$v=19$x=65536,t=3,p=4$c2FsdA$aGFzaA",
		"argon2id$v=19$m=65536,t=3,p=4$not-base64!!$aGFzaA",
	}
	for _, encoded := range cases {
		if Verify(encoded, "anything") {
			t.Fatalf("Verify accepted malformed encoding %q", encoded)
		}
	}
}
