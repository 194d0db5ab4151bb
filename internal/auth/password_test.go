package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyArgon2id(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("verify round-trip failed: %v", err)
	}
	if err := VerifyPassword(hash, "wrong password"); err == nil {
		t.Fatal("wrong password should not verify")
	}
}

func TestVerifyLegacyBcryptHash(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("hunter2!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := VerifyPassword(string(legacy), "hunter2!"); err != nil {
		t.Fatalf("legacy bcrypt hash should verify: %v", err)
	}
	if err := VerifyPassword(string(legacy), "hunter3!"); err == nil {
		t.Fatal("wrong password should not verify against bcrypt hash")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	if err := VerifyPassword("", "anything"); err == nil {
		t.Fatal("empty hash must not verify")
	}
	if err := VerifyPassword("$argon2id$garbage", "anything"); err == nil {
		t.Fatal("malformed argon2id hash must not verify")
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("empty password must not hash")
	}
}
