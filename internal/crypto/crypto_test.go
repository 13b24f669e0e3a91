package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("GenerateKey() returned key of length %d, want %d", len(key), KeySize)
	}

	// Verify keys are random (generate two and compare)
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() second call error = %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"json_store", []byte(`{"gmail":{"oauth_token":{"value":"abc123"}}}`)},
		{"long", bytes.Repeat([]byte("x"), 10000)},
		{"binary", []byte{0x00, 0xFF, 0x00, 0xFF, 0xDE, 0xAD, 0xBE, 0xEF}},
		{"null_bytes", []byte("hello\x00world\x00")},
	}

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := Encrypt(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			minLen := len(tt.plaintext) + NonceSize + TagSize
			if len(ciphertext) < minLen {
				t.Errorf("Encrypt() ciphertext too short: got %d, want >= %d", len(ciphertext), minLen)
			}

			plaintext, err := Decrypt(key, ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plaintext, tt.plaintext) {
				t.Errorf("Decrypt() = %q, want %q", plaintext, tt.plaintext)
			}
		})
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()

	ciphertext, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt(other, ciphertext); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with wrong key error = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	key, _ := GenerateKey()

	ciphertext, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0x01

	if _, err := Decrypt(key, ciphertext); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with tampered ciphertext error = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	key, _ := GenerateKey()
	if _, err := Decrypt(key, []byte("short")); err != ErrInvalidCiphertext {
		t.Errorf("Decrypt() error = %v, want ErrInvalidCiphertext", err)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	k1, err := DeriveKey([]byte("passphrase"), salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	k2, err := DeriveKey([]byte("passphrase"), salt)
	if err != nil {
		t.Fatalf("DeriveKey() second call error = %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey() is not deterministic for the same passphrase and salt")
	}

	k3, err := DeriveKey([]byte("other"), salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if bytes.Equal(k1, k3) {
		t.Error("DeriveKey() returned identical keys for different passphrases")
	}
}

func TestDeriveKey_BadSalt(t *testing.T) {
	if _, err := DeriveKey([]byte("passphrase"), []byte("too-short")); err != ErrInvalidSaltSize {
		t.Errorf("DeriveKey() error = %v, want ErrInvalidSaltSize", err)
	}
}

func TestChainHMAC(t *testing.T) {
	key, _ := GenerateKey()

	first := ChainHMAC(key, nil, []byte("event-1"))
	second := ChainHMAC(key, first, []byte("event-2"))

	if !VerifyChainHMAC(key, nil, []byte("event-1"), first) {
		t.Error("VerifyChainHMAC() rejected a valid first link")
	}
	if !VerifyChainHMAC(key, first, []byte("event-2"), second) {
		t.Error("VerifyChainHMAC() rejected a valid second link")
	}
	if VerifyChainHMAC(key, first, []byte("event-2-tampered"), second) {
		t.Error("VerifyChainHMAC() accepted a tampered payload")
	}
	if VerifyChainHMAC(key, nil, []byte("event-2"), second) {
		t.Error("VerifyChainHMAC() accepted a broken chain link")
	}
}

func TestZeroBytes(t *testing.T) {
	b := []byte("sensitive")
	ZeroBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("ZeroBytes() left non-zero byte at index %d", i)
		}
	}
}
