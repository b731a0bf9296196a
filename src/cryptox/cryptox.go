// Package cryptox implements rowvault's transparent data encryption:
// AES-256-CBC sealed with an HMAC-SHA-256 tag (encrypt-then-MAC), a
// two-tier KEK/DEK key system, and the random identifiers used for
// row ids and write-ahead temp file suffixes.
//
// The cipher composition is AES block cipher, random IV, and
// constant-time tag comparison, assembled into the CBC+HMAC wire
// format §4.2 mandates.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"rowvault/src/rvErrors"
)

const (
	keySize   = 32 // AES-256
	ivSize    = aes.BlockSize
	tagSize   = sha256.Size
	dekSize   = 32
	hkdfInfo  = "rowvault-kek-v1"
	hmacLabel = "rowvault-hmac-v1"
)

// DeriveKEK normalizes a caller-supplied passphrase of arbitrary
// length into the 32-byte key AES-256-CBC requires, via HKDF-SHA256
// in place of a bare hash for proper key-stretching.
func DeriveKEK(passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, nil
	}

	reader := hkdf.New(sha256.New, passphrase, nil, []byte(hkdfInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errors.Wrap(err, "derive kek")
	}
	return key, nil
}

// macKey derives the HMAC signing key from the encryption key so a
// single 32-byte secret can serve both encrypt-then-MAC roles without
// key reuse across primitives.
func macKey(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(hmacLabel))
	return mac.Sum(nil)
}

// Encrypt JSON-serializes value, encrypts it under key with a random
// IV, and returns the base64 encoding of IV||HMAC||ciphertext.
func Encrypt(value any, key []byte) (string, error) {
	if len(key) != keySize {
		return "", errors.Wrap(rvErrors.ErrCryptoFailed, "key must be 32 bytes")
	}

	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, "marshal value for encryption")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "new cipher")
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", errors.Wrap(err, "read iv")
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	tag := hmac.New(sha256.New, macKey(key))
	tag.Write(ciphertext)
	mac := tag.Sum(nil)

	blob := make([]byte, 0, ivSize+tagSize+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, mac...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt: it verifies the HMAC tag in constant time
// before touching the ciphertext, so a forged or corrupted blob never
// reaches the AES decrypter with attacker-controlled bytes treated as
// trustworthy plaintext.
func Decrypt(blob string, key []byte) (any, error) {
	if len(key) != keySize {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "key must be 32 bytes")
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "invalid base64")
	}

	if len(raw) < ivSize+tagSize {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "blob too short")
	}

	iv := raw[:ivSize]
	gotTag := raw[ivSize : ivSize+tagSize]
	ciphertext := raw[ivSize+tagSize:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "malformed ciphertext length")
	}

	tag := hmac.New(sha256.New, macKey(key))
	tag.Write(ciphertext)
	wantTag := tag.Sum(nil)

	if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "hmac mismatch")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "new cipher")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext)
	if err != nil {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "invalid padding")
	}

	var value any
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "invalid plaintext json")
	}

	return value, nil
}

// RandomDEK generates a fresh 32-byte data-encryption key and returns
// it wrapped (encrypted) under kek, ready for storage in table
// metadata.
func RandomDEK(kek []byte) (string, error) {
	dek := make([]byte, dekSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return "", errors.Wrap(err, "generate dek")
	}
	return Encrypt(base64.StdEncoding.EncodeToString(dek), kek)
}

// UnwrapDEK decrypts a wrapped DEK under kek and returns the raw
// 32-byte key ready for use with Encrypt/Decrypt.
func UnwrapDEK(wrapped string, kek []byte) ([]byte, error) {
	value, err := Decrypt(wrapped, kek)
	if err != nil {
		return nil, err
	}

	s, ok := value.(string)
	if !ok {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "wrapped dek has unexpected shape")
	}

	dek, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(rvErrors.ErrCryptoFailed, "wrapped dek not base64")
	}

	return dek, nil
}

// RandomID returns a hex-encoded string of n random bytes, suitable
// for a row id (alphanumeric per §3's identifier invariant).
func RandomID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", errors.Wrap(err, "read random id")
	}
	return hexEncode(buf), nil
}

// RandomSuffix returns a UUID-derived temp-file suffix for
// AtomicWrite's "<path>.wal.<random>" naming, grounded on the
// teacher's helpers.GenerateUUID. Hyphens are stripped so the
// resulting suffix, like row ids, stays alphanumeric.
func RandomSuffix() string {
	id := uuid.New().String()
	out := make([]byte, 0, len(id))
	for _, r := range id {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("invalid padding length")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
