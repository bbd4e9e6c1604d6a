// Package secrets protects private keys with envelope encryption: a
// fresh data key from the remote key service encrypts the payload
// locally, the service encrypted copy of the data key is stored next to
// the ciphertext. Only identities holding decrypt permission on the
// customer master key can ever recover the payload.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"

	"github.com/kawsproject/kaws/pkg/retry"
)

var (
	// ErrKeyServiceUnavailable is returned when the key service cannot
	// be reached after exhausting retries
	ErrKeyServiceUnavailable = errors.New("key service unavailable")
	// ErrPermissionDenied is returned when the caller's identity lacks
	// encrypt or decrypt permission on the customer master key
	ErrPermissionDenied = errors.New("key service permission denied")
	// ErrAuthenticationTag is returned when the ciphertext fails
	// authentication, which means corruption or tampering
	ErrAuthenticationTag = errors.New("authentication tag mismatch")
)

const secretVersion = 1

// Secret is an envelope encrypted payload as stored on disk
type Secret struct {
	Version          int    `json:"version"`
	KMSKeyID         string `json:"kms_key_id"`
	EncryptedDataKey []byte `json:"encrypted_data_key"`
	Nonce            []byte `json:"nonce"`
	Ciphertext       []byte `json:"ciphertext"`
}

// Encode serializes the secret for storage
func (s *Secret) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode secret")
	}
	return append(data, '\n'), nil
}

// DecodeSecret parses a stored secret
func DecodeSecret(data []byte) (*Secret, error) {
	var s Secret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode secret")
	}
	return &s, nil
}

// Encryptor wraps and unwraps secrets against one customer master key
type Encryptor struct {
	client KMSClient
	keyID  string
	policy retry.Policy
}

// NewEncryptor returns an encryptor for the given master key. The
// retry policy only applies to key service calls, local cipher
// operations never retry.
func NewEncryptor(client KMSClient, keyID string, policy retry.Policy) *Encryptor {
	return &Encryptor{
		client: client,
		keyID:  keyID,
		policy: policy,
	}
}

// Wrap envelope encrypts plaintext. The plaintext data key from the
// service is used once and discarded.
func (e *Encryptor) Wrap(ctx context.Context, plaintext []byte) (*Secret, error) {
	var out *kms.GenerateDataKeyOutput
	err := e.policy.Do(ctx, func() error {
		var err error
		out, err = e.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(e.keyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			if isPermissionDenied(err) {
				return retry.Permanent(errors.Wrap(ErrPermissionDenied, err.Error()))
			}
			return errors.Wrap(ErrKeyServiceUnavailable, err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	defer wipe(out.Plaintext)

	aead, err := newAEAD(out.Plaintext)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	return &Secret{
		Version:          secretVersion,
		KMSKeyID:         e.keyID,
		EncryptedDataKey: out.CiphertextBlob,
		Nonce:            nonce,
		Ciphertext:       aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Unwrap recovers the plaintext of a secret. The service decrypts the
// data key, which is where permission on the master key is enforced;
// the local open verifies the authentication tag.
func (e *Encryptor) Unwrap(ctx context.Context, secret *Secret) ([]byte, error) {
	var out *kms.DecryptOutput
	err := e.policy.Do(ctx, func() error {
		var err error
		out, err = e.client.Decrypt(ctx, &kms.DecryptInput{
			KeyId:          aws.String(e.keyID),
			CiphertextBlob: secret.EncryptedDataKey,
		})
		if err != nil {
			if isPermissionDenied(err) {
				return retry.Permanent(errors.Wrap(ErrPermissionDenied, err.Error()))
			}
			return errors.Wrap(ErrKeyServiceUnavailable, err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	defer wipe(out.Plaintext)

	aead, err := newAEAD(out.Plaintext)
	if err != nil {
		return nil, err
	}

	// Open panics on a wrong sized nonce, a corrupted file must fail
	// like any other integrity violation
	if len(secret.Nonce) != aead.NonceSize() || len(secret.Ciphertext) == 0 {
		return nil, ErrAuthenticationTag
	}

	plaintext, err := aead.Open(nil, secret.Nonce, secret.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationTag
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize AEAD")
	}

	return aead, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
