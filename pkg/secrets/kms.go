package secrets

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// KMSClient is the slice of the key service API the encryptor needs.
// Narrow on purpose so tests can substitute a fake.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// NewKMSClient builds a key service client for a region using the
// ambient credential chain.
func NewKMSClient(ctx context.Context, region string) (KMSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return kms.NewFromConfig(cfg), nil
}

// permission denied is terminal: retrying cannot change an
// authorization decision. Decrypting under the wrong master key fails
// the same way, the service will never accept the ciphertext under
// this key. Everything else coming back from the service is treated as
// transient.
func isPermissionDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDeniedException", "UnauthorizedOperation", "InvalidGrantTokenException", "DisabledException",
		"IncorrectKeyException", "InvalidCiphertextException", "InvalidKeyUsageException":
		return true
	}
	return false
}
