package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"

	"github.com/kawsproject/kaws/pkg/publish"
	"github.com/kawsproject/kaws/pkg/retry"
	"github.com/kawsproject/kaws/pkg/secrets"
)

func newEncryptor(ctx context.Context, region, kmsKeyID string) (*secrets.Encryptor, error) {
	client, err := secrets.NewKMSClient(ctx, region)
	if err != nil {
		return nil, err
	}
	return secrets.NewEncryptor(client, kmsKeyID, retry.Default()), nil
}

func newPublisher(ctx context.Context, region string) (*publish.Publisher, error) {
	client, err := publish.NewS3Client(ctx, region)
	if err != nil {
		return nil, err
	}
	return publish.NewPublisher(client, retry.Default()), nil
}

// resolveAccountID asks the token service who we are when the account
// id was not given on the command line.
func resolveAccountID(ctx context.Context, region string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return "", errors.Wrap(err, "failed to load AWS config")
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve account id")
	}
	if out.Account == nil {
		return "", errors.New("token service returned no account id")
	}

	return *out.Account, nil
}
