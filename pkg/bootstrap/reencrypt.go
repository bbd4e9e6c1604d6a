package bootstrap

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kawsproject/kaws/pkg/cluster"
	"github.com/kawsproject/kaws/pkg/secrets"
)

// Reencrypt rotates every encrypted private key of a cluster to a new
// customer master key. Each file is unwrapped under the current key,
// wrapped again under the new one and atomically replaced, so an
// aborted rotation leaves every key readable under exactly one of the
// two master keys.
func (e *Engine) Reencrypt(ctx context.Context, clusterName string, current, next *secrets.Encryptor) error {
	paths, err := e.repo.EncryptedKeys(clusterName)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.Errorf("cluster %q has no encrypted keys", clusterName)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}

		secret, err := secrets.DecodeSecret(data)
		if err != nil {
			return errors.Wrapf(err, "failed to decode %s", path)
		}

		plaintext, err := current.Unwrap(ctx, secret)
		if err != nil {
			return errors.Wrapf(err, "failed to unwrap %s", path)
		}

		rotated, err := next.Wrap(ctx, plaintext)
		if err != nil {
			return errors.Wrapf(err, "failed to wrap %s", path)
		}

		encoded, err := rotated.Encode()
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s", path)
		}

		if err := cluster.WriteFileAtomic(path, encoded, 0600); err != nil {
			return err
		}

		log.Info().Str("cluster", clusterName).Str("path", path).Msg("key re-encrypted")
	}

	return nil
}
