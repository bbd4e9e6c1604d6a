package bootstrap

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawsproject/kaws/pkg/pki"
	"github.com/kawsproject/kaws/pkg/secrets"
)

func TestReencrypt(t *testing.T) {
	engine, repo, current, _ := testEngine(t)

	require.NoError(t, engine.GenPKI(context.Background(), testSpec()))

	paths, err := repo.EncryptedKeys("staging")
	require.NoError(t, err)
	require.Len(t, paths, 8)

	next := secrets.NewEncryptor(&fakeKMS{keyID: "alias/kaws-next"}, "alias/kaws-next", testPolicy())

	require.NoError(t, engine.Reencrypt(context.Background(), "staging", current, next))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		secret, err := secrets.DecodeSecret(data)
		require.NoError(t, err)
		assert.Equal(t, "alias/kaws-next", secret.KMSKeyID)

		// the old master key can no longer open the envelope, and the
		// rejection is terminal
		_, err = current.Unwrap(context.Background(), secret)
		require.ErrorIs(t, err, secrets.ErrPermissionDenied)

		keyPEM, err := next.Unwrap(context.Background(), secret)
		require.NoError(t, err)
		_, err = pki.ParsePrivateKey(keyPEM)
		require.NoError(t, err)
	}
}

func TestReencryptEmptyCluster(t *testing.T) {
	engine, _, current, _ := testEngine(t)
	next := secrets.NewEncryptor(&fakeKMS{keyID: "alias/kaws-next"}, "alias/kaws-next", testPolicy())

	err := engine.Reencrypt(context.Background(), "staging", current, next)
	require.Error(t, err)
}
