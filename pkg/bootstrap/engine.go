// Package bootstrap drives cluster initialization as a single pass
// state machine: validate the spec, create the authority, issue every
// certificate, persist the PKI, render the boot documents and publish
// them. The first fatal error halts the run; artifacts already placed
// stay on disk and a later run either resumes (genpki against a fresh
// directory) or refuses to touch an existing authority.
package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kawsproject/kaws/pkg/cloudconfig"
	"github.com/kawsproject/kaws/pkg/cluster"
	"github.com/kawsproject/kaws/pkg/pki"
	"github.com/kawsproject/kaws/pkg/publish"
	"github.com/kawsproject/kaws/pkg/secrets"
)

// Stage identifies where in the pipeline a failure happened. Every
// fatal error names its cluster, role and stage so an operator can fix
// the cause and resume.
type Stage string

// Pipeline stages in execution order
const (
	StageValidateSpec      Stage = "validate-spec"
	StageCreateAuthority   Stage = "create-authority"
	StageIssueCertificates Stage = "issue-certificates"
	StagePersistPKI        Stage = "persist-pki"
	StageRenderConfigs     Stage = "render-configs"
	StagePublishConfigs    Stage = "publish-configs"
)

// defaultWorkers bounds concurrent key service and object store calls
// to respect service rate limits.
const defaultWorkers = 4

// EngineOps configures the engine
type EngineOps struct {
	Repository *cluster.Repository
	Encryptor  *secrets.Encryptor
	Publisher  *publish.Publisher
	// Workers bounds the concurrency of network bound work, defaults
	// to a small fixed pool
	Workers int
	// LeafValidity overrides the validity window of issued
	// certificates, defaults to pki.DefaultLeafValidity
	LeafValidity time.Duration
}

// Engine orchestrates one cluster initialization run. A cluster
// directory has a single writer: one engine run at a time.
type Engine struct {
	repo      *cluster.Repository
	encryptor *secrets.Encryptor
	publisher *publish.Publisher
	workers   int
	validity  time.Duration
}

// New creates an engine
func New(ops EngineOps) *Engine {
	workers := ops.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{
		repo:      ops.Repository,
		encryptor: ops.Encryptor,
		publisher: ops.Publisher,
		workers:   workers,
		validity:  ops.LeafValidity,
	}
}

// material is the in-memory PKI of one run, keyed by certificate name
// (role strings plus administrator identities).
type material struct {
	mu     sync.Mutex
	caCert []byte
	caKey  *secrets.Secret
	certs  map[string][]byte
	keys   map[string][]byte
}

func (m *material) add(name string, cert []byte, key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs[name] = cert
	m.keys[name] = key
}

func (e *Engine) fail(stage Stage, clusterName string, err error) error {
	return errors.Wrapf(err, "stage %s failed for cluster %q", stage, clusterName)
}

// Init runs the full pipeline for a new cluster
func (e *Engine) Init(ctx context.Context, spec *cluster.Spec) error {
	log.Info().Str("cluster", spec.Cluster).Str("stage", string(StageValidateSpec)).Msg("validating cluster spec")
	if err := spec.Validate(); err != nil {
		return e.fail(StageValidateSpec, spec.Cluster, err)
	}
	if e.repo.Initialized(spec.Cluster) {
		return e.fail(StageValidateSpec, spec.Cluster, cluster.ErrAlreadyInitialized)
	}

	if err := e.repo.SaveSpec(spec); err != nil {
		return e.fail(StageValidateSpec, spec.Cluster, err)
	}
	if err := e.repo.SaveVars(spec); err != nil {
		return e.fail(StageValidateSpec, spec.Cluster, err)
	}

	mat, err := e.generatePKI(ctx, spec)
	if err != nil {
		return err
	}

	docs, err := e.renderConfigs(spec, mat)
	if err != nil {
		return err
	}

	return e.publishConfigs(ctx, spec, docs)
}

// GenPKI creates the authority and every certificate without touching
// the boot documents. Reusable in isolation, the provisioning layer
// invokes it during apply.
func (e *Engine) GenPKI(ctx context.Context, spec *cluster.Spec) error {
	if err := spec.Validate(); err != nil {
		return e.fail(StageValidateSpec, spec.Cluster, err)
	}
	if e.repo.Initialized(spec.Cluster) {
		return e.fail(StageValidateSpec, spec.Cluster, cluster.ErrAlreadyInitialized)
	}

	_, err := e.generatePKI(ctx, spec)
	return err
}

// generatePKI runs the CreateAuthority, IssueCertificates and
// PersistPKI stages. The authority key exists in memory only within
// this call: it is encrypted, written, and dropped.
func (e *Engine) generatePKI(ctx context.Context, spec *cluster.Spec) (*material, error) {
	log.Info().Str("cluster", spec.Cluster).Str("stage", string(StageCreateAuthority)).Msg("creating certificate authority")

	authority, err := pki.CreateAuthority(spec.Cluster)
	if err != nil {
		return nil, e.fail(StageCreateAuthority, spec.Cluster, err)
	}

	caKey, err := e.encryptor.Wrap(ctx, authority.Key().Bytes())
	if err != nil {
		return nil, e.fail(StageCreateAuthority, spec.Cluster, err)
	}

	mat := &material{
		caCert: authority.Certificate().Bytes(),
		caKey:  caKey,
		certs:  make(map[string][]byte),
		keys:   make(map[string][]byte),
	}

	// issuance for independent roles only shares the authority, which
	// is read only past this point; key service calls run under a
	// bounded pool
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)

	issue := func(name string, req pki.Request) {
		group.Go(func() error {
			log.Info().
				Str("cluster", spec.Cluster).
				Str("role", name).
				Str("stage", string(StageIssueCertificates)).
				Msg("issuing certificate")

			cert, key, err := authority.Issue(req)
			if err != nil {
				return errors.Wrapf(err, "role %q", name)
			}

			secret, err := e.encryptor.Wrap(groupCtx, key.Bytes())
			if err != nil {
				return errors.Wrapf(err, "role %q", name)
			}
			encoded, err := secret.Encode()
			if err != nil {
				return errors.Wrapf(err, "role %q", name)
			}

			mat.add(name, cert.Bytes(), encoded)
			return nil
		})
	}

	for _, role := range cluster.Roles() {
		issue(string(role), certificateRequest(spec, role, e.validity))
	}
	for _, admin := range spec.IAMUsers {
		issue(admin, adminRequest(spec, admin, e.validity))
	}

	if err := group.Wait(); err != nil {
		return nil, e.fail(StageIssueCertificates, spec.Cluster, err)
	}

	if err := e.persistPKI(spec, mat); err != nil {
		return nil, e.fail(StagePersistPKI, spec.Cluster, err)
	}

	return mat, nil
}

// persistPKI writes the whole PKI to the cluster directory. Every file
// is placed atomically so an aborted run never leaves a half written
// certificate or key.
func (e *Engine) persistPKI(spec *cluster.Spec, mat *material) error {
	log.Info().Str("cluster", spec.Cluster).Str("stage", string(StagePersistPKI)).Msg("writing PKI to disk")

	if err := e.repo.MkPKIDir(spec.Cluster); err != nil {
		return err
	}

	encodedCAKey, err := mat.caKey.Encode()
	if err != nil {
		return err
	}
	if err := cluster.WriteFileAtomic(e.repo.CertPath(spec.Cluster, "ca"), mat.caCert, 0644); err != nil {
		return err
	}
	if err := cluster.WriteFileAtomic(e.repo.KeyPath(spec.Cluster, "ca"), encodedCAKey, 0600); err != nil {
		return err
	}

	for name, cert := range mat.certs {
		if err := cluster.WriteFileAtomic(e.repo.CertPath(spec.Cluster, name), cert, 0644); err != nil {
			return err
		}
		if err := cluster.WriteFileAtomic(e.repo.KeyPath(spec.Cluster, name), mat.keys[name], 0600); err != nil {
			return err
		}
	}

	return nil
}

// renderConfigs produces one boot document per role
func (e *Engine) renderConfigs(spec *cluster.Spec, mat *material) (map[cluster.Role][]byte, error) {
	log.Info().Str("cluster", spec.Cluster).Str("stage", string(StageRenderConfigs)).Msg("rendering boot documents")

	certs := make(map[cluster.Role][]byte)
	keys := make(map[cluster.Role][]byte)
	for _, role := range cluster.Roles() {
		certs[role] = mat.certs[string(role)]
		keys[role] = mat.keys[string(role)]
	}

	docMaterial := &cloudconfig.Material{
		CACert:        mat.caCert,
		Certs:         certs,
		EncryptedKeys: keys,
	}

	docs := make(map[cluster.Role][]byte)
	for _, role := range cluster.Roles() {
		doc, err := cloudconfig.Render(role, spec, docMaterial)
		if err != nil {
			return nil, e.fail(StageRenderConfigs, spec.Cluster, errors.Wrapf(err, "role %q", role))
		}
		docs[role] = doc
	}

	return docs, nil
}

// publishConfigs uploads every document; uploads of different roles
// are independent and run under the bounded pool.
func (e *Engine) publishConfigs(ctx context.Context, spec *cluster.Spec, docs map[cluster.Role][]byte) error {
	bucket := cluster.BucketName(spec.AccountID, spec.Cluster)
	log.Info().Str("cluster", spec.Cluster).Str("stage", string(StagePublishConfigs)).Str("bucket", bucket).Msg("publishing boot documents")

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)

	for role, doc := range docs {
		role, doc := role, doc
		group.Go(func() error {
			key := cluster.ObjectKey(role)
			if err := e.publisher.Publish(groupCtx, bucket, key, doc); err != nil {
				return errors.Wrapf(err, "role %q", role)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return e.fail(StagePublishConfigs, spec.Cluster, err)
	}

	return nil
}
