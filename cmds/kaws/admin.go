package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/kawsproject/kaws/pkg/admin"
	"github.com/kawsproject/kaws/pkg/cluster"
	"github.com/kawsproject/kaws/pkg/utils"
)

var adminCommand = cli.Command{
	Name:  "admin",
	Usage: "commands for managing cluster administrators",
	Subcommands: []*cli.Command{
		&adminCreateCommand,
		&adminSignCommand,
		&adminInstallCommand,
	},
}

func adminManager(c *cli.Context, clusterName string) (*admin.Manager, *cluster.Spec, error) {
	repo := cluster.NewRepository(".")
	spec, err := repo.LoadSpec(clusterName)
	if err != nil {
		return nil, nil, err
	}

	kmsKey := c.String("kms-key")
	if kmsKey == "" {
		kmsKey = spec.KMSKeyID
	}

	encryptor, err := newEncryptor(c.Context, spec.Region, kmsKey)
	if err != nil {
		return nil, nil, err
	}

	return admin.NewManager(repo, encryptor), spec, nil
}

var adminCreateCommand = cli.Command{
	Name:      "create",
	Usage:     "generates a private key and certificate signing request for a new administrator",
	ArgsUsage: "CLUSTER NAME",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "kms-key",
			Aliases: []string{"k"},
			Usage:   "KMS customer master key ID, defaults to the one recorded at init",
		},
	},
	Action: func(c *cli.Context) error {
		clusterName, name := c.Args().Get(0), c.Args().Get(1)
		if clusterName == "" || name == "" {
			return errors.New("cluster and administrator name are required")
		}

		ctx, cancel := utils.WithSignal(c.Context)
		defer cancel()

		manager, _, err := adminManager(c, clusterName)
		if err != nil {
			return err
		}

		return manager.Create(ctx, clusterName, name)
	},
}

var adminSignCommand = cli.Command{
	Name:      "sign",
	Usage:     "signs an administrator's certificate signing request, creating a new client certificate",
	ArgsUsage: "CLUSTER NAME",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "kms-key",
			Aliases: []string{"k"},
			Usage:   "KMS customer master key ID, defaults to the one recorded at init",
		},
	},
	Action: func(c *cli.Context) error {
		clusterName, name := c.Args().Get(0), c.Args().Get(1)
		if clusterName == "" || name == "" {
			return errors.New("cluster and administrator name are required")
		}

		ctx, cancel := utils.WithSignal(c.Context)
		defer cancel()

		manager, _, err := adminManager(c, clusterName)
		if err != nil {
			return err
		}

		return manager.Sign(ctx, clusterName, name)
	},
}

var adminInstallCommand = cli.Command{
	Name:      "install",
	Usage:     "writes a kubeconfig for a cluster and administrator",
	ArgsUsage: "CLUSTER NAME",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "kms-key",
			Aliases: []string{"k"},
			Usage:   "KMS customer master key ID, defaults to the one recorded at init",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "where to write the kubeconfig, defaults to ~/.kube/config",
		},
	},
	Action: func(c *cli.Context) error {
		clusterName, name := c.Args().Get(0), c.Args().Get(1)
		if clusterName == "" || name == "" {
			return errors.New("cluster and administrator name are required")
		}

		ctx, cancel := utils.WithSignal(c.Context)
		defer cancel()

		manager, spec, err := adminManager(c, clusterName)
		if err != nil {
			return err
		}

		path := c.String("path")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return errors.Wrap(err, "failed to locate home directory")
			}
			path = filepath.Join(home, ".kube", "config")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return errors.Wrap(err, "failed to create kubeconfig directory")
		}

		return manager.Install(ctx, clusterName, name, spec.Domain, path)
	},
}
