package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/kawsproject/kaws/pkg/bootstrap"
	"github.com/kawsproject/kaws/pkg/cluster"
	"github.com/kawsproject/kaws/pkg/utils"
)

var clusterCommand = cli.Command{
	Name:  "cluster",
	Usage: "commands for managing a cluster's infrastructure",
	Subcommands: []*cli.Command{
		&clusterInitCommand,
		&clusterGenPKICommand,
		&clusterReencryptCommand,
	},
}

var clusterInitCommand = cli.Command{
	Name:      "init",
	Usage:     "initializes all the configuration files for a new cluster",
	ArgsUsage: "CLUSTER",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "domain",
			Aliases:  []string{"d"},
			Usage:    "the base domain name for the cluster, e.g. \"example.com\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "kms-key",
			Aliases:  []string{"k"},
			Usage:    "KMS customer master key ID, e.g. \"12345678-1234-1234-1234-123456789012\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "region",
			Usage:    "the AWS region where the cluster will live, e.g. \"us-east-1\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "account-id",
			Usage: "the AWS account ID, resolved from the caller identity when omitted",
		},
		&cli.StringFlag{
			Name:     "ami",
			Aliases:  []string{"a"},
			Usage:    "EC2 AMI ID to use for all CoreOS instances, e.g. \"ami-1234\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "instance-size",
			Aliases:  []string{"s"},
			Usage:    "EC2 instance size to use for all instances, e.g. \"m3.medium\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "ssh-key",
			Aliases:  []string{"K"},
			Usage:    "name of the SSH key in AWS for accessing EC2 instances, e.g. \"alice\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "kubernetes-version",
			Aliases:  []string{"v"},
			Usage:    "version of Kubernetes to use, e.g. \"1.0.0\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "zone-id",
			Aliases:  []string{"z"},
			Usage:    "Route 53 hosted zone ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "availability-zone",
			Usage: "availability zone for the etcd nodes",
		},
		&cli.StringSliceFlag{
			Name:  "etcd-ip",
			Usage: "static private IP of an etcd node, must be given three times",
			Value: cli.NewStringSlice("10.0.1.4", "10.0.1.5", "10.0.1.6"),
		},
		&cli.StringSliceFlag{
			Name:  "iam-user",
			Usage: "IAM user granted decrypt permission on the cluster keys, may repeat",
		},
		&cli.IntFlag{
			Name:  "masters-min",
			Usage: "minimum number of instances the masters may autoscale to",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "masters-max",
			Usage: "maximum number of instances the masters may autoscale to",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "nodes-min",
			Usage: "minimum number of instances the nodes may autoscale to",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "nodes-max",
			Usage: "maximum number of instances the nodes may autoscale to",
			Value: 10,
		},
	},
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return errors.New("cluster name is required, e.g. \"production\"")
		}

		ctx, cancel := utils.WithSignal(c.Context)
		defer cancel()

		region := c.String("region")

		accountID := c.String("account-id")
		if accountID == "" {
			var err error
			if accountID, err = resolveAccountID(ctx, region); err != nil {
				return err
			}
			log.Info().Str("account", accountID).Msg("resolved account from caller identity")
		}

		spec := &cluster.Spec{
			Cluster:           name,
			AccountID:         accountID,
			Region:            region,
			Domain:            c.String("domain"),
			ZoneID:            c.String("zone-id"),
			AMI:               c.String("ami"),
			InstanceSize:      c.String("instance-size"),
			EtcdZone:          c.String("availability-zone"),
			EtcdIPs:           c.StringSlice("etcd-ip"),
			MastersMin:        c.Int("masters-min"),
			MastersMax:        c.Int("masters-max"),
			NodesMin:          c.Int("nodes-min"),
			NodesMax:          c.Int("nodes-max"),
			IAMUsers:          c.StringSlice("iam-user"),
			KMSKeyID:          c.String("kms-key"),
			SSHKey:            c.String("ssh-key"),
			KubernetesVersion: c.String("kubernetes-version"),
		}
		if spec.EtcdZone == "" {
			spec.EtcdZone = region + "a"
		}

		encryptor, err := newEncryptor(ctx, region, spec.KMSKeyID)
		if err != nil {
			return err
		}
		publisher, err := newPublisher(ctx, region)
		if err != nil {
			return err
		}

		engine := bootstrap.New(bootstrap.EngineOps{
			Repository: cluster.NewRepository("."),
			Encryptor:  encryptor,
			Publisher:  publisher,
		})

		if err := engine.Init(ctx, spec); err != nil {
			return err
		}

		log.Info().Str("cluster", name).Msg("cluster initialized")
		return nil
	},
}

var clusterGenPKICommand = cli.Command{
	Name:      "genpki",
	Usage:     "generates the certificate authority and certificates for a cluster",
	ArgsUsage: "CLUSTER",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "kms-key",
			Aliases: []string{"k"},
			Usage:   "KMS customer master key ID, defaults to the one recorded at init",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "the AWS region of the master key, defaults to the one recorded at init",
		},
	},
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return errors.New("cluster name is required")
		}

		ctx, cancel := utils.WithSignal(c.Context)
		defer cancel()

		repo := cluster.NewRepository(".")
		spec, err := repo.LoadSpec(name)
		if err != nil {
			return err
		}
		if key := c.String("kms-key"); key != "" {
			spec.KMSKeyID = key
		}
		if region := c.String("region"); region != "" {
			spec.Region = region
		}

		encryptor, err := newEncryptor(ctx, spec.Region, spec.KMSKeyID)
		if err != nil {
			return err
		}

		engine := bootstrap.New(bootstrap.EngineOps{
			Repository: repo,
			Encryptor:  encryptor,
		})

		if err := engine.GenPKI(ctx, spec); err != nil {
			return err
		}

		log.Info().Str("cluster", name).Msg("PKI generated")
		return nil
	},
}

var clusterReencryptCommand = cli.Command{
	Name:      "reencrypt",
	Usage:     "re-encrypts the cluster's SSL keys using a new AWS KMS customer master key",
	ArgsUsage: "CLUSTER",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "current-key",
			Usage:    "current KMS customer master key ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "new-key",
			Usage:    "new KMS customer master key ID",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return errors.New("cluster name is required")
		}

		ctx, cancel := utils.WithSignal(c.Context)
		defer cancel()

		repo := cluster.NewRepository(".")
		spec, err := repo.LoadSpec(name)
		if err != nil {
			return err
		}

		current, err := newEncryptor(ctx, spec.Region, c.String("current-key"))
		if err != nil {
			return err
		}
		next, err := newEncryptor(ctx, spec.Region, c.String("new-key"))
		if err != nil {
			return err
		}

		engine := bootstrap.New(bootstrap.EngineOps{Repository: repo})
		if err := engine.Reencrypt(ctx, name, current, next); err != nil {
			return err
		}

		spec.KMSKeyID = c.String("new-key")
		if err := repo.SaveSpec(spec); err != nil {
			return err
		}

		log.Info().Str("cluster", name).Msg("keys re-encrypted")
		return nil
	},
}
