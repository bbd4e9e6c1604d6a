package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/kawsproject/kaws/pkg/cluster"
)

var initCommand = cli.Command{
	Name:      "init",
	Usage:     "initializes a new repository for managing Kubernetes clusters",
	ArgsUsage: "NAME",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "terraform-source",
			Aliases: []string{"t"},
			Usage:   "custom source value for the Terraform module to use",
		},
	},
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return errors.New("repository name is required, e.g. \"example-company-infrastructure\"")
		}

		if err := cluster.Scaffold(name, c.String("terraform-source")); err != nil {
			return err
		}

		log.Info().Str("repository", name).Msg("new repository created")
		return nil
	},
}
