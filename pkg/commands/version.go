package commands

import (
	"fmt"

	"github.com/localdns/localdns/pkg/version"
	"github.com/urfave/cli/v2"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the version of this binary",
		Action: func(c *cli.Context) error {
			fmt.Println(version.Get().String())
			return nil
		},
	}
}
