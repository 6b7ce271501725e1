package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
)

var (
	addrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "feederd http interface address host:port",
		Value: "localhost:9060",
	}
)

var config = cli.Command{
	Name:   "config",
	Usage:  "Print local configuration of the feeder CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:   "set",
			Usage:  "set a <key> <value> in the local state",
			Action: configSetAction,
		},
		{
			Name:   "init",
			Usage:  "initialize the local state with flags",
			Action: configInitAction,
			Flags: []cli.Flag{
				&addrFlag,
			},
		},
	},
}

func configAction(_ *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}

	for key, value := range state {
		fmt.Println(key + ": " + value)
	}
	return nil
}

func configInitAction(c *cli.Context) error {
	return setState(map[string]string{
		"addr": c.String("addr"),
	})
}

func configSetAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("key and value are missing")
	}

	key := c.Args().Get(0)
	value := c.Args().Get(1)

	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)
	return nil
}
