package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var feeds = cli.Command{
	Name:   "feeds",
	Usage:  "list the feeds served by the daemon with their connection state",
	Action: feedsAction,
}

var journal = cli.Command{
	Name:      "journal",
	Usage:     "list the most recent lifecycle events of a feed",
	ArgsUsage: "<type>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "max number of entries",
			Value: 100,
		},
	},
	Action: journalAction,
}

func feedsAction(_ *cli.Context) error {
	resp, err := get("/v1/feeds")
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func journalAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}

	path := fmt.Sprintf("/v1/feeds/%s/journal?limit=%d", ctx.Args().First(), ctx.Int("limit"))
	resp, err := get(path)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}
