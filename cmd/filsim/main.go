package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("main")

const flagRepo = "repo"

func main() {
	logging.SetAllLoggers(logging.LevelInfo)

	app := &cli.App{
		Name:    "filsim",
		Usage:   "Filecoin protocol simulator for local testing",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagRepo,
				EnvVars: []string{"FILSIM_PATH"},
				Value:   "~/.filsim",
				Usage:   "specify simulator repo path",
			},
		},
		Commands: []*cli.Command{
			daemonCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
