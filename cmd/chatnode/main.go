package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	configFlag := &cli.PathFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file path", EnvVars: []string{"CHATNODE_CONFIG"}}
	nameFlag := &cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "login name", Required: true}

	app := &cli.App{
		Name:  "chatnode",
		Usage: "chat services over node-rpc",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "host the chat services",
				Action: func(c *cli.Context) error { return serve(c.Path("config")) },
			},
			{
				Name:  "login",
				Usage: "log in once and print the result",
				Flags: []cli.Flag{nameFlag},
				Action: func(c *cli.Context) error {
					return withClient(c.Path("config"), c.String("name"), func(s *chatSession) error { return s.login(c.String("name")) })
				},
			},
			{
				Name:  "rooms",
				Usage: "list the rooms",
				Action: func(c *cli.Context) error {
					return withClient(c.Path("config"), "", func(s *chatSession) error { return s.rooms() })
				},
			},
			{
				Name:  "join",
				Usage: "join (or create) a room and chat from stdin",
				Flags: []cli.Flag{
					nameFlag,
					&cli.StringFlag{Name: "room", Aliases: []string{"r"}, Usage: "room name", Value: "general"},
				},
				Action: func(c *cli.Context) error {
					return withClient(c.Path("config"), c.String("name"), func(s *chatSession) error {
						return s.join(c.String("name"), c.String("room"), os.Stdin)
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
