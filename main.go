package main

import (
	"github.com/alecthomas/kong"
	"gorm.io/gorm"

	_ "github.com/go-sql-driver/mysql"
)

type Context struct {
	Debug bool

	gorm.Config
}

var cli struct {
	Debug bool `help:"Enable debug mode."`

	Serve   ServeCmd   `cmd:"" help:"Serve the federation endpoints."`
	Init    InitCmd    `cmd:"" help:"Create the database schema and the local actor."`
	Follow  FollowCmd  `cmd:"" help:"Follow a remote actor."`
	Deliver DeliverCmd `cmd:"" help:"Deliver undelivered entries to followers, then exit."`
}

func main() {
	ctx := kong.Parse(&cli)
	err := ctx.Run(&Context{Debug: cli.Debug})
	ctx.FatalIfErrorf(err)
}
