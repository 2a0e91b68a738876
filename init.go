package main

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/models"
)

type InitCmd struct {
	Config string `required:"" help:"path to the site configuration file"`
	DSN    string `required:"" help:"data source name"`
}

func (i *InitCmd) Run(ctx *Context) error {
	site, err := config.Load(i.Config)
	if err != nil {
		return err
	}

	db, err := gorm.Open(newDialector(i.DSN), &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		return err
	}

	actors := models.NewActors(db)
	if local, err := actors.Local(); err == nil {
		fmt.Println("local actor already exists:", local.URI)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	local, err := actors.CreateLocal(site.ActorURI(), site.Username, site.Domain, site.DisplayName, site.Summary)
	if err != nil {
		return err
	}
	fmt.Println("created local actor:", local.URI)
	return nil
}
