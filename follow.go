package main

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/sitepub/sitepub/activitypub"
	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/internal/webfinger"
)

type FollowCmd struct {
	Config string `required:"" help:"path to the site configuration file"`
	DSN    string `required:"" help:"data source name"`
	Object string `arg:"" help:"actor to follow, as a URL or a user@host handle"`
}

func (f *FollowCmd) Run(ctx *Context) error {
	site, err := config.Load(f.Config)
	if err != nil {
		return err
	}

	db, err := gorm.Open(newDialector(f.DSN), &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}

	target := f.Object
	if !strings.Contains(target, "://") {
		acct, err := webfinger.Parse(target)
		if err != nil {
			return err
		}
		wf, err := acct.Fetch(context.Background())
		if err != nil {
			return err
		}
		target, err = wf.ActivityPub()
		if err != nil {
			return err
		}
	}

	return activitypub.SendFollow(context.Background(), db, site, target)
}
