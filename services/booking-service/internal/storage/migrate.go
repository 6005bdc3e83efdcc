package storage

import (
	"context"
	_ "embed"

	"github.com/m-oliynyk/salonhub/libs/db"
)

//go:embed schema.sql
var schema string

func Migrate(ctx context.Context, pool *db.Pool) error {
	return db.Migrate(ctx, pool, schema)
}
