package database

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

// WithTestDb spins up a dedicated Postgres database for a test, runs the supplied
// schema statements in it and hands the resulting pool to the action callback. The
// database is dropped afterwards. Requires a Postgres instance on localhost:5432.
func WithTestDb(schema []string, action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()

	dbName := fmt.Sprintf("test_%d_%d", time.Now().UnixNano(), rand.Intn(10000))
	connectionString := "host=localhost port=5432 user=postgres password=psw sslmode=disable"
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	testDbPool, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		testDbPool.Close()
		_, err = db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			fmt.Println("Failed to disconnect users")
		}
		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			fmt.Println("Failed to drop database")
		}
	}()

	for _, statement := range schema {
		if _, err := testDbPool.Exec(ctx, statement); err != nil {
			return errors.WithStack(err)
		}
	}

	return action(testDbPool)
}
