// fleetver-passwd resets a local account password directly against the
// database, for recovering a locked-out admin.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetver/fleetver/internal/auth"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	var (
		dbFile   string
		username string
		password string
	)
	pflag.StringVar(&dbFile, "db", filepath.Join("data", "fleetver.db"), "sqlite database file")
	pflag.StringVar(&username, "username", "admin", "account to reset")
	pflag.StringVar(&password, "password", "", "new password, at least 8 characters")
	pflag.Parse()

	if len(password) < 8 {
		fail("password_too_short")
	}

	logger := log.InitLogs()
	logger.SetLevel(logrus.WarnLevel)

	cfg := config.NewDefault()
	cfg.Database.Type = "sqlite"
	cfg.Database.File = dbFile

	db, err := store.InitDB(cfg, logger)
	if err != nil {
		fail(fmt.Sprintf("db_error:%v", err))
	}
	dataStore := store.NewStore(db, logger)
	defer dataStore.Close()

	if err := dataStore.User().InitialMigration(); err != nil {
		fail(fmt.Sprintf("db_error:%v", err))
	}

	saltB64, hashB64, err := auth.HashPassword(password)
	if err != nil {
		fail(fmt.Sprintf("hash_error:%v", err))
	}

	err = dataStore.User().UpdatePassword(context.Background(), username, saltB64, hashB64)
	if errors.Is(err, fverrors.ErrResourceNotFound) {
		fail("user_not_found")
	}
	if err != nil {
		fail(fmt.Sprintf("db_error:%v", err))
	}

	printJSON(map[string]any{"ok": true, "username": username, "db_path": dbFile})
}

func fail(reason string) {
	printJSON(map[string]any{"ok": false, "error": reason})
	os.Exit(1)
}

func printJSON(body map[string]any) {
	out, _ := json.Marshal(body)
	fmt.Println(string(out))
}
