// Package database provides the SQLite connection behind the activation
// history.
//
// The database is optional: it is opened only when database.enabled is set,
// and the controller never reads it back to make decisions. It holds one
// row per sequence run so operators can see when and how the prop fired.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are SQL files named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. The top-level migrations package embeds them
// and registers the filesystem through Migrations at init time. Each
// migration runs in its own transaction.
package database
