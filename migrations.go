package realtime

import (
	"embed"
	"fmt"
	"io/fs"
)

// MigrationFiles contains the SQL migration files embedded in the binary,
// one directory per supported driver (migrations/mysql, migrations/postgres,
// migrations/sqlite3). Users can access these files programmatically to
// apply migrations using their preferred migration tool (goose,
// golang-migrate, atlas, etc.)
//
// Example with goose:
//
//	import (
//	    "github.com/pressly/goose/v3"
//	    realtime "github.com/coregx/realtime"
//	)
//
//	goose.SetBaseFS(realtime.MigrationFiles)
//	if err := goose.Up(db, "migrations/mysql"); err != nil {
//	    log.Fatal(err)
//	}
//
//go:embed migrations/*/*.sql
var MigrationFiles embed.FS

// MigrationsFor returns the embedded migration file names for one driver
// ("mysql", "postgres" or "sqlite3"), in apply order.
func MigrationsFor(driver string) ([]string, error) {
	entries, err := fs.Glob(MigrationFiles, fmt.Sprintf("migrations/%s/*.sql", driver))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("no migrations for driver %q", driver))
	}
	return entries, nil
}
