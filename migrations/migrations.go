// Package migrations embeds the SQL schema for each supported database.
// Files are applied in lexical order and identified by file name.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// driverDirs maps a database/sql driver name to its migration directory.
var driverDirs = map[string]string{
	"sqlite3":  "sqlite",
	"postgres": "postgres",
}

// ForDriver returns the migration files for driver, rooted at their
// directory.
func ForDriver(driver string) (fs.FS, error) {
	dir, ok := driverDirs[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return fs.Sub(files, dir)
}
