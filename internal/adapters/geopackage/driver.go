package geopackage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// Driver names. GeoPackages are read with the plain driver; the SpatiaLite
// driver is only used for reprojection.
const (
	driverGeoPackage = "sqlite3_geopackage"
	driverSpatiaLite = "sqlite3_spatialite"
)

var registerOnce sync.Once

func registerDrivers() {
	registerOnce.Do(func() {
		sql.Register(driverGeoPackage, &sqlite3.SQLiteDriver{})
		sql.Register(driverSpatiaLite, &sqlite3.SQLiteDriver{
			ConnectHook: loadSpatiaLite,
		})
	})
}

// loadSpatiaLite loads mod_spatialite from the first path that works.
func loadSpatiaLite(conn *sqlite3.SQLiteConn) error {
	var errs []error
	for _, path := range getSpatiaLiteLibraryPaths() {
		err := conn.LoadExtension(path, "sqlite3_modspatialite_init")
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return fmt.Errorf("loading mod_spatialite: %w", errors.Join(errs...))
}

// getSpatiaLiteLibraryPaths returns a list of paths to try for loading SpatiaLite.
// The order is important: environment variable first, then platform-specific paths.
func getSpatiaLiteLibraryPaths() []string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine Linux (Docker containers)
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",

		// Debian/Ubuntu amd64
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so.8",

		// Debian/Ubuntu arm64
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so.8",

		// macOS Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",

		// Let the dynamic loader search
		"mod_spatialite",
	}
}
