package store

import "fmt"

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the repository for driver. path is used by SQLite and dsn by
// PostgreSQL.
func Open(driver, path, dsn string) (Repository, error) {
	var (
		s   *SQLStore
		err error
	)
	switch driver {
	case DriverSQLite, "":
		s, err = NewSQLite(path)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		s, err = NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
