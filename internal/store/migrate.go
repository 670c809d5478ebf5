package store

import (
	"database/sql"
	"fmt"
)

// migrationStep upgrades a store file from one schema version to the
// next. Registered in ascending order; migrate applies every step
// between from and to in turn, stamping user_version after each
// successful step so an interrupted migration resumes from where it
// left off rather than restarting from scratch.
type migrationStep struct {
	from, to int
	apply    func(*sql.DB) error
}

var migrationSteps []migrationStep

func migrate(db *sql.DB, from, to int) error {
	for _, step := range migrationSteps {
		if step.from < from || step.from >= to {
			continue
		}
		if err := step.apply(db); err != nil {
			return fmt.Errorf("migration step %d->%d: %w", step.from, step.to, err)
		}
		if err := setUserVersion(db, step.to); err != nil {
			return fmt.Errorf("stamping version after step %d->%d: %w", step.from, step.to, err)
		}
	}
	return nil
}
