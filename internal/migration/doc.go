// Package migration versions the entity database schema with
// golang-migrate. SQL files for postgres, mysql and sqlite are embedded in
// the binary; CLI wraps the migrator for the `ragnar migrate` command.
package migration
