package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// CLI reports on the entity schema (the companies and persons tables the
// BI agent queries) for the migrate subcommands.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI writes to stdout until SetOutput is called.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{
		migrator: migrator,
		output:   os.Stdout,
	}
}

func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunUp creates or upgrades the entity tables.
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.output, "Applying entity schema migrations...")

	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("entity schema upgrade failed: %w", err)
	}
	return c.printSchemaVersion(ctx, "Entity schema is up to date")
}

// RunDown drops the most recently applied entity table change.
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.output, "Reverting the latest entity schema migration...")

	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("entity schema rollback failed: %w", err)
	}
	return c.printSchemaVersion(ctx, "Entity schema reverted")
}

func (c *CLI) printSchemaVersion(ctx context.Context, prefix string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%s at version %d (%s)\n", prefix, info.CurrentVersion, tablesAt(ctx, c.migrator))
	return nil
}

// RunForce marks the entity schema as being at version without running SQL.
// Used to clear a dirty flag after a hand repair.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("failed to force entity schema to version %d: %w", version, err)
	}
	fmt.Fprintf(c.output, "Entity schema marked as version %d\n", version)
	return nil
}

func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to read entity schema version: %w", err)
	}

	if version == 0 {
		fmt.Fprintln(c.output, "Entity schema not created: no companies or persons tables yet.")
		return nil
	}

	fmt.Fprintf(c.output, "Entity schema version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty, repair the tables and run migrate force)")
	}
	fmt.Fprintln(c.output)
	return nil
}

// RunStatus lists each migration with the entity table it manages.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entity schema migrations: %w", err)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No entity schema migrations are embedded for this database.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tMIGRATION\tTABLE\tSTATE")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\t%s\n", s.Version, s.Name, entityTable(s.Name), state)
	}
	w.Flush()

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\n%d of %d entity schema migrations applied, %d pending\n",
		info.AppliedMigrations, info.TotalMigrations, info.PendingMigrations)
	return nil
}

// RunInfo prints the entity schema summary.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read entity schema info: %w", err)
	}

	fmt.Fprintln(c.output, "Entity schema:")
	fmt.Fprintf(c.output, "  version:  %d\n", info.CurrentVersion)
	fmt.Fprintf(c.output, "  dirty:    %v\n", info.Dirty)
	fmt.Fprintf(c.output, "  tables:   %s\n", tablesAt(ctx, c.migrator))
	fmt.Fprintf(c.output, "  applied:  %d/%d\n", info.AppliedMigrations, info.TotalMigrations)
	return nil
}

// entityTable maps a migration name such as create_companies to the table it
// manages.
func entityTable(name string) string {
	for _, prefix := range []string{"create_", "alter_", "drop_"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return rest
		}
	}
	return "-"
}

// tablesAt lists the entity tables created by the applied migrations.
func tablesAt(ctx context.Context, m Migrator) string {
	statuses, err := m.Status(ctx)
	if err != nil {
		return "unknown"
	}
	var tables []string
	for _, s := range statuses {
		if s.Applied && strings.HasPrefix(s.Name, "create_") {
			tables = append(tables, entityTable(s.Name))
		}
	}
	if len(tables) == 0 {
		return "none"
	}
	return strings.Join(tables, ", ")
}
