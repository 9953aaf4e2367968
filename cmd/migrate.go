package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/config"
	"github.com/sells-group/outlet-cli/internal/remote"
	"github.com/sells-group/outlet-cli/internal/store"
)

var (
	migrateRemote bool
	migratePrint  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the outlets schema migrations",
	Long: `Applies pending SQL migrations in lexicographic order.

With --remote the migration script is piped to psql on the SSH host
configured under ssh.*, for databases only reachable from that host.
With --print the script is written to stdout and nothing is applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if migratePrint {
			script, err := store.MigrationScript()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(os.Stdout, script)
			return err
		}
		if migrateRemote {
			return migrateOverSSH(ctx)
		}
		return migrateLocal(ctx)
	},
}

func migrateLocal(ctx context.Context) error {
	if err := cfg.Validate(config.ModeMigrate); err != nil {
		return err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	switch s := st.(type) {
	case *store.PostgresStore:
		if err := store.Migrate(ctx, s.Pool()); err != nil {
			return eris.Wrap(err, "migrate")
		}
	case *store.SQLiteStore:
		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
	default:
		return eris.Errorf("migrate: unsupported store %T", st)
	}

	zap.L().Info("all migrations applied successfully", zap.String("driver", cfg.Store.Driver))
	return nil
}

func migrateOverSSH(ctx context.Context) error {
	if err := cfg.Validate(config.ModeRemote); err != nil {
		return err
	}

	script, err := store.MigrationScript()
	if err != nil {
		return err
	}

	exec, err := remote.Dial(ctx, remote.Config{
		Host:           cfg.SSH.Host,
		Port:           cfg.SSH.Port,
		User:           cfg.SSH.User,
		KeyFile:        cfg.SSH.KeyFile,
		KnownHostsFile: cfg.SSH.KnownHostsFile,
		Timeout:        cfg.SSH.Timeout,
	})
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	out, err := remote.RunSQL(ctx, exec, sshPsqlTarget(cfg.SSH), script)
	if err != nil {
		return eris.Wrap(err, "remote migrate")
	}

	zap.L().Info("remote migrations applied",
		zap.String("host", cfg.SSH.Host),
		zap.String("database", cfg.SSH.DBName),
		zap.Int("output_bytes", len(out)),
	)
	return nil
}

func sshPsqlTarget(c config.SSHConfig) remote.PsqlTarget {
	return remote.PsqlTarget{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Database: c.DBName,
	}
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateRemote, "remote", false, "run the migration through psql on the SSH host")
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "print the migration script and exit")
	rootCmd.AddCommand(migrateCmd)
}
