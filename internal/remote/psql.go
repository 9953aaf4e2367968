package remote

import (
	"context"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PsqlTarget identifies the database psql connects to from the remote host.
type PsqlTarget struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// PsqlCommand builds a psql invocation that reads SQL from stdin and stops
// on the first error. Every argument is shell quoted.
func PsqlCommand(t PsqlTarget) string {
	port := t.Port
	if port == 0 {
		port = 5432
	}
	args := []string{
		"psql",
		"-v", "ON_ERROR_STOP=1",
		"--no-psqlrc",
		"-h", t.Host,
		"-p", strconv.Itoa(port),
		"-U", t.User,
		"-d", t.Database,
		"-f", "-",
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = ShellQuote(a)
	}
	cmd := strings.Join(quoted, " ")
	if t.Password != "" {
		cmd = "PGPASSWORD=" + ShellQuote(t.Password) + " " + cmd
	}
	return cmd
}

// RunSQL pipes sql to psql on the remote host and returns psql's stdout.
func RunSQL(ctx context.Context, exec Executor, t PsqlTarget, sql string) (string, error) {
	if t.Host == "" || t.User == "" || t.Database == "" {
		return "", eris.New("remote: psql host, user and database are required")
	}
	stdout, stderr, err := exec.Exec(ctx, PsqlCommand(t), strings.NewReader(sql))
	if err != nil {
		if msg := strings.TrimSpace(stderr); msg != "" {
			return stdout, eris.Wrapf(err, "remote: psql: %s", msg)
		}
		return stdout, eris.Wrap(err, "remote: psql")
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		zap.L().Info("remote: psql notices", zap.String("stderr", msg))
	}
	return stdout, nil
}

// ShellQuote wraps s in single quotes for a POSIX shell when it holds
// anything outside the shell-safe set.
func ShellQuote(s string) string {
	return shellescape.Quote(s)
}
