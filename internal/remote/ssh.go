// Package remote runs commands on a bastion host over SSH.
package remote

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Executor runs one shell command and returns its captured output.
type Executor interface {
	Exec(ctx context.Context, cmd string, stdin io.Reader) (stdout, stderr string, err error)
}

// Config holds SSH connection settings.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	KeyFile        string        `mapstructure:"key_file"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// SSHExecutor implements Executor over one SSH client connection. Each
// Exec opens a fresh session.
type SSHExecutor struct {
	client *ssh.Client
}

// Dial connects to cfg.Host with public key auth.
func Dial(ctx context.Context, cfg Config) (*SSHExecutor, error) {
	signer, err := loadSigner(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "remote: dial %s", addr)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "remote: handshake %s", addr)
	}

	zap.L().Debug("remote: connected", zap.String("addr", addr), zap.String("user", cfg.User))
	return &SSHExecutor{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// Exec runs cmd in a new session. A non-zero exit status is returned as an
// error alongside whatever output was captured.
func (e *SSHExecutor) Exec(ctx context.Context, cmd string, stdin io.Reader) (string, string, error) {
	session, err := e.client.NewSession()
	if err != nil {
		return "", "", eris.Wrap(err, "remote: new session")
	}
	defer session.Close() //nolint:errcheck

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), eris.Wrap(ctx.Err(), "remote: exec")
	case err := <-done:
		if err != nil {
			return stdout.String(), stderr.String(), eris.Wrap(err, "remote: exec")
		}
		return stdout.String(), stderr.String(), nil
	}
}

// Close closes the underlying connection.
func (e *SSHExecutor) Close() error {
	return e.client.Close()
}

func loadSigner(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, eris.New("remote: ssh.key_file is required")
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "remote: read key %s", path)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, eris.Wrapf(err, "remote: parse key %s", path)
	}
	return signer, nil
}

// hostKeyCallback verifies against a known_hosts file. Without one every
// host key is accepted and a warning is logged.
func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		zap.L().Warn("remote: ssh.known_hosts_file not set, host key is not verified")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, eris.Wrapf(err, "remote: load known hosts %s", path)
	}
	return cb, nil
}
