package fileserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPDialer connects to file servers over SSH with password authentication.
type SFTPDialer struct {
	User           string
	Password       string
	KnownHostsFile string
	Timeout        time.Duration
}

// Dial opens an SSH connection to host (port 22 unless given) and starts an SFTP session on it.
func (d SFTPDialer) Dial(ctx context.Context, host string) (Session, error) {
	hostKey, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(strings.Trim(host, "[]"), "22")
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.Password(d.Password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("start sftp on %s: %w", addr, err)
	}
	return &sftpSession{ssh: sshClient, sftp: sftpClient}, nil
}

func (d SFTPDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.KnownHostsFile == "" {
		// Matches the archive servers' usual setup: host keys are not distributed.
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(d.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}

type sftpSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sftpSession) Open(path string) (io.ReadCloser, error) {
	return s.sftp.Open(path)
}

func (s *sftpSession) Close() error {
	sftpErr := s.sftp.Close()
	sshErr := s.ssh.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}
