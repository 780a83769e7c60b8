// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package remotefile reads files from a remote drop over SFTP.
//
// Connection problems that retrying cannot fix (missing host, user or
// credentials, unreadable keys, rejected authentication) are returned
// as *consumer.ConfigError so the consumer stops instead of retrying.
package remotefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mmia-foundation/mmia/consumer"
)

// Config locates and authenticates against an SFTP server. Password
// wins over KeyFile when both are set.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyFile  string
	// KnownHostsFile verifies the server key. When empty any host key
	// is accepted and a warning is logged.
	KnownHostsFile string
	Timeout        time.Duration
}

// File is an entry of a remote directory.
type File struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Client is an open SFTP session.
type Client struct {
	ssh    *ssh.Client
	sftp   *sftp.Client
	logger *slog.Logger
}

func configError(format string, args ...any) error {
	return &consumer.ConfigError{Component: "remote file source", Err: fmt.Errorf(format, args...)}
}

// Validate reports the first missing connection setting.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return configError("host is required")
	case c.Username == "":
		return configError("username is required")
	case c.Password == "" && c.KeyFile == "":
		return configError("one of password or key file is required")
	}
	return nil
}

func (c Config) authMethod() (ssh.AuthMethod, error) {
	if c.Password != "" {
		return ssh.Password(c.Password), nil
	}
	pemBytes, err := os.ReadFile(c.KeyFile)
	if err != nil {
		return nil, configError("reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, configError("parsing private key %s: %w", c.KeyFile, err)
	}
	return ssh.PublicKeys(signer), nil
}

func (c Config) hostKeyCallback(logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if c.KnownHostsFile == "" {
		logger.Warn("no known hosts file configured, accepting any host key", "host", c.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(c.KnownHostsFile)
	if err != nil {
		return nil, configError("loading known hosts: %w", err)
	}
	return callback, nil
}

// Dial connects and opens an SFTP session.
func Dial(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	auth, err := config.authMethod()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := config.hostKeyCallback(logger)
	if err != nil {
		return nil, err
	}
	port := config.Port
	if port == 0 {
		port = 22
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	address := net.JoinHostPort(config.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("remotefile: connecting to %s: %w", address, err)
	}
	sshConn, channels, requests, err := ssh.NewClientConn(conn, address, &ssh.ClientConfig{
		User:            config.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) || strings.Contains(err.Error(), "unable to authenticate") {
			return nil, configError("ssh handshake with %s: %w", address, err)
		}
		return nil, fmt.Errorf("remotefile: ssh handshake with %s: %w", address, err)
	}
	sshClient := ssh.NewClient(sshConn, channels, requests)
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("remotefile: starting sftp on %s: %w", address, err)
	}
	return &Client{ssh: sshClient, sftp: sftpClient, logger: logger}, nil
}

// Close ends the session.
func (c *Client) Close() error {
	sftpErr := c.sftp.Close()
	sshErr := c.ssh.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

// WorkingDirectory returns the server's initial directory.
func (c *Client) WorkingDirectory() (string, error) {
	return c.sftp.Getwd()
}

// List returns the regular files in dir sorted by name.
func (c *Client) List(ctx context.Context, dir string) ([]File, error) {
	stop := context.AfterFunc(ctx, func() { c.sftp.Close() })
	defer stop()

	entries, err := c.sftp.ReadDir(dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("remotefile: listing %s: %w", dir, err)
	}
	var files []File
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		files = append(files, File{
			Name:    entry.Name(),
			Path:    path.Join(dir, entry.Name()),
			Size:    entry.Size(),
			ModTime: entry.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Download copies remotePath to localPath, creating parent directories.
// An existing localPath is kept and reported as not downloaded. The
// file appears at localPath only once complete. A remote file that no
// longer exists is a consumer.Skip error.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) (bool, error) {
	if _, err := os.Stat(localPath); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, fmt.Errorf("remotefile: creating %s: %w", filepath.Dir(localPath), err)
	}

	remote, err := c.sftp.Open(remotePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, consumer.Skip("remote file %s no longer exists", remotePath)
	}
	if err != nil {
		return false, fmt.Errorf("remotefile: opening %s: %w", remotePath, err)
	}
	defer remote.Close()
	stop := context.AfterFunc(ctx, func() { remote.Close() })
	defer stop()

	partial, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*")
	if err != nil {
		return false, fmt.Errorf("remotefile: creating temporary file: %w", err)
	}
	defer os.Remove(partial.Name())

	written, copyErr := io.Copy(partial, remote)
	closeErr := partial.Close()
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if copyErr != nil {
		return false, fmt.Errorf("remotefile: downloading %s: %w", remotePath, copyErr)
	}
	if closeErr != nil {
		return false, fmt.Errorf("remotefile: writing %s: %w", localPath, closeErr)
	}
	if err := os.Rename(partial.Name(), localPath); err != nil {
		return false, fmt.Errorf("remotefile: moving download into place: %w", err)
	}
	c.logger.Debug("downloaded file", "remote", remotePath, "local", localPath, "bytes", written)
	return true, nil
}
