package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	appLog "schedlist/internal/log"
)

// SFTPConfig describes the remote host profile directories are mirrored to.
type SFTPConfig struct {
	Host                  string
	Port                  int
	User                  string
	Pass                  string
	RemoteDir             string
	InsecureIgnoreHostKey bool
	// KnownHostsKey verifies the server when InsecureIgnoreHostKey is off.
	KnownHostsKey ssh.PublicKey
}

// Uploader pushes a local profile directory to {RemoteDir}/{name}.
type Uploader struct {
	cfg SFTPConfig
}

// NewUploader validates cfg and fills defaults.
func NewUploader(cfg SFTPConfig) (*Uploader, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return nil, errors.New("sftp: host, user and pass are required")
	}
	if !cfg.InsecureIgnoreHostKey && cfg.KnownHostsKey == nil {
		return nil, errors.New("sftp: a host key is required unless insecure_ignore_host_key is set")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	return &Uploader{cfg: cfg}, nil
}

// UploadDir copies the regular files of localDir into {RemoteDir}/{name},
// overwriting existing files.
func (u *Uploader) UploadDir(ctx context.Context, localDir, name string) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("sftp: read local dir: %w", err)
	}

	sshClient, err := u.dial(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()

	sftpCli, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("sftp: new client: %w", err)
	}
	defer sftpCli.Close()

	remoteDir := path.Join(u.cfg.RemoteDir, name)
	if err := sftpCli.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("sftp: mkdir %s: %w", remoteDir, err)
	}

	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := uploadFile(sftpCli, filepath.Join(localDir, e.Name()), path.Join(remoteDir, e.Name())); err != nil {
			return err
		}
		n++
	}

	appLog.Info("sftp upload done", "profile", name, "host", u.cfg.Host, "files", n)
	return nil
}

func (u *Uploader) dial(ctx context.Context) (*ssh.Client, error) {
	cb := ssh.InsecureIgnoreHostKey()
	if !u.cfg.InsecureIgnoreHostKey {
		cb = ssh.FixedHostKey(u.cfg.KnownHostsKey)
	}

	sshCfg := &ssh.ClientConfig{
		User:            u.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(u.cfg.Pass)},
		HostKeyCallback: cb,
		Timeout:         20 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", u.cfg.Host, u.cfg.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// Close a connection that completes after we gave up.
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("sftp: dial error: %w", r.err)
		}
		return r.client, nil
	}
}

func uploadFile(cli *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	dst, err := cli.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("sftp: upload copy %s: %w", remotePath, err)
	}
	return nil
}
