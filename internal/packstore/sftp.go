package packstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"coldpack/internal/errs"
)

// SFTP implements PackStore over an SFTP connection: bucket maps to a
// subdirectory of the remote root, object maps to a file within it. Listed
// among spec.md's required adapters but absent from the teacher's own
// go.mod; grounded instead on the wider backup-tool ecosystem's use of
// github.com/pkg/sftp for this exact purpose.
type SFTP struct {
	client *sftp.Client
	root   string
}

// SFTPOptions configures the SSH connection used to reach the remote host.
type SFTPOptions struct {
	Addr     string // host:port
	User     string
	Password string          // used when PrivateKey is nil
	PrivateKey []byte        // PEM-encoded private key, preferred over Password
	HostKey  ssh.PublicKey   // expected host key; nil disables verification (test-only)
	Root     string          // remote base directory under which buckets live
}

// NewSFTP dials addr and opens an SFTP session rooted at opts.Root.
func NewSFTP(opts SFTPOptions) (*SFTP, error) {
	var auth []ssh.AuthMethod
	if len(opts.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(opts.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("packstore(sftp): parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else {
		auth = append(auth, ssh.Password(opts.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // G106: overridden below when a host key is supplied
	if opts.HostKey != nil {
		hostKeyCallback = ssh.FixedHostKey(opts.HostKey)
	}

	sshConn, err := ssh.Dial("tcp", opts.Addr, &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, fmt.Errorf("packstore(sftp): dial %s: %w", opts.Addr, err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, fmt.Errorf("packstore(sftp): new client: %w", err)
	}
	return &SFTP{client: client, root: opts.Root}, nil
}

// Close releases the underlying SFTP session and SSH connection.
func (s *SFTP) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("packstore(sftp): close: %w", err)
	}
	return nil
}

func (s *SFTP) bucketDir(bucket string) string {
	return path.Join(s.root, bucket)
}

func (s *SFTP) EnsureBucket(_ context.Context, bucket string) error {
	if err := s.client.MkdirAll(s.bucketDir(bucket)); err != nil {
		return fmt.Errorf("packstore(sftp): mkdir %s: %w", bucket, err)
	}
	return nil
}

func (s *SFTP) Put(_ context.Context, bucket, key string, data io.Reader, _ int64) error {
	dir := s.bucketDir(bucket)
	if err := s.client.MkdirAll(dir); err != nil {
		return fmt.Errorf("packstore(sftp): mkdir %s: %w", dir, err)
	}
	remotePath := path.Join(dir, key)
	f, err := s.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("packstore(sftp): create %s: %w", remotePath, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("packstore(sftp): write %s: %w", remotePath, err)
	}
	return nil
}

func (s *SFTP) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	remotePath := path.Join(s.bucketDir(bucket), key)
	f, err := s.client.Open(remotePath)
	if err != nil {
		if errors.Is(err, sftp.ErrSSHFxNoSuchFile) {
			return nil, fmt.Errorf("packstore(sftp): %s: %w", remotePath, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("packstore(sftp): open %s: %w", remotePath, err)
	}
	return f, nil
}

func (s *SFTP) List(_ context.Context, bucket string) ([]ObjectInfo, error) {
	entries, err := s.client.ReadDir(s.bucketDir(bucket))
	if err != nil {
		return nil, fmt.Errorf("packstore(sftp): readdir %s: %w", bucket, err)
	}
	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, ObjectInfo{Key: e.Name(), Size: e.Size()})
	}
	return out, nil
}

func (s *SFTP) Delete(_ context.Context, bucket, key string) error {
	remotePath := path.Join(s.bucketDir(bucket), key)
	if err := s.client.Remove(remotePath); err != nil && !errors.Is(err, sftp.ErrSSHFxNoSuchFile) {
		return fmt.Errorf("packstore(sftp): remove %s: %w", remotePath, err)
	}
	return nil
}
