package export

import (
	"context"
	"net"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPConfig configures workbook delivery to an FTP drop.
type FTPConfig struct {
	Addr    string // host or host:port; port 21 assumed when absent
	User    string
	Pass    string
	Dir     string // remote directory; created when missing
	Timeout time.Duration
}

// Uploader delivers exported workbooks over FTP.
type Uploader struct {
	cfg FTPConfig
	log *zap.Logger
}

func NewUploader(cfg FTPConfig) *Uploader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Uploader{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "export.ftp")),
	}
}

// Upload sends the local file to the configured drop under its base name.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	if u.cfg.Addr == "" {
		return eris.New("export: ftp address not configured")
	}

	addr := u.cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "21")
	}

	u.log.Debug("ftp: connecting", zap.String("addr", addr))
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(u.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "export: ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	user, pass := u.cfg.User, u.cfg.Pass
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		return eris.Wrap(err, "export: ftp login")
	}

	if u.cfg.Dir != "" {
		// MakeDir fails when the directory exists; ChangeDir is the check.
		if err := conn.ChangeDir(u.cfg.Dir); err != nil {
			if err := conn.MakeDir(u.cfg.Dir); err != nil {
				return eris.Wrap(err, "export: ftp make dir")
			}
			if err := conn.ChangeDir(u.cfg.Dir); err != nil {
				return eris.Wrap(err, "export: ftp change dir")
			}
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return eris.Wrap(err, "export: open workbook")
	}
	defer func() { _ = f.Close() }()

	remote := path.Base(localPath)
	if err := conn.Stor(remote, f); err != nil {
		return eris.Wrap(err, "export: ftp store")
	}

	u.log.Info("workbook uploaded",
		zap.String("addr", addr),
		zap.String("dir", u.cfg.Dir),
		zap.String("file", remote),
	)
	return nil
}
