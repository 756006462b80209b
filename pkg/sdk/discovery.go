package sdk

import (
	"context"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/sqlstore"
	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/sirupsen/logrus"
)

// Backend names accepted by Open.
const (
	BackendAuto     = ""
	BackendEmbedded = "embedded"
	BackendSQL      = "sql"
	BackendRemote   = "remote"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// Embedded engine.
	DataDir string
	Sealer  engine.Sealer

	// Remote daemon.
	Addr       string
	DisableTLS bool

	// SQL database.
	DBDriver string
	DBDSN    string
}

// Open initializes the store selected by opts. With BackendAuto a reachable
// remote daemon at opts.Addr wins and anything else falls back to the
// embedded engine, so the app doesn't care if it's local or remote.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Backend {
	case BackendRemote:
		b, err = openRemote(ctx, opts)
	case BackendSQL:
		b, err = openSQL(opts)
	case BackendEmbedded:
		b, err = openEmbedded(opts)
	case BackendAuto:
		if opts.Addr != "" {
			if b, err = openRemote(ctx, opts); err == nil {
				return b, nil
			}
			logrus.WithError(err).WithField("addr", opts.Addr).Warn("remote store unreachable, using embedded store")
		}
		b, err = openEmbedded(opts)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backendName(opts.Backend), err)
	}
	return b, nil
}

func backendName(b string) string {
	if b == BackendAuto {
		return "auto"
	}
	return b
}

func openSQL(opts Options) (Backend, error) {
	s, err := sqlstore.Open(opts.DBDriver, opts.DBDSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRemote(ctx context.Context, opts Options) (Backend, error) {
	client, err := Connect(opts.Addr, opts.DisableTLS)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func openEmbedded(opts Options) (Backend, error) {
	p, err := engine.NewPersistence(opts.DataDir)
	if err != nil {
		return nil, err
	}
	p.Sealer = opts.Sealer

	allData, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	return engine.NewMemStore(allData, p), nil
}
