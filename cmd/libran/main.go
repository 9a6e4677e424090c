// Command libran is the admin console for the library service: session
// management, catalog and circulation operations, and derived reporting.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/findosh/libran/internal/config"
	"github.com/findosh/libran/internal/gateway"
	"github.com/findosh/libran/internal/services/library"
	"github.com/findosh/libran/internal/services/reports"
	"github.com/findosh/libran/internal/session"
	"github.com/findosh/libran/internal/storage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	db       *storage.DB
	sessions *session.Store
	gw       *gateway.Client
	library  *library.Service
	engine   *reports.Engine
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	if cfg.IsDevelopment() {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return log.Sugar(), nil
	}
	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

// setup wires config, logging, storage, session, gateway, and the library
// service, then restores any persisted session.
func (a *app) setup() error {
	a.cfg = config.Load()

	log, err := newLogger(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.log = log

	db, err := storage.New(a.cfg.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate credential store: %w", err)
	}
	a.db = db

	creds := storage.NewCredentialRepository(db)
	a.sessions = session.New(creds, a.log)
	a.gw = gateway.New(a.cfg.APIBaseURL, a.cfg.RequestTimeout, a.sessions, a.log)
	a.sessions.SetAPI(a.gw)
	a.library = library.NewService(a.gw, a.sessions, a.log)

	dailyFine, err := decimal.NewFromString(a.cfg.DailyFineRate)
	if err != nil {
		return fmt.Errorf("invalid LIBRAN_DAILY_FINE_RATE %q: %w", a.cfg.DailyFineRate, err)
	}
	a.engine = reports.NewEngine(a.cfg.TopN, dailyFine)

	if _, err := a.sessions.Rehydrate(); err != nil {
		a.log.Warnw("could not restore session", "error", err)
	}
	return nil
}

func (a *app) teardown() {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// proactiveRefreshWindow is how close to expiry the access token may get
// before a command refreshes it up front instead of waiting for a 401.
const proactiveRefreshWindow = 30 * time.Second

// requireSession guards commands that only make sense while logged in.
func (a *app) requireSession(ctx context.Context) error {
	if !a.sessions.IsAuthenticated() {
		return fmt.Errorf("not logged in, run: libran login")
	}
	if a.sessions.TokenExpiringWithin(proactiveRefreshWindow) {
		if _, err := a.sessions.Refresh(ctx); err != nil {
			a.log.Debugw("proactive refresh failed", "error", err)
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "libran",
		Short:         "Admin console for the library service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRegisterCmd(a),
		newPasswdCmd(a),
		newBooksCmd(a),
		newMembersCmd(a),
		newLoansCmd(a),
		newReservationsCmd(a),
		newReportCmd(a),
		newExportCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
