package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kioskd/kioskd/internal/agent"
	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/common"
	"github.com/kioskd/kioskd/internal/credentials"
	"github.com/kioskd/kioskd/internal/daemon"
	"github.com/kioskd/kioskd/internal/fullsession"
	"github.com/kioskd/kioskd/internal/gate"
	"github.com/kioskd/kioskd/internal/lifecycle"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/preauth"
	"github.com/kioskd/kioskd/internal/profile"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/kioskd/kioskd/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiosk once and exit",
	Long: `Run one kiosk pass. The process exits 0 when the session ends or the
remote configuration changes, and 1 on a fatal error. Install kioskd as a
service to have it relaunched after every exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		exit(runKiosk(cmd))
	},
}

// runKiosk runs in the foreground, or under the service manager when
// started by one.
func runKiosk(cmd *cobra.Command) models.ExitCode {
	if service.Interactive() {
		return runOnce(cmd.Context())
	}

	s, err := agent.CreateService(func(ctx context.Context) int {
		return int(runOnce(ctx))
	})
	if err != nil {
		logrus.WithError(err).Errorln("Failed to create service")
		return models.ExitFatal
	}

	if err := s.Run(); err != nil {
		logrus.WithError(err).Errorln("Service run failed")
		return models.ExitFatal
	}

	return models.ExitOK
}

// runOnce wires every component for a single run and returns its exit code.
func runOnce(parent context.Context) models.ExitCode {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := common.WithInterrupt(parent)
	defer stop()

	runID := uuid.New().String()
	log := logrus.WithFields(logrus.Fields{
		"run":     runID,
		"version": common.GetVersion(),
	})

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Errorln("Invalid configuration")
		return models.ExitFatal
	}

	prof, err := profile.NewOS(cfg.Profile.Dir)
	if err != nil {
		log.WithError(err).Errorln("Failed to resolve profile directory")
		return models.ExitFatal
	}

	watchOpts := cfg.GetWatchOptions()

	// Decryption failure is fatal and resets the profile
	supplier := credentials.NewSupplier(cfg.GetSecrets())
	var cred *models.Credential
	if watchOpts.RequiresCredential() || supplier.Configured() {
		cred, err = supplier.Credential(ctx)
		if err != nil {
			log.WithError(err).Errorln("Failed to decrypt service credential")
			if wipeErr := prof.Wipe(); wipeErr != nil {
				log.WithError(wipeErr).Errorln("Failed to wipe profile")
			}
			return models.ExitFatal
		}
	}

	watchService, err := watch.New(ctx, watchOpts, cred)
	if err != nil {
		log.WithError(err).Errorln("Failed to start config watch service")
		return models.ExitFatal
	}
	defer func() {
		if err := watchService.Close(); err != nil {
			log.WithError(err).Warnln("Failed to close config watch service")
		}
	}()

	m := metrics.New()
	reg := registry.New(m)
	users := lifecycle.NewUserStore()
	launcher := browser.NewRodLauncher()

	controller := lifecycle.New(lifecycle.Dependencies{
		Watch:       watchService,
		Registry:    reg,
		Profile:     prof,
		Users:       users,
		Metrics:     m,
		PreAuth:     preauth.New(launcher, reg, cfg.GetPreAuthOptions()),
		Gate:        gate.New(launcher, reg, users, m, cfg.GetGateOptions()),
		FullSession: fullsession.New(launcher, reg, m, cfg.GetFullSessionOptions()),
	}, lifecycle.Options{
		RunID:          runID,
		DocumentPath:   cfg.Remote.Document,
		CollectionPath: cfg.Remote.Collection,
	})

	if cfg.Server.Enabled {
		srv := daemon.NewServer(cfg, controller, m)
		if err := srv.Start(); err != nil {
			log.WithError(err).Warnln("Status server unavailable")
		} else {
			defer srv.Stop()
		}
	}

	outcome := controller.Run(ctx)

	log.WithFields(logrus.Fields{
		"code":   outcome.Code,
		"wipe":   outcome.Wipe,
		"reason": outcome.Reason,
	}).Infoln("kioskd exiting")

	return outcome.Code
}

func init() {
	rootCmd.AddCommand(runCmd)
}
