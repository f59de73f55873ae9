package agent

import (
	"context"
	"os"
	"sync"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
)

const ServiceName = "kioskd"

// RunFunc runs one kiosk pass and returns the process exit code.
type RunFunc func(ctx context.Context) int

// ServiceProgram implements the service.Interface. The unit restarts on
// every exit, so the process ends with the run's own exit code.
type ServiceProgram struct {
	run  RunFunc
	exit func(code int)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewServiceProgram(run RunFunc) *ServiceProgram {
	return &ServiceProgram{
		run:  run,
		exit: os.Exit,
	}
}

func (p *ServiceProgram) Start(s service.Service) error {
	logrus.Infoln("kioskd service starting")

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)

		code := p.run(ctx)

		// A stop request already owns shutdown; otherwise exit so the
		// service manager relaunches us.
		if ctx.Err() == nil {
			logrus.WithField("code", code).Infoln("kioskd run finished")
			p.exit(code)
		}
	}()

	return nil
}

func (p *ServiceProgram) Stop(s service.Service) error {
	logrus.Infoln("kioskd service stopping")

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	return nil
}

// CreateService creates a new service instance
func CreateService(run RunFunc) (service.Service, error) {
	return service.New(NewServiceProgram(run), getServiceConfig())
}

// getServiceConfig returns the service configuration
func getServiceConfig() *service.Config {
	exePath, err := os.Executable()

	if err != nil {
		logrus.Fatal(err)
	}

	return &service.Config{
		Name:        ServiceName,
		DisplayName: "kioskd",
		Description: "Unattended kiosk browser controller",
		Executable:  exePath,
		Arguments: []string{
			"run",
		},
		Option: service.KeyValue{
			"Restart":     "always",
			"KeepAlive":   true,
			"RunAtLoad":   true,
			"OnFailure":   "restart",
			"UserService": true,
		},
	}
}
