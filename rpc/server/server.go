package server

import (
	"context"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/kBridge/lib/ca"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/lib/store/permanent"
	"github.com/ValentinKolb/kBridge/lib/store/temporary"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/dispatcher"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

var (
	requestsCounter = metrics.NewCounter(`kbridge_server_requests_total`)
	failedCounter   = metrics.NewCounter(`kbridge_server_requests_failed_total`)
	linksCounter    = metrics.NewCounter(`kbridge_server_links_accepted_total`)
	activeLinks     atomic.Int64
	_               = metrics.NewGauge(`kbridge_server_links_active`, func() float64 {
		return float64(activeLinks.Load())
	})
)

// Server is the backend: it accepts links from callers and answers their
// requests with the registered processors.
type Server struct {
	config     common.ServerConfig
	processors *xsync.MapOf[common.CommandType, IProcessor]
	crl        *ca.CRLRefresher
	links      sync.WaitGroup
}

// New creates a server answering with the given processors. Every command
// type may be owned by one processor only.
func New(config common.ServerConfig, processors ...IProcessor) (*Server, error) {
	if config.Workers < 1 {
		config.Workers = 1
	}
	s := &Server{
		config:     config,
		processors: xsync.NewMapOf[common.CommandType, IProcessor](),
	}
	for _, p := range processors {
		if err := s.Register(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewRPCServer creates the complete backend described by config: the key
// vault, the crypto provider, the certificate authority and the CRL
// refresher, with one processor per command group.
//
// Usage:
//
//	s, err := server.NewRPCServer(config)
//	if err != nil {
//		panic(err)
//	}
//	l, err := unix.Listen(config.Transport)
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(ctx, l); err != nil {
//		panic(err)
//	}
func NewRPCServer(config common.ServerConfig) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	provider := crypto.NewNaClProvider(crypto.DefaultKDFParams)

	// Key store
	var permanentTable store.IKeyStore
	if config.StorePath == "" {
		permanentTable = permanent.NewMemoryStore(config.PermanentCapacity)
	} else {
		var err error
		if permanentTable, err = permanent.Open(config.StorePath, config.PermanentCapacity); err != nil {
			return nil, err
		}
	}
	vault := store.NewVault(permanentTable, temporary.NewStore(config.TemporaryCapacity), provider)

	// Certificate authority
	authority, err := ca.NewLocalCA(ca.Config{
		Name:        config.CAName,
		Validity:    time.Duration(config.CertValidityDays) * 24 * time.Hour,
		CRLValidity: time.Duration(config.CRLValiditySeconds) * time.Second,
		KeyPath:     config.CAKeyPath,
	}, provider)
	if err != nil {
		return nil, err
	}
	crl := ca.NewCRLRefresher(authority, time.Duration(config.CRLRefreshSecond)*time.Second)

	s, err := New(config,
		NewPingProcessor(),
		NewStorageProcessor(vault),
		NewCryptoProcessor(provider),
		NewCertificateProcessor(authority, crl),
	)
	if err != nil {
		return nil, err
	}
	s.crl = crl

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return s, nil
}

// Register adds a processor for all its command types.
func (s *Server) Register(p IProcessor) error {
	for _, t := range p.Commands() {
		if !t.Valid() {
			return errs.Validationf("processor registers invalid command type %s", t)
		}
		if _, loaded := s.processors.LoadOrStore(t, p); loaded {
			return errs.Validationf("command type %s has more than one processor", t)
		}
	}
	return nil
}

// Handle answers one request. Requests that no processor owns or that fail
// are answered with a GeneralError result frame.
func (s *Server) Handle(ctx context.Context, req *codec.Command) *codec.Command {
	requestsCounter.Inc()

	p, ok := s.processors.Load(req.Type)
	if !ok {
		failedCounter.Inc()
		Logger.Warningf("no processor for %s", req)
		return codec.NewResult(req.Type, req.RequestID, common.ResultGeneralError)
	}

	resp, err := p.Handle(ctx, req)
	if err != nil {
		failedCounter.Inc()
		Logger.Warningf("%s failed (%v): %v", req, errs.Class(err), err)
		return codec.NewResult(req.Type, req.RequestID, common.ResultGeneralError)
	}
	return resp
}

// --------------------------------------------------------------------------
// Links
// --------------------------------------------------------------------------

// Serve accepts links from the listener until ctx is done. Background work
// of the backend (CRL refresh, metrics endpoint) runs for the same time.
// Serve closes the listener and waits for all links before it returns.
func (s *Server) Serve(ctx context.Context, l transport.IListener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.crl != nil {
		go s.crl.Run(ctx)
	}
	if s.config.MetricsEndpoint != "" {
		go serveMetrics(ctx, s.config.MetricsEndpoint, s.config.LogLevel == "debug")
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	Logger.Infof("Serving on %s", l.Addr())
	var err error
	for {
		t, acceptErr := l.Accept()
		if acceptErr != nil {
			if ctx.Err() == nil {
				err = errs.Wrap(errs.ErrTransport, acceptErr, "accept")
			}
			break
		}

		linksCounter.Inc()
		s.links.Add(1)
		go func() {
			defer s.links.Done()
			s.ServeLink(ctx, t)
		}()
	}

	cancel()
	s.links.Wait()
	return err
}

// ServeLink answers the requests arriving on one link until ctx is done or
// the peer is lost. Up to config.Workers requests are processed at once,
// replies may therefore leave in a different order than the requests came.
func (s *Server) ServeLink(ctx context.Context, t transport.ITransport) {
	activeLinks.Add(1)
	defer activeLinks.Add(-1)

	d := dispatcher.New(t, dispatcher.ConfigFromLink("backend", s.config.Link))

	var workers sync.WaitGroup
	sem := make(chan struct{}, s.config.Workers)

	d.Register(dispatcher.ProcessorFunc(func(req *codec.Command) bool {
		sem <- struct{}{}
		workers.Add(1)
		go func() {
			defer func() {
				<-sem
				workers.Done()
			}()
			resp := s.Handle(ctx, req)
			if err := d.SendWithID(resp); err != nil {
				Logger.Warningf("failed to answer %s: %v", req, err)
			}
		}()
		return true
	}))
	d.Start(ctx)

	select {
	case <-ctx.Done():
	case <-d.PeerLost():
	}

	if err := d.Close(); err != nil {
		Logger.Debugf("closing link: %v", err)
	}
	workers.Wait()
}
