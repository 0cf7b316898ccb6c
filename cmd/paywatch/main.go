package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paywatch/internal/auth"
	"paywatch/internal/config"
	"paywatch/internal/db"
	"paywatch/internal/httpclient"
	"paywatch/internal/logger"
	"paywatch/internal/payment"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	exitCompleted = 0
	exitError     = 1
	exitNotPaid   = 2
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	logsFor := flag.String("logs", "", "print the stored log of a payment id and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: paywatch [-logs payment-id] <order-id>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitError
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := payment.NewNoopRepository()
	if cfg.LogRepositoryEnabled() {
		conn, err := db.NewDatabase(cfg)
		if err != nil {
			log.Error("Payment log disabled", zap.Error(err))
		} else {
			defer conn.Close()
			repo = payment.NewRepository(conn)
		}
	}

	if *logsFor != "" {
		if err := printLogs(ctx, os.Stdout, repo, *logsFor); err != nil {
			log.Error("Failed to list payment logs", zap.Error(err))
			return exitError
		}
		return exitCompleted
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return exitError
	}

	svc, err := newService(cfg, repo, os.Stdout)
	if err != nil {
		log.Error("Failed to build payment service", zap.Error(err))
		return exitError
	}

	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("Metrics server running", zap.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	w := &watcher{
		svc:      svc,
		out:      os.Stdout,
		interval: cfg.PollInterval,
		timeout:  cfg.PollTimeout,
	}
	return w.run(ctx, flag.Arg(0))
}

func newService(cfg *config.Config, repo payment.Repository, out io.Writer) (payment.Service, error) {
	tokens, err := auth.LoadTokenStore(cfg.APIToken, cfg.APITokenFile)
	if err != nil {
		return nil, err
	}
	if _, err := tokens.Token(); err != nil {
		logger.L().Warn("Requests will be sent without authorization", zap.Error(err))
	}

	client, err := httpclient.New(cfg.APIURL,
		httpclient.WithTimeout(cfg.HTTPTimeout),
		httpclient.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
	if err != nil {
		return nil, err
	}
	return payment.NewService(client, tokens, repo, payment.WriterNavigator{W: out}), nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

type watcher struct {
	svc      payment.Service
	out      io.Writer
	interval time.Duration
	timeout  time.Duration
}

// run creates the payment, hands the gateway data to the user and waits
// for a terminal status. The return value is the process exit code.
func (w *watcher) run(ctx context.Context, orderID string) int {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID))

	session, err := w.svc.CreatePayment(ctx, orderID)
	if err != nil {
		var rejection *httpclient.RemoteRejection
		if errors.As(err, &rejection) && rejection.Message() != "" {
			fmt.Fprintf(w.out, "payment rejected: %s\n", rejection.Message())
		}
		log.Error("Failed to create payment", zap.Error(err))
		return exitError
	}
	fmt.Fprintf(w.out, "payment %s created (%s)\n", session.ID(), session.Status())

	dispatched := false
	if session.GatewayData() == nil {
		log.Warn("No gateway data yet", zap.String("payment_id", session.ID()))
	} else {
		if err := w.dispatch(ctx, session); err != nil {
			log.Error("Failed to dispatch payment", zap.Error(err))
			return exitError
		}
		dispatched = true
	}

	if session.Status().IsTerminal() {
		return exitCode(session.Status())
	}

	// observer calls are serialized, so dispatched needs no lock
	h := w.svc.Watch(ctx, session, func(r payment.Result) {
		if !r.OK() {
			log.Warn("Status check failed", zap.Error(r.Err))
			return
		}
		if !dispatched && session.GatewayData() != nil {
			dispatched = true
			if err := w.dispatch(ctx, session); err != nil {
				log.Error("Failed to dispatch payment", zap.Error(err))
			}
		}
		fmt.Fprintf(w.out, "payment %s: %s\n", session.ID(), r.Snapshot.Status)
	}, payment.WithInterval(w.interval))
	<-h.Done()

	if !session.Status().IsTerminal() {
		log.Error("Stopped waiting for payment",
			zap.String("payment_id", session.ID()),
			zap.String("status", session.Status().String()),
			zap.Error(ctx.Err()),
		)
	}
	return exitCode(session.Status())
}

// dispatch hands the session's gateway data to the user: the invoice link is
// printed by the navigator, form fields are printed as JSON.
func (w *watcher) dispatch(ctx context.Context, session *payment.Session) error {
	gw, err := w.svc.ProcessPayment(ctx, session.PaymentData())
	if err != nil {
		return err
	}
	if gw != nil {
		if err := printForm(w.out, gw); err != nil {
			return fmt.Errorf("failed to print payment form: %w", err)
		}
	}
	return nil
}

func exitCode(s payment.Status) int {
	switch s {
	case payment.StatusCompleted:
		return exitCompleted
	case payment.StatusFailed, payment.StatusRefunded:
		return exitNotPaid
	}
	return exitError
}

func printForm(out io.Writer, gw *payment.GatewayData) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(gw)
}

func printLogs(ctx context.Context, out io.Writer, repo payment.Repository, paymentID string) error {
	logs, err := repo.ListLogs(ctx, paymentID)
	if err != nil {
		return err
	}
	for _, l := range logs {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", l.CreatedAt.Format(time.RFC3339), l.Action, l.Status, string(l.Data))
	}
	return nil
}
