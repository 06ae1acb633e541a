package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/node"
	"github.com/filecoin-shipyard/filsim/node/repo"
)

var daemonCmd = &cli.Command{
	Name:  "daemon",
	Usage: "Start a filsim daemon process",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "override the rpc listen address from the config",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()

		r, err := repo.NewFS(cctx.String(flagRepo))
		if err != nil {
			return xerrors.Errorf("opening repo at '%s': %w", cctx.String(flagRepo), err)
		}

		if err := r.Init(); err != nil {
			return xerrors.Errorf("initializing repo: %w", err)
		}

		cfg, err := r.Config()
		if err != nil {
			return err
		}

		nd := node.New(r)
		if err := nd.Init(ctx); err != nil {
			return xerrors.Errorf("initializing node: %w", err)
		}

		if err := nd.WaitForReady(ctx); err != nil {
			return err
		}

		addr := cfg.API.ListenAddress
		if listen := cctx.String("listen"); listen != "" {
			addr = listen
		}

		rpcServer := jsonrpc.NewServer()
		rpcServer.Register("Filecoin", nd)

		m := mux.NewRouter()
		m.Handle("/rpc/v0", rpcServer)

		srv := &http.Server{
			Addr:    addr,
			Handler: m,
		}

		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Warn("shutting down...")

			if err := nd.Stop(ctx); err != nil {
				log.Errorf("stopping node: %s", err)
			}
			if err := srv.Shutdown(ctx); err != nil {
				log.Errorf("shutting down rpc server: %s", err)
			}
		}()

		log.Infof("serving rpc on %s", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}

		return nil
	},
}
