// Command echo-callback is a line echo server built entirely on the
// callback surface, grounded on
// original_source/examples/05-async-callback-echo-server.cpp: a
// listener re-arms its own accept from inside the accept callback, and
// each session re-arms its own read from inside the write callback.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arkestra/reactorio"
)

type session struct {
	sock *reactorio.Socket
	addr reactorio.Address
	buf  [4096]byte
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	rc, err := reactorio.NewContext(reactorio.WithLogger(logger))
	if err != nil {
		logger.Error("constructing context", slog.Any("error", err))
		os.Exit(1)
	}
	defer rc.Close()

	listener, addr, err := reactorio.OpenAndListen("", 8000)
	if err != nil {
		logger.Error("listening", slog.Any("error", err))
		os.Exit(1)
	}
	defer listener.Close()
	logger.Info("listening", slog.String("addr", addr.String()), slog.String("backend", rc.Kind().String()))

	var acceptCallback func(*reactorio.Socket, reactorio.Address, error)
	acceptCallback = func(client *reactorio.Socket, addr reactorio.Address, err error) {
		reactorio.AsyncAccept(rc, listener, acceptCallback)

		if err != nil {
			logger.Warn("accept failed", slog.Any("error", err))
			return
		}
		logger.Info("new connection", slog.String("addr", addr.String()))
		s := &session{sock: client, addr: addr}
		armRead(rc, logger, s)
	}
	reactorio.AsyncAccept(rc, listener, acceptCallback)

	if err := rc.Run(ctx, func(ctx context.Context) error {
		_, err := reactorio.Pending[struct{}]().Await(ctx)
		return err
	}); err != nil {
		logger.Error("run", slog.Any("error", err))
	}
}

func armRead(rc *reactorio.Context, logger *slog.Logger, s *session) {
	reactorio.AsyncRead(rc, s.sock, s.buf[:], func(n int, err error) {
		if err != nil || n == 0 {
			logger.Info("client disconnected", slog.String("addr", s.addr.String()))
			rc.DeferDelete(s.sock)
			return
		}
		logger.Info("received", slog.String("addr", s.addr.String()), slog.String("data", string(s.buf[:n])))
		reactorio.AsyncWrite(rc, s.sock, s.buf[:n], func(_ int, err error) {
			if err != nil {
				rc.DeferDelete(s.sock)
				return
			}
			armRead(rc, logger, s)
		})
	})
}
