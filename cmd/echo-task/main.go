// Command echo-task is a line echo server built on the resumable-task
// adapter, grounded on
// original_source/examples/06-library-support-future-echo-server.cpp:
// each client is a Task that loops read-then-write instead of a chain
// of callbacks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkestra/reactorio"
	"github.com/arkestra/reactorio/fut"
)

// idleClientTimeout bounds how long a connection may sit without
// sending anything before it gets a goodbye nudge, matching
// original_source/examples/04-future-echo-server.cpp's 7-second window.
const idleClientTimeout = 7 * time.Second

const idleGoodbyeMessage = "Timeout: you were too slow! Bye!\n"

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

	listener, addr, err := reactorio.OpenAndListen("", 6969)
	if err != nil {
		logger.Error("listening", slog.Any("error", err))
		os.Exit(1)
	}
	defer listener.Close()
	logger.Info("listening", slog.String("addr", addr.String()), slog.String("backend", rc.Kind().String()))

	if err := rc.Run(ctx, func(ctx context.Context) error {
		for {
			result, err := fut.Accept(rc, listener).Await(ctx)
			if err != nil {
				return err
			}
			logger.Info("new connection", slog.String("addr", result.Address.String()))
			reactorio.SpawnTask(ctx, func(ctx context.Context) (any, error) {
				return nil, serveClient(ctx, rc, logger, result)
			})
		}
	}); err != nil {
		logger.Error("run", slog.Any("error", err))
	}
}

// readOutcome tags a raced read so the loop body below can tell a real
// read apart from the goodbye write that fires when it times out,
// without mistaking the write's own byte count for data received.
type readOutcome struct {
	n        int
	timedOut bool
}

// serveClient runs the echo session as a restart-forever loop: each
// round races a read against idleClientTimeout, sends a goodbye nudge
// on timeout rather than disconnecting, and otherwise echoes whatever
// was read. The round only ends the whole session by returning an
// error, matching 04-future-echo-server.cpp's rio::fut::loop-driven
// client handler.
func serveClient(ctx context.Context, rc *reactorio.Context, logger *slog.Logger, accepted reactorio.AcceptResult) error {
	defer rc.DeferDelete(accepted.Client)

	buf := make([]byte, 1024)

	_, err := reactorio.Loop(struct{}{}, func(struct{}) *reactorio.Future[struct{}] {
		next := reactorio.NewFuture[struct{}]()

		read := reactorio.Then(fut.Read(rc, accepted.Client, buf), func(n int) (readOutcome, error) {
			return readOutcome{n: n}, nil
		})
		raced := reactorio.TimeoutWith(read, rc, idleClientTimeout, func() *reactorio.Future[readOutcome] {
			logger.Info("client idle, sending goodbye", slog.String("addr", accepted.Address.String()))
			return reactorio.Then(
				fut.Write(rc, accepted.Client, []byte(idleGoodbyeMessage)),
				func(int) (readOutcome, error) { return readOutcome{timedOut: true}, nil },
			)
		})

		raced.AddResultCallback(func(outcome readOutcome, err error) {
			switch {
			case err != nil:
				next.SetResult(struct{}{}, err)
			case outcome.timedOut:
				next.SetResult(struct{}{}, nil)
			case outcome.n == 0:
				next.SetResult(struct{}{}, reactorio.NewError(reactorio.CategoryConnectionAborted, "client disconnected"))
			default:
				logger.Info("received", slog.String("addr", accepted.Address.String()), slog.String("data", string(buf[:outcome.n])))
				fut.Write(rc, accepted.Client, buf[:outcome.n]).AddResultCallback(func(_ int, werr error) {
					next.SetResult(struct{}{}, werr)
				})
			}
		})

		return next
	}).Await(ctx)

	var reactorErr *reactorio.Error
	if errors.As(err, &reactorErr) && reactorErr.Category == reactorio.CategoryConnectionAborted {
		logger.Info("client disconnected", slog.String("addr", accepted.Address.String()))
		return nil
	}
	return err
}
