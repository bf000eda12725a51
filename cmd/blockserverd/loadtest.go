// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"code.hybscloud.com/blockserver"
	"code.hybscloud.com/blockserver/control"
	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/blockserver/internal/config"
	"code.hybscloud.com/blockserver/pkg/metrics"
	"code.hybscloud.com/iox"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	loadtestClients  int
	loadtestRequests int
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive synthetic clients against a RAM disk",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if loadtestClients > 0 {
			cfg.LoadTest.Clients = loadtestClients
		}
		if loadtestRequests > 0 {
			cfg.LoadTest.Requests = loadtestRequests
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.LoadTest.Timeout)
		defer cancel()
		return runLoadTest(ctx, cfg, log)
	},
}

// loadResult is what one synthetic client observed.
type loadResult struct {
	completed int
	failed    int
	err       error
}

func runLoadTest(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
		stopHTTP := serveMetrics(cfg.Metrics, m, log)
		defer stopHTTP()
	}

	typ, instance, err := cfg.Server.Partition.GUIDs()
	if err != nil {
		return err
	}
	sc := cfg.Server
	disk := newRAMDisk(log, sc.BlockSize, sc.BlockCount)
	srv, err := blockserver.New(blockserver.PartitionInfo{
		Name:         sc.Partition.Name,
		TypeGUID:     typ,
		InstanceGUID: instance,
		BlockSize:    sc.BlockSize,
		BlockCount:   sc.BlockCount,
	}, disk,
		blockserver.WithLogger(log),
		blockserver.WithMetrics(m),
		blockserver.WithFifoDepth(sc.FifoDepth),
		blockserver.WithBatchSize(sc.BatchSize),
		blockserver.WithMaxTransfer(sc.MaxTransfer),
	)
	if err != nil {
		return err
	}
	disk.srv = srv

	// Closing the server ends every session, which unblocks clients
	// waiting on their rings.
	var closeOnce sync.Once
	closeServer := func() { closeOnce.Do(srv.Close) }
	defer closeServer()
	stopWatch := context.AfterFunc(ctx, closeServer)
	defer stopWatch()

	lt := cfg.LoadTest
	if uint64(lt.Blocks) > sc.BlockCount {
		return fmt.Errorf("loadtest: %d blocks per request exceed the %d-block device", lt.Blocks, sc.BlockCount)
	}
	results := make([]loadResult, lt.Clients)
	start := time.Now()
	var wg sync.WaitGroup
	for i := range lt.Clients {
		wg.Go(func() {
			results[i] = runClient(srv, sc, lt, uint32(i))
		})
	}
	wg.Wait()
	elapsed := time.Since(start)
	closeServer()
	disk.sessions.Wait()

	var total, failed int
	var errs []error
	for i, r := range results {
		total += r.completed
		failed += r.failed
		if r.err != nil {
			errs = append(errs, fmt.Errorf("client %d: %w", i, r.err))
		}
	}
	log.Info("load test finished",
		zap.Int("clients", lt.Clients),
		zap.Int("completed", total),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed),
		zap.Float64("iops", float64(total)/elapsed.Seconds()),
	)
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// runClient negotiates a session and keeps up to half a ring of requests
// in flight until lt.Requests complete.
func runClient(srv *blockserver.BlockServer, sc config.ServerConfig, lt config.LoadTestConfig, id uint32) loadResult {
	var res loadResult
	cli, ch := control.New()
	defer cli.Close()
	srv.Serve(ch)

	session, err := control.OpenSession(cli)
	if err != nil {
		res.err = err
		return res
	}
	defer session.Close()
	ring, err := control.GetFifo(session)
	if err != nil {
		res.err = err
		return res
	}
	window := max(ring.Depth()/2, 1)
	buf, err := control.AttachBuffer(session, make([]byte, uint64(window)*uint64(lt.Blocks)*uint64(sc.BlockSize)))
	if err != nil {
		res.err = err
		return res
	}

	rng := rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))
	span := sc.BlockCount - uint64(lt.Blocks) + 1
	slots := make([]uint32, 0, window)
	for s := range window {
		slots = append(slots, uint32(s))
	}
	var (
		sent    int
		pending = make(map[uint32]uint32, window) // reqid -> slot
		nextID  uint32
		req     [1]fifo.Request
		resps   = make([]fifo.Response, window)
		backoff iox.Backoff
	)
	for res.completed+res.failed < lt.Requests {
		for sent < lt.Requests && len(slots) > 0 {
			slot := slots[len(slots)-1]
			nextID++
			op := fifo.OpWrite
			if rng.IntN(2) == 0 {
				op = fifo.OpRead
			}
			req[0] = fifo.Request{
				Opcode:       op,
				Buffer:       buf,
				ReqID:        nextID,
				Length:       lt.Blocks,
				BufferOffset: uint64(slot) * uint64(lt.Blocks),
				DeviceOffset: rng.Uint64N(span),
				TraceFlowID:  uint64(id)<<32 | uint64(nextID),
			}
			if _, err := ring.Write(req[:]); err != nil {
				if errors.Is(err, iox.ErrWouldBlock) {
					break
				}
				res.err = err
				return res
			}
			slots = slots[:len(slots)-1]
			pending[nextID] = slot
			sent++
		}

		n, err := ring.Read(resps)
		for _, r := range resps[:n] {
			slot, ok := pending[r.ReqID]
			if !ok {
				res.err = fmt.Errorf("response for unknown request %d", r.ReqID)
				return res
			}
			delete(pending, r.ReqID)
			slots = append(slots, slot)
			if r.Status == fifo.StatusOK {
				res.completed++
			} else {
				res.failed++
			}
		}
		switch {
		case err == nil:
			backoff.Reset()
		case errors.Is(err, iox.ErrWouldBlock):
			if len(pending) > 0 {
				ring.Wait(fifo.SignalReadable | fifo.SignalPeerClosed)
			} else {
				backoff.Wait()
			}
		default:
			res.err = err
			return res
		}
	}
	return res
}

// serveMetrics exposes the registry over HTTP and returns a function that
// shuts the listener down.
func serveMetrics(cfg config.MetricsConfig, m *metrics.Metrics, log *zap.Logger) func() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, cfg.Path, m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	hs := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}
}
