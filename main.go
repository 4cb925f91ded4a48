package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/nexcore/regionmap/mapgen"
	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/render"
)

func main() {
	app := &cli.App{
		Name:  "regionmap",
		Usage: "renders top-down maps from saved world region files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "data",
				Usage:   "directory holding packs/ and block_colors.json",
				EnvVars: []string{"REGIONMAP_DATA_DIR"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "chunk slots decoded concurrently per region (0 = number of CPUs)",
				EnvVars: []string{"REGIONMAP_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "region-workers",
				Usage:   "regions rendered concurrently by generate (0 = number of CPUs)",
				EnvVars: []string{"REGIONMAP_REGION_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "max-decompressed",
				Value:   region.DefaultMaxDecompressed,
				Usage:   "upper bound in bytes for one decompressed chunk",
				EnvVars: []string{"REGIONMAP_MAX_DECOMPRESSED"},
			},
			&cli.Int64SliceFlag{
				Name:    "base-offset",
				Value:   cli.NewInt64Slice(region.BaseOffsetRenderer, region.BaseOffsetProbe),
				Usage:   "candidate sector table offsets, in order of preference",
				EnvVars: []string{"REGIONMAP_BASE_OFFSETS"},
			},
			&cli.IntFlag{
				Name:    "preview-size",
				Value:   64,
				Usage:   "pixels per region in map_preview.png (0 disables the preview)",
				EnvVars: []string{"REGIONMAP_PREVIEW_SIZE"},
			},
			&cli.IntFlag{
				Name:    "preview-max-side",
				Value:   mapgen.DefaultPreviewMaxSide,
				Usage:   "largest side in pixels of map_preview.png; region tiles shrink to fit",
				EnvVars: []string{"REGIONMAP_PREVIEW_MAX_SIDE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"REGIONMAP_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "serve Prometheus metrics on this address while running, e.g. :9105",
				EnvVars: []string{"REGIONMAP_METRICS_ADDR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "render one region tile",
				ArgsUsage: "<pack> <save> <rx> <rz>",
				Flags:     []cli.Flag{worldFlag, forceFlag},
				Action:    renderAction,
			},
			{
				Name:      "generate",
				Usage:     "render every region of a world",
				ArgsUsage: "<pack> <save>",
				Flags:     []cli.Flag{worldFlag, forceFlag},
				Action:    generateAction,
			},
			{
				Name:      "manifest",
				Usage:     "print world bounds aggregated from the tile cache",
				ArgsUsage: "<pack> <save>",
				Flags:     []cli.Flag{worldFlag},
				Action:    manifestAction,
			},
			{
				Name:      "worlds",
				Usage:     "list the worlds of a save",
				ArgsUsage: "<pack> <save>",
				Action:    worldsAction,
			},
			dumpCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	worldFlag = &cli.StringFlag{Name: "world", Usage: "world to use instead of the default pick"}
	forceFlag = &cli.BoolFlag{Name: "force", Usage: "re-render tiles even when the cache is fresh"}
)

// session carries everything a command needs; it is built once per invocation.
type session struct {
	ctx     context.Context
	logger  log.Logger
	service *mapgen.Service
	stop    func()
}

func newSession(c *cli.Context) (*session, error) {
	logger, err := newLogger(c.String("log-level"))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := render.NewMetrics(reg)

	cfg := mapgen.DefaultConfig(c.String("data-dir"))
	cfg.Region.BaseOffsets = c.Int64Slice("base-offset")
	cfg.Render = render.Config{Workers: c.Int("workers"), MaxDecompressed: c.Int("max-decompressed")}
	cfg.RegionWorkers = c.Int("region-workers")
	cfg.PreviewTileSize = c.Int("preview-size")
	cfg.PreviewMaxSide = c.Int("preview-max-side")

	service, err := mapgen.NewService(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	s := &session{ctx: ctx, logger: logger, service: service, stop: cancel}

	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			level.Info(logger).Log("msg", "starting metrics server", "addr", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				level.Error(logger).Log("msg", "metrics server failed", "err", err)
			}
		}()
		s.stop = func() {
			cancel()
			_ = server.Close()
		}
	}
	return s, nil
}

func newLogger(lvl string) (log.Logger, error) {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	var option level.Option
	switch lvl {
	case "debug":
		option = level.AllowDebug()
	case "info", "":
		option = level.AllowInfo()
	case "warn":
		option = level.AllowWarn()
	case "error":
		option = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
	return level.NewFilter(logger, option), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func needArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: expected arguments %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}

func parseRegionCoord(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid region coordinate %q", s)
	}
	return int32(v), nil
}

func renderAction(c *cli.Context) error {
	if err := needArgs(c, 4); err != nil {
		return err
	}
	rx, err := parseRegionCoord(c.Args().Get(2))
	if err != nil {
		return err
	}
	rz, err := parseRegionCoord(c.Args().Get(3))
	if err != nil {
		return err
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.stop()

	result, err := s.service.RenderRegionTile(s.ctx, c.Args().Get(0), c.Args().Get(1), rx, rz, c.String("world"), c.Bool("force"))
	if err != nil {
		_ = printJSON(map[string]string{"status": mapgen.StatusError, "message": err.Error()})
		return err
	}
	return printJSON(result)
}

func generateAction(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.stop()

	result, err := s.service.GenerateWorldMap(s.ctx, c.Args().Get(0), c.Args().Get(1), c.String("world"), c.Bool("force"))
	if err != nil {
		_ = printJSON(map[string]string{"status": mapgen.StatusError, "message": err.Error()})
		return err
	}
	return printJSON(result)
}

func manifestAction(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.stop()

	m, err := s.service.GetMapManifest(c.Args().Get(0), c.Args().Get(1), c.String("world"))
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"status": mapgen.StatusSuccess, "manifest": m})
}

func worldsAction(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.stop()

	worlds, err := s.service.ListWorlds(c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(worlds)
}
