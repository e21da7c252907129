package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/malanthrax/Arandu-maxi/internal/config"
	"github.com/malanthrax/Arandu-maxi/internal/download"
	"github.com/malanthrax/Arandu-maxi/internal/events"
	"github.com/malanthrax/Arandu-maxi/internal/process"
)

func main() {
	log := logrus.New()

	app := cli.App{
		Name:        "arandud",
		Description: "download GGUF models and run llama-server instances",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the config file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{{
			Name:        "download",
			Description: "download a model, waiting for completion",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "url",
					Usage:    "file URL, or base URL when --file is given",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "dest",
					Usage: "destination directory; defaults to the configured models dir",
				},
				&cli.StringFlag{
					Name:  "subfolder",
					Usage: "subfolder created under the destination",
				},
				&cli.StringSliceFlag{
					Name:  "file",
					Usage: "file to fetch relative to --url; repeatable",
				},
				&cli.StringSliceFlag{
					Name:  "header",
					Usage: "custom request header as 'Name: value'; repeatable",
				},
				&cli.BoolFlag{
					Name:  "extract",
					Usage: "extract downloaded zip archives",
				},
			},
			Action: withConfig(log, func(cfg *config.Config, ctx *cli.Context) error {
				return runDownload(cfg, ctx, log)
			}),
		}, {
			Name:        "clean",
			Description: "remove leftover partial downloads from the model dirs",
			Action: withConfig(log, func(cfg *config.Config, ctx *cli.Context) error {
				n, err := download.CleanLeftovers(cfg.ModelDirs(), log)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d partial download(s)\n", n)
				return nil
			}),
		}, {
			Name:        "serve",
			Description: "run llama-server for a model, streaming its output",
			Flags:       serveFlags(),
			Action: withConfig(log, func(cfg *config.Config, ctx *cli.Context) error {
				return runServe(cfg, ctx, log)
			}),
		}, {
			Name:        "serve-external",
			Description: "run llama-server for a model in a new terminal window",
			Flags:       serveFlags(),
			Action: withConfig(log, func(cfg *config.Config, ctx *cli.Context) error {
				sup := process.NewSupervisor(process.Options{Config: cfg, Logger: log})
				return sup.LaunchExternal(launchSpec(ctx))
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "model",
			Usage:    "path to the model file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "bind host; defaults to the model's configured host",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "requested port; defaults to the model's configured port",
		},
		&cli.StringFlag{
			Name:  "args",
			Usage: "extra llama-server arguments, quoted as one string",
		},
	}
}

func launchSpec(ctx *cli.Context) process.LaunchSpec {
	return process.LaunchSpec{
		ModelPath:  ctx.String("model"),
		Host:       ctx.String("host"),
		Port:       ctx.Int("port"),
		CustomArgs: ctx.String("args"),
	}
}

// withConfig loads the configuration before running the action: the
// --config file if given, otherwise the default location if it exists,
// with ARANDU_* environment overrides applied on top.
func withConfig(log *logrus.Logger, f func(*config.Config, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		path := ctx.String("config")
		if path == "" {
			path = defaultConfigPath()
		}

		cfg := config.Default()
		if path != "" {
			if loaded, err := config.LoadFromFile(path); err == nil {
				cfg = loaded
			} else if ctx.String("config") != "" {
				return err
			}
		}
		if err := cfg.LoadFromEnv(); err != nil {
			return err
		}
		return f(&cfg, ctx)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "arandu", "config.yaml")
}

func runDownload(cfg *config.Config, ctx *cli.Context, log *logrus.Logger) error {
	dest := ctx.String("dest")
	if dest == "" {
		dest = cfg.ModelsDir
	}
	if dest == "" {
		return errors.New("no destination: pass --dest or configure models_dir")
	}

	headers := map[string]string{}
	for _, h := range ctx.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("malformed header %q, want 'Name: value'", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	mgr := download.NewManager(download.Options{
		Logger: log,
		Events: events.LogSink{Logger: log},
	})

	id, err := mgr.Start(download.Spec{
		BaseURL:        ctx.String("url"),
		DestinationDir: dest,
		Subfolder:      ctx.String("subfolder"),
		Files:          ctx.StringSlice("file"),
		Headers:        headers,
		AutoExtract:    ctx.Bool("extract"),
	})
	if err != nil {
		return err
	}

	// First interrupt cancels the job; the worker removes the partial
	// file before going terminal.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		mgr.Cancel(id)
	}()

	for {
		st, err := mgr.Status(id)
		if err != nil {
			return err
		}
		fmt.Printf("\r%3d%%  %s/s  %s (%d/%d files)   ",
			st.Progress,
			humanize.Bytes(uint64(st.Speed)),
			st.CurrentFile,
			st.FilesCompleted,
			st.TotalFiles,
		)
		if st.State.Terminal() {
			fmt.Println()
			if st.State != download.StateCompleted {
				return fmt.Errorf("download %s: %s", st.State, st.Error)
			}
			fmt.Println(st.Message)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func runServe(cfg *config.Config, ctx *cli.Context, log *logrus.Logger) error {
	sup := process.NewSupervisor(process.Options{Config: cfg, Logger: log})

	info, err := sup.Launch(launchSpec(ctx))
	if err != nil {
		return err
	}
	fmt.Printf("%s listening on %s:%d (pid %d)\n", info.ModelName, info.Host, info.Port, info.PID)

	// First signal asks the server to stop; a second one kills
	// everything without waiting.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		go func() {
			<-sigs
			sup.ForceShutdown()
		}()
		if err := sup.Shutdown(shutCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	for {
		lines, err := sup.ReadNewOutput(info.ID)
		if err != nil {
			// The process exited and left the table.
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
