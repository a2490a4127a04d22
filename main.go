package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/pipeline"
	"github.com/manningwu07/riffgpt/utils"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := params.Load()
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return 2
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "riffgpt@" + releaseVersion,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	settingsPath, err := params.SettingsPath()
	if err != nil {
		log.Printf("settings path: %v", err)
		return 1
	}
	settings, err := params.LoadSettings(settingsPath)
	if err != nil {
		log.Printf("could not read %s, using defaults: %v", settingsPath, err)
		settings = params.DefaultSettings()
	}

	opts, err := parseFlags(os.Args[1:], settings, cfg.Offline)
	if err != nil {
		log.Println(err)
		return 2
	}
	cfg.Offline = opts.offline
	if !params.IsStyle(opts.req.Style) {
		log.Printf("unknown style %q, generators fall back to their defaults", opts.req.Style)
	}

	if opts.saveSettings {
		s := params.Settings{Style: opts.req.Style, Tempo: opts.req.Tempo, Bars: opts.req.Bars}
		if err := s.Save(settingsPath); err != nil {
			log.Printf("could not save settings: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newProgressWriter(os.Stdout)
	p := pipeline.New(cfg, out)
	genSeed := opts.seed
	if genSeed == 0 {
		genSeed = uint64(time.Now().UnixNano())
	}
	p.Rand = utils.NewRand(genSeed)

	res, err := p.Run(ctx, opts.req)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		return 1
	}
	if len(res.EpochLosses) > 0 {
		lossPlot(os.Stdout, res.EpochLosses)
	}
	return 0
}

type options struct {
	req          pipeline.Request
	seed         uint64
	offline      bool
	saveSettings bool
}

// parseFlags reads the command line; style, tempo and bars default to the
// remembered settings and the mode defaults to train.
func parseFlags(args []string, settings params.Settings, offline bool) (options, error) {
	fs := flag.NewFlagSet("riffgpt", flag.ContinueOnError)
	mode := fs.String("mode", string(pipeline.ModeTrain), "train | generate | pattern | quick")
	style := fs.String("style", settings.Style, "da_funk | around_world | harder_better")
	tempo := fs.Int("tempo", settings.Tempo, "tempo in BPM")
	bars := fs.Int("bars", settings.Bars, "bars to generate")
	seed := fs.Uint64("seed", 0, "generation seed (0 picks one from the clock)")
	off := fs.Bool("offline", offline, "skip corpus downloads")
	save := fs.Bool("save-settings", false, "remember style, tempo and bars for the next run")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	m, err := pipeline.ParseMode(*mode)
	if err != nil {
		return options{}, err
	}
	return options{
		req:          pipeline.Request{Mode: m, Style: *style, Tempo: *tempo, Bars: *bars},
		seed:         *seed,
		offline:      *off,
		saveSettings: *save,
	}, nil
}
