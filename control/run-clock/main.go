// Command run-clock runs the clock appliance: the timekeeper, the display, the alarm, and the
// configuration service, plus a debug HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrockway/segment-clock/control/alarm"
	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/gatt"
	"github.com/jrockway/segment-clock/control/latest"
	"github.com/jrockway/segment-clock/control/logging"
	"github.com/jrockway/segment-clock/control/screen"
	"github.com/jrockway/segment-clock/control/settings"
	"github.com/jrockway/segment-clock/control/status"
	"github.com/jrockway/segment-clock/control/tm1637"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/net/trace"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	configPath string
	bind       string
	logLevel   string
	noHardware bool
)

var rootCmd = &cobra.Command{
	Use:          "run-clock",
	Short:        "Run the 7-segment clock",
	Long:         "Keep time, show it on a TM1637 display, ring the alarm, and accept configuration writes.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runClock,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "TOML settings file; defaults are used when empty")
	rootCmd.Flags().StringVar(&bind, "bind", "", "address to bind for the debug/metrics server (overrides http.bind)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	rootCmd.Flags().BoolVar(&noHardware, "no-hardware", false, "run without a display attached; the face is only drawn on the status page")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openDisplay finds the display's pins and starts the driver.
func openDisplay(cfg settings.Display, log zerolog.Logger) (*tm1637.Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph.io: %w", err)
	}
	clk := gpioreg.ByName(cfg.ClockPin)
	if clk == nil {
		return nil, fmt.Errorf("no gpio pin named %q for CLK", cfg.ClockPin)
	}
	dio := gpioreg.ByName(cfg.DataPin)
	if dio == nil {
		return nil, fmt.Errorf("no gpio pin named %q for DIO", cfg.DataPin)
	}
	dev, err := tm1637.New(clk, dio, cfg.BitDelay, tm1637.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("init display: %w", err)
	}
	dev.SetBrightness(cfg.Brightness, cfg.On)
	return dev, nil
}

func runClock(cmd *cobra.Command, args []string) error {
	cfg, err := settings.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("bind") {
		cfg.HTTP.Bind = bind
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	logger := logging.Setup(cfg.Log.Level)

	st := status.Status{Started: time.Now()}
	var segs screen.Segments
	if noHardware {
		st.Hardware = "none (--no-hardware)"
	} else {
		dev, err := openDisplay(cfg.Display, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := dev.Close(); err != nil {
				logger.Error().Err(err).Msg("blanking display")
			}
		}()
		segs = dev
		level, on := dev.Brightness()
		st.Hardware = fmt.Sprintf("TM1637 clk=%s dio=%s", cfg.Display.ClockPin, cfg.Display.DataPin)
		st.Brightness = fmt.Sprintf("%d/7 on=%v", level, on)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var now latest.Value[clock.Time]
	sched := clock.NewScheduler(cfg.Clock.Start, &now, clock.WithInterval(cfg.Clock.Interval), clock.WithLogger(logger))
	face := screen.New(segs, logger)
	al := alarm.New(cfg.Alarm.At, alarm.LogRinger{Log: logger})
	if !cfg.Alarm.Enabled {
		al.Disable()
	}
	page := status.New(face, al, logger)
	page.Update(st)

	// The configuration service is optional; the clock runs without it.
	queue := gatt.NewQueueSink(cfg.GATT.Queue)
	config := gatt.New(queue, gatt.WithLogger(logger))
	defer config.Close()
	table := gatt.NewTable(cfg.GATT.MaxAttributes, gatt.WithRegisterHandler(config.Registered), gatt.WithSubscribeHandler(config.Subscribed))
	configOK := true
	if err := config.Register(table); err != nil {
		logger.Error().Err(err).Msg("configuration service disabled")
		page.Update(status.Status{ConfigErr: err.Error()})
		configOK = false
	}

	r := chi.NewRouter()
	r.Use(logging.RequestLogger(logger))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/status", http.StatusFound)
	})
	r.Handle("/status", page)
	r.Handle("/display.png", face)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/debug/events", trace.Events)
	r.HandleFunc("/debug/requests", trace.Traces)
	if configOK {
		r.Mount("/gatt", gatt.NewHandler(table, logger))
	}

	httpDoneCh := make(chan error)
	httpServer := &http.Server{Addr: cfg.HTTP.Bind, Handler: r}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		err := httpServer.ListenAndServe()
		select {
		case httpDoneCh <- err:
		case <-ctx.Done():
		}
		close(httpDoneCh)
	}()

	// Readers are created before the scheduler starts so that they see its first tick.
	displayReader := now.NewReader("display")
	alarmReader := now.NewReader("alarm")

	var wg sync.WaitGroup
	loopDoneCh := make(chan error)
	run := func(name string, f func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f(ctx)
			select {
			case loopDoneCh <- fmt.Errorf("%s: %w", name, err):
			case <-ctx.Done():
			}
		}()
	}
	run("scheduler", sched.Run)
	run("display", func(ctx context.Context) error { return face.Run(ctx, displayReader) })
	run("alarm", func(ctx context.Context) error { return al.Run(ctx, alarmReader) })
	if configOK {
		run("config sink", func(ctx context.Context) error {
			return queue.Run(ctx, gatt.MultiSink{gatt.LogSink{Log: logger}, page})
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logger.Info().Stringer("start", cfg.Clock.Start).Stringer("alarm", cfg.Alarm.At).Msg("clock running")
	var result error
	httpAlive := true
	select {
	case err := <-httpDoneCh:
		logger.Error().Err(err).Msg("http server died")
		httpAlive = false
		result = fmt.Errorf("http server: %w", err)
	case err := <-loopDoneCh:
		logger.Error().Err(err).Msg("clock loop died")
		result = err
	case sig := <-sigCh:
		logger.Info().Stringer("signal", sig).Msg("shutting down")
	}
	signal.Stop(sigCh)
	cancel()
	wg.Wait() // The display goroutine must be done with the bus before Close blanks it.
	if httpAlive {
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		if err := httpServer.Shutdown(tctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error().Err(err).Msg("shutting down http server")
		}
		c()
	}
	return result
}
