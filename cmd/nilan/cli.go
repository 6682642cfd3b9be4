// cmd/nilan/cli.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/config"
	"github.com/tamzrod/nilan-modbus/internal/device"
	"github.com/tamzrod/nilan-modbus/internal/metrics"
	"github.com/tamzrod/nilan-modbus/internal/mqtt"
	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/poller"
	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/status"
)

const defaultConfigFile = "nilan.yaml"

var (
	cfgFile   string
	logger    = zap.NewNop()
	appConfig *config.Config
	warnings  []string
	overrides = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:          "nilan",
	Short:        "Nilan ventilation unit over Modbus",
	Long:         "Polls a Nilan ventilation / heat-pump unit over Modbus RTU and exposes its state and controls.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if cmd.Flags().Changed("interval") {
			d, _ := cmd.Flags().GetDuration("interval")
			overrides.Set(config.KeyIntervalMs, int(d/time.Millisecond))
		}

		cfg, warns, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig, warnings = cfg, warns

		logger, err = newLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		for _, w := range warnings {
			logger.Warn(w)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// loadConfig reads the config file (optional when not given explicitly),
// layers env and flag overrides, then validates and normalizes.
func loadConfig() (*config.Config, []string, error) {
	cfg := &config.Config{}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = c
	}

	config.ApplyOverrides(cfg, overrides)

	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, config.Normalize(cfg), nil
}

// ---- run ----

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the unit and serve metrics / MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dc := device.Config{Logger: logger}
		sinks := notify.Fanout{notify.NewLogSink(logger)}

		var exporter *metrics.Exporter
		if appConfig.Metrics.Enabled {
			exporter = metrics.New()
			dc.Observers = append(dc.Observers, exporter)
			dc.OnCommand = exporter.Command
		}

		var bridge *mqtt.Bridge
		if appConfig.MQTT.Enabled {
			b, disconnect, err := mqtt.Connect(appConfig.MQTT, logger)
			if err != nil {
				return err
			}
			defer disconnect()

			bridge = b
			sinks = append(sinks, bridge)
			dc.Observers = append(dc.Observers, bridge)
		}
		dc.Sink = sinks

		ctrl, closeLink, err := device.Build(appConfig.Device, dc)
		if err != nil {
			return err
		}
		defer closeLink()

		if bridge != nil {
			if err := bridge.Subscribe(ctx, ctrl); err != nil {
				return err
			}
		}

		if exporter != nil {
			go func() {
				if err := exporter.Serve(ctx, appConfig.Metrics.Listen, appConfig.Metrics.Path, logger); err != nil {
					logger.Error("metrics server stopped", zap.Error(err))
				}
			}()
		}

		logger.Info("polling",
			zap.String("transport", appConfig.Device.Transport),
			zap.String("port", appConfig.Device.Port),
			zap.String("endpoint", appConfig.Device.Endpoint),
			zap.Uint8("slave", appConfig.Device.Slave),
			zap.Duration("interval", appConfig.Interval()),
		)

		err = ctrl.Run(ctx, appConfig.Interval())
		logger.Info("stopped")
		return err
	},
}

// ---- read ----

type readOutput struct {
	State  map[string]any    `json:"state"`
	Health *status.Snapshot  `json:"health,omitempty"`
	Failed map[string]string `json:"failed,omitempty"`
}

var readCmd = &cobra.Command{
	Use:   "read [attribute...]",
	Short: "Run one poll cycle (or read the given attributes) and print the state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			out := readOutput{}

			if len(args) == 0 {
				res, err := ctrl.Update(ctx)
				if err != nil {
					return err
				}
				h := ctrl.Health()
				out.Health = &h
				out.Failed = failures(res.Failed)
			} else {
				attrs := make([]registers.Attribute, len(args))
				for i, a := range args {
					attrs[i] = registers.Attribute(a)
				}
				res, err := ctrl.Refresh(ctx, attrs...)
				if err != nil {
					return err
				}
				out.Failed = failures(res.Failed)
			}

			out.State = ctrl.Snapshot().Present()
			if len(args) > 0 {
				filtered := make(map[string]any, len(args))
				for _, a := range args {
					filtered[a] = out.State[a]
				}
				out.State = filtered
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		})
	},
}

func failures(fes []poller.FieldError) map[string]string {
	if len(fes) == 0 {
		return nil
	}
	m := make(map[string]string, len(fes))
	for _, fe := range fes {
		m[string(fe.Attribute)] = fe.Err.Error()
	}
	return m
}

// ---- set ----

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Write one setting to the unit",
}

var setHVACModeCmd = &cobra.Command{
	Use:   "hvac-mode <Heat|Cool|HeatCool>",
	Short: "Set the HVAC mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			return ctrl.SetHVACMode(ctx, args[0])
		})
	},
}

var setTemperatureCmd = &cobra.Command{
	Use:   "temperature <celsius>",
	Short: "Set the target room temperature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("temperature %q: %w", args[0], err)
		}
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			return ctrl.SetTargetTemperature(ctx, c)
		})
	},
}

var setFanModeCmd = &cobra.Command{
	Use:   "fan-mode <off|min|normal-low|normal-high|high>",
	Short: "Set the fan mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			return ctrl.SetFanMode(ctx, args[0])
		})
	},
}

var setAirExchangeCmd = &cobra.Command{
	Use:   "air-exchange <Energy|Comfort|ComfortWater>",
	Short: "Set the air exchange mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			return ctrl.SetAirExchangeMode(ctx, args[0])
		})
	},
}

var setCoolingSetpointCmd = &cobra.Command{
	Use:   "cooling-setpoint <0-8>",
	Short: "Set the cooling offset by code (0 = off)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("cooling setpoint %q: %w", args[0], err)
		}
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			return ctrl.SetCoolingSetpoint(ctx, code)
		})
	},
}

var setHotwaterCmd = &cobra.Command{
	Use:   "hotwater",
	Short: "Set the boiler top and/or bottom setpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		var top, bottom *float64
		if cmd.Flags().Changed("top") {
			v, _ := cmd.Flags().GetFloat64("top")
			top = &v
		}
		if cmd.Flags().Changed("bottom") {
			v, _ := cmd.Flags().GetFloat64("bottom")
			bottom = &v
		}
		if top == nil && bottom == nil {
			return errors.New("at least one of --top or --bottom is required")
		}
		return withController(cmd, func(ctx context.Context, ctrl *device.Controller) error {
			return ctrl.SetHotwaterSetpoints(ctx, top, bottom)
		})
	},
}

// withController opens the link for a one-shot command.
func withController(cmd *cobra.Command, fn func(ctx context.Context, ctrl *device.Controller) error) error {
	ctrl, closeLink, err := device.Build(appConfig.Device, device.Config{
		Logger: logger,
		Sink:   notify.NewLogSink(logger),
	})
	if err != nil {
		return err
	}
	defer closeLink()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	return fn(ctx, ctrl)
}

// ---- config ----

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		d := appConfig.Device

		fmt.Fprintln(w, "config ok")
		fmt.Fprintf(w, "  transport: %s\n", d.Transport)
		if d.Transport == "tcp" {
			fmt.Fprintf(w, "  endpoint:  %s\n", d.Endpoint)
		} else {
			fmt.Fprintf(w, "  port:      %s %d %d%s%d\n", d.Port, d.BaudRate, d.DataBits, d.Parity, d.StopBits)
		}
		fmt.Fprintf(w, "  slave:     %d\n", d.Slave)
		fmt.Fprintf(w, "  interval:  %s\n", appConfig.Interval())
		fmt.Fprintf(w, "  metrics:   %t\n", appConfig.Metrics.Enabled)
		fmt.Fprintf(w, "  mqtt:      %t\n", appConfig.MQTT.Enabled)
		for _, warn := range warnings {
			fmt.Fprintf(w, "  warning:   %s\n", warn)
		}
		return nil
	},
}

// ---- version ----

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "nilan version %s\n", Version)
		fmt.Fprintf(w, "  Build: %s\n", BuildTime)
		fmt.Fprintf(w, "  Commit: %s\n", GitCommit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default ./"+defaultConfigFile+" when present)")
	pf.String("port", "", "serial port, e.g. /dev/ttyUSB0")
	pf.Uint("slave", 0, "Modbus unit address")
	pf.Duration("interval", 0, "poll interval, e.g. 30s")

	_ = overrides.BindPFlag(config.KeyPort, pf.Lookup("port"))
	_ = overrides.BindPFlag(config.KeySlave, pf.Lookup("slave"))

	setHotwaterCmd.Flags().Float64("top", 0, "top setpoint in °C")
	setHotwaterCmd.Flags().Float64("bottom", 0, "bottom setpoint in °C")

	setCmd.AddCommand(
		setHVACModeCmd,
		setTemperatureCmd,
		setFanModeCmd,
		setAirExchangeCmd,
		setCoolingSetpointCmd,
		setHotwaterCmd,
	)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(
		runCmd,
		readCmd,
		setCmd,
		configCmd,
		versionCmd,
	)
}
