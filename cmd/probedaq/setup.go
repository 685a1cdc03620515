package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jingxuanxu04/LAPD-DAQ/bounds"
	"github.com/jingxuanxu04/LAPD-DAQ/daqconfig"
	"github.com/jingxuanxu04/LAPD-DAQ/logging"
	"github.com/jingxuanxu04/LAPD-DAQ/metrics"
	"github.com/jingxuanxu04/LAPD-DAQ/motion"
	"github.com/jingxuanxu04/LAPD-DAQ/motor"
	"github.com/jingxuanxu04/LAPD-DAQ/scl"
)

// rig is everything a command needs after configuration is loaded and the
// drives are connected.
type rig struct {
	cfg  *daqconfig.Config
	log  *slog.Logger
	axes []*motor.Axis
	ctrl *motion.Controller
	reg  *prometheus.Registry
}

// buildRig loads the configuration, connects every axis, and assembles
// the motion controller.
func buildRig(ctx context.Context, cfgPath string) (*rig, error) {
	cfg, err := daqconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.Setup(os.Stderr, logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, err
	}

	tf, err := cfg.Transform()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	checker := bounds.New(cfg.BoundarySet(tf), cfg.PlannerParams())
	checker.SetLogger(log)
	checker.SetMetrics(metrics.NewPlanner(reg))

	r := &rig{cfg: cfg, log: log, reg: reg}
	for _, ac := range cfg.Axes {
		ax, err := motor.New(ctx, motor.Config{
			Name:           ac.Name,
			Dial:           dialerFor(ac),
			CmPerTurn:      ac.CmPerTurn,
			StopSwitchMode: ac.StopSwitchMode,
			Accel:          ac.Accel,
			Decel:          ac.Decel,
			PollInterval:   cfg.Motion.PollInterval.Std(),
			MoveTimeout:    cfg.Motion.MoveTimeout.Std(),
			Logger:         log,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("connecting %s axis: %w", ac.Name, err)
		}
		r.axes = append(r.axes, ax)
		log.Info("axis connected", "axis", ac.Name)
	}

	ctrlAxes := make([]motion.Axis, len(r.axes))
	for i, ax := range r.axes {
		ctrlAxes[i] = ax
	}
	r.ctrl, err = motion.New(motion.Config{
		Axes:           ctrlAxes,
		Transform:      tf,
		Checker:        checker,
		MaxVelocity:    cfg.Motion.MaxVelocity,
		PollInterval:   cfg.Motion.PollInterval.Std(),
		SegmentTimeout: cfg.Motion.SegmentTimeout.Std(),
		Logger:         log,
		Metrics:        metrics.NewMotion(reg),
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func dialerFor(ac daqconfig.AxisConfig) func(ctx context.Context) (scl.Conn, error) {
	if ac.Address != "" {
		return func(ctx context.Context) (scl.Conn, error) {
			return scl.DialTCP(ctx, scl.TCPConfig{Address: ac.Address})
		}
	}
	return func(ctx context.Context) (scl.Conn, error) {
		return scl.OpenSerial(scl.SerialConfig{Device: ac.SerialDevice, Baud: ac.Baud})
	}
}

// serveMetrics exposes the Prometheus registry when metrics_addr is set.
func (r *rig) serveMetrics() {
	addr := r.cfg.MetricsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	go func() {
		r.log.Info("serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			r.log.Error("metrics server stopped", "error", err)
		}
	}()
}

// Close releases every drive link.
func (r *rig) Close() {
	for _, ax := range r.axes {
		if err := ax.Close(); err != nil {
			r.log.Warn("closing axis", "axis", ax.Name(), "error", err)
		}
	}
}
