package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasa-jpl/akd2g/generichttp"
	"github.com/nasa-jpl/akd2g/generichttp/ascii"
	"github.com/nasa-jpl/akd2g/generichttp/motion"
	"github.com/nasa-jpl/akd2g/kollmorgen"
	"github.com/nasa-jpl/akd2g/motor"
	"github.com/nasa-jpl/akd2g/server/middleware/locker"
	"github.com/nasa-jpl/akd2g/util"
)

// AxisConfig holds the motion profile and travel limits of one axis.
// Velocities are in drive units per second, accelerations per second squared.
type AxisConfig struct {
	Velocity         float64 `yaml:"Velocity" koanf:"Velocity"`
	BaseVelocity     float64 `yaml:"BaseVelocity" koanf:"BaseVelocity"`
	Acceleration     float64 `yaml:"Acceleration" koanf:"Acceleration"`
	HomeVelocity     float64 `yaml:"HomeVelocity" koanf:"HomeVelocity"`
	HomeAcceleration float64 `yaml:"HomeAcceleration" koanf:"HomeAcceleration"`
	HomeForwards     bool    `yaml:"HomeForwards" koanf:"HomeForwards"`

	// Limits are software travel limits.  An axis without them is not limited
	Limits *util.Limiter `yaml:"Limits,omitempty" koanf:"Limits"`
}

// ControllerConfig holds the setup of one AKD2G drive
type ControllerConfig struct {
	// Name labels the drive in logs and metrics
	Name string `yaml:"Name" koanf:"Name"`

	// Endpoint is the path the routes of this drive are served on,
	// ex. Endpoint="/omc/akd2g" will produce routes of /omc/akd2g/axis/1/pos, etc.
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Addr holds the network or filesystem address of the drive,
	// e.g. 192.168.100.123:23, or /dev/ttyS4 for an RS232 connection
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// NumAxes is the number of axes of the drive
	NumAxes int `yaml:"NumAxes" koanf:"NumAxes"`

	// MovingPollPeriod is the time between polls while an axis moves, ms
	MovingPollPeriod int `yaml:"MovingPollPeriod" koanf:"MovingPollPeriod"`

	// IdlePollPeriod is the time between polls while no axis moves, ms
	IdlePollPeriod int `yaml:"IdlePollPeriod" koanf:"IdlePollPeriod"`

	// ForcedFastPolls is the number of polls at the moving period after a
	// command
	ForcedFastPolls int `yaml:"ForcedFastPolls" koanf:"ForcedFastPolls"`

	// CommandRate is the maximum number of exchanges per second, 0 is unlimited
	CommandRate float64 `yaml:"CommandRate" koanf:"CommandRate"`

	// Axes maps axis labels, "1".."N", to their setup
	Axes map[string]AxisConfig `yaml:"Axes" koanf:"Axes"`
}

// Config is a struct that holds the initialization parameters for the
// server.  It is populated by koanf from defaults and the config file.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock replaces every drive with the in-process simulator
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// Controllers is the list of drives to set up
	Controllers []ControllerConfig `yaml:"Controllers" koanf:"Controllers"`
}

// pollConfig fills in defaults for the unset poll periods
func (c ControllerConfig) pollConfig() motor.PollConfig {
	moving, idle := c.MovingPollPeriod, c.IdlePollPeriod
	if moving <= 0 {
		moving = 100
	}
	if idle <= 0 {
		idle = 1000
	}
	return motor.PollConfig{
		MovingPeriod:    util.MillisToDuration(moving),
		IdlePeriod:      util.MillisToDuration(idle),
		ForcedFastPolls: c.ForcedFastPolls,
	}
}

// report returns a handler which writes the controller report as text.  The
// level query parameter sets the detail, default 1.
func report(ctl *motor.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := 1
		if s := r.URL.Query().Get("level"); s != "" {
			var err error
			level, err = strconv.Atoi(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		ctl.Report(w, level)
	}
}

// buildController makes the drive, the host controller around it and applies
// the axis settings.  The poller is not started.
func buildController(c ControllerConfig, mock bool) (*motor.Controller, *kollmorgen.Controller) {
	params := motor.NewParams()
	opts := kollmorgen.Options{Name: c.Name, CommandRate: c.CommandRate, Params: params}
	var drv *kollmorgen.Controller
	if mock {
		drv, _ = kollmorgen.NewControllerMock(c.NumAxes, opts)
	} else {
		drv = kollmorgen.NewController(c.Addr, c.Serial, c.NumAxes, opts)
	}
	ctl := motor.NewController(c.Name, drv, params, c.pollConfig())
	for label, ax := range c.Axes {
		err := ctl.SetAxisSettings(label, motor.AxisSettings{
			Velocity:         ax.Velocity,
			BaseVelocity:     ax.BaseVelocity,
			Acceleration:     ax.Acceleration,
			HomeVelocity:     ax.HomeVelocity,
			HomeAcceleration: ax.HomeAcceleration,
			HomeForwards:     ax.HomeForwards,
		})
		if err != nil {
			log.Fatalf("controller %s: %v", c.Name, err)
		}
	}
	return ctl, drv
}

// BuildMux constructs a chi router with one submux per controller.  The root
// serves /endpoints, a JSON map of every mount to its routes, and /metrics.
// Every controller is polled once and its poller started.
func BuildMux(c Config) (chi.Router, []*motor.Controller) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	collector := motor.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	ctls := make([]*motor.Controller, 0, len(c.Controllers))
	for _, node := range c.Controllers {
		if node.NumAxes < 1 {
			log.Fatalf("controller %s: NumAxes must be at least 1", node.Name)
		}
		ctl, drv := buildController(node, c.Mock)
		collector.Add(node.Name, ctl.Params())

		limiters := map[string]util.Limiter{}
		for label, ax := range node.Axes {
			if ax.Limits != nil {
				limiters[label] = *ax.Limits
			}
		}
		httper := motion.NewHTTPMotionController(ctl)
		limiter := motion.LimitMiddleware{Limits: limiters, Mov: ctl}
		limiter.Inject(httper)
		rt := httper.RT()
		ascii.InjectRawComm(rt, ctl)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/report"}] = report(ctl)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/faults"}] = generichttp.GetString(drv.Faults)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/faults/clear"}] = func(w http.ResponseWriter, r *http.Request) {
			if err := drv.ClearFaults(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}

		// prepare the URL, "omc/akd2g" => "/omc/akd2g"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		// add a lock interface for this node
		lock := locker.New()
		locker.Inject(httper, lock)

		// add the endpoints to the graph
		supergraph[hndlS] = rt.Endpoints()

		// bind to the mux
		r := chi.NewRouter()
		r.Use(lock.Check)
		rt.Bind(r)
		root.Mount(hndlS, r)

		ctl.PollOnce()
		ctl.Start()
		ctls = append(ctls, ctl)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	root.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return root, ctls
}
