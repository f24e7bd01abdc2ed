// Package daemon wires the broker and model processes together: loading
// config, constructing transport/storage, and running until cancelled.
// Grounded in the teacher's internal/daemon/daemon.go wiring pattern
// (construct dependencies, hand them to a Run loop, serve HTTP
// alongside), retargeted from the LLM-serving daemon to the broker/model
// pair this system actually runs.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/incstep-network/incstep/internal/api"
	"github.com/incstep-network/incstep/internal/broker"
	"github.com/incstep-network/incstep/internal/broker/logstore"
	"github.com/incstep-network/incstep/internal/graph"
	"github.com/incstep-network/incstep/internal/health"
	"github.com/incstep-network/incstep/internal/runtime"
	"github.com/incstep-network/incstep/internal/schema"
	"github.com/incstep-network/incstep/internal/transport"
)

// modelsFile is the shape of /opt/config.json (spec §6 "Broker
// configuration").
type modelsFile struct {
	Models []string `json:"models"`
}

func loadModelsConfig(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: read models config %s: %w", path, err)
	}
	var f modelsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("daemon: parse models config %s: %w", path, err)
	}
	return f.Models, nil
}

// loadConfigDir decodes every *.json file in dir into a map keyed by
// filename stem (spec §6 "Configuration"), the shape a model's initial
// conditions directory uses.
func loadConfigDir(dir string) (map[string]interface{}, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("daemon: glob config dir %s: %w", dir, err)
	}
	out := make(map[string]interface{}, len(entries))
	for _, path := range entries {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("daemon: read config file %s: %w", path, err)
		}
		var v interface{}
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("daemon: parse config file %s: %w", path, err)
		}
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		out[stem] = v
	}
	return out, nil
}

// RunBroker loads the broker's declared model set, opens the log store,
// wires the forwarder/publisher/subscriber, and runs the broker until ctx
// is cancelled or it shuts itself down (spec §4.5).
func RunBroker(ctx context.Context, cfg Config) error {
	models, err := loadModelsConfig(cfg.Broker.ModelsConfigPath)
	if err != nil {
		return err
	}

	store, err := logstore.Open(cfg.Broker.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	fwd, err := transport.NewForwarder(cfg.Transport.ForwarderBind, cfg.Transport.BackendBind)
	if err != nil {
		return err
	}
	defer fwd.Close()

	pub, err := transport.NewPublisher(cfg.Transport.IngressEndpoint)
	if err != nil {
		return err
	}
	defer pub.Close()

	sub, err := transport.NewSubscriber(cfg.Transport.EgressEndpoint)
	if err != nil {
		return err
	}
	defer sub.Close()

	b := broker.New(broker.Config{
		Models:        models,
		MaxIncstep:    cfg.Broker.MaxIncstep,
		InitialYear:   cfg.Broker.InitialYear,
		BootTimer:     cfg.Broker.BootTimer(),
		WatchdogTimer: cfg.Broker.WatchdogTimer(),
	}, fwd, pub, sub, store)

	checker := health.NewChecker(30*time.Second, health.Check{
		Name:    "log-store",
		CheckFn: func(context.Context) error { return nil },
	})
	go checker.Run(ctx)
	go serveHTTP(ctx, cfg.HTTP.Addr, checker, b.Status)

	return b.Run(ctx)
}

// RunModel loads a model's graphs, schemas, and initial conditions, wires
// its transport, and runs the wrapper until ctx is cancelled or it shuts
// itself down (spec §4.4).
func RunModel(ctx context.Context, cfg Config, model runtime.Model) error {
	abstractGraph, err := graph.LoadAbstractGraph(cfg.Model.AbstractGraphPath)
	if err != nil {
		return err
	}
	instanceGraph, err := graph.LoadInstanceGraph(cfg.Model.InstanceGraphPath, abstractGraph)
	if err != nil {
		return err
	}

	inputSchemas, err := schema.LoadDir(cfg.Model.InputSchemaDir)
	if err != nil {
		return err
	}
	outputSchemas, err := schema.LoadDir(cfg.Model.OutputSchemaDir)
	if err != nil {
		return err
	}

	initialConditions, err := loadConfigDir(cfg.Model.ConfigDir)
	if err != nil {
		return err
	}

	pub, err := transport.NewPublisher(cfg.Transport.IngressEndpoint)
	if err != nil {
		return err
	}
	defer pub.Close()

	sub, err := transport.NewSubscriber(cfg.Transport.EgressEndpoint)
	if err != nil {
		return err
	}
	defer sub.Close()

	w := runtime.New(cfg.Model.ID, cfg.Model.NumExpectedInputs, model, abstractGraph, instanceGraph, inputSchemas, outputSchemas, pub, sub)

	go serveHTTP(ctx, cfg.HTTP.Addr, nil, w.Status)

	return w.Run(ctx, initialConditions)
}

func serveHTTP(ctx context.Context, addr string, checker *health.Checker, statusFn api.StatusFunc) {
	if addr == "" {
		return
	}
	srv := api.NewServer(checker, statusFn)
	if err := api.Serve(ctx, addr, srv.Handler()); err != nil {
		log.Printf("[daemon] http server error: %v", err)
	}
}
