// FILE: lixenwraith/iniconf/example/main.go
package main

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/lixenwraith/iniconf"
)

// AppOptions declares the demo options; the struct values are the defaults.
type AppOptions struct {
	TraceEnabled bool     `env:"APP_TRACE_ENABLED,APP_TRACE"`
	Service      string   `env:"APP_SERVICE,APP_SERVICE_NAME"`
	SampleRate   float64  `env:"APP_SAMPLE_RATE"`
	Tags         []string `env:"APP_TAGS"`
	Workers      int64    `env:"APP_WORKERS" system:"true"`
}

const (
	staticFilePath = "demo_static.toml"
	moduleNumber   = 1
	workerCount    = 4
)

func main() {
	// =========================================================================
	// PART 1: INITIAL SETUP
	// Write a static configuration file the host reads at startup.
	// =========================================================================
	log.Println("---")
	log.Println("PART 1: Creating static configuration file...")

	defer func() {
		log.Println("---")
		log.Println("Cleaning up...")
		os.Remove(staticFilePath)
		os.Unsetenv("APP_SERVICE")
		log.Printf("Removed %s and unset APP_SERVICE.", staticFilePath)
	}()

	err := iniconf.WriteStaticFile(staticFilePath, map[string]string{
		"app.app_sample_rate": "0.25",
		"app.app_workers":     "8",
	})
	if err != nil {
		log.Fatalf("Failed to write static file: %v", err)
	}
	log.Printf("Static configuration saved to %s.", staticFilePath)

	// =========================================================================
	// PART 2: MODULE INIT ON A THREADED HOST
	// =========================================================================
	log.Println("---")
	log.Println("PART 2: Registering options and creating directives...")

	registry := iniconf.NewRegistry()
	defaults := AppOptions{TraceEnabled: true, Service: "web", SampleRate: 1, Workers: 2}
	if err := registry.RegisterStruct(defaults); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}

	host := iniconf.NewMemoryHost(iniconf.WithThreads())
	if _, err := host.LoadStaticFile(staticFilePath); err != nil {
		log.Fatalf("Failed to load static file: %v", err)
	}

	logger := iniconf.NewLogger("info", os.Stderr)
	m := iniconf.New(registry, iniconf.WithLogger(logger))
	if err := m.ModuleInit(host, iniconf.PrefixMapper("app"), moduleNumber); err != nil {
		log.Fatalf("Module init failed: %v", err)
	}
	host.FinishStartup()
	log.Printf("Created %d directives.", host.Template().Len())

	// Environment beats the static file and the default.
	os.Setenv("APP_SERVICE", "checkout")
	log.Println("   (Set environment variable APP_SERVICE=checkout)")

	// =========================================================================
	// PART 3: CONCURRENT WORKERS
	// Every worker owns a private directive table. Worker 0 changes an option
	// at runtime; the others never see it.
	// =========================================================================
	log.Println("---")
	log.Println("PART 3: Running workers...")

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			t := host.StartThread()
			if err := m.RequestInit(t); err != nil {
				log.Printf("worker %d: request init failed: %v", worker, err)
				return
			}
			if worker == 0 {
				if err := host.Alter(t, "app.app_trace", "off", iniconf.AccessUser, iniconf.StageRuntime); err != nil {
					log.Printf("worker %d: alter failed: %v", worker, err)
				}
				log.Printf("worker %d: app.app_trace_enabled now %s", worker, t.Find("app.app_trace_enabled").String())
			}
			printWorker(m, t, worker)
			m.RequestShutdown(t)
			host.Deactivate(t)
		}(i)
	}
	wg.Wait()

	// =========================================================================
	// PART 4: STATIC FILE RELOAD
	// =========================================================================
	log.Println("---")
	log.Println("PART 4: Watching the static file...")

	w, err := m.WatchStatic(host, staticFilePath, iniconf.WatchOptions{
		PollInterval: 250 * time.Millisecond,
		Debounce:     100 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("Watch failed: %v", err)
	}
	defer w.Stop()
	changes := w.Subscribe()

	go func() {
		time.Sleep(500 * time.Millisecond)
		err := iniconf.WriteStaticFile(staticFilePath, map[string]string{
			"app.app_sample_rate": "0.75",
			"app.app_workers":     "8",
		})
		if err != nil {
			log.Printf("Modifier failed: %v", err)
		}
	}()

	select {
	case name := <-changes:
		log.Printf("Watcher reported change of %s", name)
		t := host.StartThread()
		if err := m.RequestInit(t); err != nil {
			log.Fatalf("Request init failed: %v", err)
		}
		printWorker(m, t, workerCount)
		m.RequestShutdown(t)
	case <-time.After(5 * time.Second):
		log.Fatalf("Timed out waiting for watcher notification.")
	}
}

func printWorker(m *iniconf.Manager, t *iniconf.Table, worker int) {
	var opts AppOptions
	if err := m.Scan(t, &opts); err != nil {
		log.Printf("worker %d: scan failed: %v", worker, err)
		return
	}
	log.Printf("worker %d: trace=%t service=%s sample_rate=%g workers=%d (service from %s)",
		worker, opts.TraceEnabled, opts.Service, opts.SampleRate, opts.Workers, m.Source(t, 1))
}
