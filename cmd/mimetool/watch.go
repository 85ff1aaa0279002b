package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashmob/go-mime/ev"
	"github.com/flashmob/go-mime/log"
	"github.com/flashmob/go-mime/store"
)

var (
	pidFile string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "watch a spool directory, storing messages as they arrive",
		Long: `Runs as a daemon sweeping the spool directory from the config file.
Every message file found is chunked into storage, then moved to the stored
subdirectory, or to failed when it cannot be processed. SIGHUP reloads the
configuration, SIGUSR1 reopens the log file.`,
		Run: watch,
	}

	signalChannel = make(chan os.Signal, 1) // for trapping SIGHUP and friends

	watcher *spoolWatcher
)

func init() {
	watchCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"mimetool.conf.json", "Path to the configuration file")
	// intentionally didn't specify default pidFile; value from config is used if flag is empty
	watchCmd.PersistentFlags().StringVarP(&pidFile, "pidFile", "p",
		"", "Path to the pid file")
	rootCmd.AddCommand(watchCmd)
}

func sigHandler() {
	signal.Notify(signalChannel,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGINT,
		syscall.SIGUSR1,
	)
	for sig := range signalChannel {
		if sig == syscall.SIGHUP {
			if ac, err := readConfig(configPath, pidFile); err == nil {
				watcher.ReloadConfig(ac)
			} else {
				mainlog.WithError(err).Error("Could not reload config")
			}
		} else if sig == syscall.SIGUSR1 {
			watcher.ReopenLogs()
		} else if sig == syscall.SIGTERM || sig == syscall.SIGQUIT || sig == syscall.SIGINT {
			mainlog.Infof("Shutdown signal caught")
			go func() {
				// exit if graceful shutdown not finished in 60 sec.
				<-time.After(time.Second * 60)
				mainlog.Error("graceful shutdown timed out")
				os.Exit(1)
			}()
			watcher.Shutdown()
			mainlog.Infof("Shutdown completed, exiting.")
			return
		} else {
			mainlog.Infof("Shutdown, unknown signal caught")
			return
		}
	}
}

func watch(cmd *cobra.Command, args []string) {
	logVersion()
	ac, err := readConfig(configPath, pidFile)
	if err != nil {
		mainlog.WithError(err).Fatal("Error while reading config")
	}
	if ac.SpoolDir == "" {
		mainlog.Fatal("config is missing a spool_dir to watch")
	}
	if l, err := log.GetLogger(ac.LogFile, ac.LogLevel); err == nil {
		mainlog = l
	} else {
		mainlog.WithError(err).Errorf("Failed creating a logger to %s", ac.LogFile)
	}
	watcher, err = newSpoolWatcher(ac)
	if err != nil {
		mainlog.WithError(err).Error("Error while starting the spool watcher")
		os.Exit(1)
	}
	mainlog.Infof("watching %s every %ds", ac.SpoolDir, ac.SpoolInterval)
	watcher.Start()
	sigHandler()
}

const (
	spoolStoredDir = "stored"
	spoolFailedDir = "failed"
)

// spoolWatcher sweeps a directory for message files and chunks them into
// storage. Stored files move to the stored subdirectory, files that could
// not be processed move to failed so they are not retried forever.
type spoolWatcher struct {
	mu     sync.Mutex
	config *AppConfig
	db     store.Storage
	bus    ev.EventHandler
	done   chan struct{}
	wg     sync.WaitGroup
}

func newSpoolWatcher(ac *AppConfig) (*spoolWatcher, error) {
	w := &spoolWatcher{
		config: ac,
		done:   make(chan struct{}),
	}
	if err := w.makeSpoolDirs(ac.SpoolDir); err != nil {
		return nil, err
	}
	if err := w.openStorage(ac.Storage); err != nil {
		return nil, err
	}
	if err := writePid(ac.PidFile); err != nil {
		return nil, err
	}
	w.subscribe()
	return w, nil
}

// Start runs the sweep loop until Shutdown
func (w *spoolWatcher) Start() {
	w.wg.Add(1)
	go w.run()
}

// Shutdown stops the sweep loop and closes the storage engine
func (w *spoolWatcher) Shutdown() {
	close(w.done)
	w.wg.Wait()
	w.mu.Lock()
	db := w.db
	w.db = nil
	w.mu.Unlock()
	if db != nil {
		if err := db.Shutdown(); err != nil {
			mainlog.WithError(err).Error("Error while shutting down the storage engine")
		}
	}
}

// ReloadConfig swaps in a new configuration, publishing a change event for
// every setting that differs from the running one
func (w *spoolWatcher) ReloadConfig(ac *AppConfig) {
	w.mu.Lock()
	oldConfig := *w.config
	w.mu.Unlock()
	ac.EmitChangeEvents(&oldConfig, &w.bus)
	mainlog.Infof("Configuration was reloaded at %s", time.Now().Format(time.RFC3339))
}

// ReopenLogs closes and reopens the log file, for log rotation
func (w *spoolWatcher) ReopenLogs() {
	w.bus.Publish(ev.ConfigLogReopen, w.getConfig())
}

func (w *spoolWatcher) getConfig() *AppConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

func (w *spoolWatcher) setConfig(ac *AppConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = ac
}

func (w *spoolWatcher) subscribe() {
	_ = w.bus.Subscribe(ev.ConfigNewConfig, func(c *AppConfig) {
		w.setConfig(c)
	})
	_ = w.bus.Subscribe(ev.ConfigLogFile, func(c *AppConfig) {
		if l, err := log.GetLogger(c.LogFile, c.LogLevel); err == nil {
			mainlog = l
			mainlog.Infof("now logging to %s", c.LogFile)
		} else {
			mainlog.WithError(err).Error("Could not change the log file")
		}
	})
	_ = w.bus.Subscribe(ev.ConfigLogReopen, func(c *AppConfig) {
		if err := mainlog.Reopen(); err != nil {
			mainlog.WithError(err).Error("Could not reopen the log file")
		}
	})
	_ = w.bus.Subscribe(ev.ConfigLogLevel, func(c *AppConfig) {
		mainlog.SetLevel(c.LogLevel)
		mainlog.Infof("log level changed to %s", c.LogLevel)
	})
	_ = w.bus.Subscribe(ev.ConfigPidFile, func(c *AppConfig) {
		if err := writePid(c.PidFile); err != nil {
			mainlog.WithError(err).Error("Could not write the pid file")
		}
	})
	_ = w.bus.Subscribe(ev.ConfigStorage, func(c *AppConfig) {
		if err := w.openStorage(c.Storage); err != nil {
			mainlog.WithError(err).Error("Could not open the new storage engine")
		}
	})
	_ = w.bus.Subscribe(ev.ConfigSpoolDir, func(c *AppConfig) {
		if err := w.makeSpoolDirs(c.SpoolDir); err != nil {
			mainlog.WithError(err).Errorf("Could not prepare the new spool dir %s", c.SpoolDir)
			return
		}
		mainlog.Infof("now watching %s", c.SpoolDir)
	})
	_ = w.bus.Subscribe(ev.ConfigSpoolInterval, func(c *AppConfig) {
		mainlog.Infof("spool sweep interval changed to %ds", c.SpoolInterval)
	})
}

// openStorage connects a new storage engine, closing the previous one
func (w *spoolWatcher) openStorage(cfg store.Config) error {
	db, err := store.New(cfg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	old := w.db
	w.db = db
	w.mu.Unlock()
	if old != nil {
		if err := old.Shutdown(); err != nil {
			mainlog.WithError(err).Error("Error while shutting down the old storage engine")
		}
	}
	return nil
}

func (w *spoolWatcher) makeSpoolDirs(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, spoolStoredDir), 0755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(dir, spoolFailedDir), 0755)
}

func (w *spoolWatcher) run() {
	defer w.wg.Done()
	// sweep whatever is already waiting before the first tick
	w.sweep()
	for {
		w.mu.Lock()
		interval := time.Duration(w.config.SpoolInterval) * time.Second
		w.mu.Unlock()
		select {
		case <-w.done:
			return
		case <-time.After(interval):
			w.sweep()
		}
	}
}

func (w *spoolWatcher) sweep() {
	w.mu.Lock()
	dir := w.config.SpoolDir
	chunkSize := w.config.ChunkSize
	db := w.db
	w.mu.Unlock()
	entries, err := os.ReadDir(dir)
	if err != nil {
		mainlog.WithError(err).Errorf("Could not read the spool dir %s", dir)
		return
	}
	c := store.NewChunker(db, chunkSize)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := filepath.Join(dir, entry.Name())
		if _, err := saveFile(c, name); err != nil {
			mainlog.WithError(err).Errorf("Could not store %s", name)
			moveTo(name, dir, spoolFailedDir)
			continue
		}
		moveTo(name, dir, spoolStoredDir)
	}
}

func moveTo(name, dir, sub string) {
	if err := os.Rename(name, filepath.Join(dir, sub, filepath.Base(name))); err != nil {
		mainlog.WithError(err).Errorf("Could not move %s to %s", name, sub)
	}
}

// writePid writes out our process id
func writePid(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return err
	}
	return f.Sync()
}
