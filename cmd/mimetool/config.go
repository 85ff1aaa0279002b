package main

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/flashmob/go-mime/ev"
	"github.com/flashmob/go-mime/log"
	"github.com/flashmob/go-mime/store"
)

const (
	defaultPidFile       = "/var/run/mimetool.pid"
	defaultSpoolInterval = 60
)

// configPath is shared by the commands that take a -c flag
var configPath string

// AppConfig is the holder of the configuration of the app
type AppConfig struct {
	PidFile  string `json:"pid_file"`
	LogFile  string `json:"log_file,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
	// SpoolDir is the directory the watch command sweeps for new messages
	SpoolDir string `json:"spool_dir,omitempty"`
	// SpoolInterval is the number of seconds between sweeps
	SpoolInterval int `json:"spool_interval,omitempty"`
	// ChunkSize caps the storage chunk payload size in bytes
	ChunkSize int          `json:"chunk_size,omitempty"`
	Storage   store.Config `json:"storage"`
}

// Load unmarshalls json data into the AppConfig struct, filling in any
// defaults that were left out of the config file
func (c *AppConfig) Load(jsonBytes []byte) error {
	err := json.Unmarshal(jsonBytes, c)
	if err != nil {
		return fmt.Errorf("could not parse config file: %s", err)
	}
	if c.LogFile == "" {
		c.LogFile = log.OutputStderr.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SpoolInterval == 0 {
		c.SpoolInterval = defaultSpoolInterval
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = store.ChunkMaxBytes
	}
	return nil
}

// Emits any configuration change events onto the event bus.
func (c *AppConfig) EmitChangeEvents(oldConfig *AppConfig, app *ev.EventHandler) {
	// has config changed, general check
	if !reflect.DeepEqual(oldConfig, c) {
		app.Publish(ev.ConfigNewConfig, c)
	}
	// has pid file changed?
	if strings.Compare(oldConfig.PidFile, c.PidFile) != 0 {
		app.Publish(ev.ConfigPidFile, c)
	}
	// has mainlog log changed?
	if strings.Compare(oldConfig.LogFile, c.LogFile) != 0 {
		app.Publish(ev.ConfigLogFile, c)
	} else {
		// since log file has not changed, we reload it
		app.Publish(ev.ConfigLogReopen, c)
	}
	// has log level changed?
	if strings.Compare(oldConfig.LogLevel, c.LogLevel) != 0 {
		app.Publish(ev.ConfigLogLevel, c)
	}
	if strings.Compare(oldConfig.SpoolDir, c.SpoolDir) != 0 {
		app.Publish(ev.ConfigSpoolDir, c)
	}
	if oldConfig.SpoolInterval != c.SpoolInterval {
		app.Publish(ev.ConfigSpoolInterval, c)
	}
	if oldConfig.ChunkSize != c.ChunkSize {
		app.Publish(ev.ConfigChunkSize, c)
	}
	// storage config changes
	if changes := getDiff(oldConfig.Storage, c.Storage); len(changes) > 0 {
		app.Publish(ev.ConfigStorage, c)
	}
}

// readConfig is called at startup, or when a SIGHUP is caught
func readConfig(path string, pidFile string) (*AppConfig, error) {
	// Load in the config.
	// Note here is the only place we can make an exception to the
	// "treat config values as immutable". For example, here the
	// command line flags can override config values
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %s", err)
	}
	appConfig := &AppConfig{}
	if err := appConfig.Load(b); err != nil {
		return nil, err
	}
	// override config pidFile with with flag from the command line
	if len(pidFile) > 0 {
		appConfig.PidFile = pidFile
	} else if len(appConfig.PidFile) == 0 {
		appConfig.PidFile = defaultPidFile
	}
	if verbose {
		appConfig.LogLevel = "debug"
	}
	return appConfig, nil
}

// Returns a diff between struct a & struct b.
// Results are returned in a map, where each key is the name of the field that was different.
// a and b are struct values, must not be pointer
// and of the same struct type
func getDiff(a interface{}, b interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, 5)
	compareWith := structtomap(b)
	for key, val := range structtomap(a) {
		if val != compareWith[key] {
			ret[key] = compareWith[key]
		}
	}
	return ret
}

// Convert fields of a struct to a map
// only able to convert int, bool and string; not recursive
func structtomap(obj interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, 0)
	v := reflect.ValueOf(obj)
	t := v.Type()
	for index := 0; index < v.NumField(); index++ {
		vField := v.Field(index)
		fName := t.Field(index).Name

		switch vField.Kind() {
		case reflect.Int:
			value := vField.Int()
			ret[fName] = value
		case reflect.String:
			value := vField.String()
			ret[fName] = value
		case reflect.Bool:
			value := vField.Bool()
			ret[fName] = value
		}
	}
	return ret
}
