package ev

import (
	evbus "github.com/asaskevich/EventBus"
)

type Event int

const (
	// when a new config was loaded
	ConfigNewConfig Event = iota
	// when pid_file changed
	ConfigPidFile
	// when log_file changed
	ConfigLogFile
	// when it's time to reload the main log file
	ConfigLogReopen
	// when log level changed
	ConfigLogLevel
	// when spool_dir changed
	ConfigSpoolDir
	// when spool_interval changed
	ConfigSpoolInterval
	// when chunk_size changed
	ConfigChunkSize
	// when the storage config changed
	ConfigStorage
)

var eventList = [...]string{
	"config_change:new_config",
	"config_change:pid_file",
	"config_change:log_file",
	"config_change:reopen_log_file",
	"config_change:log_level",
	"config_change:spool_dir",
	"config_change:spool_interval",
	"config_change:chunk_size",
	"config_change:storage",
}

func (e Event) String() string {
	return eventList[e]
}

type EventHandler struct {
	evbus.Bus
}

func (h *EventHandler) Subscribe(topic Event, fn interface{}) error {
	if h.Bus == nil {
		h.Bus = evbus.New()
	}
	return h.Bus.Subscribe(topic.String(), fn)
}

func (h *EventHandler) Publish(topic Event, args ...interface{}) {
	if h.Bus == nil {
		h.Bus = evbus.New()
	}
	h.Bus.Publish(topic.String(), args...)
}

func (h *EventHandler) Unsubscribe(topic Event, handler interface{}) error {
	if h.Bus == nil {
		h.Bus = evbus.New()
	}
	return h.Bus.Unsubscribe(topic.String(), handler)
}
