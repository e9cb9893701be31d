// Package menu implements the conversational menu engine: callback
// token codec, command and view registries, action handling, view
// rendering and the event loop tying them to the message bus.
package menu

import (
	"fmt"
	"sync"
)

// Built-in command names. Commands mutate session state; views decide
// what the user sees afterwards.
const (
	CmdGoTo             = "go_to"
	CmdGoBack           = "go_back"
	CmdPageNext         = "page_next"
	CmdPagePrev         = "page_prev"
	CmdClose            = "close"
	CmdSelectDownloader = "select_downloader"
	CmdRefresh          = "refresh"
)

// Built-in view names.
const (
	ViewStart          = "start"
	ViewDownloaderMenu = "downloader_menu"
	ViewTasks          = "tasks"
	ViewSettings       = "settings"
	ViewVersion        = "version"
	ViewClose          = "close"
)

// Registry is a bidirectional name/code table. Codes are the short
// aliases embedded in callback tokens; they are part of the wire
// contract with messages already delivered to users, so built-in codes
// never change.
type Registry struct {
	mu         sync.RWMutex
	nameToCode map[string]string
	codeToName map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		nameToCode: make(map[string]string),
		codeToName: make(map[string]string),
	}
}

// Register maps name to code. Either side already being taken is an
// error: silently remapping a code would reroute buttons in messages
// users still hold.
func (r *Registry) Register(name, code string) error {
	if name == "" || code == "" {
		return fmt.Errorf("registry: name and code must be non-empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.nameToCode[name]; ok {
		return fmt.Errorf("registry: name %q already registered with code %q", name, existing)
	}
	if existing, ok := r.codeToName[code]; ok {
		return fmt.Errorf("registry: code %q already registered for name %q", code, existing)
	}
	r.nameToCode[name] = code
	r.codeToName[code] = name
	return nil
}

// Code returns the code registered for name.
func (r *Registry) Code(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.nameToCode[name]
	return code, ok
}

// Name returns the name registered under code.
func (r *Registry) Name(code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.codeToName[code]
	return name, ok
}

// Resolve accepts either a name or a code and returns the canonical
// name. Names win when a string is somehow both.
func (r *Registry) Resolve(s string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.nameToCode[s]; ok {
		return s, true
	}
	if name, ok := r.codeToName[s]; ok {
		return name, true
	}
	return "", false
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nameToCode = make(map[string]string)
	r.codeToName = make(map[string]string)
}

// Len reports the number of registered pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToCode)
}

func builtinCommands() *Registry {
	r := NewRegistry()
	for name, code := range map[string]string{
		CmdGoTo:             "gt",
		CmdGoBack:           "gb",
		CmdPageNext:         "pn",
		CmdPagePrev:         "pp",
		CmdClose:            "cl",
		CmdSelectDownloader: "sd",
		CmdRefresh:          "rf",
	} {
		if err := r.Register(name, code); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinViews() *Registry {
	r := NewRegistry()
	for name, code := range map[string]string{
		ViewStart:          "st",
		ViewDownloaderMenu: "dm",
		ViewTasks:          "ts",
		ViewSettings:       "stg",
		ViewVersion:        "ver",
		ViewClose:          "cl",
	} {
		if err := r.Register(name, code); err != nil {
			panic(err)
		}
	}
	return r
}
