// Package device exposes a controller over the link protocol: a command
// registry with printf-style format strings, the identify dictionary the
// host uses to discover those commands, and a server that pumps frames
// between a transport and the controller.
package device

import (
	"errors"
	"sync"
)

// CommandHandler decodes its own arguments from the frame tail and must
// advance the slice past them.
type CommandHandler func(data *[]byte) error

// Command is one registered command or response. Responses carry a nil
// handler; they exist so the dictionary can hand their ids to the host.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "addr=%c value=%c"
	Handler CommandHandler
}

// Registry assigns command ids in registration order and dispatches
// inbound frames to handlers. Ids 0 and 1 are fixed by convention:
// identify_response then identify, so a host can bootstrap before it has
// the dictionary.
type Registry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command with a handler and returns its id. Registering
// the same name again returns the existing id.
func (r *Registry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.nameToID[name]; ok {
		return id
	}

	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id
	return id
}

// RegisterResponse adds a device-to-host message with no handler.
func (r *Registry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

// Lookup returns the command registered under id.
func (r *Registry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// LookupName returns the command registered under name.
func (r *Registry) LookupName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands and responses.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch invokes the handler registered for cmdID.
func (r *Registry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.Lookup(cmdID)
	if !ok {
		return errors.New("unknown command id " + itoa(int(cmdID)))
	}
	if cmd.Handler == nil {
		return errors.New("command " + cmd.Name + " has no handler")
	}
	return cmd.Handler(data)
}

// CommandsAndResponses splits the registry into the two dictionary maps,
// keyed by "name format" strings. Entries with handlers are commands the
// host may send; the rest are responses the device emits.
func (r *Registry) CommandsAndResponses() (map[string]int, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make(map[string]int)
	responses := make(map[string]int)

	for i := uint16(0); i < r.nextID; i++ {
		cmd, ok := r.commands[i]
		if !ok {
			continue
		}
		key := cmd.Name
		if cmd.Format != "" {
			key = cmd.Name + " " + cmd.Format
		}
		if cmd.Handler != nil {
			commands[key] = int(cmd.ID)
		} else {
			responses[key] = int(cmd.ID)
		}
	}

	return commands, responses
}
