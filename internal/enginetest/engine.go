package enginetest

import (
	"fmt"
	"sync"

	"github.com/Gaurav-Gosain/eduvpn/internal/bridge"
)

// Default payloads served by a new Engine.
const (
	DefaultOrganizations = `{"organization_list":[{"display_name":{"en":"SURF"},"org_id":"https://idp.surf.nl","secure_internet_home":"https://nl.eduvpn.org/"}]}`
	DefaultServers       = `{"server_list":[{"server_type":"secure_internet","base_url":"https://nl.eduvpn.org/","country_code":"NL"},{"server_type":"secure_internet","base_url":"https://de.eduvpn.org/","country_code":"DE"},{"server_type":"institute_access","base_url":"https://vpn.example.edu/","display_name":{"en":"Example University"}}]}`
)

// Server is a scripted VPN server.
type Server struct {
	Config     string
	ConfigType string
	// Profiles, when set, is sent with an Ask_Profile transition and the
	// chosen profile id is appended to the returned config.
	Profiles string
	// Unreachable makes every config request fail.
	Unreachable bool
}

type session struct {
	configDir    string
	callback     uintptr
	debug        bool
	identifier   string
	profileID    string
	location     string
	connected    bool
	searchServer bool
	lastFlags    int32
	current      string
}

// Engine is an in-process fake of the native engine.
type Engine struct {
	Heap *Heap

	mu            sync.Mutex
	organizations string
	servers       string
	registerErr   string
	scripted      map[string]Server
	sessions      map[string]*session
	trampolines   map[uintptr]bridge.TrampolineFunc
	nextHandle    uintptr
	calls         map[string]int
	cancels       map[string]int
	retired       map[string]SessionState
}

// New returns an engine serving the default payloads and no VPN servers.
func New() *Engine {
	return &Engine{
		Heap:          NewHeap(),
		organizations: DefaultOrganizations,
		servers:       DefaultServers,
		scripted:      make(map[string]Server),
		sessions:      make(map[string]*session),
		trampolines:   make(map[uintptr]bridge.TrampolineFunc),
		nextHandle:    0x1000,
		calls:         make(map[string]int),
		cancels:       make(map[string]int),
		retired:       make(map[string]SessionState),
	}
}

// AddServer scripts the server reachable at url.
func (e *Engine) AddServer(url string, s Server) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripted[url] = s
}

// SetOrganizations replaces the organization list payload.
func (e *Engine) SetOrganizations(payload string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.organizations = payload
}

// SetServers replaces the server list payload.
func (e *Engine) SetServers(payload string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.servers = payload
}

// FailRegister makes every following Register return msg.
func (e *Engine) FailRegister(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerErr = msg
}

// Natives returns the engine's entry points keyed by native symbol.
func (e *Engine) Natives() bridge.Natives {
	return bridge.Natives{
		"GetOrganizationsList":     bridge.DataFunc(e.getOrganizationsList),
		"GetServersList":           bridge.DataFunc(e.getServersList),
		"GetConfigSecureInternet":  bridge.MultipleDataFunc(e.getConfig("GetConfigSecureInternet")),
		"GetConfigInstituteAccess": bridge.MultipleDataFunc(e.getConfig("GetConfigInstituteAccess")),
		"GetConfigCustomServer":    bridge.MultipleDataFunc(e.getConfig("GetConfigCustomServer")),
		"Register":                 bridge.RegisterFunc(e.register),
		"Deregister":               bridge.UnaryFunc(e.deregister),
		"CancelOAuth":              bridge.UnaryFunc(e.cancelOAuth),
		"SetProfileID":             bridge.BinaryFunc(e.setProfileID),
		"SetSecureLocation":        bridge.BinaryFunc(e.setSecureLocation),
		"SetConnected":             bridge.UnaryFunc(e.setConnected(true)),
		"SetDisconnected":          bridge.UnaryFunc(e.setConnected(false)),
		"GetIdentifier":            bridge.DataFunc(e.getIdentifier),
		"SetIdentifier":            bridge.BinaryFunc(e.setIdentifier),
		"SetSearchServer":          bridge.UnaryFunc(e.setSearchServer),
		"FreeString":               bridge.FreeFunc(e.Heap.Free),
	}
}

// NewCallback is a bridge.CallbackFactory. The returned handle is only
// meaningful to this engine.
func (e *Engine) NewCallback(fn bridge.TrampolineFunc) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextHandle += 0x10
	e.trampolines[e.nextHandle] = fn
	return e.nextHandle
}

// Emit pushes a state transition to the callback registered for id, the way
// the engine does from its own threads. The strings are engine-owned and
// freed after the callback returns. It reports false when id is not
// registered.
func (e *Engine) Emit(id, oldState, newState, data, errText string) bool {
	e.mu.Lock()
	s, ok := e.sessions[id]
	var handle uintptr
	if ok {
		handle = s.callback
		s.current = newState
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	return e.Trigger(handle, oldState, newState, data, errText)
}

// Trigger invokes the trampoline behind handle directly, registered or not.
func (e *Engine) Trigger(handle uintptr, oldState, newState, data, errText string) bool {
	e.mu.Lock()
	fn, ok := e.trampolines[handle]
	e.mu.Unlock()
	if !ok {
		return false
	}

	ptrs := []uintptr{
		e.Heap.String(oldState),
		e.Heap.String(newState),
		e.Heap.String(data),
		e.Heap.String(errText),
	}
	fn(ptrs[0], ptrs[1], ptrs[2], ptrs[3])
	for _, p := range ptrs {
		e.Heap.Free(p)
	}
	return true
}

// CallbackFor returns the callback handle registered for id, or 0.
func (e *Engine) CallbackFor(id string) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[id]; ok {
		return s.callback
	}
	return 0
}

// Registered reports whether id is registered with the engine.
func (e *Engine) Registered(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[id]
	return ok
}

// Calls returns how many times the entry point symbol was called.
func (e *Engine) Calls(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[symbol]
}

// Cancels returns how many times CancelOAuth was called for id.
func (e *Engine) Cancels(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels[id]
}

// SessionState is a snapshot of what the engine recorded for a session.
type SessionState struct {
	ConfigDir    string
	Debug        bool
	Identifier   string
	ProfileID    string
	Location     string
	Connected    bool
	SearchServer bool
	LastFlags    int32
	Current      string
}

// Session returns the recorded state for id.
func (e *Engine) Session(id string) (SessionState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return SessionState{}, false
	}
	return s.snapshot(), true
}

// Deregistered returns the state id had when it was last deregistered.
func (e *Engine) Deregistered(id string) (SessionState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.retired[id]
	return st, ok
}

func (s *session) snapshot() SessionState {
	return SessionState{
		ConfigDir:    s.configDir,
		Debug:        s.debug,
		Identifier:   s.identifier,
		ProfileID:    s.profileID,
		Location:     s.location,
		Connected:    s.connected,
		SearchServer: s.searchServer,
		LastFlags:    s.lastFlags,
		Current:      s.current,
	}
}

// ============================================================================
// Entry points
// ============================================================================

func notRegistered(id string) string {
	return fmt.Sprintf("no session registered with id %q", id)
}

// enter records a call and returns the session for id with e.mu held. The
// caller must unlock.
func (e *Engine) enter(symbol string, id *byte) (string, *session) {
	e.mu.Lock()
	e.calls[symbol]++
	name := goString(id)
	return name, e.sessions[name]
}

func (e *Engine) getOrganizationsList(id *byte) bridge.DataError {
	name, s := e.enter("GetOrganizationsList", id)
	payload := e.organizations
	e.mu.Unlock()
	if s == nil {
		return bridge.DataError{Error: e.Heap.String(notRegistered(name))}
	}
	return bridge.DataError{Data: e.Heap.String(payload)}
}

func (e *Engine) getServersList(id *byte) bridge.DataError {
	name, s := e.enter("GetServersList", id)
	payload := e.servers
	e.mu.Unlock()
	if s == nil {
		return bridge.DataError{Error: e.Heap.String(notRegistered(name))}
	}
	return bridge.DataError{Data: e.Heap.String(payload)}
}

func (e *Engine) getConfig(symbol string) func(id, server *byte, flags int32) bridge.MultipleDataError {
	return func(id, server *byte, flags int32) bridge.MultipleDataError {
		name, s := e.enter(symbol, id)
		url := goString(server)
		srv, known := e.scripted[url]
		if s != nil {
			s.lastFlags = flags
		}
		e.mu.Unlock()

		if s == nil {
			return bridge.MultipleDataError{Error: e.Heap.String(notRegistered(name))}
		}
		if !known || srv.Unreachable {
			return bridge.MultipleDataError{
				Error: e.Heap.String(fmt.Sprintf("failed to get server endpoints for %s: connection refused", url)),
			}
		}

		e.Emit(name, "No_Server", "Chosen_Server", url, "")
		config := srv.Config
		if srv.Profiles != "" {
			e.Emit(name, "Chosen_Server", "Ask_Profile", srv.Profiles, "")
			st, _ := e.Session(name)
			if st.ProfileID == "" {
				return bridge.MultipleDataError{Error: e.Heap.String("no profile chosen")}
			}
			config += "\n# profile " + st.ProfileID
		}
		e.Emit(name, "Chosen_Server", "Has_Config", "", "")

		return bridge.MultipleDataError{
			Data:      e.Heap.String(config),
			OtherData: e.Heap.String(srv.ConfigType),
		}
	}
}

func (e *Engine) register(id, config *byte, callback uintptr, flags int32) uintptr {
	name, s := e.enter("Register", id)
	defer e.mu.Unlock()
	if e.registerErr != "" {
		return e.Heap.String(e.registerErr)
	}
	if s != nil {
		return e.Heap.String(fmt.Sprintf("session %q is already registered", name))
	}
	e.sessions[name] = &session{
		configDir: goString(config),
		callback:  callback,
		debug:     flags&1 != 0,
		current:   "Initial",
	}
	return 0
}

func (e *Engine) deregister(id *byte) uintptr {
	name, s := e.enter("Deregister", id)
	defer e.mu.Unlock()
	if s == nil {
		return e.Heap.String(notRegistered(name))
	}
	e.retired[name] = s.snapshot()
	delete(e.sessions, name)
	return 0
}

func (e *Engine) cancelOAuth(id *byte) uintptr {
	name, s := e.enter("CancelOAuth", id)
	defer e.mu.Unlock()
	if s == nil {
		return e.Heap.String(notRegistered(name))
	}
	e.cancels[name]++
	return 0
}

func (e *Engine) setProfileID(id, value *byte) uintptr {
	name, s := e.enter("SetProfileID", id)
	defer e.mu.Unlock()
	if s == nil {
		return e.Heap.String(notRegistered(name))
	}
	s.profileID = goString(value)
	return 0
}

func (e *Engine) setSecureLocation(id, value *byte) uintptr {
	name, s := e.enter("SetSecureLocation", id)
	defer e.mu.Unlock()
	if s == nil {
		return e.Heap.String(notRegistered(name))
	}
	loc := goString(value)
	if len(loc) != 2 {
		return e.Heap.String(fmt.Sprintf("invalid country code %q", loc))
	}
	s.location = loc
	return 0
}

func (e *Engine) setConnected(connected bool) func(id *byte) uintptr {
	symbol := "SetDisconnected"
	if connected {
		symbol = "SetConnected"
	}
	return func(id *byte) uintptr {
		name, s := e.enter(symbol, id)
		defer e.mu.Unlock()
		if s == nil {
			return e.Heap.String(notRegistered(name))
		}
		s.connected = connected
		return 0
	}
}

func (e *Engine) getIdentifier(id *byte) bridge.DataError {
	name, s := e.enter("GetIdentifier", id)
	defer e.mu.Unlock()
	if s == nil {
		return bridge.DataError{Error: e.Heap.String(notRegistered(name))}
	}
	return bridge.DataError{Data: e.Heap.String(s.identifier)}
}

func (e *Engine) setIdentifier(id, value *byte) uintptr {
	name, s := e.enter("SetIdentifier", id)
	defer e.mu.Unlock()
	if s == nil {
		return e.Heap.String(notRegistered(name))
	}
	s.identifier = goString(value)
	return 0
}

func (e *Engine) setSearchServer(id *byte) uintptr {
	name, s := e.enter("SetSearchServer", id)
	defer e.mu.Unlock()
	if s == nil {
		return e.Heap.String(notRegistered(name))
	}
	s.searchServer = true
	return 0
}
