// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
)

// State is a [Context]'s position in the connection state machine (§3
// "Context states").
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateAuthorizing
	StateSettingName
	StateReady
	StateFailed
	StateTerminated
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "UNCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthorizing:
		return "AUTHORIZING"
	case StateSettingName:
		return "SETTING_NAME"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// good reports whether s is a non-terminal state (§3 `good(s)`).
func good(s State) bool {
	return s == StateUnconnected || s == StateConnecting || s == StateAuthorizing ||
		s == StateSettingName || s == StateReady
}

// ConnectFlags modify [Context.Connect] (§6.1).
type ConnectFlags uint8

const (
	// FlagNoAutospawn disables autospawn for this attempt.
	FlagNoAutospawn ConnectFlags = 1 << iota

	// FlagNoFail keeps the context in CONNECTING instead of failing
	// when candidates are exhausted, waiting for a presence signal.
	FlagNoFail
)

// SpawnHooks mirrors the caller-supplied prefork/atfork/postfork hook set
// of §4.3, threaded down into the [Spawner].
type SpawnHooks struct {
	PreFork  func()
	AtFork   func()
	PostFork func()
}

// Context is the root entity of §3: it drives the connection state
// machine, owns the transport and dispatcher once connected, and tracks
// every live [Operation] and stream.
type Context struct {
	mu sync.Mutex

	refcount int

	state     State
	lastError ErrorCode

	protocolVersion  uint32 // negotiated server version (bit 31 stripped)
	doSHM            bool
	peerLocal        bool
	serverExplicit   bool
	noFail           bool
	autospawnAllowed bool
	autospawnDone    bool
	clientIndex      uint32
	clientIndexSet   bool

	tagCounter uint32

	cfg      *Config
	propList PropList
	name     string

	candidates   []Endpoint
	serverString string

	dialCancel context.CancelFunc

	transport *Transport
	disp      *Dispatcher

	presence   PresenceWatcher
	spawnHooks *SpawnHooks

	playbackStreams map[uint32]PlaybackStream
	recordStreams   map[uint32]RecordStream

	operations map[*Operation]struct{}

	stateCB         func(*Context, State)
	subscribeCB     func(event uint32)
	clientEventCB   func(name string, pl PropList)
	streamRestoreCB func(p Packet)
	deviceManagerCB func(p Packet)

	fg     *forkGuard
	logger SLogger
	spanID string
}

// New creates a [*Context] named name, using cfg for configuration (§6.1
// `new(loop, name)`).
func New(cfg *Config, name string) *Context {
	return NewWithPropList(cfg, name, nil)
}

// NewWithPropList creates a [*Context] with an initial property list
// (§6.1 `new_with_proplist`).
func NewWithPropList(cfg *Config, name string, pl PropList) *Context {
	fg := installForkGuard()
	if pl == nil {
		pl = NewPropList()
	}
	if name != "" {
		pl.Set("application.name", name)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DefaultSLogger()
	}
	spanID := NewSpanID()
	c := &Context{
		refcount:         1,
		state:            StateUnconnected,
		cfg:              cfg,
		propList:         pl,
		name:             name,
		playbackStreams:  make(map[uint32]PlaybackStream),
		recordStreams:    make(map[uint32]RecordStream),
		operations:       make(map[*Operation]struct{}),
		fg:               fg,
		logger:           logger,
		spanID:           spanID,
	}
	return c
}

// ref adds a self-reference, used at every site that may invoke user
// code or recurse into the state machine (§9 "Reference counting around
// callbacks").
func (c *Context) ref() {
	c.mu.Lock()
	c.refcount++
	c.mu.Unlock()
}

// unref drops a self-reference. At zero, if the context is not already
// terminal, its resources are released without firing user callbacks
// (§5 "Cancellation").
func (c *Context) unref() {
	c.mu.Lock()
	c.refcount--
	n := c.refcount
	terminal := !good(c.state)
	c.mu.Unlock()
	if n > 0 || terminal {
		return
	}
	c.teardown()
}

func (c *Context) dispatcher() *Dispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disp
}

func (c *Context) addOperation(op *Operation) {
	c.mu.Lock()
	c.operations[op] = struct{}{}
	c.mu.Unlock()
}

func (c *Context) removeOperation(op *Operation) {
	c.mu.Lock()
	delete(c.operations, op)
	c.mu.Unlock()
}

func (c *Context) nextTag() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag := c.tagCounter
	c.tagCounter++
	return tag
}

// checkAPIEntry implements §5 "Fork safety" / §9's process-wide guard: it
// must be called first by every public method.
func (c *Context) checkAPIEntry() error {
	if c.fg.forked() {
		return NewError(ErrForked)
	}
	return nil
}

// GetState returns the current [State] (§6.1 `get_state`).
func (c *Context) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Errno returns the last error code recorded on this context (§6.1
// `errno`).
func (c *Context) Errno() ErrorCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Error returns the last error code wrapped as a standard Go error, or
// nil if none was recorded. This is a supplemental ambient-Go sibling of
// [Context.Errno] so callers can use errors.As/errors.Is.
func (c *Context) Error() error {
	code := c.Errno()
	if code == ErrOK {
		return nil
	}
	return NewError(code)
}

// IsLocal reports whether the peer is on the same host (§6.1 `is_local`).
func (c *Context) IsLocal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerLocal
}

// IsPending reports whether the transport or dispatcher has unflushed
// writes or outstanding tags (§6.1 `is_pending`).
func (c *Context) IsPending() bool {
	c.mu.Lock()
	transport, dispatcher := c.transport, c.disp
	c.mu.Unlock()
	if transport == nil || dispatcher == nil {
		return false
	}
	return transport.Pending() || dispatcher.Pending()
}

// GetServer returns the server string in effect, with any leading
// `{cookie-spec}` tag stripped (§6.1 `get_server`, §3 "Endpoint string").
func (c *Context) GetServer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverString
}

// GetProtocolVersion returns the local protocol version this client
// speaks (§6.1 `get_protocol_version`).
func (c *Context) GetProtocolVersion() uint32 {
	return c.cfg.ProtocolVersion
}

// GetServerProtocolVersion returns the negotiated server protocol version,
// valid once AUTHORIZING completes (§6.1 `get_server_protocol_version`).
func (c *Context) GetServerProtocolVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// GetIndex returns the client index assigned by the peer (§6.1
// `get_index`, §3 "client_index is meaningful only in state READY with
// negotiated version >= 13").
func (c *Context) GetIndex() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || !c.clientIndexSet {
		return 0, NewError(ErrBadState)
	}
	return c.clientIndex, nil
}

// SetStateCallback installs the state-transition callback (§6.1
// `set_state_callback`).
func (c *Context) SetStateCallback(cb func(ctx *Context, state State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !good(c.state) {
		return // §5 "Callback registration in terminal states silently no-ops."
	}
	c.stateCB = cb
}

// SetEventCallback installs the subscribe-event callback (§6.1
// `set_event_callback`).
func (c *Context) SetEventCallback(cb func(event uint32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !good(c.state) {
		return
	}
	c.subscribeCB = cb
}

// SetClientEventCallback installs the callback for server-originated
// client-facing events delivered via CLIENT_EVENT (§6.2, §9 "Dynamic
// dispatch").
func (c *Context) SetClientEventCallback(cb func(name string, pl PropList)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !good(c.state) {
		return
	}
	c.clientEventCB = cb
}

// SetStreamRestoreCallback installs the callback for unsolicited
// `module-stream-restore` extension notifications (§6.2, §9 "Dynamic
// dispatch").
func (c *Context) SetStreamRestoreCallback(cb func(p Packet)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !good(c.state) {
		return
	}
	c.streamRestoreCB = cb
}

// SetDeviceManagerCallback installs the callback for unsolicited
// `module-device-manager` extension notifications (§6.2, §9 "Dynamic
// dispatch").
func (c *Context) SetDeviceManagerCallback(cb func(p Packet)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !good(c.state) {
		return
	}
	c.deviceManagerCB = cb
}

// setState transitions the context to state, firing the state callback
// under an added self-reference (§4.6 "State callback", §9 "Reference
// counting around callbacks").
func (c *Context) setState(state State) {
	c.mu.Lock()
	c.state = state
	cb := c.stateCB
	c.mu.Unlock()

	if cb != nil {
		c.ref()
		cb(c, state)
		c.unref()
	}

	if state == StateFailed || state == StateTerminated {
		c.teardown()
	}
}

// fail transitions the context to FAILED with the given error code (§7
// "Propagation policy").
func (c *Context) fail(code ErrorCode) {
	c.mu.Lock()
	if !good(c.state) {
		c.mu.Unlock()
		return
	}
	c.lastError = code
	c.mu.Unlock()
	c.logger.Info("contextFailed", slog.String("spanID", c.spanID), slog.String("errClass", code.String()))
	c.setState(StateFailed)
}

// Disconnect transitions the context to TERMINATED from any good state
// (§6.1 `disconnect`, §8 "Idempotence": a second call is a no-op).
func (c *Context) Disconnect() {
	c.mu.Lock()
	if !good(c.state) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(StateTerminated)
}

// teardown unlinks every subsystem: any in-flight dial is cancelled first,
// then operations are cancelled, then every live stream is transitioned to
// match the context's own terminal state, then dispatcher, transport, and
// presence watcher are released. Reached either from [Context.setState] right
// after a terminal state callback fires, or directly from [Context.unref]
// at zero, which never fires a state callback at all.
func (c *Context) teardown() {
	c.mu.Lock()
	state := c.state
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	transport, dispatcher := c.transport, c.disp
	c.transport, c.disp = nil, nil
	presence := c.presence
	c.presence = nil
	ops := make([]*Operation, 0, len(c.operations))
	for op := range c.operations {
		ops = append(ops, op)
	}
	c.operations = make(map[*Operation]struct{})
	playback := make([]PlaybackStream, 0, len(c.playbackStreams))
	for _, s := range c.playbackStreams {
		playback = append(playback, s)
	}
	record := make([]RecordStream, 0, len(c.recordStreams))
	for _, s := range c.recordStreams {
		record = append(record, s)
	}
	c.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
	// §3 "On entry to FAILED or TERMINATED, all streams are transitioned
	// to FAILED (resp. TERMINATED)"; §7, §8 scenario 6.
	for _, s := range playback {
		if state == StateTerminated {
			s.Terminate()
		} else {
			s.Fail()
		}
	}
	for _, s := range record {
		if state == StateTerminated {
			s.Terminate()
		} else {
			s.Fail()
		}
	}
	if dispatcher != nil {
		dispatcher.CancelAll()
	}
	if transport != nil {
		transport.Close()
	}
	if presence != nil {
		presence.Close()
	}
}

// Connect begins connecting to server (nil selects the built-in fallback
// cascade of §4.1). flags and hooks follow §6.1 `connect`.
func (c *Context) Connect(ctx context.Context, server *string, flags ConnectFlags, hooks *SpawnHooks) error {
	if err := c.checkAPIEntry(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateUnconnected {
		c.mu.Unlock()
		return NewError(ErrBadState)
	}

	explicit := server != nil
	var candidates []Endpoint
	var err error
	if explicit {
		candidates, err = ParseEndpointList(*server)
		c.serverString = stripCookieTag(*server)
	} else {
		candidates, err = BuildEndpointList("", c.cfg, OSEnviron{})
		c.serverString = ""
	}
	if err != nil {
		c.mu.Unlock()
		return NewError(ErrInvalidServer)
	}

	c.serverExplicit = explicit
	c.autospawnAllowed = !explicit && c.cfg.EnableAutospawnByDefault && flags&FlagNoAutospawn == 0
	c.noFail = flags&FlagNoFail != 0
	c.spawnHooks = hooks
	c.candidates = candidates
	c.mu.Unlock()

	c.setState(StateConnecting)

	dialCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.dialCancel = cancel
	c.mu.Unlock()

	c.ref()
	go c.runConnectLoop(dialCtx)
	return nil
}

// runConnectLoop drives candidates through a [DialCascadeFunc] pipeline,
// applying the retry/autospawn/no-fail policy of §4.2/§4.6. It runs on
// its own goroutine because Go has no portable "register for socket
// readiness on an external loop" primitive the way the original library's
// main-loop abstraction does; each step still reports back through the
// same mutex-guarded state transitions any other callback uses.
//
// Each dial is wrapped with [ObserveConnFunc] (I/O logging) and
// [CancelWatchFunc] (so the connection dies the instant ctx is cancelled,
// i.e. the moment [Context.teardown] calls dialCancel) before reaching
// the cascade, composed with [Compose2].
func (c *Context) runConnectLoop(ctx context.Context) {
	defer c.unref()

	dial := Compose2[Endpoint, net.Conn, net.Conn](
		NewConnectFunc(c.cfg, c.logger),
		Compose2[net.Conn, net.Conn, net.Conn](
			NewObserveConnFunc(c.cfg, c.logger),
			NewCancelWatchFunc(),
		),
	)
	cascade := NewDialCascadeFunc(dial)

	for {
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		if len(c.candidates) == 0 {
			c.mu.Unlock()
			if c.handleCandidatesExhausted(ctx) {
				continue
			}
			return
		}
		batch := c.candidates
		c.candidates = nil
		c.mu.Unlock()

		outcome, err := cascade.Call(ctx, batch)
		if err == nil {
			c.onDialSuccess(outcome.Conn, outcome.Endpoint)
			return
		}
		if !isRetryableConnectError(err) {
			c.fail(ErrConnectionRefused)
			return
		}
		// retryable: every candidate in the batch was exhausted by the
		// cascade itself; loop around to re-check exhaustion handling.
	}
}

// handleCandidatesExhausted implements the CONNECTING self-loop of §4.6:
// autospawn once if eligible, else arm the presence watcher under
// no-fail, else fail. Returns true if the caller should keep looping
// (candidates were re-prepended).
func (c *Context) handleCandidatesExhausted(ctx context.Context) bool {
	c.mu.Lock()
	canAutospawn := c.autospawnAllowed && !c.autospawnDone
	noFail := c.noFail
	c.mu.Unlock()

	if canAutospawn {
		if c.trySpawn() {
			c.mu.Lock()
			c.autospawnDone = true
			c.candidates = RePrependRuntimeSockets(nil, c.cfg, OSEnviron{})
			c.mu.Unlock()
			return true
		}
		c.fail(ErrConnectionRefused)
		return false
	}

	if noFail {
		c.armPresenceWatcher()
		return false
	}

	c.fail(ErrConnectionRefused)
	return false
}

// trySpawn implements the preconditions and procedure of §4.3.
func (c *Context) trySpawn() bool {
	if os.Getuid() == 0 {
		return false
	}
	if sigchldReapingDisabled() {
		return false
	}
	var hooks *SpawnHooks
	c.mu.Lock()
	hooks = c.spawnHooks
	c.mu.Unlock()

	spawner := c.cfg.Spawner
	if o, ok := spawner.(*OSSpawner); ok && hooks != nil {
		o.PreFork, o.AtFork, o.PostFork = hooks.PreFork, hooks.AtFork, hooks.PostFork
	}
	args := append([]string{"--start"}, c.cfg.SpawnExtraArgs...)
	if err := spawner.Spawn(c.cfg.SpawnBinary, args); err != nil {
		c.logger.Info("autospawnFailed", slog.Any("err", err))
		return false
	}
	return true
}

// armPresenceWatcher subscribes to the daemon's well-known bus name and
// re-triggers the candidate list when it appears (§4.3, §4.6, §8
// "Candidate list empty and NOFAIL set").
func (c *Context) armPresenceWatcher() {
	if c.cfg.PresenceWatcherFactory == nil {
		return
	}
	watcher, err := c.cfg.PresenceWatcherFactory("org.pulseaudio.Server", c.logger)
	if err != nil {
		c.logger.Info("presenceWatcherFailed", slog.Any("err", err))
		return
	}
	c.mu.Lock()
	c.presence = watcher
	c.mu.Unlock()

	watcher.SetOwnerChangedCallback(func(owned bool) {
		if !owned {
			return
		}
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.candidates = RePrependRuntimeSockets(c.candidates, c.cfg, OSEnviron{})
		dialCtx, cancel := context.WithCancel(context.Background())
		c.dialCancel = cancel
		c.mu.Unlock()
		c.ref()
		go c.runConnectLoop(dialCtx)
	})
}

// onDialSuccess wraps the dialed conn in the configured [PacketStream] and
// advances CONNECTING -> AUTHORIZING (§4.6 "CONNECTING | dialer success |
// AUTHORIZING").
func (c *Context) onDialSuccess(conn net.Conn, ep Endpoint) {
	c.mu.Lock()
	c.peerLocal = ep.Kind == EndpointUnix
	c.mu.Unlock()

	stream := c.cfg.NewPacketStream(conn, c.cfg.Codec, c.logger)
	c.sendAuth(stream)
}

// sendAuth builds the transport and dispatcher, then sends AUTH (§4.6
// "CONNECTING | dialer success | AUTHORIZING").
func (c *Context) sendAuth(streamConn PacketStream) {
	dispatcher := NewDispatcher(c.logger, c.cfg.TimeNow)
	transport := NewTransport(streamConn, c.logger)
	transport.OnLinkDied = func() { c.fail(ErrConnectionTerminated) }
	transport.OnPacket = func(p Packet, creds *PeerCredentials) {
		if err := dispatcher.Dispatch(p, creds); err != nil {
			c.fail(ErrProtocol)
		}
	}
	transport.RecordStreamByChannel = func(channel uint32) (RecordStream, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		s, ok := c.recordStreams[channel]
		return s, ok
	}

	dispatcher.SetCommandHandler(CmdSubscribeEvent, c.handleSubscribeEvent)
	dispatcher.SetCommandHandler(CmdClientEvent, c.handleClientEvent)
	dispatcher.SetCommandHandler(CmdExtension, c.handleExtensionEvent)
	dispatcher.SetCommandHandler(CmdRequest, c.handlePlaybackRequest)
	dispatcher.SetCommandHandler(CmdOverflow, c.handlePlaybackOverflow)
	dispatcher.SetCommandHandler(CmdUnderflow, c.handlePlaybackUnderflow)
	dispatcher.SetCommandHandler(CmdStarted, c.handlePlaybackStarted)
	dispatcher.SetCommandHandler(CmdPlaybackStreamKilled, c.handlePlaybackStreamKilled)
	dispatcher.SetCommandHandler(CmdPlaybackStreamMoved, c.handlePlaybackStreamMoved)
	dispatcher.SetCommandHandler(CmdPlaybackStreamSuspended, c.handlePlaybackStreamSuspended)
	dispatcher.SetCommandHandler(CmdPlaybackBufferAttrChanged, c.handlePlaybackBufferAttrChanged)
	dispatcher.SetCommandHandler(CmdRecordStreamKilled, c.handleRecordStreamKilled)
	dispatcher.SetCommandHandler(CmdRecordStreamMoved, c.handleRecordStreamMoved)
	dispatcher.SetCommandHandler(CmdRecordStreamSuspended, c.handleRecordStreamSuspended)
	dispatcher.SetCommandHandler(CmdRecordBufferAttrChanged, c.handleRecordBufferAttrChanged)

	c.mu.Lock()
	c.transport = transport
	c.disp = dispatcher
	localSHM := c.cfg.Pool != nil && c.cfg.Pool.SupportsShared() && c.peerLocal
	c.mu.Unlock()

	version := c.cfg.ProtocolVersion
	if localSHM {
		version |= shmBit
	}

	w := c.cfg.Codec.NewWriter()
	w.PutUint32(version)
	w.PutBytes(c.cfg.Cookie)

	tag := c.nextTag()
	pkt := Packet{Command: CmdAuth, Tag: tag, Payload: w.Bytes()}

	c.setState(StateAuthorizing)

	dispatcher.Register(tag, c.cfg.DefaultTimeout, c.handleAuthReply, nil)

	var sendErr error
	if transport.SupportsCredentialPassing() {
		sendErr = transport.SendPacketWithCreds(pkt)
	} else {
		sendErr = transport.SendPacket(pkt)
	}
	if sendErr != nil {
		c.fail(ErrConnectionTerminated)
	}
}

// handleAuthReply implements §4.6 "AUTHORIZING | REPLY to AUTH |
// SETTING_NAME" and the version-handshake / do_shm computation.
func (c *Context) handleAuthReply(p Packet) {
	if p.Command == CmdTimeout {
		c.fail(ErrTimeout)
		return
	}
	if p.Command == CmdError {
		r := c.cfg.Codec.NewReader(p.Payload)
		code, _ := r.GetUint32()
		c.fail(NormalizeServerErrorCode(ErrorCode(code)))
		return
	}
	r := c.cfg.Codec.NewReader(p.Payload)
	raw, err := r.GetUint32()
	if err != nil {
		c.fail(ErrProtocol)
		return
	}

	serverSHMBit := raw&shmBit != 0
	version := raw & versionMask
	if version < c.cfg.MinProtocolVersion {
		c.fail(ErrVersion)
		return
	}

	c.mu.Lock()
	c.protocolVersion = version
	doSHM := c.cfg.Pool != nil && c.cfg.Pool.SupportsShared() && c.peerLocal
	if version < 10 {
		doSHM = false
	}
	if version >= 13 && !serverSHMBit {
		doSHM = false
	}
	transport := c.transport
	c.mu.Unlock()

	if transport != nil {
		if creds, ok := transport.PeerCredentials(); ok {
			if uint32(os.Getuid()) != creds.UID {
				doSHM = false
			}
		}
		transport.EnableSharedMemory(doSHM)
	}

	c.mu.Lock()
	c.doSHM = doSHM
	c.mu.Unlock()

	c.sendSetClientName()
}

// sendSetClientName implements the SETTING_NAME leg of §4.6.
func (c *Context) sendSetClientName() {
	c.mu.Lock()
	version := c.protocolVersion
	pl := c.propList
	dispatcher := c.disp
	transport := c.transport
	c.mu.Unlock()

	w := c.cfg.Codec.NewWriter()
	if version >= 13 {
		w.PutPropList(pl)
	} else {
		name, _ := pl.Get("application.name")
		w.PutString(name)
	}

	tag := c.nextTag()
	pkt := Packet{Command: CmdSetClientName, Tag: tag, Payload: w.Bytes()}

	c.setState(StateSettingName)

	dispatcher.Register(tag, c.cfg.DefaultTimeout, c.handleSetClientNameReply, nil)
	if err := transport.SendPacket(pkt); err != nil {
		c.fail(ErrConnectionTerminated)
	}
}

// handleSetClientNameReply implements §4.6 "SETTING_NAME | REPLY to
// SET_CLIENT_NAME | READY".
func (c *Context) handleSetClientNameReply(p Packet) {
	if p.Command == CmdTimeout {
		c.fail(ErrTimeout)
		return
	}
	if p.Command == CmdError {
		r := c.cfg.Codec.NewReader(p.Payload)
		code, _ := r.GetUint32()
		c.fail(NormalizeServerErrorCode(ErrorCode(code)))
		return
	}

	c.mu.Lock()
	version := c.protocolVersion
	c.mu.Unlock()

	if version >= 13 {
		r := c.cfg.Codec.NewReader(p.Payload)
		idx, err := r.GetUint32()
		if err != nil {
			c.fail(ErrProtocol)
			return
		}
		c.mu.Lock()
		c.clientIndex = idx
		c.clientIndexSet = true
		c.mu.Unlock()
	}

	c.setState(StateReady)
}

// handleSubscribeEvent implements the inbound `SUBSCRIBE_EVENT` leg of
// §6.2, forwarding the raw event code to the callback installed via
// [Context.SetEventCallback].
func (c *Context) handleSubscribeEvent(p Packet, _ *PeerCredentials) {
	r := c.cfg.Codec.NewReader(p.Payload)
	event, err := r.GetUint32()
	if err != nil {
		return
	}
	c.mu.Lock()
	cb := c.subscribeCB
	c.mu.Unlock()
	if cb != nil {
		cb(event)
	}
}

// handleClientEvent implements the inbound `CLIENT_EVENT` leg of §6.2,
// forwarding the event name and accompanying property list to the callback
// installed via [Context.SetClientEventCallback].
func (c *Context) handleClientEvent(p Packet, _ *PeerCredentials) {
	r := c.cfg.Codec.NewReader(p.Payload)
	name, err := r.GetString()
	if err != nil {
		return
	}
	pl, err := r.GetPropList()
	if err != nil {
		return
	}
	c.mu.Lock()
	cb := c.clientEventCB
	c.mu.Unlock()
	if cb != nil {
		cb(name, pl)
	}
}

// handleExtensionEvent implements the inbound `EXTENSION` leg of §6.2:
// dispatch by well-known extension name (§9 "Dynamic dispatch"); any other
// name is logged and discarded.
func (c *Context) handleExtensionEvent(p Packet, _ *PeerCredentials) {
	r := c.cfg.Codec.NewReader(p.Payload)
	name, err := r.GetString()
	if err != nil {
		return
	}

	c.mu.Lock()
	var cb func(p Packet)
	switch name {
	case ExtensionStreamRestore:
		cb = c.streamRestoreCB
	case ExtensionDeviceManager:
		cb = c.deviceManagerCB
	}
	c.mu.Unlock()

	if cb == nil {
		c.logger.Debug("unhandledExtension", slog.String("name", name))
		return
	}
	cb(p)
}

// RegisterPlaybackStream tracks stream under channel so that inbound
// `REQUEST`/`OVERFLOW`/`UNDERFLOW`/... notifications for that channel are
// routed to it by the command handlers installed in [Context.sendAuth].
func (c *Context) RegisterPlaybackStream(channel uint32, stream PlaybackStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playbackStreams[channel] = stream
}

// UnregisterPlaybackStream removes channel's tracked [PlaybackStream].
func (c *Context) UnregisterPlaybackStream(channel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.playbackStreams, channel)
}

// RegisterRecordStream tracks stream under channel, making it reachable
// from [Transport]'s memblock-routing policy (§4.4 "On memblock-received").
func (c *Context) RegisterRecordStream(channel uint32, stream RecordStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordStreams[channel] = stream
}

// UnregisterRecordStream removes channel's tracked [RecordStream].
func (c *Context) UnregisterRecordStream(channel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recordStreams, channel)
}

func (c *Context) playbackByChannel(channel uint32) (PlaybackStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.playbackStreams[channel]
	return s, ok
}

func (c *Context) recordByChannel(channel uint32) (RecordStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.recordStreams[channel]
	return s, ok
}

// handlePlaybackRequest implements the inbound `REQUEST` leg of §6.2: the
// server asking for more data on a playback stream.
func (c *Context) handlePlaybackRequest(p Packet, _ *PeerCredentials) {
	r := c.cfg.Codec.NewReader(p.Payload)
	channel, err := r.GetUint32()
	if err != nil {
		return
	}
	length, err := r.GetUint32()
	if err != nil {
		return
	}
	if s, ok := c.playbackByChannel(channel); ok {
		s.Request(int64(length))
	}
}

func (c *Context) handlePlaybackOverflow(p Packet, _ *PeerCredentials) {
	if s, ok := c.channelStream(p); ok {
		s.Overflow()
	}
}

func (c *Context) handlePlaybackUnderflow(p Packet, _ *PeerCredentials) {
	if s, ok := c.channelStream(p); ok {
		s.Underflow()
	}
}

func (c *Context) handlePlaybackStarted(p Packet, _ *PeerCredentials) {
	if s, ok := c.channelStream(p); ok {
		s.Started()
	}
}

func (c *Context) handlePlaybackStreamKilled(p Packet, _ *PeerCredentials) {
	channel, ok := c.firstUint32(p)
	if !ok {
		return
	}
	c.UnregisterPlaybackStream(channel)
}

func (c *Context) handlePlaybackStreamMoved(p Packet, _ *PeerCredentials) {
	if s, ok := c.channelStream(p); ok {
		s.Moved()
	}
}

func (c *Context) handlePlaybackStreamSuspended(p Packet, _ *PeerCredentials) {
	channel, suspended, ok := c.channelBool(p)
	if !ok {
		return
	}
	if s, ok := c.playbackByChannel(channel); ok {
		s.Suspended(suspended)
	}
}

func (c *Context) handlePlaybackBufferAttrChanged(p Packet, _ *PeerCredentials) {
	if s, ok := c.channelStream(p); ok {
		s.BufferAttrChanged()
	}
}

func (c *Context) handleRecordStreamKilled(p Packet, _ *PeerCredentials) {
	channel, ok := c.firstUint32(p)
	if !ok {
		return
	}
	c.UnregisterRecordStream(channel)
}

func (c *Context) handleRecordStreamMoved(p Packet, _ *PeerCredentials) {
	channel, ok := c.firstUint32(p)
	if !ok {
		return
	}
	if s, ok := c.recordByChannel(channel); ok {
		s.Moved()
	}
}

func (c *Context) handleRecordStreamSuspended(p Packet, _ *PeerCredentials) {
	channel, suspended, ok := c.channelBool(p)
	if !ok {
		return
	}
	if s, ok := c.recordByChannel(channel); ok {
		s.Suspended(suspended)
	}
}

func (c *Context) handleRecordBufferAttrChanged(p Packet, _ *PeerCredentials) {
	channel, ok := c.firstUint32(p)
	if !ok {
		return
	}
	if s, ok := c.recordByChannel(channel); ok {
		s.BufferAttrChanged()
	}
}

// firstUint32 parses just the leading channel id field common to every
// per-stream notification in §6.2.
func (c *Context) firstUint32(p Packet) (uint32, bool) {
	r := c.cfg.Codec.NewReader(p.Payload)
	v, err := r.GetUint32()
	if err != nil {
		return 0, false
	}
	return v, true
}

// channelBool parses a `(channel, bool)` payload shape, used by the
// suspended notifications.
func (c *Context) channelBool(p Packet) (channel uint32, value bool, ok bool) {
	r := c.cfg.Codec.NewReader(p.Payload)
	channel, err := r.GetUint32()
	if err != nil {
		return 0, false, false
	}
	v, err := r.GetUint8()
	if err != nil {
		return 0, false, false
	}
	return channel, v != 0, true
}

// channelStream resolves a playback stream for the leading-channel-id
// payload shape shared by OVERFLOW/UNDERFLOW/STARTED/MOVED/
// BUFFER_ATTR_CHANGED.
func (c *Context) channelStream(p Packet) (PlaybackStream, bool) {
	channel, ok := c.firstUint32(p)
	if !ok {
		return nil, false
	}
	return c.playbackByChannel(channel)
}

// GetTileSize computes the maximum block size to request, rounding the
// pool's maximum block size down to a frame boundary (§6.1
// `get_tile_size`).
func (c *Context) GetTileSize(frameSize, poolMaxBlock int) int {
	if frameSize <= 0 {
		return poolMaxBlock
	}
	rounded := (poolMaxBlock / frameSize) * frameSize
	if rounded > frameSize {
		return rounded
	}
	return frameSize
}
