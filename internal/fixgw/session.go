package fixgw

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quickfixgo/quickfix"
)

// SessionParams describes one FIX session's connection settings, sourced
// from internal/config.TradingConfig/MarketConfig. No example in the
// retrieval pack wires up a quickfix.Initiator from scratch (the teacher is
// a standalone demo that assumes an already-running session); this
// bootstrap is authored from the quickfix-go library's own documented
// Settings/ini format rather than grounded on a pack file.
type SessionParams struct {
	BeginString   string
	SenderCompID  string
	TargetCompID  string
	Host          string
	Port          int
	HeartBtIntSec int
}

func (p SessionParams) iniBlock() string {
	heartbeat := p.HeartBtIntSec
	if heartbeat <= 0 {
		heartbeat = 30
	}
	var b strings.Builder
	b.WriteString("[SESSION]\n")
	fmt.Fprintf(&b, "BeginString=%s\n", p.BeginString)
	fmt.Fprintf(&b, "SenderCompID=%s\n", p.SenderCompID)
	fmt.Fprintf(&b, "TargetCompID=%s\n", p.TargetCompID)
	fmt.Fprintf(&b, "SocketConnectHost=%s\n", p.Host)
	fmt.Fprintf(&b, "SocketConnectPort=%s\n", strconv.Itoa(p.Port))
	fmt.Fprintf(&b, "HeartBtInt=%s\n", strconv.Itoa(heartbeat))
	b.WriteString("StartTime=00:00:00\n")
	b.WriteString("EndTime=00:00:00\n")
	return b.String()
}

const defaultSettingsHeader = `[DEFAULT]
ConnectionType=initiator
ReconnectInterval=5
FileLogPath=log
UseDataDictionary=N

`

// BuildSettings renders a quickfix.Settings for a single initiator session.
// Each of the market-data and order-entry sessions gets its own Settings
// (and therefore its own Initiator), matching spec.md §4.8's two
// independent broker-vendor sessions.
func BuildSettings(p SessionParams) (*quickfix.Settings, error) {
	ini := defaultSettingsHeader + p.iniBlock()
	settings, err := quickfix.ParseSettings(strings.NewReader(ini))
	if err != nil {
		return nil, fmt.Errorf("parse fix session settings: %w", err)
	}
	return settings, nil
}

// Session wraps a running quickfix.Initiator so the caller can start/stop it
// uniformly for both the market-data and order-entry legs.
type Session struct {
	initiator *quickfix.Initiator
}

// NewInitiatorSession constructs (but does not start) an initiator for the
// given application and settings, using an in-memory message store. This
// agent does not resume a session across process restarts (the order state
// machine holds its state in memory only and starts empty), so
// MemoryStoreFactory is sufficient.
func NewInitiatorSession(app quickfix.Application, settings *quickfix.Settings) (*Session, error) {
	storeFactory := quickfix.NewMemoryStoreFactory()
	logFactory, err := quickfix.NewFileLogFactory(settings)
	if err != nil {
		return nil, fmt.Errorf("build fix log factory: %w", err)
	}
	initiator, err := quickfix.NewInitiator(app, storeFactory, settings, logFactory)
	if err != nil {
		return nil, fmt.Errorf("build fix initiator: %w", err)
	}
	return &Session{initiator: initiator}, nil
}

func (s *Session) Start() error { return s.initiator.Start() }

func (s *Session) Stop() {
	done := make(chan struct{})
	go func() {
		s.initiator.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}
