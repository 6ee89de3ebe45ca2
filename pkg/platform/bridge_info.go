package platform

import (
	"fmt"
	"sync"

	"golang.org/x/mod/semver"
)

// BridgeInfo describes the host side of the bridge.
type BridgeInfo struct {
	// Version is the bridge protocol version in semver form (e.g. "v1.2.0").
	Version string
	// Host names the host implementation ("webview", "sim", "android", ...).
	Host string
	// PermissionsAPI reports whether the host can answer permission queries.
	PermissionsAPI bool
}

// BridgeService answers questions about the installed host bridge.
type BridgeService struct {
	channel *MethodChannel

	mu   sync.Mutex
	info *BridgeInfo
}

// Bridge is the singleton bridge service.
var Bridge = &BridgeService{channel: NewMethodChannel("geo/bridge")}

// Info returns the host's bridge info. The first successful answer is cached
// until the bridge is reset.
func (b *BridgeService) Info() (BridgeInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info != nil {
		return *b.info, nil
	}
	result, err := b.channel.Invoke("getInfo", nil)
	if err != nil {
		return BridgeInfo{}, err
	}
	m := parseMap(result)
	if m == nil {
		return BridgeInfo{}, ErrInvalidArguments
	}
	info := BridgeInfo{
		Version:        parseString(m["version"]),
		Host:           parseString(m["host"]),
		PermissionsAPI: parseBool(m["permissionsApi"]),
	}
	b.info = &info
	return info, nil
}

// RequireVersion fails with ErrBridgeTooOld when the host reports a protocol
// version below min. An empty min accepts any host.
func (b *BridgeService) RequireVersion(min string) error {
	if min == "" {
		return nil
	}
	if !semver.IsValid(min) {
		return fmt.Errorf("invalid minimum bridge version %q", min)
	}
	info, err := b.Info()
	if err != nil {
		return err
	}
	if !semver.IsValid(info.Version) {
		return fmt.Errorf("%w: host reported %q", ErrBridgeTooOld, info.Version)
	}
	if semver.Compare(info.Version, min) < 0 {
		return fmt.Errorf("%w: host %s, need %s", ErrBridgeTooOld, info.Version, min)
	}
	return nil
}

func (b *BridgeService) reset() {
	b.mu.Lock()
	b.info = nil
	b.mu.Unlock()
}
