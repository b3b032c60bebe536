package eduvpn

import (
	"context"

	"github.com/Gaurav-Gosain/eduvpn/internal/bridge"
)

const (
	// flagPreferTCP is bit 0 of the get-config flags.
	flagPreferTCP int32 = 1 << 0
	// flagDebug is bit 0 of the register flags.
	flagDebug int32 = 1 << 0
)

func boolFlag(set bool, flag int32) int32 {
	if set {
		return flag
	}
	return 0
}

func (c *Client) data(op, sessionID string) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	res, err := c.bridge.CallData(op, sessionID)
	if err != nil {
		return "", err
	}
	data, errText := res.Values()
	return data, engineError(op, errText)
}

func (c *Client) multipleData(op, sessionID, server string, flags int32) (string, string, error) {
	if c.closed.Load() {
		return "", "", ErrClosed
	}
	res, err := c.bridge.CallMultipleData(op, sessionID, server, flags)
	if err != nil {
		return "", "", err
	}
	data, other, errText := res.Values()
	return data, other, engineError(op, errText)
}

func (c *Client) unit(op string, args ...any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	errText, err := c.bridge.CallError(op, args...)
	if err != nil {
		return err
	}
	return engineError(op, errText)
}

// ============================================================================
// Discovery
// ============================================================================

// GetOrganizationsList returns the discovery organization list as JSON.
func (c *Client) GetOrganizationsList(sessionID string) (string, error) {
	return c.data(bridge.OpGetOrganizationsList, sessionID)
}

// GetServersList returns the discovery server list as JSON.
func (c *Client) GetServersList(sessionID string) (string, error) {
	return c.data(bridge.OpGetServersList, sessionID)
}

// ============================================================================
// Configuration
// ============================================================================

// GetConfigSecureInternet obtains a VPN configuration for a Secure Internet
// server. It blocks for the whole OAuth flow and reports progress to the
// session's listener. The second result is the config type.
func (c *Client) GetConfigSecureInternet(sessionID, url string, preferTCP bool) (string, string, error) {
	return c.multipleData(bridge.OpGetConfigSecureInternet, sessionID, url, boolFlag(preferTCP, flagPreferTCP))
}

// GetConfigInstituteAccess obtains a VPN configuration for an Institute
// Access server.
func (c *Client) GetConfigInstituteAccess(sessionID, url string, preferTCP bool) (string, string, error) {
	return c.multipleData(bridge.OpGetConfigInstituteAccess, sessionID, url, boolFlag(preferTCP, flagPreferTCP))
}

// GetConfigCustomServer obtains a VPN configuration for a server that is not
// in discovery.
func (c *Client) GetConfigCustomServer(sessionID, url string, preferTCP bool) (string, string, error) {
	return c.multipleData(bridge.OpGetConfigCustomServer, sessionID, url, boolFlag(preferTCP, flagPreferTCP))
}

// SetProfileID answers an Ask_Profile transition.
func (c *Client) SetProfileID(sessionID, profileID string) error {
	return c.unit(bridge.OpSetProfileID, sessionID, profileID)
}

// SetSecureLocation answers an Ask_Location transition with a country code.
func (c *Client) SetSecureLocation(sessionID, countryCode string) error {
	return c.unit(bridge.OpSetSecureLocation, sessionID, countryCode)
}

// SetSearchServer moves the session to server search.
func (c *Client) SetSearchServer(sessionID string) error {
	return c.unit(bridge.OpSetSearchServer, sessionID)
}

// ============================================================================
// Connection state
// ============================================================================

// SetConnected tells the engine the VPN tunnel is up.
func (c *Client) SetConnected(sessionID string) error {
	return c.unit(bridge.OpSetConnected, sessionID)
}

// SetDisconnected tells the engine the VPN tunnel is down.
func (c *Client) SetDisconnected(sessionID string) error {
	return c.unit(bridge.OpSetDisconnected, sessionID)
}

// GetIdentifier returns the identifier of the current server.
func (c *Client) GetIdentifier(sessionID string) (string, error) {
	return c.data(bridge.OpGetIdentifier, sessionID)
}

// SetIdentifier sets the identifier of the current server.
func (c *Client) SetIdentifier(sessionID, identifier string) error {
	return c.unit(bridge.OpSetIdentifier, sessionID, identifier)
}

// ============================================================================
// Cancellation
// ============================================================================

// CancelOAuth aborts an OAuth flow in progress. The blocked get-config call
// returns with an engine error.
func (c *Client) CancelOAuth(sessionID string) error {
	return c.unit(bridge.OpCancelOAuth, sessionID)
}

// CancelOnDone calls CancelOAuth for sessionID once ctx is done. The returned
// stop function detaches it; calling stop after the cancellation fired is
// harmless.
func (c *Client) CancelOnDone(ctx context.Context, sessionID string) (stop func()) {
	unregister := context.AfterFunc(ctx, func() {
		if err := c.CancelOAuth(sessionID); err != nil {
			c.logger.Debug().Str("session", sessionID).Err(err).Msg("cancel oauth failed")
			return
		}
		c.logger.Debug().Str("session", sessionID).Msg("oauth cancelled")
	})
	return func() { unregister() }
}
