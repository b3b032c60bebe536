// Package discovery parses the JSON documents the engine returns: the
// server and organization lists, and the payloads of the Ask_Profile and
// Ask_Location transitions.
package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Server types.
const (
	TypeSecureInternet  = "secure_internet"
	TypeInstituteAccess = "institute_access"
)

// Translated is a display string that is either plain or keyed by language
// tag.
type Translated map[string]string

func (t *Translated) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Translated{"": s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("display name: %w", err)
	}
	*t = m
	return nil
}

// String returns the text for lang, falling back to English, then the plain
// value, then the first language in sorted order.
func (t Translated) String(lang string) string {
	for _, k := range []string{lang, "en", "en-US", ""} {
		if v, ok := t[k]; ok {
			return v
		}
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return t[keys[0]]
}

// Server is one discovery entry.
type Server struct {
	Type        string     `json:"server_type"`
	BaseURL     string     `json:"base_url"`
	DisplayName Translated `json:"display_name,omitempty"`
	CountryCode string     `json:"country_code,omitempty"`
	Keywords    Translated `json:"keyword_list,omitempty"`
}

// Name returns the display name, or the country code for Secure Internet
// servers which have none.
func (s Server) Name() string {
	if name := s.DisplayName.String("en"); name != "" {
		return name
	}
	if s.CountryCode != "" {
		return strings.ToUpper(s.CountryCode)
	}
	return s.BaseURL
}

// Organization is one entry of the organization list.
type Organization struct {
	DisplayName        Translated `json:"display_name"`
	OrgID              string     `json:"org_id"`
	SecureInternetHome string     `json:"secure_internet_home"`
	Keywords           Translated `json:"keyword_list,omitempty"`
}

// ParseServers parses a server list. Both the {"server_list": [...]}
// document and a bare array are accepted.
func ParseServers(data string) ([]Server, error) {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Server
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse server list: %w", err)
		}
		return list, nil
	}
	var doc struct {
		Servers []Server `json:"server_list"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse server list: %w", err)
	}
	return doc.Servers, nil
}

// ParseOrganizations parses an organization list.
func ParseOrganizations(data string) ([]Organization, error) {
	var doc struct {
		Organizations []Organization `json:"organization_list"`
	}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse organization list: %w", err)
	}
	return doc.Organizations, nil
}

// SecureInternetServers returns the base URLs of all Secure Internet servers
// in list order.
func SecureInternetServers(servers []Server) []string {
	var urls []string
	for _, s := range servers {
		if s.Type == TypeSecureInternet {
			urls = append(urls, s.BaseURL)
		}
	}
	return urls
}

// Profile is a VPN profile offered by a server.
type Profile struct {
	ID             string   `json:"profile_id"`
	DisplayName    string   `json:"display_name"`
	VPNProtoList   []string `json:"vpn_proto_list"`
	DefaultGateway bool     `json:"default_gateway"`
}

// ProfileInfo is the Ask_Profile payload.
type ProfileInfo struct {
	Current string `json:"current_profile"`
	Info    struct {
		ProfileList []Profile `json:"profile_list"`
	} `json:"info"`
}

// Profiles returns the offered profiles.
func (p ProfileInfo) Profiles() []Profile {
	return p.Info.ProfileList
}

// ParseProfiles parses an Ask_Profile payload.
func ParseProfiles(data string) (ProfileInfo, error) {
	var info ProfileInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return ProfileInfo{}, fmt.Errorf("failed to parse profile list: %w", err)
	}
	return info, nil
}

// ParseLocations parses an Ask_Location payload, a list of country codes.
func ParseLocations(data string) ([]string, error) {
	var locations []string
	if err := json.Unmarshal([]byte(data), &locations); err != nil {
		return nil, fmt.Errorf("failed to parse location list: %w", err)
	}
	return locations, nil
}

// NormalizeURL prefixes https:// when no scheme is given and ensures a
// trailing slash, the form the engine keys servers by.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		url = "https://" + url
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return url
}

// Host returns url without scheme or trailing slash, usable as a file name.
func Host(url string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	return strings.ReplaceAll(host, "/", "_")
}
