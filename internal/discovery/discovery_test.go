package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverList = `{
  "v": 1700000000,
  "server_list": [
    {"server_type": "secure_internet", "base_url": "https://nl.eduvpn.org/", "country_code": "NL"},
    {"server_type": "institute_access", "base_url": "https://vpn.example.edu/", "display_name": {"en": "Example University", "nl": "Voorbeeld Universiteit"}},
    {"server_type": "secure_internet", "base_url": "https://de.eduvpn.org/", "country_code": "DE"}
  ]
}`

func TestParseServers(t *testing.T) {
	servers, err := ParseServers(serverList)
	require.NoError(t, err)
	require.Len(t, servers, 3)

	assert.Equal(t, TypeInstituteAccess, servers[1].Type)
	assert.Equal(t, "Example University", servers[1].Name())
	assert.Equal(t, "Voorbeeld Universiteit", servers[1].DisplayName.String("nl"))
	assert.Equal(t, "NL", servers[0].Name())

	assert.Equal(t, []string{"https://nl.eduvpn.org/", "https://de.eduvpn.org/"}, SecureInternetServers(servers))
}

func TestParseServersBareArray(t *testing.T) {
	servers, err := ParseServers(`[{"server_type":"secure_internet","base_url":"https://nl.eduvpn.org/"}]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://nl.eduvpn.org/"}, SecureInternetServers(servers))
}

func TestParseServersInvalid(t *testing.T) {
	_, err := ParseServers(`{"server_list": 3}`)
	require.Error(t, err)
	_, err = ParseServers("")
	require.Error(t, err)
}

func TestParseOrganizations(t *testing.T) {
	orgs, err := ParseOrganizations(`{"organization_list":[{"display_name":"SURF","org_id":"https://idp.surf.nl","secure_internet_home":"https://nl.eduvpn.org/"}]}`)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "SURF", orgs[0].DisplayName.String("de"))
	assert.Equal(t, "https://nl.eduvpn.org/", orgs[0].SecureInternetHome)
}

func TestTranslatedFallback(t *testing.T) {
	assert.Equal(t, "Zürich", Translated{"de": "Zürich", "fr": "Zurich"}.String("it"))
	assert.Equal(t, "", Translated{}.String("en"))
}

func TestParseProfiles(t *testing.T) {
	info, err := ParseProfiles(`{"current_profile":"staff","info":{"profile_list":[
		{"profile_id":"staff","display_name":"Staff","vpn_proto_list":["openvpn","wireguard"],"default_gateway":true},
		{"profile_id":"students","display_name":"Students"}]}}`)
	require.NoError(t, err)
	assert.Equal(t, "staff", info.Current)
	require.Len(t, info.Profiles(), 2)
	assert.Equal(t, []string{"openvpn", "wireguard"}, info.Profiles()[0].VPNProtoList)
	assert.Equal(t, "students", info.Profiles()[1].ID)
}

func TestParseLocations(t *testing.T) {
	locs, err := ParseLocations(`["nl","de","se"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"nl", "de", "se"}, locs)

	_, err = ParseLocations(`{"nl":1}`)
	require.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"nl.eduvpn.org", "https://nl.eduvpn.org/"},
		{"https://nl.eduvpn.org", "https://nl.eduvpn.org/"},
		{"https://nl.eduvpn.org/", "https://nl.eduvpn.org/"},
		{" vpn.example.edu/ ", "https://vpn.example.edu/"},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestHost(t *testing.T) {
	assert.Equal(t, "nl.eduvpn.org", Host("https://nl.eduvpn.org/"))
	assert.Equal(t, "vpn.example.edu_sub", Host("https://vpn.example.edu/sub/"))
}
