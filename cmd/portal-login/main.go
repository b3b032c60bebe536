// Command portal-login approves an eduVPN OAuth authorization URL without a
// browser. It reads the portal credentials from PORTAL_USER and PORTAL_PASS
// and hands the URL to the automation command named by PORTAL_DRIVER.
//
//	PORTAL_USER=alice PORTAL_PASS=secret PORTAL_DRIVER="node approve.js" portal-login <auth-url>
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Gaurav-Gosain/eduvpn/internal/portal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := portal.Run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, func() (portal.Driver, error) {
		return portal.DriverFromEnv(os.LookupEnv, os.Stdout, os.Stderr)
	})
	stop()
	os.Exit(code)
}
