package portalgate

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var rawVersion string

// Version is the released version of the gateway.
var Version = strings.TrimSpace(rawVersion)
