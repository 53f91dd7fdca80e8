// Package cmds holds the default command spec files, JS controllers and
// rooms.
package cmds

import "embed"

//go:embed *.yaml *.json js/*.js
var FS embed.FS
