// Package schemas embeds the JSON schemas for wire messages and config files.
package schemas

import "embed"

//go:embed *.schema.json
var FS embed.FS

const ActionTypes = "action_types.schema.json"
