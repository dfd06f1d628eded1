// Package appfs embeds the files the binaries need at runtime: the SQL migrations,
// the email templates and the common password list.
package appfs

import "embed"

//go:embed migrations/*.sql all:assets
var FS embed.FS
