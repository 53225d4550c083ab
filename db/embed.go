// Package db embeds the PostgreSQL schema and the sample menu.
package db

import _ "embed"

// Schema creates every table the service uses. It is safe to run on each
// start.
//
//go:embed migrations/001_schema.sql
var Schema string

// SampleMenu is a demo catalog in the menu JSON format.
//
//go:embed seed/menu.json
var SampleMenu []byte
