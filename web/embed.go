package web

import "embed"

// Templates embeds the plain-text templates.
//
//go:embed templates/*.tmpl
var Templates embed.FS

// Seed embeds the demo fixtures loaded at startup.
//
//go:embed seed/*.yaml
var Seed embed.FS

// I18n embeds the message catalogs.
//
//go:embed i18n/*.yaml
var I18n embed.FS
