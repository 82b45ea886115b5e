// Package tgui holds small Telegram UI helpers: callback data encoding
// ("scope:action:payload") and HTML-safe text building.
package tgui
