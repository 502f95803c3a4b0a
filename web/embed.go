package web

import "embed"

// Index holds the search page served at the root route.
//
//go:embed index.html
var Index []byte

// Static holds the client script and stylesheet served under /static/.
//
//go:embed static
var Static embed.FS
