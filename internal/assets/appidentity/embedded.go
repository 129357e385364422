package appidentityassets

import _ "embed"

// YAML mirrors .fulmen/app.yaml so a standalone painel binary still knows its
// env prefix and config name.
//
//go:embed app.yaml
var YAML []byte
