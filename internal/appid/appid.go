// Package appid resolves the painel application identity, falling back to the
// embedded copy when no .fulmen/app.yaml is found.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/atlasdao/painel-sub005/internal/assets/appidentity"
)

func init() {
	// FULMEN_APP_IDENTITY_PATH and explicit paths still win over the embedded copy.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}
