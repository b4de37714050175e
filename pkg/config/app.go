package config

// App holds process-wide settings shared by the binaries.
type App struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"saju"`
	// CatalogPath points at a YAML tier catalog; empty means built-in defaults.
	CatalogPath string `env:"CATALOG_PATH"`
	// IdentityHeader carries the identity reference set by the auth gateway.
	IdentityHeader string `env:"IDENTITY_HEADER" envDefault:"X-Identity-Ref"`
	WebhookSecret  string `env:"IDENTITY_WEBHOOK_SECRET,required"`
}
