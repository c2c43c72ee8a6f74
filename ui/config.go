package ui

// Config contains TUI-specific configuration, read from the environment.
type Config struct {
	GlamourStyle    string `env:"GLAMOUR_STYLE" envDefault:"auto"`
	GlamourMaxWidth uint   `env:"NARRATE_WIDTH" envDefault:"100"`
	GlamourEnabled  bool   `env:"NARRATE_ENABLE_GLAMOUR" envDefault:"true"`
	AltScreen       bool   `env:"NARRATE_ALT_SCREEN" envDefault:"true"`
	EnableMouse     bool   `env:"NARRATE_MOUSE"`
}
