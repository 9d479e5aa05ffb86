package bttherm

// WithConfig sets the configuration (defaults to DefaultConfig())
func WithConfig(cfg Config) func(*Peripheral) {
	return func(p *Peripheral) {
		p.cfg = cfg
	}
}

// WithDeviceName sets the advertised device name
func WithDeviceName(deviceName string) func(*Peripheral) {
	return func(p *Peripheral) {
		p.cfg.DeviceName = deviceName
	}
}

// WithLogger sets a logger
func WithLogger(logger Logger) func(*Peripheral) {
	return func(p *Peripheral) {
		p.logger = logger
	}
}
