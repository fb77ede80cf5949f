package config

const (
	defaultStagingDir = "~/.local/share/parburn/staging"
	defaultLogDir     = "~/.local/share/parburn/logs"

	// BD-R single layer. 4482 for DVD, 680 for CD-R.
	defaultDiscCapacityMiB = 23841
	// Observed ISO + Rock Ridge + Joliet overhead plus room for the set
	// manifest and README copies on every disc.
	defaultDiscReserveMiB = 10
	defaultBurnerDevice   = "/dev/sr0"

	defaultSetSize      = 4
	defaultParity       = 1
	defaultSliceSizeMiB = 64
	defaultDigits       = 4

	defaultArchiverBinary = "dar"
	defaultBurnBinary     = "growisofs"
	defaultParityTool     = "builtin"
	defaultParityTimeout  = 3600
	defaultBurnTimeout    = 3600

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Disc: Disc{
			CapacityMiB:  defaultDiscCapacityMiB,
			ReserveMiB:   defaultDiscReserveMiB,
			BurnerDevice: defaultBurnerDevice,
		},
		Redundancy: Redundancy{
			SetSize:      defaultSetSize,
			Parity:       defaultParity,
			SliceSizeMiB: defaultSliceSizeMiB,
			Digits:       defaultDigits,
		},
		Tools: Tools{
			ArchiverBinary:       defaultArchiverBinary,
			BurnBinary:           defaultBurnBinary,
			ParityTool:           defaultParityTool,
			ParityTimeoutSeconds: defaultParityTimeout,
			BurnTimeoutSeconds:   defaultBurnTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
