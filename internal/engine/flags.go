package engine

import (
	"flag"
	"fmt"
	"io"

	"github.com/b08x/omega-13/internal/config"
)

// Flags holds parsed command-line options for the run subcommand.
type Flags struct {
	ConfigFile   string
	ServerURL    string
	TempRoot     string
	SaveLocation string

	DeviceIndex   int
	BufferSeconds int
	AutoRecord    bool
	Transcribe    bool
	Debug         bool

	ListDevices bool
	ShowVersion bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*Flags, error) {
	f := &Flags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.ConfigFile, "config", "", "path to config file")
	fs.StringVar(&f.ServerURL, "server", "", "transcription server URL")
	fs.StringVar(&f.TempRoot, "temp-root", "", "session temp directory")
	fs.StringVar(&f.SaveLocation, "save-to", "", "default session save location")
	fs.IntVar(&f.DeviceIndex, "device", -1, "audio input device index (-1 = default)")
	fs.IntVar(&f.BufferSeconds, "buffer-seconds", 0, "rolling pre-roll window in seconds")
	fs.BoolVar(&f.AutoRecord, "auto", false, "start with auto-record armed")
	fs.BoolVar(&f.Transcribe, "transcribe", true, "dispatch recordings for transcription")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	fs.BoolVar(&f.ListDevices, "list-devices", false, "list audio input devices and exit")
	fs.BoolVar(&f.ShowVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	if narg := fs.NArg(); narg > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f, nil
}

// ToOverrides converts parsed flags into config overrides.
func (f *Flags) ToOverrides() *config.FlagOverrides {
	return &config.FlagOverrides{
		ServerURL:        f.ServerURL,
		TempRoot:         f.TempRoot,
		SaveLocation:     f.SaveLocation,
		DeviceIndex:      f.DeviceIndex,
		BufferSeconds:    f.BufferSeconds,
		AutoRecord:       f.AutoRecord,
		Transcribe:       f.Transcribe,
		Debug:            f.Debug,
		HasDeviceIndex:   f.set["device"],
		HasBufferSeconds: f.set["buffer-seconds"],
		HasAutoRecord:    f.set["auto"],
		HasTranscribe:    f.set["transcribe"],
		HasDebug:         f.set["debug"],
	}
}
