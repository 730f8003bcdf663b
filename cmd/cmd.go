// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, submitCommand, statusCommand, resumeCommand, resetCommand, segmentsCommand, exportCommand, downloadCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func kindFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "kind",
		Aliases: []string{"k"},
		Usage:   "Job kind: vocals|stems|dereverb|segments",
		Value:   "stems",
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and session database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

func submitCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Upload an audio file for separation or segment detection",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			configFlag(),
			kindFlag(),
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Block and print status updates until the job finishes",
			},
			&cli.BoolFlag{
				Name:  "chunked",
				Usage: "Force the chunked upload transport regardless of file size",
			},
		},
		Action: r.Submit,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current job for a kind",
		Flags: []cli.Flag{
			configFlag(),
			kindFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
		},
		Action: r.Status,
	}
}

func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Restore the persisted session and continue polling",
		Flags: []cli.Flag{
			configFlag(),
			kindFlag(),
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Block and print status updates until the job finishes",
			},
		},
		Action: r.Resume,
	}
}

func resetCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "reset",
		Usage:  "Clear the current job and its persisted session",
		Flags:  []cli.Flag{configFlag(), kindFlag()},
		Action: r.Reset,
	}
}

func segmentsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "segments",
		Usage: "List detected segments for the completed segment job",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
			&cli.BoolFlag{Name: "markdown", Usage: "Output a Markdown table"},
			&cli.Float64Flag{Name: "duration", Usage: "Source duration in seconds, for the Markdown header and edit validation"},
			&cli.StringFlag{Name: "set", Usage: "Replace a segment: <n>:<start>:<end> (1-based index, seconds)"},
			&cli.IntFlag{Name: "delete", Usage: "Delete a segment by 1-based index", Value: 0},
		},
		Action: r.Segments,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export detected segments, or a single stem, with an encoding profile",
		Flags: []cli.Flag{
			configFlag(),
			kindFlag(),
			&cli.StringFlag{Name: "stem", Usage: "Export one stem of a completed separation instead of segments"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Encoding format: mp3|wav|flac"},
			&cli.IntFlag{Name: "sample-rate", Usage: "Sample rate in Hz"},
			&cli.IntFlag{Name: "bit-depth", Usage: "Bit depth"},
			&cli.IntFlag{Name: "channels", Usage: "Channel count: 1 mono, 2 stereo"},
			&cli.StringFlag{Name: "prefix", Usage: "Filename prefix"},
			&cli.StringFlag{Name: "suffix", Usage: "Filename suffix"},
		},
		Action: r.Export,
	}
}

func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download one rendered stem",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "stem"},
		},
		Flags: []cli.Flag{
			configFlag(),
			kindFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Download format: mp3|wav",
				Value:   "mp3",
			},
		},
		Action: r.Download,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive playback and segment editing",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			configFlag(),
			kindFlag(),
			&cli.Float64Flag{Name: "duration", Usage: "Source duration in seconds"},
		},
		Action: r.TUI,
	}
}
