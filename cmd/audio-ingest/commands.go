package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/petems/audio-ingest/internal/app"
	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flag name -> config key
var flagKeys = map[string]string{
	"log-level": "log_level",
	"source":    "capture.source",
	"device":    "capture.device_id",
	"file":      "capture.file",
	"realtime":  "capture.realtime",
	"codec":     "encoder.codec",
	"bitrate":   "encoder.bit_rate",
	"sink":      "sink.kind",
	"listen":    "server.listen",
}

func rootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	runE := func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), v, cfgFile)
	}

	rootCmd := &cobra.Command{
		Use:          "audio-ingest",
		Short:        "Capture live audio, encode it and publish it over WebRTC",
		Version:      fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage: true,
		RunE:         runE,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default "+config.Path()+")")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("source", "", "Capture source: portaudio or wav")
	flags.StringP("device", "d", "", "PortAudio input device name")
	flags.StringP("file", "f", "", "WAV file to capture from")
	flags.Bool("realtime", true, "Pace WAV input at capture speed")
	flags.String("codec", "", "Encoder codec: opus or pcm")
	flags.Int("bitrate", 0, "Opus bit rate in bits per second")
	flags.String("sink", "", "Sink: webrtc or log")
	flags.String("listen", "", "HTTP listen address")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Capture and publish until interrupted (default)",
			RunE:  runE,
		},
		devicesCommand(&cfgFile),
	)
	return rootCmd
}

// listDevices enumerates capture devices; tests replace it
var listDevices = audio.ListDevices

func devicesCommand(cfgFile *string) *cobra.Command {
	var selectID string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices, or select one with --select",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// An empty --config reads the platform path, which may be missing
			cfg, err := config.LoadFile(*cfgFile)
			if err != nil {
				return err
			}
			path := *cfgFile
			if path == "" {
				path = config.Path()
			}

			application := app.New(app.Config{
				Config:      cfg,
				ConfigPath:  path,
				Logger:      zerolog.Nop(),
				ListDevices: listDevices,
			})

			devices, err := application.ListDevices()
			if err != nil {
				return err
			}

			if selectID != "" {
				return selectDevice(cmd, application, devices, selectID, path)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEFAULT\tSELECTED\tID\tNAME")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark(d.Default), mark(d.ID == cfg.Capture.DeviceID), d.ID, d.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&selectID, "select", "", "Save this device ID as the capture device")
	return cmd
}

func selectDevice(cmd *cobra.Command, application *app.App, devices []audio.AudioDevice, id, path string) error {
	found := false
	for _, d := range devices {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown device: %q", id)
	}

	if err := application.SetDevice(id); err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Capture device set to %q in %s\n", id, path)
	return nil
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}
