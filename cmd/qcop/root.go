package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coltonbh/qcop/internal/app/compute"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/infra/docker"
)

const version = "0.6.0"

type rootFlags struct {
	scratchDir  string
	dockerImage string
	timeout     time.Duration
}

func (f *rootFlags) service() (*compute.Service, error) {
	cfg := compute.Config{
		ScratchBase:    f.scratchDir,
		DefaultTimeout: f.timeout,
	}
	if f.dockerImage != "" {
		cfg.Docker = &docker.Config{Image: f.dockerImage}
	}
	return compute.New(cfg)
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "qcop",
		Short:         "Run quantum chemistry programs through a uniform interface",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.scratchDir, "scratch-dir",
		envOrDefault("QCOP_SCRATCH_DIR", ""), "parent directory for scratch workspaces")
	root.PersistentFlags().StringVar(&flags.dockerImage, "docker-image",
		envOrDefault("QCOP_DOCKER_IMAGE", ""), "run programs in containers of this image")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout",
		parseDuration(os.Getenv("QCOP_TIMEOUT"), 0), "wall-clock limit per program invocation")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newExecCmd(flags))
	root.AddCommand(newProgramsCmd(flags))
	return root
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		program      string
		inputPath    string
		outputPath   string
		keepScratch  bool
		collectFiles bool
		collectWfn   bool
		printLogs    bool
		fallbacks    []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a structured calculation described by a JSON spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := &calc.CalcSpec{}
			if err := readJSON(inputPath, spec); err != nil {
				return err
			}

			svc, err := flags.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			opts := compute.Options{
				KeepScratchDir:      keepScratch,
				CollectFiles:        collectFiles,
				CollectWavefunction: collectWfn,
				FallbackPrograms:    fallbacks,
			}
			if printLogs {
				opts.Mirror = cmd.ErrOrStderr()
			}

			out, runErr := svc.Compute(cmd.Context(), program, spec, opts)
			if out != nil {
				if err := writeJSON(outputPath, out); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&program, "program", "p", "", "program to run the calculation with")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "spec JSON file, - for stdin")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "-", "outcome JSON file, - for stdout")
	cmd.Flags().BoolVar(&keepScratch, "keep-scratch", false, "leave the scratch directory on disk")
	cmd.Flags().BoolVar(&collectFiles, "collect-files", false, "include all produced files in the outcome")
	cmd.Flags().BoolVar(&collectWfn, "collect-wfn", false, "include wavefunction files in the outcome")
	cmd.Flags().BoolVar(&printLogs, "print-logs", false, "mirror program output to stderr while running")
	cmd.Flags().StringSliceVar(&fallbacks, "fallback", nil, "programs to try when the requested one is unavailable")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func newExecCmd(flags *rootFlags) *cobra.Command {
	var (
		inputPath   string
		outputPath  string
		keepScratch bool
		printLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run an explicit command with raw input files, no structured parsing",
		RunE: func(cmd *cobra.Command, args []string) error {
			fspec := &calc.FileSpec{}
			if err := readJSON(inputPath, fspec); err != nil {
				return err
			}

			svc, err := flags.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			opts := compute.Options{KeepScratchDir: keepScratch}
			if printLogs {
				opts.Mirror = cmd.ErrOrStderr()
			}

			out, runErr := svc.ComputeFile(cmd.Context(), fspec, opts)
			if out != nil {
				if err := writeJSON(outputPath, out); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "file spec JSON, - for stdin")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "-", "outcome JSON file, - for stdout")
	cmd.Flags().BoolVar(&keepScratch, "keep-scratch", false, "leave the scratch directory on disk")
	cmd.Flags().BoolVar(&printLogs, "print-logs", false, "mirror program output to stderr while running")
	return cmd
}

func newProgramsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List registered programs and whether they can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := flags.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, program := range svc.Programs() {
				status := "unavailable"
				if svc.Available(program) {
					status = "available"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", program, status)
			}
			return nil
		},
	}
}

func readJSON(path string, v any) error {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	raw = append(raw, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}
