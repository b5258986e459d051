// fragcc - compile SPIR-V fragment shaders for the soft GPU core, or
// evaluate them per pixel.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/softgpu/fragc"
)

// config is the optional TOML target file; flags override it.
type config struct {
	Library              string `toml:"library"`
	Verbose              bool   `toml:"verbose"`
	ThrowOnUnimplemented bool   `toml:"throw_on_unimplemented"`
	Width                int    `toml:"width"`
	Height               int    `toml:"height"`
}

var (
	configPath string
	cfg        = config{Width: 256, Height: 256}

	libraryPath string
	dumpIR      bool
	evalX       int
	evalY       int
)

func main() {
	root := &cobra.Command{
		Use:           "fragcc",
		Short:         "SPIR-V fragment shader compiler for the soft GPU core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				fileCfg := cfg
				if _, err := toml.DecodeFile(configPath, &fileCfg); err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
				flags := cmd.Flags()
				if flags.Changed("verbose") {
					fileCfg.Verbose = cfg.Verbose
				}
				if flags.Changed("throw-on-unimplemented") {
					fileCfg.ThrowOnUnimplemented = cfg.ThrowOnUnimplemented
				}
				if flags.Changed("width") {
					fileCfg.Width = cfg.Width
				}
				if flags.Changed("height") {
					fileCfg.Height = cfg.Height
				}
				cfg = fileCfg
			}
			if cfg.Verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			logrus.SetOutput(os.Stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "TOML target configuration file")
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&cfg.ThrowOnUnimplemented, "throw-on-unimplemented", false,
		"fail on opcodes the compiler cannot lower")

	compileCmd := &cobra.Command{
		Use:   "compile <shader.spv>",
		Short: "Lower a shader binary to assembly on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	compileCmd.Flags().StringVar(&libraryPath, "library", "", "assembly library appended to the output")
	compileCmd.Flags().BoolVar(&dumpIR, "dump-ir", false, "dump the transformed IR to stderr")
	root.AddCommand(compileCmd)

	evalCmd := &cobra.Command{
		Use:   "eval <shader.spv>",
		Short: "Evaluate a shader for one pixel and print its color",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}
	evalCmd.Flags().IntVar(&evalX, "x", 0, "pixel x coordinate")
	evalCmd.Flags().IntVar(&evalY, "y", 0, "pixel y coordinate")
	evalCmd.Flags().IntVar(&cfg.Width, "width", cfg.Width, "image width")
	evalCmd.Flags().IntVar(&cfg.Height, "height", cfg.Height, "image height")
	root.AddCommand(evalCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readShader reads the binary from the path, or stdin for "-".
func readShader(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func options() fragc.Options {
	return fragc.Options{
		ThrowOnUnimplemented: cfg.ThrowOnUnimplemented,
		Verbose:              cfg.Verbose,
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	binary, err := readShader(args[0])
	if err != nil {
		return err
	}

	opts := options()
	if libraryPath == "" {
		libraryPath = cfg.Library
	}
	if libraryPath != "" {
		library, err := os.ReadFile(libraryPath)
		if err != nil {
			return fmt.Errorf("reading library: %w", err)
		}
		opts.Library = string(library)
	}

	if dumpIR {
		prog, err := fragc.Parse(binary, opts)
		if err != nil {
			return err
		}
		if err := fragc.Transform(prog); err != nil {
			return err
		}
		prog.Linearize()
		spew.Fdump(os.Stderr, prog.Instructions)
	}

	asm, err := fragc.CompileWithOptions(binary, opts)
	if err != nil {
		return err
	}
	fmt.Print(asm)
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	binary, err := readShader(args[0])
	if err != nil {
		return err
	}
	color, killed, err := fragc.Evaluate(binary, evalX, evalY, cfg.Width, cfg.Height, options())
	if err != nil {
		return err
	}
	if killed {
		fmt.Println("discarded")
		return nil
	}
	fmt.Printf("%g %g %g %g\n", color[0], color[1], color[2], color[3])
	return nil
}
