// Command sitepipe is a thin cobra/viper CLI bootstrapper around the
// engine package. It contains no engine logic of its own: it loads
// configuration and declarations, wires default collaborators, and
// drives Engine.Execute.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	engine "github.com/siteforge/pipeline"
	"github.com/siteforge/pipeline/collaborators/catalog"
	"github.com/siteforge/pipeline/collaborators/osfs"
	"github.com/siteforge/pipeline/collaborators/zlog"
	"github.com/siteforge/pipeline/config"
	"github.com/siteforge/pipeline/summary"
)

var (
	configFile      string
	declarationFile string
	inputDir        string
	outputDir       string
	tempDir         string
	serial          bool
	includeNormal   bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitepipe",
		Short: "Drive a static-content pipeline engine",
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/TOML/JSON engine config file")
	root.PersistentFlags().StringVar(&declarationFile, "declarations", "pipelines.yaml", "path to a pipeline declarations YAML file")
	root.PersistentFlags().StringVar(&inputDir, "input", ".", "content source root")
	root.PersistentFlags().StringVar(&outputDir, "output", "./dist", "build output directory")
	root.PersistentFlags().StringVar(&tempDir, "temp", os.TempDir(), "scratch directory for intermediate streams")

	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newPipelinesCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "run [pipeline...]",
		Short: "Execute the engine once, optionally naming specific pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			names = args
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Dispose()

			outputs, sum, err := eng.Execute(cmd.Context(), names, includeNormal, serial)
			fmt.Println(summary.Render(sum))
			if err != nil {
				return err
			}
			fmt.Printf("produced output for %d pipeline(s)\n", len(outputs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&serial, "serial", false, "run phases one at a time instead of concurrently")
	cmd.Flags().BoolVar(&includeNormal, "include-normal", true, "also run Normal-policy pipelines not named explicitly")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load configuration and declarations and build the phase graph without executing",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Dispose()
			if err := eng.Validate(); err != nil {
				return err
			}
			fmt.Println("ok: declarations and phase graph are valid")
			return nil
		},
	}
}

func newPipelinesCommand() *cobra.Command {
	root := &cobra.Command{Use: "pipelines", Short: "Inspect declared pipelines"}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every declared pipeline and its execution policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Dispose()
			for _, p := range eng.Pipelines() {
				fmt.Printf("%-24s policy=%-7s deployment=%-5t isolated=%-5t\n",
					p.Name, p.ExecutionPolicy, p.Deployment, p.Isolated)
			}
			return nil
		},
	})
	return root
}

func loadViper() *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		_ = v.ReadInConfig()
	}
	return v
}

func buildEngine() (*engine.Engine, error) {
	cfg, err := config.LoadEngineConfig(loadViper())
	if err != nil {
		return nil, fmt.Errorf("sitepipe: %w", err)
	}

	fs := osfs.New(inputDir, outputDir, tempDir)
	log := zlog.New(os.Stderr)
	cat := catalog.New()

	eng, err := engine.NewEngine(cfg, fs, log, cat)
	if err != nil {
		return nil, fmt.Errorf("sitepipe: %w", err)
	}

	f, err := os.Open(declarationFile)
	if err != nil {
		return nil, fmt.Errorf("sitepipe: open declarations: %w", err)
	}
	defer f.Close()

	pipelines, err := config.LoadDeclarations(f, builtinResolver)
	if err != nil {
		return nil, fmt.Errorf("sitepipe: %w", err)
	}
	for _, p := range pipelines {
		if err := eng.Register(p); err != nil {
			return nil, fmt.Errorf("sitepipe: register %q: %w", p.Name, err)
		}
	}
	return eng, nil
}
