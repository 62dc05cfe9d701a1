package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/n9te9/go-graphql-federation-gateway/federation/solve"
	"github.com/n9te9/go-graphql-federation-gateway/gateway"
	"github.com/n9te9/go-graphql-federation-gateway/server"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Federation Gateway",
	Run: func(cmd *cobra.Command, args []string) {
		println("Federation Gateway v0.0.0-rc")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Federation Gateway project",
	Run: func(cmd *cobra.Command, args []string) {
		server.Init()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Federation Gateway server",
	Run: func(cmd *cobra.Command, args []string) {
		server.Run()
	},
}

var registrySeedPath string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Start the schema registration server subgraphs push their SDL to",
	Run: func(cmd *cobra.Command, args []string) {
		graphs, err := loadSeedGraphs(registrySeedPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		if err := server.RunRegistry(graphs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func loadSeedGraphs(path string) ([]*server.Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed graphs file %s: %w", path, err)
	}

	var graphs []*server.Graph
	if err := yaml.Unmarshal(b, &graphs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed graphs file %s: %w", path, err)
	}
	return graphs, nil
}

var (
	planConfigPath      string
	planQuery           string
	planOperationName   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compile and partition a query against the configured supergraph without executing it",
	Long:  "Loads gateway.yaml, builds the supergraph and schema store, then runs the OperationCompiler/QueryPartitioner/DependencySolver stages on the given query and prints the resulting plan.",
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(planConfigPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		query := planQuery
		if query == "" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed to read query from stdin:", err)
				os.Exit(1)
			}
			query = string(b)
		}

		gw, err := gateway.NewGateway(*settings)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to build gateway:", err)
			os.Exit(1)
		}

		plan, err := gw.Plan(query, planOperationName, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "plan failed:", err)
			os.Exit(1)
		}

		printPlan(plan)
	},
}

func loadSettings(path string) (*gateway.GatewayOption, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var settings gateway.GatewayOption
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &settings, nil
}

func printPlan(plan *solve.Plan) {
	for _, p := range plan.Partitions {
		fmt.Printf("#%d kind=%d subgraph=%d path=%v dependsOn=%v\n", p.ID, p.Kind, p.Subgraph, p.Path, p.DependsOn)
	}
}

func main() {
	rootCmd := cobra.Command{Use: "federation-gateway"}

	planCmd.Flags().StringVar(&planConfigPath, "config", "gateway.yaml", "path to gateway.yaml")
	planCmd.Flags().StringVar(&planQuery, "query", "", "GraphQL query text (reads stdin if omitted)")
	planCmd.Flags().StringVar(&planOperationName, "operation-name", "", "operation name, required if the document defines more than one operation")
	registryCmd.Flags().StringVar(&registrySeedPath, "seed", "graphs.yaml", "path to a YAML file listing the subgraphs to seed the registry with")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(planCmd)

	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
