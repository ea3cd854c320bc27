package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dshills/cppgraph-mcp/internal/query"
)

var (
	flagMaxUsages int
	flagNoUsages  bool
	flagDirection string
	flagRelTypes  []string
	flagDepth     int
	flagScope     string
	flagLimit     int
	flagDetail    string
	flagNoRelated bool
	flagNoCallers bool
	flagNoCallees bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the code graph",
}

// withEngine opens the stack, runs fn with the query engine and prints its result
func withEngine(cmd *cobra.Command, fn func(*query.Engine) (interface{}, error)) error {
	s, _, logger, err := openServer()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = s.Close() }()

	result, err := fn(s.Engine())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

var querySymbolCmd = &cobra.Command{
	Use:   "symbol <name>",
	Short: "Find a symbol and its usages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *query.Engine) (interface{}, error) {
			return e.FindSymbol(cmd.Context(), args[0], !flagNoUsages, flagMaxUsages)
		})
	},
}

var queryTraceCmd = &cobra.Command{
	Use:   "trace <target>",
	Short: "Trace the dependencies of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *query.Engine) (interface{}, error) {
			return e.TraceDependencies(cmd.Context(), args[0], flagDirection, flagRelTypes, flagDepth)
		})
	},
}

var querySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *query.Engine) (interface{}, error) {
			return e.SemanticSearch(cmd.Context(), args[0], flagScope, flagLimit)
		})
	},
}

var queryContextCmd = &cobra.Command{
	Use:   "context <component>",
	Short: "Gather the entities and related code of a component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *query.Engine) (interface{}, error) {
			return e.GetContext(cmd.Context(), args[0], flagDetail, !flagNoRelated)
		})
	},
}

var queryExplainCmd = &cobra.Command{
	Use:   "explain <name>",
	Short: "Show an entity with its callers and callees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *query.Engine) (interface{}, error) {
			return e.ExplainEntity(cmd.Context(), args[0], !flagNoCallers, !flagNoCallees)
		})
	},
}

var queryLocationCmd = &cobra.Command{
	Use:   "location <path> <line>",
	Short: "Find the entity enclosing a file and line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *query.Engine) (interface{}, error) {
			return e.FindCodeAtLocation(cmd.Context(), args[0], line)
		})
	},
}

func init() {
	querySymbolCmd.Flags().IntVar(&flagMaxUsages, "max-usages", query.DefaultMaxUsages, "maximum usages to list")
	querySymbolCmd.Flags().BoolVar(&flagNoUsages, "no-usages", false, "omit usages")

	queryTraceCmd.Flags().StringVar(&flagDirection, "direction", query.DirectionBoth, "incoming, outgoing or both")
	queryTraceCmd.Flags().StringSliceVar(&flagRelTypes, "types", nil, "relationship kinds to follow (calls,inherits,uses,overrides,includes)")
	queryTraceCmd.Flags().IntVar(&flagDepth, "depth", query.DefaultTraceDepth, "hops to follow")

	querySearchCmd.Flags().StringVar(&flagScope, "scope", query.ScopeAll, "all, functions, classes or files")
	querySearchCmd.Flags().IntVar(&flagLimit, "limit", query.DefaultSearchLimit, "maximum results")

	queryContextCmd.Flags().StringVar(&flagDetail, "detail", query.DetailDetailed, "brief, detailed or comprehensive")
	queryContextCmd.Flags().BoolVar(&flagNoRelated, "no-related", false, "omit related snippets")

	queryExplainCmd.Flags().BoolVar(&flagNoCallers, "no-callers", false, "omit callers")
	queryExplainCmd.Flags().BoolVar(&flagNoCallees, "no-callees", false, "omit callees")

	queryCmd.AddCommand(querySymbolCmd, queryTraceCmd, querySearchCmd, queryContextCmd, queryExplainCmd, queryLocationCmd)
	rootCmd.AddCommand(queryCmd)
}
