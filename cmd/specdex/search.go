package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsubouchi/intelligence-agent-maker/internal/config"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/daterange"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	logpkg "github.com/tsubouchi/intelligence-agent-maker/internal/logger"
	chiTransport "github.com/tsubouchi/intelligence-agent-maker/internal/transport/chi"
)

var (
	searchMode         string
	searchSoftwareType string
	searchDeployTarget string
	searchDateRange    string
	searchTech         []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the document library",
	Long: `Runs a search against the configured store and prints the results as JSON.
Modes are metadata, vector, text and hybrid (default). Hybrid falls back to
the other three when combined ranking fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", string(mode.Hybrid), "metadata, vector, text or hybrid")
	searchCmd.Flags().StringVar(&searchSoftwareType, "software-type", "", "exact software type filter")
	searchCmd.Flags().StringVar(&searchDeployTarget, "deploy-target", "", "exact deploy target filter")
	searchCmd.Flags().StringVar(&searchDateRange, "date-range", daterange.AllValue, `"all" or a number of days`)
	searchCmd.Flags().StringArrayVar(&searchTech, "tech", nil, "tech filter as category=value (repeatable)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	var query string
	if len(args) > 0 {
		query = args[0]
	}
	req, err := buildSearchRequest(query)
	if err != nil {
		return err
	}

	cfg, err := config.Load(envName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(envName, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	set, err := a.search.Search(ctx, &req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return printJSON(cmd, chiTransport.NewSearchResponse(&set))
}

// buildSearchRequest turns the command line into a validated request.
func buildSearchRequest(query string) (request.Request, error) {
	raw, err := parseTech(searchTech)
	if err != nil {
		return request.Request{}, err
	}
	tech, err := filter.NewTech(raw)
	if err != nil {
		return request.Request{}, domain.NewValidationError("tech", err.Error())
	}
	dr, err := daterange.Parse(searchDateRange)
	if err != nil {
		return request.Request{}, domain.NewValidationError("date-range", err.Error())
	}
	facets := filter.NewFacets(searchSoftwareType, searchDeployTarget, tech)
	return request.New(query, mode.Parse(searchMode), facets, dr)
}

// parseTech groups category=value pairs by category.
func parseTech(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		category, value, ok := strings.Cut(p, "=")
		category, value = strings.TrimSpace(category), strings.TrimSpace(value)
		if !ok || category == "" || value == "" {
			return nil, domain.NewValidationError("tech", fmt.Sprintf("%q is not category=value", p))
		}
		out[category] = append(out[category], value)
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
