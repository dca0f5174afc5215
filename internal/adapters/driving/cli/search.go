package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

func newSearchCommand(configPath *string) *cobra.Command {
	var (
		domainFlag    string
		mode          string
		limit         int
		minSimilarity float64
		filters       []string
		rerank        bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search one domain lexically, semantically or both",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dom, err := parseDomain(domainFlag)
			if err != nil {
				return err
			}

			filterMap, err := parseFilters(filters)
			if err != nil {
				return err
			}

			app, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.search.Search(cmd.Context(), dom, args[0], domain.SearchOptions{
				Limit:         limit,
				MinSimilarity: minSimilarity,
				Filters:       filterMap,
				Mode:          domain.ParseSearchMode(mode),
				Rerank:        rerank,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printResultsJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "domain to search (required)")
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "search mode: lexical, semantic or hybrid")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 uses the configured default)")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0, "similarity floor for semantic hits (0 uses the configured default)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata filter as key=value, repeatable")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "rerank the merged result list via the provider")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.MarkFlagRequired("domain") //nolint:errcheck

	return cmd
}

// parseFilters turns repeated key=value flags into a map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", pair)
		}
		filters[key] = value
	}
	return filters, nil
}

func printResults(cmd *cobra.Command, results []domain.SearchResult) {
	if len(results) == 0 {
		cmd.Println("no results")
		return
	}

	for i, result := range results {
		tag := result.Origin
		if result.Reranked {
			tag += "+rerank"
		}
		cmd.Printf("%2d. [%.3f %s] %s\n", i+1, result.Score, tag, result.Record.Identity)

		text := result.Record.Text
		if len(text) > 160 {
			text = text[:160] + "..."
		}
		cmd.Printf("    %s\n", strings.ReplaceAll(text, "\n", " "))
	}
}

type jsonResult struct {
	Identity string         `json:"identity"`
	Score    float64        `json:"score"`
	Origin   string         `json:"origin"`
	Reranked bool           `json:"reranked,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func printResultsJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	out := make([]jsonResult, len(results))
	for i, result := range results {
		out[i] = jsonResult{
			Identity: result.Record.Identity.String(),
			Score:    result.Score,
			Origin:   result.Origin,
			Reranked: result.Reranked,
			Text:     result.Record.Text,
			Metadata: result.Record.Metadata,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
