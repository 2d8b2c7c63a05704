package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/samvad-reader/internal/app"
	"github.com/samvad-hq/samvad-reader/internal/domain"
)

var (
	flagCategory string
	flagPage     int
	flagQuery    string
	flagDomain   string
	flagFrom     string
	flagTo       string
	flagKeywords string
	flagPages    int
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Fetch a page of a category",
	Long: `Fetch one page of articles for a category and print it as JSON.

When --query is set the request becomes a search. The "source" field of the
output names the tier that answered.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := domain.FetchRequest{
			Category: flagCategory,
			Page:     flagPage,
			Query:    flagQuery,
			Filters:  filtersFromFlags(),
		}
		return withReader(cmd, func(ctx context.Context, rd *app.Reader) error {
			res, err := rd.Orchestrator().GetArticles(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		filters := filtersFromFlags()
		return withReader(cmd, func(ctx context.Context, rd *app.Reader) error {
			res, err := rd.Orchestrator().Search(ctx, query, filters, flagPage)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Save a category for offline reading",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReader(cmd, func(ctx context.Context, rd *app.Reader) error {
			sum, err := rd.Orchestrator().DownloadForOffline(ctx, flagCategory, flagPages)
			if err != nil {
				return fmt.Errorf("download %s: %w", flagCategory, err)
			}
			return writeJSON(cmd.OutOrStdout(), sum)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{articlesCmd, searchCmd} {
		c.Flags().IntVar(&flagPage, "page", 1, "page number, starting at 1")
		c.Flags().StringVar(&flagDomain, "domain", "", "only articles from this source domain")
		c.Flags().StringVar(&flagFrom, "from", "", "earliest publish date (YYYY-MM-DD)")
		c.Flags().StringVar(&flagTo, "to", "", "latest publish date (YYYY-MM-DD)")
	}
	articlesCmd.Flags().StringVar(&flagCategory, "category", domain.DefaultCategory, "news category")
	articlesCmd.Flags().StringVar(&flagQuery, "query", "", "search query; turns the request into a search")
	articlesCmd.Flags().StringVar(&flagKeywords, "keywords", "", "keyword filter for category fetches")

	downloadCmd.Flags().StringVar(&flagCategory, "category", domain.DefaultCategory, "news category")
	downloadCmd.Flags().IntVar(&flagPages, "pages", 3, "number of pages to save")
}

func filtersFromFlags() domain.Filters {
	return domain.Filters{
		StartDate: flagFrom,
		EndDate:   flagTo,
		Domain:    flagDomain,
		Keywords:  flagKeywords,
	}
}
