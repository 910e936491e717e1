package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/splitledger/internal/adapter/http/dto"
	"github.com/iho/splitledger/internal/adapter/http/handler"
	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/infrastructure/config"
	"github.com/iho/splitledger/internal/infrastructure/logger"
	"github.com/iho/splitledger/internal/infrastructure/postgres"
)

var (
	baseURL string
	userID  string
	timeout time.Duration
)

// Overridden in tests.
var (
	runMigrationsUp   = postgres.RunMigrations
	runMigrationsDown = postgres.RunMigrationsDown
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "splitledger-cli",
		Short:         "SplitLedger CLI tool",
		Long:          `A command line interface for operating the SplitLedger movement ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the SplitLedger API")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User id sent as "+handler.UserIDHeader)
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(newMigrateCmd(), newDistributeCmd(), newMovementsCmd())
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd, runMigrationsUp)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd, runMigrationsDown)
			},
		},
	)
	return migrateCmd
}

func migrate(cmd *cobra.Command, run func(databaseURL, path string, logger zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", Output: cmd.ErrOrStderr()})
	if err := run(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
	return nil
}

func newDistributeCmd() *cobra.Command {
	var (
		amount   string
		currency string
		areas    []string
	)

	distributeCmd := &cobra.Command{
		Use:   "distribute",
		Short: "Distribution helpers",
	}

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how an amount would be shared across areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return previewDistribution(cmd.OutOrStdout(), amount, currency, areas)
		},
	}
	previewCmd.Flags().StringVar(&amount, "amount", "", "Amount in major units, e.g. 100.00")
	previewCmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	previewCmd.Flags().StringSliceVar(&areas, "areas", nil, "Comma separated target area ids")
	_ = previewCmd.MarkFlagRequired("amount")
	_ = previewCmd.MarkFlagRequired("areas")

	distributeCmd.AddCommand(previewCmd)
	return distributeCmd
}

func previewDistribution(w io.Writer, amount, currency string, areas []string) error {
	currency = domain.NormalizeCurrency(currency)
	if err := domain.ValidateCurrency(currency); err != nil {
		return err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	total, err := domain.ToMinorUnits(value, currency)
	if err != nil {
		return err
	}

	shares, err := domain.Distribute(total, len(areas))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AREA\tAMOUNT")
	for i, area := range areas {
		fmt.Fprintf(tw, "%s\t%s %s\n", area, domain.FormatMinorUnits(shares[i], currency), currency)
	}
	return tw.Flush()
}

func newMovementsCmd() *cobra.Command {
	var (
		area   string
		user   string
		cursor string
		limit  int
		asJSON bool
	)

	movementsCmd := &cobra.Command{
		Use:   "movements",
		Short: "Inspect movements through the API",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List movements, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if area != "" {
				query.Set("area_id", area)
			}
			if user != "" {
				query.Set("user_id", user)
			}
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}

			var list dto.MovementListResponse
			if err := getJSON("/api/v1/movements?"+query.Encode(), &list); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), list)
				return nil
			}
			printMovements(cmd.OutOrStdout(), list.Movements)
			if list.HasMore {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore results: --cursor %s\n", list.NextCursor)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&area, "area", "", "Filter by area id")
	listCmd.Flags().StringVar(&user, "by", "", "Filter by creating user id")
	listCmd.Flags().StringVar(&cursor, "cursor", "", "Continue after this movement id")
	listCmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a movement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m dto.MovementResponse
			if err := getJSON("/api/v1/movements/"+url.PathEscape(args[0]), &m); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), m)
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of a movement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []dto.HistoryResponse
			if err := getJSON("/api/v1/movements/"+url.PathEscape(args[0])+"/history", &entries); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	movementsCmd.AddCommand(listCmd, getCmd, historyCmd)
	return movementsCmd
}

func getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	if userID != "" {
		req.Header.Set(handler.UserIDHeader, userID)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func printMovements(w io.Writer, movements []*dto.MovementResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAREA\tAMOUNT\tDESCRIPTION")
	for _, m := range movements {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\n",
			m.ID, m.TransactionDate.Format("2006-01-02"), m.Type, m.AreaID,
			m.Amount, m.Currency, truncate(m.Description, 32))
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "failed to encode output: %v\n", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
