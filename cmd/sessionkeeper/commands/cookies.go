package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/sessionkeeper/internal/config"
	"github.com/jmylchreest/sessionkeeper/internal/cookies"
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect or clear stored cookie jars",
}

var cookiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cookie jars",
	Args:  cobra.NoArgs,
	RunE:  runCookiesList,
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear <identity>",
	Short: "Delete the stored cookie jar for an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runCookiesClear,
}

func init() {
	cookiesCmd.AddCommand(cookiesListCmd, cookiesClearCmd)
	rootCmd.AddCommand(cookiesCmd)
}

func openStore() (cookies.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openCookieStore(cfg)
}

func openCookieStore(cfg *config.Config) (cookies.Store, error) {
	return cookies.Open(cfg.Cookies.Store, cfg.Cookies.Path)
}

func runCookiesList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logInfo("no cookie jars stored")
		return nil
	}

	persist := cookies.NewPersistence(store)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tCOOKIES\tSIZE\tSAVED")
	for _, e := range entries {
		count := "?"
		if jar, ok, err := persist.Load(ctx, e.Identity); err == nil && ok {
			count = fmt.Sprint(len(jar))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Identity,
			count,
			humanize.Bytes(uint64(len(e.Blob))),
			humanize.Time(e.UpdatedAt))
	}
	return tw.Flush()
}

func runCookiesClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	identity := args[0]
	if err := store.Delete(cmd.Context(), identity); err != nil {
		if errors.Is(err, cookies.ErrNotFound) {
			return fmt.Errorf("no cookie jar stored for %q", identity)
		}
		return err
	}
	logInfo("cleared cookie jar for %s", identity)
	return nil
}
