package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"linkshelf/internal/collection"
	"linkshelf/internal/config"
	"linkshelf/internal/storage"
)

var (
	addYes bool

	listState    string
	listCategory string
	listSource   string
	listTag      string
	listQuery    string
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Analyze a URL and save it after confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved links",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Toggle the read state of a link",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a link",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations to DATABASE_URL",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	addCmd.Flags().BoolVarP(&addYes, "yes", "y", false, "Save without asking")

	listCmd.Flags().StringVar(&listState, "state", "all", "all, unread, read, category or source")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Category to show")
	listCmd.Flags().StringVarP(&listSource, "source", "s", "", "Source domain to show")
	listCmd.Flags().StringVarP(&listTag, "tag", "t", "", "Only links with this tag")
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Free-text search; overrides other filters")

	rootCmd.AddCommand(addCmd, listCmd, readCmd, rmCmd, migrateCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, repo, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeRepo(repo)

	uid := cfg.LocalUserID
	fmt.Printf("Analyzing %s ...\n", args[0])
	d, err := svc.Analyze(ctx, uid, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n%s\nCategory: %s\nTags: %s\n\n", d.Analysis.Title, d.Analysis.Summary,
		d.Analysis.Category, strings.Join(d.Analysis.Tags, ", "))

	if !addYes && !confirm("Save this link?") {
		svc.Discard(uid)
		fmt.Println("Discarded.")
		return nil
	}

	id, err := svc.Confirm(ctx, uid)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", id)
	return nil
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runList(cmd *cobra.Command, args []string) error {
	state, err := collection.ParseState(listState)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, repo, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeRepo(repo)

	links, err := svc.List(ctx, cfg.LocalUserID, collection.Filter{
		State:    state,
		Category: listCategory,
		Source:   listSource,
		Tag:      listTag,
		Query:    listQuery,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREAD\tCATEGORY\tSOURCE\tTITLE")
	for _, l := range links {
		read := ""
		if l.IsRead {
			read = "x"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, read, l.Category, collection.SourceDomain(l.URL), l.Title)
	}
	return w.Flush()
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, repo, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeRepo(repo)

	read, err := svc.ToggleRead(ctx, cfg.LocalUserID, args[0])
	if err != nil {
		return err
	}
	if read {
		fmt.Println("Marked as read.")
	} else {
		fmt.Println("Marked as unread.")
	}
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, repo, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeRepo(repo)

	svc.Delete(ctx, cfg.LocalUserID, args[0])
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := config.Require("DATABASE_URL", cfg.DatabaseURL); err != nil {
		return err
	}
	db, err := storage.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(db); err != nil {
		return err
	}
	log.Info("Migrations applied")
	return nil
}
