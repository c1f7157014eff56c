package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"webfile-go/internal/app"
	"webfile-go/internal/config"
	"webfile-go/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file named by the defaults.
func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a WebfileApp. The caller must defer
// a.Close(). operation names the command in the journal.
func newApp(cmd *cobra.Command, operation string, args []string) (*app.WebfileApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}
	op := app.NewOperation(operation, strings.Join(args, " "))
	a, err := app.NewWebfileApp(cmd.Context(), cfg, op, app.Options{Prompt: promptPassphrase})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a close failure unless the command already
// failed.
func closeApp(a *app.WebfileApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func promptPassphrase() (string, error) {
	return readPassphrase("Passphrase: ")
}

// principal builds the caller from the global identity flags.
func principal(cmd *cobra.Command) *model.Principal {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = os.Getenv("WEBFILE_USER")
	}
	groups, _ := cmd.Flags().GetStringSlice("group")
	superuser, _ := cmd.Flags().GetBool("superuser")
	return &model.Principal{ID: user, Groups: groups, Superuser: superuser}
}

// visibilityFlag returns the requested visibility, or nil for the default.
func visibilityFlag(cmd *cobra.Command) (*bool, error) {
	public, _ := cmd.Flags().GetBool("public")
	private, _ := cmd.Flags().GetBool("private")
	switch {
	case public && private:
		return nil, errors.New("--public and --private are mutually exclusive")
	case public:
		return &public, nil
	case private:
		v := false
		return &v, nil
	}
	return nil, nil
}

var rootCmd = &cobra.Command{
	Use:   "webfile",
	Short: "Hierarchical file storage with permissions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv()
	},
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Vault:        %s\n", cfg.Vault.Type)
		fmt.Printf("Database:     %s\n", cfg.Database.Type)
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		fmt.Printf("Permissions:  %t\n", cfg.Permissions.Enabled)
		fmt.Printf("Public files: %t\n", cfg.Files.PublicDefault)
		fmt.Printf("Metrics:      %t\n", cfg.Metrics.Enabled)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the database schema and vault access",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "CheckSetup", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.CheckSetup(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Setup OK")
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair for private files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}
		if err := app.InitKeys(cfg, pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Keys generated")
		return nil
	},
}

// mkdir command
var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		public, err := visibilityFlag(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "CreateFolder", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		folder, err := a.MakeFolder(cmd.Context(), principal(cmd), args[0], public)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", args[0], folder.ID)
		return nil
	},
}

// mv command
var mvCmd = &cobra.Command{
	Use:   "mv PATH PARENT",
	Short: "Move a folder below another folder (\"/\" for the top level)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "MoveFolder", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return a.Move(cmd.Context(), principal(cmd), args[0], args[1])
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:   "rename ITEM NAME",
	Short: "Rename a folder (by path) or a file (by ID)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "RenameItem", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return a.Rename(cmd.Context(), principal(cmd), args[0], args[1])
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		target := "/"
		if len(args) > 0 {
			target = args[0]
		}
		a, err := newApp(cmd, "ListFolder", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		l, err := a.List(cmd.Context(), principal(cmd), target)
		if err != nil {
			return err
		}

		fmt.Println(l.PrettyPath())
		for _, e := range l.Folders {
			fmt.Printf("d %s  %-36s  %s/  (%d items)\n", visibility(e.Folder.IsPublic), e.Folder.ID, e.Folder.Name, e.Items())
		}
		for _, f := range l.Files {
			fmt.Printf("f %s  %-36s  %s  %d  %s\n", visibility(f.IsPublic), f.ID, f.Name, f.Size, f.MimeType)
		}
		return nil
	},
}

func visibility(public bool) string {
	if public {
		return "pub "
	}
	return "priv"
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm ITEM",
	Short: "Delete a folder (by path, with its content) or a file (by ID)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "DeleteItem", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return a.Remove(cmd.Context(), principal(cmd), args[0])
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH [FOLDER]",
	Short: "Upload a file or directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		recursive, _ := cmd.Flags().GetBool("recursive")
		public, err := visibilityFlag(cmd)
		if err != nil {
			return err
		}
		dest := "/"
		if len(args) > 1 {
			dest = args[1]
		}

		a, err := newApp(cmd, "Upload", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		results, err := a.Upload(cmd.Context(), principal(cmd), args[0], dest, recursive, public)
		for _, r := range results {
			fmt.Printf("%s  %s  %s\n", r.File.ID, r.File.Digest[:12], r.Source)
		}
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Printf("Uploaded %d file(s)\n", len(results))
		return nil
	},
}

// cat command
var catCmd = &cobra.Command{
	Use:   "cat FILE_ID",
	Short: "Write a file's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ReadFile", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		_, err = a.Cat(cmd.Context(), principal(cmd), args[0], os.Stdout)
		return err
	},
}

func visibilityCmd(use, short string, public bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FILE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd, "SetVisibility", args)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			return a.SetVisibility(cmd.Context(), principal(cmd), args[0], public)
		},
	}
}

// dupes command
var dupesCmd = &cobra.Command{
	Use:   "dupes [FILE_ID]",
	Short: "List files with identical content",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "FindDuplicates", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if len(args) == 1 {
			files, err := a.Duplicates(cmd.Context(), principal(cmd), args[0])
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Printf("%s  %s\n", f.ID, f.Name)
			}
			return nil
		}

		groups, err := a.AllDuplicates(cmd.Context(), principal(cmd))
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Println("No duplicates.")
			return nil
		}
		for digest, files := range groups {
			fmt.Println(digest)
			for _, f := range files {
				fmt.Printf("  %s  %s\n", f.ID, f.Name)
			}
		}
		return nil
	},
}

// perm command
var permCmd = &cobra.Command{
	Use:   "perm",
	Short: "Manage permission rules",
}

var permAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a permission rule",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var spec app.RuleSpec
		spec.Item, _ = cmd.Flags().GetString("item")
		spec.Type, _ = cmd.Flags().GetString("type")
		spec.User, _ = cmd.Flags().GetString("for-user")
		spec.Group, _ = cmd.Flags().GetString("for-group")
		spec.Everybody, _ = cmd.Flags().GetBool("everybody")
		spec.Read, _ = cmd.Flags().GetString("read")
		spec.Edit, _ = cmd.Flags().GetString("edit")
		spec.AddChildren, _ = cmd.Flags().GetString("add-children")

		a, err := newApp(cmd, "GrantPermission", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		rule, err := a.Grant(cmd.Context(), principal(cmd), spec)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", rule.ID, rule)
		return nil
	},
}

var permLsCmd = &cobra.Command{
	Use:   "ls [ITEM]",
	Short: "List the rules on an item, or the global rules",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		item := ""
		if len(args) > 0 {
			item = args[0]
		}
		a, err := newApp(cmd, "ListPermissions", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		rules, err := a.Permissions(cmd.Context(), principal(cmd), item)
		if err != nil {
			return err
		}
		for _, r := range rules {
			fmt.Printf("%s  %s\n", r.ID, r)
		}
		return nil
	},
}

var permRmCmd = &cobra.Command{
	Use:   "rm RULE_ID",
	Short: "Remove a permission rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "RevokePermission", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return a.Revoke(cmd.Context(), principal(cmd), args[0])
	},
}

// resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve ACTION",
	Short: "Show the items the caller may read, edit or add_children to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Resolve", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		g, err := a.Resolve(cmd.Context(), principal(cmd), args[0])
		if err != nil {
			return err
		}
		if g.All() {
			fmt.Println("all items")
			return nil
		}
		for _, id := range g.IDs() {
			fmt.Println(id)
		}
		return nil
	},
}

// forget-user command
var forgetUserCmd = &cobra.Command{
	Use:   "forget-user USER_ID",
	Short: "Drop a removed user's ownership and rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ForgetUser", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return a.ForgetUser(cmd.Context(), principal(cmd), args[0])
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-7s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// reconciliations command
var reconciliationsCmd = &cobra.Command{
	Use:   "reconciliations",
	Short: "List storage inconsistencies that need manual repair",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Reconciliations", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		recs, err := a.Reconciliations(cmd.Context(), principal(cmd))
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("Nothing to reconcile.")
			return nil
		}
		for _, r := range recs {
			fmt.Printf("#%d  %s  file:%s  %s:%s  %s\n",
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.FileID,
				r.Area,
				r.Digest,
				r.Detail,
			)
		}
		return nil
	},
}

func init() {
	// identity flags
	rootCmd.PersistentFlags().String("user", "", "Act as this user ID (default $WEBFILE_USER)")
	rootCmd.PersistentFlags().StringSlice("group", nil, "Group memberships of the user (repeatable)")
	rootCmd.PersistentFlags().Bool("superuser", false, "Act as a superuser")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configCheckCmd)
	keysCmd.AddCommand(keysInitCmd)

	// perm subcommands
	permCmd.AddCommand(permAddCmd)
	permCmd.AddCommand(permLsCmd)
	permCmd.AddCommand(permRmCmd)
	permAddCmd.Flags().String("item", "", "Folder path or file ID (omit for type all)")
	permAddCmd.Flags().String("type", "this", "Scope: all, this or children")
	permAddCmd.Flags().String("for-user", "", "Subject user ID")
	permAddCmd.Flags().String("for-group", "", "Subject group ID")
	permAddCmd.Flags().Bool("everybody", false, "Rule applies to everybody")
	permAddCmd.Flags().String("read", "", "allow or deny")
	permAddCmd.Flags().String("edit", "", "allow or deny")
	permAddCmd.Flags().String("add-children", "", "allow or deny")

	for _, c := range []*cobra.Command{mkdirCmd, uploadCmd} {
		c.Flags().Bool("public", false, "Create as public")
		c.Flags().Bool("private", false, "Create as private")
	}
	uploadCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(visibilityCmd("publish", "Make a file public", true))
	rootCmd.AddCommand(visibilityCmd("unpublish", "Make a file private", false))
	rootCmd.AddCommand(dupesCmd)
	rootCmd.AddCommand(permCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(forgetUserCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reconciliationsCmd)
}
