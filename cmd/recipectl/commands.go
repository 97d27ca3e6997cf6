package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/recipeassist/recipe-assistant/internal/auth"
	"github.com/recipeassist/recipe-assistant/internal/chatclient"
	"github.com/recipeassist/recipe-assistant/internal/wire"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

type rootOptions struct {
	server  string
	token   string
	framing string
	debug   bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "recipectl",
		Short:         "🍳 Chat with the recipe assistant and manage saved recipes",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("RECIPECTL_SERVER", "http://localhost:8080"), "Server base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("RECIPECTL_TOKEN"), "API key or session token")
	root.PersistentFlags().StringVar(&opts.framing, "framing", "ndjson", "Stream framing: ndjson or concat")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Log dropped chunks and transport details")

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newRecipesCmd(opts),
		newTokenCmd(),
	)
	return root
}

func (o *rootOptions) client() *chatclient.Client {
	return chatclient.New(o.server,
		chatclient.WithToken(o.token),
		chatclient.WithFraming(wire.ParseFraming("", o.framing, wire.FramingNDJSON)),
	)
}

// signalContext is cancelled on Ctrl-C so an in-flight stream is aborted.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ── chat ────────────────────────────────────────────────────

func newChatCmd(opts *rootOptions) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			r := &renderer{out: cmd.OutOrStdout()}
			msg, err := opts.client().Send(ctx, strings.Join(args, " "), thread, r.update)
			if msg != nil {
				r.finish(*msg)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "", "Conversation thread id (new thread when empty)")
	return cmd
}

// renderer prints a growing message as it is updated: new text as it
// arrives, and a fresh line whenever the tool stage changes.
type renderer struct {
	out     io.Writer
	printed string
	status  string
}

func (r *renderer) update(m chatclient.Message) {
	if st := statusKey(m.ToolCallStatus); st != r.status {
		r.newline()
		r.status = st
		if st != "" {
			fmt.Fprint(r.out, "⏳ ")
		}
		fmt.Fprint(r.out, m.Content)
		r.printed = m.Content
		return
	}
	if strings.HasPrefix(m.Content, r.printed) {
		fmt.Fprint(r.out, m.Content[len(r.printed):])
	} else {
		r.newline()
		fmt.Fprint(r.out, m.Content)
	}
	r.printed = m.Content
}

func statusKey(s *chatclient.ToolCallStatus) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s|%s|%s|%s", s.Kind, s.WorkflowID, s.ToolID, s.WorkflowStepID)
}

func (r *renderer) newline() {
	if r.printed != "" && !strings.HasSuffix(r.printed, "\n") {
		fmt.Fprintln(r.out)
	}
	r.printed = ""
}

func (r *renderer) finish(m chatclient.Message) {
	r.newline()
	if len(m.RecipeIDs) > 0 {
		fmt.Fprintf(r.out, "📖 recipes: %s\n", strings.Join(m.RecipeIDs, ", "))
	}
	if m.FinishReason == chatclient.FinishError {
		fmt.Fprintln(r.out, "⚠️  the reply ended with an error")
	}
}

// ── ask ─────────────────────────────────────────────────────

func newAskCmd(opts *rootOptions) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a message and print the complete reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Ask(cmd.Context(), strings.Join(args, " "), thread)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Text)
			if len(resp.ToolIDsCalled) > 0 {
				fmt.Fprintf(out, "🔧 tools: %s\n", strings.Join(resp.ToolIDsCalled, ", "))
			}
			if resp.NumRecipesCreated > 0 {
				fmt.Fprintf(out, "✨ saved %d new recipe(s)\n", resp.NumRecipesCreated)
			}
			if len(resp.DisplayRecipeIDs) > 0 {
				fmt.Fprintf(out, "📖 recipes: %s\n", strings.Join(resp.DisplayRecipeIDs, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "", "Conversation thread id (new thread when empty)")
	return cmd
}

// ── recipes ─────────────────────────────────────────────────

func newRecipesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Manage saved recipes",
	}

	var favorites bool
	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List your saved recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recipes, err := opts.client().ListRecipes(cmd.Context(), favorites, query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recipes) == 0 {
				fmt.Fprintln(out, "No recipes yet.")
				return nil
			}
			for _, r := range recipes {
				printRecipeLine(out, r)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&favorites, "favorites", false, "Only favorites")
	list.Flags().StringVarP(&query, "query", "q", "", "Filter by title or ingredient")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.client().GetRecipe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRecipe(cmd.OutOrStdout(), *r)
			return nil
		},
	}

	var unset bool
	favorite := &cobra.Command{
		Use:   "favorite <id>",
		Short: "Mark a recipe as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fav := !unset
			r, err := opts.client().UpdateRecipe(cmd.Context(), args[0], models.RecipePatch{IsFavorite: &fav})
			if err != nil {
				return err
			}
			printRecipeLine(cmd.OutOrStdout(), *r)
			return nil
		},
	}
	favorite.Flags().BoolVar(&unset, "off", false, "Remove the favorite mark instead")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteRecipe(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	thumb := &cobra.Command{
		Use:   "thumbnail <id>",
		Short: "Generate a new picture for a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.client().GenerateThumbnail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRecipeLine(cmd.OutOrStdout(), *r)
			return nil
		},
	}

	cmd.AddCommand(list, get, favorite, del, thumb)
	return cmd
}

func printRecipeLine(out io.Writer, r models.Recipe) {
	star := " "
	if r.IsFavorite {
		star = "★"
	}
	line := fmt.Sprintf("%s %s  %s", star, r.ID, r.Title)
	if r.ThumbnailURL != nil {
		line += "  🖼"
	}
	fmt.Fprintln(out, line)
}

func printRecipe(out io.Writer, r models.Recipe) {
	printRecipeLine(out, r)
	fmt.Fprintln(out, "\nIngredients:")
	for _, ing := range r.Ingredients {
		fmt.Fprintf(out, "  - %s\n", ing)
	}
	fmt.Fprintln(out, "\nInstructions:")
	for i, step := range r.Instructions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, step)
	}
	if r.ThumbnailURL != nil {
		fmt.Fprintf(out, "\nPicture: %s\n", *r.ThumbnailURL)
	}
}

// ── token ───────────────────────────────────────────────────

func newTokenCmd() *cobra.Command {
	var secret, name string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a session token for a user with the server's session secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateSessionToken([]byte(secret), args[0], name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("RECIPE_SESSION_SECRET"), "Session signing secret")
	cmd.Flags().StringVar(&name, "name", "", "Display name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
