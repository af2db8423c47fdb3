package main

import (
	"fmt"
	"strings"

	"ispl/cmd/ispl/ui"
	"ispl/internal/config"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	askPolicyIDs []int
	askLimit     int
	askLevel     string
)

// askCmd runs one conversational search turn
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Long: `Ask a question and print the answer with its sources.

Use --policy to restrict the search to specific document ids.`,
	Example: `  ispl ask "Is dental treatment covered?"
  ispl ask --policy 3 --policy 7 "What is the waiting period?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntSliceVar(&askPolicyIDs, "policy", nil, "Restrict the search to these document ids")
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 0, "Maximum number of results (default from config)")
	askCmd.Flags().StringVar(&askLevel, "level", "", "Security level of the search scope (default from config)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askLimit > 0 {
		cfg.Search.Limit = askLimit
	}
	if askLevel != "" {
		if !config.ValidSecurityLevel(askLevel) {
			return fmt.Errorf("invalid --level %q: use public, semi_closed or closed", askLevel)
		}
		cfg.Search.SecurityLevel = askLevel
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireSession(); err != nil {
		return describe(err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	question := strings.Join(args, " ")
	if !a.conversation.SubmitScoped(ctx, question, askPolicyIDs) {
		return fmt.Errorf("nothing to ask")
	}
	msgs := a.conversation.Messages()
	reply := msgs[len(msgs)-1]
	if reply.Err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), styles().Error.Render(reply.Text))
		return describe(reply.Err)
	}

	md := reply.Text
	if src := ui.Sources(reply.Results); src != "" {
		md += "\n\n" + src
	}
	fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(md))
	return nil
}

// renderMarkdown renders for the terminal unless --raw was given.
func renderMarkdown(md string) string {
	if rawOutput {
		return strings.TrimRight(md, "\n") + "\n"
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}
