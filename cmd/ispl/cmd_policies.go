package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ispl/cmd/ispl/ui"
	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/collection"

	"github.com/spf13/cobra"
)

var (
	listSkip  int
	listLimit int

	uploadCompany     string
	uploadCategory    string
	uploadProductType string
	uploadProductName string
	uploadLevel       string

	deleteYes bool
	pdfOutput string
)

// policiesCmd groups the document management subcommands
var policiesCmd = &cobra.Command{
	Use:     "policies",
	Aliases: []string{"docs"},
	Short:   "List, inspect, upload and delete documents",
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runPoliciesList,
}

var policiesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one document record",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoliciesShow,
}

var policiesUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document with its metadata",
	Example: `  ispl policies upload plan-a.pdf --company Acme --category Health \
    --product-type Term --product-name "Plan A" --level public`,
	Args: cobra.ExactArgs(1),
	RunE: runPoliciesUpload,
}

var policiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoliciesDelete,
}

var policiesPDFCmd = &cobra.Command{
	Use:   "pdf <id>",
	Short: "Download the original document",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoliciesPDF,
}

var policiesMarkdownCmd = &cobra.Command{
	Use:   "md <id>",
	Short: "Print the converted text of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoliciesMarkdown,
}

func init() {
	policiesListCmd.Flags().IntVar(&listSkip, "skip", 0, "Number of documents to skip")
	policiesListCmd.Flags().IntVar(&listLimit, "limit", collection.DefaultPageSize, "Maximum number of documents")

	f := policiesUploadCmd.Flags()
	f.StringVar(&uploadCompany, "company", "", "Issuing company")
	f.StringVar(&uploadCategory, "category", "", "Document category")
	f.StringVar(&uploadProductType, "product-type", "", "Product type")
	f.StringVar(&uploadProductName, "product-name", "", "Product name")
	f.StringVar(&uploadLevel, "level", api.SecurityPublic, "Security level: public, semi_closed or closed")

	policiesDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Do not ask for confirmation")
	policiesPDFCmd.Flags().StringVarP(&pdfOutput, "output", "o", "", "Output file (default policy-<id>.pdf)")

	policiesCmd.AddCommand(
		policiesListCmd,
		policiesShowCmd,
		policiesUploadCmd,
		policiesDeleteCmd,
		policiesPDFCmd,
		policiesMarkdownCmd,
	)
}

// withSession builds the app and checks that a token is stored.
func withSession(fn func(a *app) error) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireSession(); err != nil {
		return describe(err)
	}
	return fn(a)
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func runPoliciesList(cmd *cobra.Command, args []string) error {
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		docs, err := a.client.ListPolicies(ctx, listSkip, listLimit)
		if err != nil {
			return describe(err)
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.PolicyTable(docs, -1).View(styles(), "No documents."))
		return nil
	})
}

func runPoliciesShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		p, err := a.collection.Get(ctx, id)
		if err != nil {
			return describe(err)
		}
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(ui.PolicyDetail(p)))
		return nil
	})
}

func runPoliciesUpload(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		p, err := a.collection.Upload(ctx, collection.UploadForm{
			FileName:      filepath.Base(args[0]),
			Data:          data,
			Company:       uploadCompany,
			Category:      uploadCategory,
			ProductType:   uploadProductType,
			ProductName:   uploadProductName,
			SecurityLevel: uploadLevel,
		})
		if err != nil {
			return describe(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles().Success.Render(fmt.Sprintf("Uploaded %q as document %d.", p.ProductName, p.ID)))
		if err := a.collection.RefreshErr(); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%d documents stored.\n", len(a.collection.Documents()))
		}
		return nil
	})
}

func runPoliciesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if !deleteYes {
		fmt.Fprintf(cmd.ErrOrStderr(), "Delete document %d? [y/N] ", id)
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		if err := a.collection.Remove(ctx, id); err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %d.\n", id)
		return nil
	})
}

func runPoliciesPDF(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	out := pdfOutput
	if out == "" {
		out = fmt.Sprintf("policy-%d.pdf", id)
	}
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		h, err := a.collection.FetchArtifact(ctx, id, artifact.Binary)
		if err != nil {
			return describe(err)
		}
		defer a.collection.Viewer().Close(h)

		data, err := h.Bytes()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes, %s).\n", out, h.Size(), h.ContentType())
		return nil
	})
}

func runPoliciesMarkdown(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		h, err := a.collection.FetchArtifact(ctx, id, artifact.Text)
		if err != nil {
			return describe(err)
		}
		defer a.collection.Viewer().Close(h)

		text, err := h.Text()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(text))
		return nil
	})
}
