package main

import (
	"errors"
	"fmt"

	"ispl/cmd/ispl/ui"
	"ispl/internal/analysis"
	"ispl/internal/flight"

	"github.com/spf13/cobra"
)

var imageQuery string

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Analyze images against the indexed documents",
}

var imageAnalyzeCmd = &cobra.Command{
	Use:     "analyze <file>",
	Short:   "Extract text from an image and search the documents with it",
	Example: `  ispl image analyze receipt.jpg --query "Is this treatment covered?"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runImageAnalyze,
}

func init() {
	imageAnalyzeCmd.Flags().StringVarP(&imageQuery, "query", "q", "", "Question to answer about the image")
	_ = imageAnalyzeCmd.MarkFlagRequired("query")
	imageCmd.AddCommand(imageAnalyzeCmd)
}

func runImageAnalyze(cmd *cobra.Command, args []string) error {
	img, err := analysis.LoadImage(args[0])
	if err != nil {
		return err
	}
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		res, err := a.analysis.Analyze(ctx, img, imageQuery)
		if err != nil {
			var ve *flight.ValidationError
			if errors.As(err, &ve) {
				return ve
			}
			return errors.New(analysis.ErrorMessage(err))
		}
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(ui.AnalysisReport(res)))
		return nil
	})
}
