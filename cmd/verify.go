package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-verify/internal/model"
)

var (
	verifyInputPath   string
	verifyCatalogID   string
	verifyCatalogName string
	verifyBrand       string
	verifyModelNumber string
	verifyCategory    string
	verifyRawText     string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a single product record and print the result",
	Long:  "Runs the full verification pipeline once, without touching the job queue, and prints the result as JSON. Input comes from --input (a JSON file) or from flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		input, err := readVerifyInput()
		if err != nil {
			return err
		}

		verifier, err := buildVerifier()
		if err != nil {
			return err
		}

		result, err := verifier.Run(ctx, input)
		if err != nil {
			return eris.Wrap(err, "verify")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "encode result")
	},
}

func readVerifyInput() (model.ProductInput, error) {
	if verifyInputPath != "" {
		data, err := os.ReadFile(verifyInputPath)
		if err != nil {
			return model.ProductInput{}, eris.Wrap(err, "read input file")
		}
		var input model.ProductInput
		if err := json.Unmarshal(data, &input); err != nil {
			return model.ProductInput{}, eris.Wrap(err, "parse input file")
		}
		return input, nil
	}

	input := model.ProductInput{
		CatalogID:   verifyCatalogID,
		CatalogName: verifyCatalogName,
		Brand:       verifyBrand,
		ModelNumber: verifyModelNumber,
		Category:    verifyCategory,
		RawText:     verifyRawText,
	}
	if input.CatalogID == "" || input.CatalogName == "" {
		return model.ProductInput{}, eris.New("either --input or both --catalog-id and --name are required")
	}
	return input, nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifyInputPath, "input", "", "path to a JSON product input file")
	verifyCmd.Flags().StringVar(&verifyCatalogID, "catalog-id", "", "catalog record ID")
	verifyCmd.Flags().StringVar(&verifyCatalogName, "name", "", "catalog record name")
	verifyCmd.Flags().StringVar(&verifyBrand, "brand", "", "brand")
	verifyCmd.Flags().StringVar(&verifyModelNumber, "model-number", "", "model number")
	verifyCmd.Flags().StringVar(&verifyCategory, "category", "", "declared category")
	verifyCmd.Flags().StringVar(&verifyRawText, "raw-text", "", "raw listing text")
	rootCmd.AddCommand(verifyCmd)
}
