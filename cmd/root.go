package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"comprobantes/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "comprobantes",
	Short: "Extract and validate Peruvian electronic payment documents",
	Long: `comprobantes reads scanned invoices and receipts (facturas, boletas, notas de
crédito y débito), extracts the fields the tax authority needs and checks them
against SUNAT's comprobante validation service.

OCR noise is tolerated: when the exact values are not recognised the validator
retries with small, bounded corrections of the amount and the date.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("comprobantes executed")

		fmt.Println("comprobantes: use --help to see available commands.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
